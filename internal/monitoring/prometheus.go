package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shamspias/imgpress"
)

const namespace = "imgpress"

type Options struct {
	Labels prometheus.Labels
}

func copyLabels(p prometheus.Labels) prometheus.Labels {
	x := prometheus.Labels{}
	for k, v := range p {
		x[k] = v
	}

	return x
}

// New returns an Instance whose collectors all carry o.Labels.
func New(o Options) *Instance {
	return &Instance{
		totalImages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "total_images",
			Help:        "The total number of processed images by result",
			ConstLabels: copyLabels(o.Labels),
		}, []string{"result"}),
		currentImages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "current_images",
			Help:        "The current number of images in the pipeline",
			ConstLabels: copyLabels(o.Labels),
		}),
		imageDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "image_duration_seconds",
			Help:        "The seconds spent processing one image",
			ConstLabels: copyLabels(o.Labels),
		}),
		stageDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "stage_duration_seconds",
			Help:        "The seconds spent in each pipeline stage",
			ConstLabels: copyLabels(o.Labels),
		}, []string{"stage"}),
		totalBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "total_bytes",
			Help:        "The total number of bytes decoded from input and encoded to output",
			ConstLabels: copyLabels(o.Labels),
		}, []string{"state"}),
		quality: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "encoder_quality",
			Help:        "The quality handed to the encoder",
			ConstLabels: copyLabels(o.Labels),
			Buckets:     prometheus.LinearBuckets(0, 5, 21),
		}),
		totalInputFormats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "total_input_formats",
			Help:        "The total number of inputs by sniffed MIME type",
			ConstLabels: copyLabels(o.Labels),
		}, []string{"mime"}),
	}
}

// Instance records pipeline metrics. It implements imgpress.Recorder.
type Instance struct {
	totalImages          *prometheus.CounterVec
	currentImages        prometheus.Gauge
	imageDurationSeconds prometheus.Histogram
	stageDurationSeconds *prometheus.HistogramVec

	totalBytes        *prometheus.CounterVec
	quality           prometheus.Histogram
	totalInputFormats *prometheus.CounterVec
}

var _ imgpress.Recorder = (*Instance)(nil)

func (m *Instance) Register(r prometheus.Registerer) {
	r.MustRegister(
		m.totalImages,
		m.currentImages,
		m.imageDurationSeconds,
		m.stageDurationSeconds,

		m.totalBytes,
		m.quality,
		m.totalInputFormats,
	)
}

func (m *Instance) StartImage() func(err error) {
	start := time.Now()
	m.currentImages.Inc()

	return func(err error) {
		result := "ok"
		if err != nil {
			result = imgpress.KindOf(err).String()
		}
		m.totalImages.WithLabelValues(result).Inc()
		m.currentImages.Dec()
		m.imageDurationSeconds.Observe(time.Since(start).Seconds())
	}
}

func (m *Instance) StartStage(stage imgpress.Stage) func() {
	start := time.Now()

	return func() {
		m.stageDurationSeconds.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
}

func (m *Instance) InputFormat(mime string) {
	m.totalInputFormats.WithLabelValues(mime).Inc()
}

func (m *Instance) Quality(q int) {
	m.quality.Observe(float64(q))
}

func (m *Instance) Bytes(in, out int) {
	m.totalBytes.WithLabelValues("in").Add(float64(in))
	m.totalBytes.WithLabelValues("out").Add(float64(out))
}
