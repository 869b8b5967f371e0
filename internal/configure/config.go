package configure

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shamspias/imgpress"
)

const EnvPrefix = "IMGPRESS"

func checkErr(err error) {
	if err != nil {
		zap.S().Fatalw("config",
			"error", err,
		)
	}
}

// Default returns the configuration used when no other source sets a key.
func Default() Config {
	c := Config{
		Level:      "info",
		ConfigFile: "config.yaml",
	}
	def := imgpress.DefaultOptions()
	c.Defaults.Quality = def.Quality
	c.Defaults.Format = def.Format.String()
	c.Worker.MaxInputMB = imgpress.DefaultMaxInputSize / (1024 * 1024)
	c.Server.Bind = "127.0.0.1:8080"
	c.Server.MaxBodyMB = 256
	c.Monitoring.Bind = "127.0.0.1:9100"
	return c
}

// New loads the configuration from args and exits on error.
func New(args []string) *Config {
	initLogging("info")

	c, err := Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Usage: imgpress [flags] <input files...>\n\n%s", Usage())
		os.Exit(0)
	}
	checkErr(err)

	initLogging(c.Level)

	return c
}

// Load layers defaults, the config file, IMGPRESS_* environment variables
// and flags, in increasing precedence. Positional arguments become Inputs.
func Load(args []string) (*Config, error) {
	config := viper.New()

	// Default config
	b, _ := json.Marshal(Default())
	tmp := viper.New()
	tmp.SetConfigType("json")
	if err := tmp.ReadConfig(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	for _, k := range tmp.AllKeys() {
		config.SetDefault(k, tmp.Get(k))
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	for key, name := range flagKeys {
		if err := config.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, err
		}
	}

	// File
	config.SetConfigFile(config.GetString("config"))
	if err := config.ReadInConfig(); err != nil {
		// The default config file is optional.
		if fs.Changed("config") || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// Environment
	config.SetEnvPrefix(EnvPrefix)
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AllowEmptyEnv(true)
	config.AutomaticEnv()
	bindEnvs(config, Config{})

	c := &Config{}
	if err := config.Unmarshal(c); err != nil {
		return nil, err
	}
	c.Inputs = fs.Args()

	return c, nil
}

// flagKeys maps config keys to the flags that set them.
var flagKeys = map[string]string{
	"config":                  "config",
	"level":                   "level",
	"noheader":                "noheader",
	"worker.jobs":             "jobs",
	"worker.max_input_mb":     "max-input-mb",
	"defaults.quality":        "quality",
	"defaults.format":         "format",
	"defaults.max_width":      "max-width",
	"defaults.max_height":     "max-height",
	"defaults.optimize":       "optimize",
	"defaults.strip_metadata": "strip-metadata",
	"defaults.progressive":    "progressive",
	"output.dir":              "out-dir",
	"analyze":                 "analyze",
	"options":                 "options",
	"server.enabled":          "serve",
	"server.bind":             "bind",
	"monitoring.enabled":      "metrics",
	"monitoring.bind":         "metrics-bind",
}

func newFlagSet() *pflag.FlagSet {
	d := Default()
	fs := pflag.NewFlagSet("imgpress", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.String("config", d.ConfigFile, "Config file location")
	fs.String("level", d.Level, "Log level: debug|info|warn|error")
	fs.Bool("noheader", false, "Disable the startup header")

	fs.Int("jobs", 0, "Concurrent images per batch (0 = GOMAXPROCS)")
	fs.Int("max-input-mb", d.Worker.MaxInputMB, "Largest decoded input in MiB (negative = unlimited)")

	fs.Int("quality", d.Defaults.Quality, "Encoder quality 0-100")
	fs.String("format", d.Defaults.Format, "Output format: jpeg|png|gif|webp|png-to-webp")
	fs.Int("max-width", 0, "Maximum width (0 = no limit)")
	fs.Int("max-height", 0, "Maximum height (0 = no limit)")
	fs.Bool("optimize", false, "Pick quality from image complexity")
	fs.Bool("strip-metadata", false, "Rebuild pixels without metadata")
	fs.Bool("progressive", false, "Accepted for compatibility; has no effect")

	fs.String("out-dir", "", "Output directory (default: beside each input)")
	fs.Bool("analyze", false, "Print complexity stats instead of processing")
	fs.String("options", "", "Options record as JSON, overrides option flags")

	fs.Bool("serve", false, "Run the HTTP API")
	fs.String("bind", d.Server.Bind, "HTTP API bind address")
	fs.Bool("metrics", false, "Serve Prometheus metrics")
	fs.String("metrics-bind", d.Monitoring.Bind, "Metrics bind address")

	return fs
}

// Usage returns the flag help text.
func Usage() string {
	return newFlagSet().FlagUsages()
}

func bindEnvs(config *viper.Viper, iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)
		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok || tv == "-" {
			continue
		}
		switch v.Kind() {
		case reflect.Struct:
			bindEnvs(config, v.Interface(), append(parts, tv)...)
		default:
			_ = config.BindEnv(strings.Join(append(parts, tv), "."))
		}
	}
}

func initLogging(level string) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.Sampling = nil

	logger, err := cfg.Build()
	if err != nil {
		return
	}
	zap.ReplaceGlobals(logger)
}

type Config struct {
	Level      string `mapstructure:"level" json:"level"`
	ConfigFile string `mapstructure:"config" json:"config"`
	NoHeader   bool   `mapstructure:"noheader" json:"noheader"`

	Worker struct {
		Jobs       int `mapstructure:"jobs" json:"jobs"`
		MaxInputMB int `mapstructure:"max_input_mb" json:"max_input_mb"`
	} `mapstructure:"worker" json:"worker"`

	Defaults struct {
		Quality       int    `mapstructure:"quality" json:"quality"`
		Format        string `mapstructure:"format" json:"format"`
		MaxWidth      int    `mapstructure:"max_width" json:"max_width"`
		MaxHeight     int    `mapstructure:"max_height" json:"max_height"`
		Optimize      bool   `mapstructure:"optimize" json:"optimize"`
		StripMetadata bool   `mapstructure:"strip_metadata" json:"strip_metadata"`
		Progressive   bool   `mapstructure:"progressive" json:"progressive"`
	} `mapstructure:"defaults" json:"defaults"`

	Output struct {
		Dir string `mapstructure:"dir" json:"dir"`
	} `mapstructure:"output" json:"output"`

	Analyze bool   `mapstructure:"analyze" json:"analyze"`
	Options string `mapstructure:"options" json:"options"`

	Server struct {
		Enabled   bool   `mapstructure:"enabled" json:"enabled"`
		Bind      string `mapstructure:"bind" json:"bind"`
		MaxBodyMB int    `mapstructure:"max_body_mb" json:"max_body_mb"`
	} `mapstructure:"server" json:"server"`

	Monitoring struct {
		Bind    string `mapstructure:"bind" json:"bind"`
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Labels  Labels `mapstructure:"labels" json:"labels"`
	} `mapstructure:"monitoring" json:"monitoring"`

	// Inputs are the positional arguments.
	Inputs []string `mapstructure:"-" json:"-"`
}

// ImageOptions builds the options record from the defaults section. A
// non-empty Options JSON replaces it entirely.
func (c *Config) ImageOptions() (imgpress.ImageOptions, error) {
	if strings.TrimSpace(c.Options) != "" {
		return imgpress.ParseOptions([]byte(c.Options))
	}
	d := c.Defaults
	opts := imgpress.ImageOptions{
		Quality:       d.Quality,
		Format:        imgpress.ParseFormat(d.Format),
		MaxWidth:      d.MaxWidth,
		MaxHeight:     d.MaxHeight,
		Optimize:      d.Optimize,
		StripMetadata: d.StripMetadata,
		Progressive:   d.Progressive,
	}

	// Run the flag-derived values through the same validation as JSON.
	b, err := json.Marshal(opts)
	if err != nil {
		return imgpress.ImageOptions{}, err
	}
	return imgpress.ParseOptions(b)
}

// MaxInputSize converts Worker.MaxInputMB into the byte limit expected by
// imgpress.Config.
func (c *Config) MaxInputSize() int {
	if c.Worker.MaxInputMB < 0 {
		return -1
	}
	return c.Worker.MaxInputMB * 1024 * 1024
}

type Labels []struct {
	Key   string `mapstructure:"key" json:"key"`
	Value string `mapstructure:"value" json:"value"`
}

func (l Labels) ToPrometheus() prometheus.Labels {
	mp := prometheus.Labels{}

	for _, v := range l {
		mp[v.Key] = v.Value
	}

	return mp
}
