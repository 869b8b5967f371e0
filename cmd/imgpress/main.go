// Command imgpress compresses image files, or serves batch compression over
// HTTP.
//
// Usage:
//
//	imgpress [flags] <input files...>
//	imgpress --analyze <input files...>
//	imgpress --serve [--bind 127.0.0.1:8080]
//
// Examples:
//
//	imgpress photo.jpg
//	imgpress --format webp --optimize --max-width 1920 *.png
//	imgpress --options '{"format":"png-to-webp","quality":70}' logo.png
//	imgpress --analyze photo.jpg
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/bugsnag/panicwrap"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/shamspias/imgpress"
	"github.com/shamspias/imgpress/internal/configure"
	"github.com/shamspias/imgpress/internal/monitoring"
	"github.com/shamspias/imgpress/internal/server"
)

var (
	Version = imgpress.Version
	Unix    = ""
	Time    = "unknown"
	User    = "unknown"
)

func init() {
	if i, err := strconv.Atoi(Unix); err == nil {
		Time = time.Unix(int64(i), 0).Format(time.RFC3339)
	}
}

func main() {
	config := configure.New(os.Args[1:])

	exitStatus, err := panicwrap.BasicWrap(func(s string) {
		zap.S().Error("panic: ", s)
	})
	if err != nil {
		zap.S().Errorw("failed to setup panic handler: ",
			"error", err,
		)
		os.Exit(2)
	}

	if exitStatus >= 0 {
		os.Exit(exitStatus)
	}

	if !config.NoHeader {
		zap.S().Info("imgpress")
		zap.S().Infof("Version: %s", Version)
		zap.S().Infof("build.Time: %s", Time)
		zap.S().Infof("build.User: %s", User)
	}

	zap.S().Debug("MaxProcs: ", runtime.GOMAXPROCS(0))

	if !config.Server.Enabled && len(config.Inputs) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: imgpress [flags] <input files...>\n\n%s", configure.Usage())
		os.Exit(1)
	}

	opts, err := config.ImageOptions()
	if err != nil {
		zap.S().Errorw("invalid options",
			"error", err,
		)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}

	var rec imgpress.Recorder
	if config.Monitoring.Enabled {
		registry := prometheus.NewRegistry()
		inst := monitoring.New(monitoring.Options{
			Labels: config.Monitoring.Labels.ToPrometheus(),
		})
		inst.Register(registry)
		rec = inst

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-monitoring.Serve(ctx, config.Monitoring.Bind, registry)
		}()
	}

	proc := imgpress.New(imgpress.Config{
		Workers:      config.Worker.Jobs,
		MaxInputSize: config.MaxInputSize(),
		Logger:       zap.L(),
		Recorder:     rec,
		OnItem: func(completed, total int) {
			zap.S().Debugf("progress %d/%d", completed, total)
		},
	})

	if config.Server.Enabled {
		srv := server.New(proc, server.Options{
			MaxBodySize: config.Server.MaxBodyMB * 1024 * 1024,
			Logger:      zap.L(),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-srv.Run(ctx, config.Server.Bind)
		}()

		<-sig
		cancel()
		go func() {
			select {
			case <-time.After(time.Minute):
			case <-sig:
			}
			zap.S().Fatal("force shutdown")
		}()

		zap.S().Info("shutting down")

		wg.Wait()

		zap.S().Info("shutdown")
		os.Exit(0)
	}

	go func() {
		select {
		case <-sig:
			zap.S().Info("interrupted, skipping remaining images")
			cancel()
		case <-ctx.Done():
		}
	}()

	if config.Analyze {
		err = analyzeFiles(os.Stdout, config.Inputs)
	} else {
		err = processFiles(ctx, proc, config.Inputs, opts, config.Output.Dir, os.Stdout)
	}

	cancel()
	wg.Wait()

	if err != nil {
		zap.S().Errorw("finished with errors",
			"error", err,
		)
		os.Exit(1)
	}
}
