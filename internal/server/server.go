// Package server exposes batch processing over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/shamspias/imgpress"
)

const (
	PathProcess = "/v1/process"
	PathHealth  = "/health"
)

// Request is the body of POST /v1/process. A missing options record means
// the default options.
type Request struct {
	Images  []string        `json:"images"`
	Options json.RawMessage `json:"options"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Options struct {
	// MaxBodySize is the largest accepted request body in bytes.
	MaxBodySize int
	Logger      *zap.Logger
}

type Server struct {
	proc    *imgpress.Processor
	maxBody int
	log     *zap.Logger
	base    context.Context
}

func New(proc *imgpress.Processor, o Options) *Server {
	s := &Server{
		proc:    proc,
		maxBody: o.MaxBodySize,
		log:     o.Logger,
		base:    context.Background(),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Handler routes a single request.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	defer func() {
		if err := recover(); err != nil {
			s.log.Error("panic in handler",
				zap.Any("panic", err),
				zap.ByteString("path", ctx.Path()),
			)
			writeError(ctx, fasthttp.StatusInternalServerError, "internal error")
		}
	}()

	switch string(ctx.Path()) {
	case PathProcess:
		if !ctx.IsPost() {
			ctx.Response.Header.Set(fasthttp.HeaderAllow, fasthttp.MethodPost)
			writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.process(ctx)
	case PathHealth:
		if !ctx.IsGet() && !ctx.IsHead() {
			ctx.Response.Header.Set(fasthttp.HeaderAllow, fasthttp.MethodGet)
			writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
			return
		}
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString("ok")
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func (s *Server) process(ctx *fasthttp.RequestCtx) {
	body := ctx.PostBody()
	if s.maxBody > 0 && len(body) > s.maxBody {
		writeError(ctx, fasthttp.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", s.maxBody))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "malformed request: "+err.Error())
		return
	}

	options := bytes.TrimSpace(req.Options)
	if len(options) == 0 || bytes.Equal(options, []byte("null")) {
		options = []byte("{}")
	}

	res, err := s.proc.ProcessRequest(s.base, req.Images, options)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	s.log.Info("request processed",
		zap.String("remote", ctx.RemoteAddr().String()),
		zap.Int("images", len(req.Images)),
		zap.Int("succeeded", res.SuccessCount),
		zap.Int("failed", res.FailedCount),
	)
	writeJSON(ctx, fasthttp.StatusOK, res)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}

func writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, errorResponse{Error: msg})
}

// Run serves on bind until ctx is done. Batches started by requests observe
// ctx, so images not yet started at shutdown fail as canceled. The returned
// channel is closed once the server has stopped.
func (s *Server) Run(ctx context.Context, bind string) <-chan struct{} {
	s.base = ctx

	srv := fasthttp.Server{
		Name:               "imgpress",
		Handler:            s.Handler,
		MaxRequestBodySize: s.maxBody,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		zap.S().Infow("API enabled",
			"bind", bind,
		)
		if err := srv.ListenAndServe(bind); err != nil {
			zap.S().Errorw("failed to bind api",
				"error", err,
			)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown()
	}()

	return done
}
