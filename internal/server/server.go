package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"

	"fiado_cache/internal/limits"
	"fiado_cache/internal/obs"
	"fiado_cache/internal/runtime"
)

type Server struct {
	HTTPAddr string
	GRPCAddr string

	httpServer   *http.Server
	grpcServer   *grpc.Server
	httpLn       net.Listener
	grpcLn       net.Listener
	logger       obs.Logger
	limits       limits.Limits
	shutdown     runtime.ShutdownConfig
	inflight     *runtime.InflightTracker
	stoppers     []Stopper
	closeIdle    []func()
	shutdownOnce sync.Once
	shutdownErr  error
}

// Stopper runs early in shutdown, after listeners close and before the
// drain period.
type Stopper interface {
	Stop(ctx context.Context) error
}

type StopFunc func(ctx context.Context) error

func (s StopFunc) Stop(ctx context.Context) error {
	return s(ctx)
}

type Options struct {
	Limits    limits.Limits
	Shutdown  runtime.ShutdownConfig
	Inflight  *runtime.InflightTracker
	Logger    obs.Logger
	Stoppers  []Stopper
	CloseIdle []func()
	// GRPC is served on GRPCAddr when both are set.
	GRPC     *grpc.Server
	GRPCAddr string
}

func StartServers(handler http.Handler, httpAddr string, options Options) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler is nil")
	}
	if httpAddr == "" {
		return nil, errors.New("no listeners configured")
	}

	limitConfig := options.Limits
	if limitConfig.MaxHeaderBytes == 0 {
		limitConfig = limits.Default()
	}
	shutdownConfig := options.Shutdown.WithDefaults()
	logger := options.Logger
	if logger == nil {
		logger = obs.NopLogger{}
	}

	httpLn, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, err
	}
	httpSrv := &http.Server{
		Handler:           handler,
		MaxHeaderBytes:    limitConfig.MaxHeaderBytes,
		ReadHeaderTimeout: limitConfig.ReadHeaderTimeout,
		ReadTimeout:       limitConfig.ReadTimeout,
		WriteTimeout:      limitConfig.WriteTimeout,
		IdleTimeout:       limitConfig.IdleTimeout,
	}

	var grpcLn net.Listener
	if options.GRPC != nil && options.GRPCAddr != "" {
		ln, err := net.Listen("tcp", options.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, err
		}
		grpcLn = ln
	}

	go serveHTTP(httpSrv, httpLn, logger)
	if grpcLn != nil {
		go serveGRPC(options.GRPC, grpcLn, logger)
	}

	s := &Server{
		HTTPAddr:   addrString(httpLn),
		GRPCAddr:   addrString(grpcLn),
		httpServer: httpSrv,
		httpLn:     httpLn,
		grpcLn:     grpcLn,
		logger:     logger,
		limits:     limitConfig,
		shutdown:   shutdownConfig,
		inflight:   options.Inflight,
		stoppers:   options.Stoppers,
		closeIdle:  options.CloseIdle,
	}
	if grpcLn != nil {
		s.grpcServer = options.GRPC
	}
	return s, nil
}

func serveHTTP(server *http.Server, ln net.Listener, logger obs.Logger) {
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		logger.Error("http server error", obs.Fields{"addr": addrString(ln), "error": err.Error()})
	}
}

func serveGRPC(server *grpc.Server, ln net.Listener, logger obs.Logger) {
	if err := server.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("grpc server error", obs.Fields{"addr": addrString(ln), "error": err.Error()})
	}
}

func addrString(ln net.Listener) string {
	if ln == nil {
		return ""
	}
	return ln.Addr().String()
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	if s == nil {
		return nil
	}
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdownSequence()
	})
	return s.shutdownErr
}

func (s *Server) shutdownSequence() error {
	s.logger.Info("shutdown started", obs.Fields{"inflight": s.inflight.Count()})
	s.closeListeners()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), s.shutdown.GracefulTimeout)
	for _, stopper := range s.stoppers {
		if stopper == nil {
			continue
		}
		if err := stopper.Stop(stopCtx); err != nil {
			s.logger.Warn("shutdown stopper failed", obs.Fields{"error": err.Error()})
		}
	}
	stopCancel()

	if remaining := s.shutdown.DrainInflight(context.Background(), s.inflight); remaining > 0 {
		s.logger.Warn("drain period over with requests in flight", obs.Fields{"inflight": remaining})
	}

	for _, closeIdle := range s.closeIdle {
		if closeIdle != nil {
			closeIdle()
		}
	}

	gracefulCtx, gracefulCancel := context.WithTimeout(context.Background(), s.shutdown.GracefulTimeout)
	defer gracefulCancel()
	_ = s.inflight.Wait(gracefulCtx)

	var firstErr error
	if err := s.httpServer.Shutdown(gracefulCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		firstErr = err
	}
	s.stopGRPC(gracefulCtx)
	if gracefulCtx.Err() == nil {
		s.logger.Info("shutdown complete", nil)
		return firstErr
	}

	if s.shutdown.ForceClose > 0 {
		time.Sleep(s.shutdown.ForceClose)
	}
	s.closeServers()
	s.logger.Warn("shutdown forced", obs.Fields{"error": gracefulCtx.Err().Error()})
	if firstErr != nil {
		return firstErr
	}
	return gracefulCtx.Err()
}

func (s *Server) stopGRPC(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// closeListeners stops accepting HTTP connections. The gRPC listener stays
// open until GracefulStop so health clients can observe NOT_SERVING while
// the edge drains.
func (s *Server) closeListeners() {
	if s.httpLn != nil {
		_ = s.httpLn.Close()
	}
}

func (s *Server) closeServers() {
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
}
