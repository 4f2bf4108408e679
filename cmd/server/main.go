// Command tc-server serves the timecards HTTP API and a gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/timecards/internal/limiter"
	"github.com/and161185/timecards/internal/metrics"
	"github.com/and161185/timecards/internal/migrate"
	"github.com/and161185/timecards/internal/model"
	"github.com/and161185/timecards/internal/repository"
	"github.com/and161185/timecards/internal/repository/memory"
	"github.com/and161185/timecards/internal/repository/postgres"
	grpcserver "github.com/and161185/timecards/internal/server/grpc"
	httpserver "github.com/and161185/timecards/internal/server/http"
	"github.com/and161185/timecards/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

type config struct {
	addr            string
	grpcAddr        string
	dsn             string
	jwtKey          string
	accessTTL       time.Duration
	shutdownTimeout time.Duration
	dbProbe         time.Duration
	dbMaxConns      int
	certFile        string
	keyFile         string
	dev             bool
}

func parseFlags(args []string) (config, error) {
	var c config
	fs := flag.NewFlagSet("tc-server", flag.ContinueOnError)
	fs.StringVar(&c.addr, "addr", ":8080", "HTTP listen address")
	fs.StringVar(&c.grpcAddr, "grpc-addr", ":8081", "gRPC health listen address (empty disables)")
	fs.StringVar(&c.dsn, "dsn", "", "PostgreSQL DSN (empty keeps everything in memory)")
	fs.StringVar(&c.jwtKey, "jwt-key", "", "HS256 signing key (required)")
	fs.DurationVar(&c.accessTTL, "access-ttl", 15*time.Minute, "access token TTL")
	fs.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 5*time.Second, "graceful shutdown limit")
	fs.DurationVar(&c.dbProbe, "db-probe", 10*time.Second, "storage health probe interval")
	fs.IntVar(&c.dbMaxConns, "db-max-conns", 0, "PostgreSQL pool size (0 keeps the driver default)")
	fs.StringVar(&c.certFile, "tls-cert", "", "TLS certificate (PEM); empty serves plaintext")
	fs.StringVar(&c.keyFile, "tls-key", "", "TLS private key (PEM)")
	fs.BoolVar(&c.dev, "dev", false, "enable gRPC server reflection (dev only)")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if c.jwtKey == "" {
		return config{}, errors.New("missing jwt signing key (-jwt-key)")
	}
	if c.dbMaxConns < 0 {
		return config{}, errors.New("-db-max-conns must not be negative")
	}
	if (c.certFile == "") != (c.keyFile == "") {
		return config{}, errors.New("-tls-cert and -tls-key go together")
	}
	return c, nil
}

// storage bundles the repositories and limiter chosen by -dsn.
type storage struct {
	timecards repository.TimecardRepository
	accounts  repository.AccountRepository
	limiter   limiter.Limiter
	pinger    grpcserver.Pinger
	close     func()
}

func openStorage(ctx context.Context, dsn string, maxConns int) (storage, error) {
	if dsn == "" {
		return storage{
			timecards: memory.NewTimecardStore(),
			accounts:  memory.NewAccountStore(),
			limiter:   limiter.NewMemory(limiter.DefaultPolicy),
			close:     func() {},
		}, nil
	}
	if err := migrate.Up(ctx, dsn); err != nil {
		return storage{}, err
	}
	db, err := postgres.New(ctx, dsn, int32(maxConns))
	if err != nil {
		return storage{}, err
	}
	return storage{
		timecards: postgres.NewTimecardRepo(db),
		accounts:  postgres.NewAccountRepo(db),
		limiter:   limiter.NewPG(db.Pool, limiter.DefaultPolicy),
		pinger:    db,
		close:     db.Close,
	}, nil
}

// main parses configuration, opens storage and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.addr),
		zap.Bool("memory", cfg.dsn == ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg.dsn, cfg.dbMaxConns)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	authSvc := service.NewAuthService(st.accounts, []byte(cfg.jwtKey), cfg.accessTTL, st.limiter, m)
	tcSvc := service.NewTimecardService(st.timecards, model.Env{}, m)

	opts := []httpserver.Option{httpserver.WithMetrics(m, reg)}
	if st.pinger != nil {
		opts = append(opts, httpserver.WithPinger(st.pinger))
	}
	httpSrv := &http.Server{
		Addr:              cfg.addr,
		Handler:           httpserver.New(authSvc, tcSvc, logger, opts...).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.addr), zap.Bool("tls", cfg.certFile != ""))
		var err error
		if cfg.certFile != "" {
			err = httpSrv.ListenAndServeTLS(cfg.certFile, cfg.keyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var (
		grpcSrv *grpc.Server
		health  *grpcserver.Health
	)
	if cfg.grpcAddr != "" {
		var gopts []grpc.ServerOption
		if cfg.certFile != "" {
			creds, err := credentials.NewServerTLSFromFile(cfg.certFile, cfg.keyFile)
			if err != nil {
				logger.Fatal("failed to load TLS cert/key", zap.Error(err))
			}
			gopts = append(gopts, grpc.Creds(creds))
		}
		grpcSrv = grpcserver.New(logger, m, gopts...)
		health = grpcserver.NewHealth(st.pinger, cfg.dbProbe, logger)
		health.Register(grpcSrv)
		if cfg.dev {
			reflection.Register(grpcSrv)
		}
		go health.Run(ctx)

		lis, err := net.Listen("tcp", cfg.grpcAddr)
		if err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
		go func() {
			logger.Info("grpc listening", zap.String("addr", cfg.grpcAddr))
			errCh <- grpcSrv.Serve(lis)
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		st.close()
		os.Exit(1)
	}

	if health != nil {
		health.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		done := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			grpcSrv.Stop()
		}
	}
	logger.Info("shutdown complete")
}
