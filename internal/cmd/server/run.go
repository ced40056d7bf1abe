package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/PortoLucas1/zerobus-station/internal/config"
	"github.com/PortoLucas1/zerobus-station/internal/schema"
	httpserver "github.com/PortoLucas1/zerobus-station/internal/server/http"
	streamsvc "github.com/PortoLucas1/zerobus-station/internal/services/streams"
	"github.com/PortoLucas1/zerobus-station/internal/zerobus"
	logpkg "github.com/PortoLucas1/zerobus-station/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing; replaced by os.Getenv at build time
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	ConfigPath string
	HTTPAddr   string
}

// Run wires the whole service and blocks until ctx is cancelled: config load
// and validation, schema registry, credentials, provider, stream manager,
// HTTP gateway. Shutdown order matters: drain HTTP first so no new records
// arrive, then close every stream, then the provider connection.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context
	// or if signal delivery needs to be observed here. We layer a
	// local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Build process-wide logger using env/ApplyConfig; defaults: level=info, format=text
	logCfg := &logpkg.Config{
		Level:  getenvDefault("ZEROBUS_LOG_LEVEL", "info"),
		Format: getenvDefault("ZEROBUS_LOG_FORMAT", "text"),
	}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		procLogger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	// Redirect stdlib logs (e.g., grpc-go internals) to our logger
	logpkg.RedirectStdLog(procLogger)

	cfg, err := cfgpkg.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfgpkg.FromEnv(&cfg)
	if err := cfgpkg.Validate(&cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	registry, err := schema.NewRegistry(cfg)
	if err != nil {
		return fmt.Errorf("resolve table schemas: %w", err)
	}
	creds, err := cfgpkg.CredentialsFromEnv()
	if err != nil {
		return err
	}

	procLogger.Info("starting zerobus-station",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("endpoint", cfg.Databricks.ServerEndpoint),
		logpkg.Int("tables", len(cfg.Tables)),
		logpkg.Str("level", logCfg.Level),
		logpkg.Str("format", logCfg.Format),
	)

	provider := zerobus.NewGRPCProvider(cfg.Databricks.ServerEndpoint, procLogger)
	mgr := streamsvc.NewWithLogger(provider, zerobus.Credentials{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	}, procLogger)
	hsrv := httpserver.NewWithLogger(mgr, registry, procLogger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server error", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Drain HTTP before tearing down streams so in-flight requests finish.
	hsrv.Close()
	wg.Wait()
	mgr.CloseAll()
	if err := provider.Close(); err != nil {
		procLogger.Warn("provider close", logpkg.Err(err))
	}
	procLogger.Info("zerobus-station stopped")
	return nil
}
