// Command mavenrepo maintains checksum side-files and metadata documents of
// Maven repositories stored on disk.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/wolfeidau/maven-repo/backend"
	"github.com/wolfeidau/maven-repo/catalog"
	"github.com/wolfeidau/maven-repo/checksum"
	"github.com/wolfeidau/maven-repo/config"
	"github.com/wolfeidau/maven-repo/metadata"
	"github.com/wolfeidau/maven-repo/repository"
	"github.com/wolfeidau/maven-repo/telemetry"
)

var buildVersion = "dev"

// Globals are the flags shared by every command.
type Globals struct {
	Config         string `short:"c" type:"path" env:"MAVENREPO_CONFIG" help:"Configuration file."`
	LogLevel       string `enum:"debug,info,warn,error" default:"info" help:"Log level (${enum})."`
	LogFormat      string `enum:"console,text,json" default:"console" help:"Log format (${enum})."`
	OTLPEndpoint   string `name:"otlp-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" help:"OTLP gRPC endpoint for metrics."`
	MetricsAddress string `name:"metrics-address" help:"Address to serve Prometheus metrics on."`
}

// CLI is the command line of mavenrepo.
type CLI struct {
	Globals

	Checksum ChecksumCmd `cmd:"" help:"Verify, fix or create checksum side-files."`
	Metadata MetadataCmd `cmd:"" help:"Regenerate maven-metadata.xml documents."`
	Repair   RepairCmd   `cmd:"" help:"Repair checksums and metadata of a whole repository."`
	Catalog  CatalogCmd  `cmd:"" help:"Inspect the metadata catalog."`
	Version  VersionCmd  `cmd:"" help:"Print the version."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("mavenrepo"),
		kong.Description("Maintain checksums and metadata of Maven repositories."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, kctx, &cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, kctx *kong.Context, g *Globals) error {
	logger, err := newLogger(os.Stderr, g.LogLevel, g.LogFormat)
	if err != nil {
		return err
	}
	logger = logger.With("run_id", uuid.NewString())
	slog.SetDefault(logger)

	rt := &runtime{ctx: ctx, logger: logger, out: kctx.Stdout}
	if g.Config != "" {
		cfg, err := config.LoadFile(g.Config)
		if err != nil {
			return err
		}
		rt.cfg = cfg
	}

	otlpEndpoint, metricsAddress := g.OTLPEndpoint, g.MetricsAddress
	if rt.cfg != nil {
		otlpEndpoint = cmp.Or(otlpEndpoint, rt.cfg.Metrics.OTLPEndpoint)
		metricsAddress = cmp.Or(metricsAddress, rt.cfg.Metrics.PrometheusAddress)
	}
	shutdown, err := startMetrics(ctx, logger, otlpEndpoint, metricsAddress)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down metrics", "error", err)
		}
	}()

	return kctx.Run(rt)
}

func newLogger(w io.Writer, logLevel, logFormat string) (*slog.Logger, error) {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", logLevel)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	switch logFormat {
	case "console":
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	case "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format: %s", logFormat)
	}
	return slog.New(handler), nil
}

// startMetrics initialises metric export and serves the Prometheus handler
// when an address is given.
func startMetrics(ctx context.Context, logger *slog.Logger, otlpEndpoint, address string) (func(context.Context) error, error) {
	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceVersion:   buildVersion,
		OTLPEndpoint:     otlpEndpoint,
		EnablePrometheus: address != "",
	})
	if err != nil {
		return nil, fmt.Errorf("initialising metrics: %w", err)
	}
	if address == "" {
		return shutdownMetrics, nil
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		_ = shutdownMetrics(ctx)
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.PrometheusHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", ln.Addr().String())

	return func(ctx context.Context) error {
		return errors.Join(srv.Shutdown(ctx), shutdownMetrics(ctx))
	}, nil
}

// runtime carries the state commands are run with.
type runtime struct {
	ctx    context.Context
	logger *slog.Logger
	out    io.Writer
	cfg    *config.Config
}

func (rt *runtime) config() (*config.Config, error) {
	if rt.cfg == nil {
		return nil, errors.New("a configuration file is required (--config)")
	}
	return rt.cfg, nil
}

// tools returns metadata tools configured from the configuration file.
func (rt *runtime) tools() (*metadata.Tools, error) {
	cfg, err := rt.config()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.ChecksumOptions()
	if err != nil {
		return nil, err
	}
	return metadata.NewTools(
		metadata.WithLogger(rt.logger),
		metadata.WithProxies(cfg),
		metadata.WithAlgorithms(cfg.Algorithms...),
		metadata.WithChecksumOptions(opts...),
	), nil
}

// updater returns an Updater for the configured repository id. The returned
// close function releases the catalog.
func (rt *runtime) updater(id string, opts ...repository.Option) (*repository.Updater, func(), error) {
	cfg, err := rt.config()
	if err != nil {
		return nil, nil, err
	}
	rc, ok := cfg.Repository(id)
	if !ok {
		return nil, nil, fmt.Errorf("unknown repository %q", id)
	}
	storage, err := openStorage(rc.Root)
	if err != nil {
		return nil, nil, err
	}
	tools, err := rt.tools()
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {}
	opts = append([]repository.Option{
		repository.WithLogger(rt.logger),
		repository.WithConcurrency(cfg.Concurrency),
	}, opts...)
	if cfg.Catalog != "" {
		db, err := openCatalog(rt, cfg.Catalog)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, repository.WithCatalog(db))
		closeFn = func() {
			if err := db.Close(); err != nil {
				rt.logger.Warn("closing catalog", "error", err)
			}
		}
	}
	return repository.New(rc, storage, tools, opts...), closeFn, nil
}

// checksumSettings returns the algorithms and side-file options for a
// checksum command. Without a configuration file the defaults apply.
func (rt *runtime) checksumSettings(names []string) ([]checksum.Algorithm, []checksum.Option, error) {
	algs := checksum.DefaultAlgorithms
	opts := []checksum.Option{checksum.WithLogger(rt.logger)}
	if rt.cfg != nil {
		algs = rt.cfg.Algorithms
		cfgOpts, err := rt.cfg.ChecksumOptions()
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, cfgOpts...)
	}
	if len(names) > 0 {
		algs = nil
		for _, name := range names {
			alg, err := checksum.ParseAlgorithm(name)
			if err != nil {
				return nil, nil, err
			}
			algs = append(algs, alg)
		}
	}
	return algs, opts, nil
}

func openCatalog(rt *runtime, path string) (*catalog.DB, error) {
	db := catalog.New(catalog.WithLogger(rt.logger))
	if err := db.Open(path); err != nil {
		return nil, err
	}
	return db, nil
}

func openStorage(root string) (backend.Backend, error) {
	fs, err := backend.NewFilesystem(root)
	if err != nil {
		return nil, fmt.Errorf("opening repository root %s: %w", root, err)
	}
	return backend.NewInstrumentedBackend(fs, "filesystem"), nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(rt *runtime) error {
	_, err := fmt.Fprintln(rt.out, buildVersion)
	return err
}
