// Command "verserve" answers every HTTP request with the trimmed contents of
// a version file, read afresh on each request.  Deployment test harnesses
// poll it to learn which build is live.
//
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	getopt "github.com/pborman/getopt/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/chronos-tachyon/verserve/internal/constants"
	"github.com/chronos-tachyon/verserve/lib/mainutil"
	"github.com/chronos-tachyon/verserve/lib/versionfile"
)

var (
	flagListenHTTP  string = constants.DefaultListenHTTP
	flagListenProm  string = ""
	flagListenGRPC  string = ""
	flagVersionFile string = constants.DefaultVersionFile
)

func init() {
	getopt.SetParameters("")

	mainutil.SetAppVersion(mainutil.VerserveVersion())
	mainutil.RegisterVersionFlag()
	mainutil.RegisterLoggingFlags()

	getopt.FlagLong(&flagListenHTTP, "listen-http", 'H', "address to serve the version file on")
	getopt.FlagLong(&flagListenProm, "listen-prom", 'P', "address for Prometheus monitoring metrics; empty to disable")
	getopt.FlagLong(&flagListenGRPC, "listen-grpc", 'G', "address for the gRPC health service; empty to disable")
	getopt.FlagLong(&flagVersionFile, "version-file", 'f', "file whose trimmed contents are served; relative to the working directory")
}

var gMultiServer mainutil.MultiServer

func main() {
	getopt.Parse()

	mainutil.InitVersion()

	mainutil.InitLogging()
	defer mainutil.DoneLogging()

	mainutil.InitContext()
	defer mainutil.CancelRootContext()
	ctx := mainutil.RootContext()

	var httpListenConfig mainutil.ListenConfig
	var promListenConfig mainutil.ListenConfig
	var grpcListenConfig mainutil.ListenConfig
	processFlags(&httpListenConfig, &promListenConfig, &grpcListenConfig)

	reader := versionfile.Reader{Path: flagVersionFile}

	httpListener, err := httpListenConfig.Listen(ctx)
	if err != nil {
		log.Logger.Fatal().
			Str("subsystem", constants.SubsystemHTTP).
			Interface("config", httpListenConfig).
			Err(err).
			Msg("failed to Listen")
	}

	gMultiServer.AddHTTPServer(
		constants.SubsystemHTTP,
		NewVersionServer(ctx, reader, &gMultiServer),
		httpListener)

	log.Logger.Info().
		Str("subsystem", constants.SubsystemHTTP).
		Str("addr", httpListener.Addr().String()).
		Str("versionFile", reader.FilePath()).
		Msg("version listener ready")

	if err := announceStartup(os.Stdout, httpListener.Addr()); err != nil {
		log.Logger.Warn().
			Err(err).
			Msg("failed to write startup line to stdout")
	}

	if promListenConfig.Enabled {
		promListener, err := promListenConfig.Listen(ctx)
		if err != nil {
			log.Logger.Fatal().
				Str("subsystem", constants.SubsystemProm).
				Interface("config", promListenConfig).
				Err(err).
				Msg("failed to Listen")
		}

		gMultiServer.AddHTTPServer(
			constants.SubsystemProm,
			NewPromServer(ctx, prometheus.DefaultGatherer),
			promListener)

		log.Logger.Info().
			Str("subsystem", constants.SubsystemProm).
			Str("addr", promListener.Addr().String()).
			Msg("metrics listener ready")
	}

	if grpcListenConfig.Enabled {
		grpcListener, err := grpcListenConfig.Listen(ctx)
		if err != nil {
			log.Logger.Fatal().
				Str("subsystem", constants.SubsystemGRPC).
				Interface("config", grpcListenConfig).
				Err(err).
				Msg("failed to Listen")
		}

		grpcServer := grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, gMultiServer.HealthServer())
		gMultiServer.AddGRPCServer(constants.SubsystemGRPC, grpcServer, grpcListener)

		log.Logger.Info().
			Str("subsystem", constants.SubsystemGRPC).
			Str("addr", grpcListener.Addr().String()).
			Msg("health listener ready")
	}

	gMultiServer.OnReload(mainutil.RotateLogs)
	gMultiServer.SetHealth("", true)
	initVersionHealth(ctx, reader, &gMultiServer)

	err = gMultiServer.Run(ctx)
	if err != nil {
		log.Logger.Error().
			Err(err).
			Msg("Run")
		mainutil.DoneLogging()
		os.Exit(1)
	}
}

func processFlags(
	httpListenConfig *mainutil.ListenConfig,
	promListenConfig *mainutil.ListenConfig,
	grpcListenConfig *mainutil.ListenConfig,
) {
	if flagVersionFile == "" {
		log.Logger.Fatal().
			Msg("--version-file: must not be empty")
	}

	err := httpListenConfig.Parse(flagListenHTTP)
	if err == nil && !httpListenConfig.Enabled {
		err = mainutil.ErrExpectNonEmpty
	}
	if err != nil {
		log.Logger.Fatal().
			Str("subsystem", constants.SubsystemHTTP).
			Str("input", flagListenHTTP).
			Err(err).
			Msg("--listen-http: failed to parse config")
	}

	log.Logger.Trace().
		Str("subsystem", constants.SubsystemHTTP).
		Interface("config", httpListenConfig).
		Msg("ready")

	err = promListenConfig.Parse(flagListenProm)
	if err != nil {
		log.Logger.Fatal().
			Str("subsystem", constants.SubsystemProm).
			Str("input", flagListenProm).
			Err(err).
			Msg("--listen-prom: failed to parse config")
	}

	log.Logger.Trace().
		Str("subsystem", constants.SubsystemProm).
		Interface("config", promListenConfig).
		Msg("ready")

	err = grpcListenConfig.Parse(flagListenGRPC)
	if err != nil {
		log.Logger.Fatal().
			Str("subsystem", constants.SubsystemGRPC).
			Str("input", flagListenGRPC).
			Err(err).
			Msg("--listen-grpc: failed to parse config")
	}

	log.Logger.Trace().
		Str("subsystem", constants.SubsystemGRPC).
		Interface("config", grpcListenConfig).
		Msg("ready")
}

// initVersionHealth registers the version subsystem before the first request
// arrives, healthy iff the version file is readable right now.  A failure here
// is not fatal and is logged only at debug level; requests report it.
func initVersionHealth(ctx context.Context, reader versionfile.Reader, health HealthSetter) {
	_, err := reader.Read(ctx)
	if err != nil {
		log.Logger.Debug().
			Str("path", reader.FilePath()).
			Err(err).
			Msg("version file not readable at startup")
	}
	health.SetHealth(constants.SubsystemVersion, err == nil)
}

// NewVersionServer returns the *http.Server for the catch-all version
// listener.  It sets no read or write timeouts: a slow file read only delays
// its own response.
func NewVersionServer(ctx context.Context, reader versionfile.Reader, health HealthSetter) *http.Server {
	metrics := gMetrics[constants.SubsystemHTTP]

	var handler http.Handler
	handler = VersionHandler{Reader: reader, Health: health, Metrics: metrics}
	handler = RootHandler{Subsystem: constants.SubsystemHTTP, Metrics: metrics, Next: handler}

	return &http.Server{
		Handler:        handler,
		MaxHeaderBytes: 1 << 20,
		BaseContext:    MakeBaseContextFunc(ctx),
		ConnContext:    MakeConnContextFunc(constants.SubsystemHTTP),
	}
}

// NewPromServer returns the *http.Server for the optional metrics listener.
func NewPromServer(ctx context.Context, gatherer prometheus.Gatherer) *http.Server {
	var promHandler http.Handler
	promHandler = promhttp.HandlerFor(
		gatherer,
		promhttp.HandlerOpts{
			ErrorLog:            mainutil.PromLoggerBridge{},
			MaxRequestsInFlight: 4,
			EnableOpenMetrics:   true,
		})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promHandler)

	var handler http.Handler = mux
	handler = RootHandler{Subsystem: constants.SubsystemProm, Metrics: gMetrics[constants.SubsystemProm], Next: handler}

	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       MakeBaseContextFunc(ctx),
		ConnContext:       MakeConnContextFunc(constants.SubsystemProm),
	}
}
