package mainutil

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"sync"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	getopt "github.com/pborman/getopt/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/journald"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/grpclog"

	"github.com/chronos-tachyon/verserve/internal/misc"
)

var gLogger *RotatingLogWriter

// LogOptions selects where and how verbosely log.Logger writes.
type LogOptions struct {
	Debug    bool
	Trace    bool
	Stderr   bool
	Journald bool
	File     string
}

var (
	flagVersion bool
	flagLog     LogOptions
)

// RegisterVersionFlag registers the -V/--version flag.
func RegisterVersionFlag() {
	getopt.FlagLong(&flagVersion, "version", 'V', "print version and exit")
}

// RegisterLoggingFlags registers the flags for controlling log output.
func RegisterLoggingFlags() {
	getopt.FlagLong(&flagLog.Debug, "verbose", 'v', "enable debug logging")
	getopt.FlagLong(&flagLog.Trace, "debug", 'd', "enable debug and trace logging")
	getopt.FlagLong(&flagLog.Stderr, "log-stderr", 'S', "log JSON to stderr")
	getopt.FlagLong(&flagLog.Journald, "log-journald", 'J', "log to journald")
	getopt.FlagLong(&flagLog.File, "log-file", 'l', "log JSON to file")
}

// InitVersion processes the -V/--version flag.
func InitVersion() {
	if flagVersion {
		fmt.Println(AppVersion())
		os.Exit(0)
	}
}

// InitLogging processes the logging flags and sets up log.Logger.
//
// The caller must ensure that DoneLogging gets called by the end of the
// program's lifecycle.
func InitLogging() {
	if err := SetupLogging(flagLog, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// SetupLogging configures log.Logger according to opts.  Human-readable
// console output goes to stderr unless opts selects another sink.
func SetupLogging(opts LogOptions, stderr io.Writer) error {
	if opts.Stderr && opts.Journald {
		return fmt.Errorf("flags '--log-stderr' and '--log-journald' are mutually exclusive")
	}
	if opts.Stderr && opts.File != "" {
		return fmt.Errorf("flags '--log-stderr' and '--log-file' are mutually exclusive")
	}
	if opts.Journald && opts.File != "" {
		return fmt.Errorf("flags '--log-journald' and '--log-file' are mutually exclusive")
	}

	if opts.File != "" {
		abs, err := misc.ExpandPath(opts.File)
		if err != nil {
			return err
		}
		opts.File = abs
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.DurationFieldUnit = time.Second
	zerolog.DurationFieldInteger = false
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if opts.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if opts.Trace {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	base := zerolog.New(stderr).With().Timestamp().Logger()

	switch {
	case opts.Stderr:
		log.Logger = base

	case opts.Journald:
		log.Logger = base.Output(journald.NewJournalDWriter())

	case opts.File != "":
		w, err := NewRotatingLogWriter(opts.File)
		if err != nil {
			return fmt.Errorf("failed to open log file for append: %q: %w", opts.File, err)
		}
		if gLogger != nil {
			_ = gLogger.Close()
		}
		gLogger = w
		log.Logger = base.Output(gLogger)

	default:
		log.Logger = base.Output(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339})
	}

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
	grpclog.SetLoggerV2(GRPCLoggerBridge{})
	return nil
}

// DoneLogging does end-of-program cleanup on the logging subsystem.
func DoneLogging() {
	if gLogger != nil {
		_ = gLogger.Close()
		gLogger = nil
	}
}

// RotateLogs rotates the logfile, if that operation makes sense in the current
// logging configuration.
func RotateLogs(ctx context.Context) error {
	if gLogger != nil {
		if err := gLogger.Rotate(); err != nil {
			log.Logger.Error().
				Err(err).
				Msg("failed to rotate logs")
			return err
		}
	}
	return nil
}

// type RotatingLogWriter {{{

// RotatingLogWriter is an io.WriteCloser that can close and re-open its output
// file, for logrotate(8) and the like.
type RotatingLogWriter struct {
	fileName   string
	mu         sync.Mutex
	cv         *sync.Cond
	file       *os.File
	numWriters int
}

// NewRotatingLogWriter constructs a new RotatingLogWriter.
func NewRotatingLogWriter(fileName string) (*RotatingLogWriter, error) {
	file, err := openLogFile(fileName)
	if err != nil {
		return nil, err
	}

	w := &RotatingLogWriter{
		fileName: fileName,
		file:     file,
	}
	w.cv = sync.NewCond(&w.mu)
	return w, nil
}

// Write writes a block of data to the logfile.
//
// The input should generally be a single line of JSON data.
func (w *RotatingLogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	file := w.file
	w.numWriters++
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.numWriters--
		if w.numWriters <= 0 {
			w.cv.Broadcast()
		}
		w.mu.Unlock()
	}()

	return file.Write(p)
}

// Close closes the logfile.
func (w *RotatingLogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.waitForWritersLocked()
	return closeLogFile(w.file)
}

// Rotate closes and re-opens the log file.
func (w *RotatingLogWriter) Rotate() error {
	newFile, err := openLogFile(w.fileName)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.waitForWritersLocked()
	oldFile := w.file
	w.file = newFile
	return closeLogFile(oldFile)
}

func (w *RotatingLogWriter) waitForWritersLocked() {
	for w.numWriters > 0 {
		w.cv.Wait()
	}
}

func openLogFile(fileName string) (*os.File, error) {
	return os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
}

func closeLogFile(file *os.File) error {
	var errs multierror.Error
	misc.Collect(&errs, file.Sync(), file.Close())
	return misc.ErrorOrNil(errs)
}

var _ io.WriteCloser = (*RotatingLogWriter)(nil)

// }}}

// type PromLoggerBridge {{{

// PromLoggerBridge is a promhttp.Logger that forwards to zerolog.
type PromLoggerBridge struct{}

// Println fulfills promhttp.Logger.
func (PromLoggerBridge) Println(v ...interface{}) {
	log.Logger.Error().Msg("prometheus: " + fmt.Sprint(v...))
}

var _ promhttp.Logger = PromLoggerBridge{}

// }}}

// type GRPCLoggerBridge {{{

// GRPCLoggerBridge is a grpclog.LoggerV2 that forwards to zerolog.  gRPC's
// chatty info messages are demoted to trace level.
type GRPCLoggerBridge struct{}

func (GRPCLoggerBridge) event(level zerolog.Level, msg string) {
	log.Logger.WithLevel(level).Str("package", "grpc").Msg(msg)
}

// Info fulfills grpclog.LoggerV2.
func (b GRPCLoggerBridge) Info(args ...interface{}) {
	b.event(zerolog.TraceLevel, fmt.Sprint(args...))
}

// Infoln fulfills grpclog.LoggerV2.
func (b GRPCLoggerBridge) Infoln(args ...interface{}) {
	b.event(zerolog.TraceLevel, fmt.Sprint(args...))
}

// Infof fulfills grpclog.LoggerV2.
func (b GRPCLoggerBridge) Infof(format string, args ...interface{}) {
	b.event(zerolog.TraceLevel, fmt.Sprintf(format, args...))
}

// Warning fulfills grpclog.LoggerV2.
func (b GRPCLoggerBridge) Warning(args ...interface{}) {
	b.event(zerolog.WarnLevel, fmt.Sprint(args...))
}

// Warningln fulfills grpclog.LoggerV2.
func (b GRPCLoggerBridge) Warningln(args ...interface{}) {
	b.event(zerolog.WarnLevel, fmt.Sprint(args...))
}

// Warningf fulfills grpclog.LoggerV2.
func (b GRPCLoggerBridge) Warningf(format string, args ...interface{}) {
	b.event(zerolog.WarnLevel, fmt.Sprintf(format, args...))
}

// Error fulfills grpclog.LoggerV2.
func (b GRPCLoggerBridge) Error(args ...interface{}) {
	b.event(zerolog.ErrorLevel, fmt.Sprint(args...))
}

// Errorln fulfills grpclog.LoggerV2.
func (b GRPCLoggerBridge) Errorln(args ...interface{}) {
	b.event(zerolog.ErrorLevel, fmt.Sprint(args...))
}

// Errorf fulfills grpclog.LoggerV2.
func (b GRPCLoggerBridge) Errorf(format string, args ...interface{}) {
	b.event(zerolog.ErrorLevel, fmt.Sprintf(format, args...))
}

// Fatal fulfills grpclog.LoggerV2.
func (b GRPCLoggerBridge) Fatal(args ...interface{}) {
	log.Logger.Fatal().Str("package", "grpc").Msg(fmt.Sprint(args...))
}

// Fatalln fulfills grpclog.LoggerV2.
func (b GRPCLoggerBridge) Fatalln(args ...interface{}) {
	log.Logger.Fatal().Str("package", "grpc").Msg(fmt.Sprint(args...))
}

// Fatalf fulfills grpclog.LoggerV2.
func (b GRPCLoggerBridge) Fatalf(format string, args ...interface{}) {
	log.Logger.Fatal().Str("package", "grpc").Msgf(format, args...)
}

// V fulfills grpclog.LoggerV2.
func (GRPCLoggerBridge) V(l int) bool {
	return zerolog.GlobalLevel() <= zerolog.TraceLevel
}

var _ grpclog.LoggerV2 = GRPCLoggerBridge{}

// }}}
