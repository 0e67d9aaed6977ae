// Command "verservectl" is the operator CLI for "verserve".
//
// Usage:
//
//	verservectl [<flags>] <cmd> [<args>...]
//
// Flags:
//
//	-V, --version        print version and exit
//	-u, --url=url        URL of the verserve HTTP listener
//	     [default: "http://localhost:3000/"]
//	-s, --server=addr    address of the verserve gRPC health listener
//	-f, --follow         with "logs", keep reading as the file grows
//	-J, --log-journald   log to journald
//	-l, --log-file=path  log JSON to file
//	-S, --log-stderr     log JSON to stderr
//	-v, --verbose        enable debug logging
//	-d, --debug          enable debug and trace logging
//
// Commands:
//
//	help                 list available commands
//	get                  print the version currently being served
//	healthcheck name     check the health of the named subsystem(*)
//	watch name           stream health changes for the named subsystem(*)
//	logs [file]          pretty-print a JSON log written by --log-file or --log-stderr
//
//	(*) Requires --server.  The empty string, "", is the whole process.
//
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	getopt "github.com/pborman/getopt/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/chronos-tachyon/verserve/lib/mainutil"
)

const helpText = `verservectl [<flags>] <cmd> [<arg>...]
Commands available:
	help
	get
	healthcheck <subsystem>
	watch <subsystem>
	logs [<file>]
`

var (
	flagURL    string = "http://localhost:3000/"
	flagServer string = ""
	flagFollow bool
)

func init() {
	getopt.SetParameters("<cmd> [<arg>...]")

	mainutil.SetAppVersion(mainutil.VerserveVersion())
	mainutil.RegisterVersionFlag()
	mainutil.RegisterLoggingFlags()

	getopt.FlagLong(&flagURL, "url", 'u', "URL of the verserve HTTP listener")
	getopt.FlagLong(&flagServer, "server", 's', "address of the verserve gRPC health listener")
	getopt.FlagLong(&flagFollow, "follow", 'f', "with \"logs\", follow the log file in real time")
}

func main() {
	getopt.Parse()

	mainutil.InitVersion()

	mainutil.InitLogging()
	defer mainutil.DoneLogging()

	mainutil.InitContext()
	defer mainutil.CancelRootContext()
	ctx := mainutil.RootContext()

	var cmd string
	if getopt.NArgs() == 0 {
		cmd = "help"
	} else {
		cmd = getopt.Arg(0)
	}

	if cmd == "help" {
		fmt.Print(helpText + "\n")
		os.Exit(0)
	}

	if err := checkArgs(cmd, getopt.NArgs()); err != nil {
		log.Logger.Fatal().
			Str("cmd", cmd).
			Int("actual", getopt.NArgs()).
			Err(err).
			Msg("wrong number of arguments")
	}

	switch cmd {
	case "get":
		text, err := fetchVersion(ctx, http.DefaultClient, flagURL)
		if err != nil {
			log.Logger.Fatal().
				Str("url", flagURL).
				Err(err).
				Msg("GET failed")
		}
		fmt.Print(text)

	case "healthcheck", "watch":
		runHealth(ctx, cmd, getopt.Arg(1))

	case "logs":
		inputFile := "-"
		if getopt.NArgs() >= 2 {
			inputFile = getopt.Arg(1)
		}
		runLogs(ctx, inputFile, flagFollow)

	default:
		log.Logger.Fatal().
			Str("cmd", cmd).
			Msg("unknown command")
	}
}

// checkArgs validates the argument count for cmd, including cmd itself.
func checkArgs(cmd string, nargs int) error {
	minArgs, maxArgs := 1, 1
	switch cmd {
	case "healthcheck", "watch":
		minArgs, maxArgs = 2, 2
	case "logs":
		minArgs, maxArgs = 1, 2
	}
	if nargs < minArgs || nargs > maxArgs {
		if minArgs == maxArgs {
			return fmt.Errorf("expected %d arguments, got %d", minArgs, nargs)
		}
		return fmt.Errorf("expected %d to %d arguments, got %d", minArgs, maxArgs, nargs)
	}
	return nil
}

// fetchVersion performs a GET against url and returns the response body.  Any
// status other than 200 is an error.
func fetchVersion(ctx context.Context, client *http.Client, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

func runHealth(ctx context.Context, cmd string, service string) {
	if flagServer == "" {
		log.Logger.Fatal().
			Str("cmd", cmd).
			Msg("--server: required")
	}

	var lc mainutil.ListenConfig
	err := lc.Parse(flagServer)
	if err != nil {
		log.Logger.Fatal().
			Str("input", flagServer).
			Err(err).
			Msg("--server: failed to parse")
	}

	cc, err := grpc.DialContext(
		ctx,
		dialTarget(lc),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Logger.Fatal().
			Interface("config", lc).
			Err(err).
			Msg("--server: failed to Dial")
	}
	defer func() {
		_ = cc.Close()
	}()

	health := grpc_health_v1.NewHealthClient(cc)
	req := &grpc_health_v1.HealthCheckRequest{Service: service}

	switch cmd {
	case "healthcheck":
		resp, err := health.Check(ctx, req)
		if err != nil {
			log.Logger.Fatal().
				Str("rpcService", "grpc.health.v1.Health").
				Str("rpcMethod", "Check").
				Err(err).
				Msg("RPC failed")
		}
		log.Logger.Info().
			Str("subsystem", service).
			Str("status", resp.Status.String()).
			Msg("OK")

	case "watch":
		stream, err := health.Watch(ctx, req)
		if err != nil {
			log.Logger.Fatal().
				Str("rpcService", "grpc.health.v1.Health").
				Str("rpcMethod", "Watch").
				Err(err).
				Msg("RPC failed")
		}
		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				log.Logger.Fatal().
					Str("rpcService", "grpc.health.v1.Health").
					Str("rpcMethod", "Watch").
					Err(err).
					Msg("Recv failed")
			}
			log.Logger.Info().
				Str("subsystem", service).
				Str("status", resp.Status.String()).
				Msg("health changed")
		}
	}
}

// dialTarget renders a ListenConfig as a gRPC dial target.
func dialTarget(lc mainutil.ListenConfig) string {
	switch {
	case lc.Network == "unix" && strings.HasPrefix(lc.Address, "\x00"):
		return "unix-abstract:" + lc.Address[1:]
	case lc.Network == "unix":
		return "unix://" + lc.Address
	case strings.HasPrefix(lc.Address, ":"):
		return "localhost" + lc.Address
	default:
		return lc.Address
	}
}

func runLogs(ctx context.Context, inputFile string, follow bool) {
	var (
		f         *os.File
		wantClose bool
	)

	defer func() {
		if wantClose {
			_ = f.Close()
		}
	}()

	if inputFile == "-" {
		f, wantClose = os.Stdin, false
	} else {
		var err error
		f, err = os.Open(inputFile)
		if err != nil {
			log.Logger.Fatal().
				Str("inputFile", inputFile).
				Err(err).
				Msg("failed to open input file")
		}
		wantClose = true
	}

	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if err := copyLogLines(ctx, out, os.Stdout, f, follow); err != nil {
		log.Logger.Fatal().
			Str("inputFile", inputFile).
			Err(err).
			Msg("failed to read from input file")
	}
}
