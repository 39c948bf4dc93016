package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/securepool/pincheck/internal/config"
	"github.com/securepool/pincheck/internal/notify"
	"github.com/securepool/pincheck/internal/pin"
	"github.com/securepool/pincheck/internal/report"
	"github.com/securepool/pincheck/internal/runner"
)

// Exit codes.
const (
	exitPass  = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	fset := flag.NewFlagSet("pincheck", flag.ContinueOnError)
	configPath := fset.String("config", "", "path to config file; empty uses the built-in localhost:443 checks")
	envFile := fset.String("env-file", ".env", "dotenv file loaded before the config when present")
	watch := fset.Bool("watch", false, "re-run the checks whenever the config file changes")
	pinFile := fset.String("pin-file", "", "print the pins of the certificates in this PEM file and exit")
	pinKind := fset.String("pin-kind", string(pin.KindCertificate), "pin kind for -pin-file: cert or spki")
	if err := fset.Parse(args); err != nil {
		return exitUsage
	}

	setupLogger(config.LogConfig{Level: "info", Format: "json"})

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("failed to load env file", "path", *envFile, "err", err)
			return exitUsage
		}
	}

	if *pinFile != "" {
		return printPins(stdout, *pinFile, *pinKind)
	}

	if *watch && *configPath == "" {
		slog.Error("-watch requires -config")
		return exitUsage
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "err", err)
			return exitUsage
		}
		cfg = loaded
	}
	setupLogger(cfg.Log)

	slog.Info("pincheck starting",
		"config", *configPath,
		"target", fmt.Sprintf("%s:%d", cfg.Target.Host, cfg.Target.Port),
		"checks", len(cfg.Checks),
		"verify_chain", cfg.Target.TLS.VerifyChain,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	code := execute(ctx, cfg, stdout)
	if !*watch {
		return code
	}

	// Runs happen inside the watcher callback, so they never overlap.
	err := config.Watch(ctx, *configPath, func(updated *config.Config) {
		setupLogger(updated.Log)
		code = execute(ctx, updated, stdout)
	})
	if err != nil {
		slog.Error("config watcher stopped", "err", err)
		return exitUsage
	}
	slog.Info("pincheck shutting down")
	return code
}

// execute runs every configured check once and publishes the report.
func execute(ctx context.Context, cfg *config.Config, stdout io.Writer) int {
	r, err := runner.FromConfig(cfg)
	if err != nil {
		slog.Error("failed to build checks", "err", err)
		return exitUsage
	}

	rep := r.Run(ctx)

	if err := report.Print(stdout, rep); err != nil {
		slog.Error("failed to print report", "err", err)
	}
	if path := cfg.Output.MetricsFile; path != "" {
		if err := report.WriteMetricsFile(path, rep); err != nil {
			slog.Error("failed to write metrics file", "path", path, "err", err)
		}
	}
	notify.New(cfg.Notify).Send(ctx, rep)

	return rep.ExitCode()
}

// printPins writes one pin per certificate in path, in OkHttp's
// "sha256/<base64>" form.
func printPins(w io.Writer, path, kind string) int {
	k, err := pin.ParseKind(kind)
	if err != nil {
		slog.Error("invalid -pin-kind", "err", err)
		return exitUsage
	}
	pins, err := pin.FromPEMFile(path, k)
	if err != nil {
		slog.Error("failed to compute pins", "err", err)
		return exitFail
	}
	for _, p := range pins {
		fmt.Fprintln(w, pin.Prefix+p)
	}
	return exitPass
}

// setupLogger installs the default slog logger on stderr. stdout carries
// the human-readable report.
func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
