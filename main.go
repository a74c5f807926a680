package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	apperrors "github.com/davidleathers/attendance-analytics-engine/internal/domain/errors"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/config"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/analytics"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/ingest"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitInput   = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run analyzes one events file and writes the report JSON to stdout
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("attendance-analytics", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		eventsPath = fs.String("events", "-", "Events JSON file (array or {events, roster}); - reads stdin")
		configPath = fs.String("config", "", "Path to configuration file")
		pretty     = fs.Bool("pretty", false, "Indent the report")
	)
	if err := fs.Parse(args); err != nil {
		return exitInput
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitInput
	}
	logger, err := telemetry.SetupCLILogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "failed to setup logger: %v\n", err)
		return exitFailure
	}
	defer func() { _ = logger.Sync() }()

	report, err := analyze(ctx, cfg, logger, *eventsPath, stdin)
	if err != nil {
		logger.Error("analysis failed", zap.Error(err))
		if apperrors.IsType(err, apperrors.ErrorTypeValidation) {
			return exitInput
		}
		return exitFailure
	}

	enc := json.NewEncoder(stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report); err != nil {
		logger.Error("failed to write report", zap.Error(err))
		return exitFailure
	}
	return exitOK
}

func analyze(ctx context.Context, cfg *config.Config, logger *zap.Logger, path string, stdin io.Reader) (*analytics.Report, error) {
	engineCfg, err := cfg.Engine.Resolve()
	if err != nil {
		return nil, err
	}

	data, err := readInput(path, stdin)
	if err != nil {
		return nil, apperrors.NewValidationError("UNREADABLE_INPUT", err.Error())
	}
	payload, err := ingest.Decode(data)
	if err != nil {
		return nil, err
	}

	engine := analytics.NewEngine(engineCfg, logger, nil)
	return engine.Run(ctx, analytics.FromPayload(payload))
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		if stdin == nil {
			return nil, errors.New("no input")
		}
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
