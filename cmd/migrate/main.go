package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/config"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/database"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/telemetry"
)

const migrationsDir = "internal/infrastructure/database/migrations"

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		action     = flag.String("action", "up", "Migration action: up, down, status, create")
		name       = flag.String("name", "", "Migration name (for create action)")
		steps      = flag.Int("steps", 0, "Number of migrations to run (0 = all)")
		dir        = flag.String("dir", migrationsDir, "Migrations directory (for create action)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := telemetry.SetupCLILogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger, *action, *name, *dir, *steps); err != nil {
		logger.Error("migration failed", zap.String("action", *action), zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger, action, name, dir string, steps int) error {
	if action == "create" {
		up, down, err := createMigration(dir, name)
		if err != nil {
			return err
		}
		logger.Info("created migration", zap.String("up", up), zap.String("down", down))
		return nil
	}

	if cfg.Database.URL == "" {
		return errors.New("database url is required (AAE_DATABASE_URL)")
	}
	m, err := database.NewMigrator(cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	switch action {
	case "up":
		return m.Up(steps)
	case "down":
		return m.Down(steps)
	case "status":
		version, dirty, ok, err := m.Version()
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("no migrations applied")
			return nil
		}
		logger.Info("migration status", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

var (
	versionPattern = regexp.MustCompile(`^(\d+)_.+\.(up|down)\.sql$`)
	unsafeChars    = regexp.MustCompile(`[^a-z0-9]+`)
)

// migrationName lowercases name and joins its words with underscores
func migrationName(name string) string {
	return strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// nextVersion returns one past the highest sequence number in dir
func nextVersion(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	highest := 0
	for _, e := range entries {
		match := versionPattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		v, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		highest = max(highest, v)
	}
	return highest + 1, nil
}

// createMigration writes an empty up/down pair with the next sequence number
func createMigration(dir, name string) (string, string, error) {
	clean := migrationName(name)
	if clean == "" {
		return "", "", errors.New("migration name is required for create action")
	}
	version, err := nextVersion(dir)
	if err != nil {
		return "", "", err
	}

	base := fmt.Sprintf("%06d_%s", version, clean)
	up := filepath.Join(dir, base+".up.sql")
	down := filepath.Join(dir, base+".down.sql")
	header := fmt.Sprintf("-- %s\n", base)
	if err := os.WriteFile(up, []byte(header), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", up, err)
	}
	if err := os.WriteFile(down, []byte(header), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", down, err)
	}
	return up, down, nil
}
