package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/drive-consolidator/internal/config"
	"github.com/eugenenazirov/drive-consolidator/internal/consolidator"
	"github.com/eugenenazirov/drive-consolidator/internal/logging"
	"github.com/eugenenazirov/drive-consolidator/internal/report"
	"github.com/eugenenazirov/drive-consolidator/internal/storage"
	"github.com/eugenenazirov/drive-consolidator/internal/watch"
)

var (
	demoUsed  = []int{331, 242, 384, 366, 428, 211, 145, 89, 581, 170}
	demoTotal = []int{502, 249, 800, 900, 770, 573, 771, 565, 693, 714}
)

var errReplayMismatch = errors.New("replayed moves do not reproduce the consolidated layout")

func main() {
	kingpinApp := kingpin.New("mindrives", "Computes the minimum number of drives the data fits on and the moves that get it there")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").String()
	unit := kingpinApp.Flag("unit", "Size of one unit of data, such as MB or GiB; empty prints raw numbers").String()

	runCmd := kingpinApp.Command("run", "Consolidate a fleet once and print the report").Default()
	runUsed := runCmd.Flag("used", "Comma-separated used sizes").String()
	runTotal := runCmd.Flag("total", "Comma-separated total sizes").String()
	runFile := runCmd.Flag("file", "YAML or JSON fleet file with used and total lists").String()
	runVerify := runCmd.Flag("verify", "Replay the move log against the input and check the result").Bool()

	watchCmd := kingpinApp.Command("watch", "Re-run the consolidation whenever the fleet file changes")
	watchFile := watchCmd.Flag("file", "YAML or JSON fleet file with used and total lists").Required().String()
	watchDebounce := watchCmd.Flag("debounce", "Quiet period before re-running after a change").Default("100ms").Duration()
	watchVerify := watchCmd.Flag("verify", "Replay the move log against the input and check the result").Bool()

	command := kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
		LogLevel:   logLevel,
	}
	if *unit != "" {
		overrides.Unit = unit
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		kingpinApp.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		kingpinApp.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch command {
	case runCmd.FullCommand():
		used, total, err := resolveInput(*runUsed, *runTotal, *runFile, cfg.MaxDrives)
		if err != nil {
			kingpinApp.Fatalf("%v", err)
		}
		if err := runOnce(os.Stdout, logger, cfg, used, total, *runVerify); err != nil {
			logger.Error("consolidation failed", zap.Error(err))
			os.Exit(1)
		}

	case watchCmd.FullCommand():
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := watchFleet(ctx, os.Stdout, logger, cfg, *watchFile, *watchDebounce, *watchVerify); err != nil {
			logger.Error("watch failed", zap.Error(err))
			os.Exit(1)
		}
	}
}

// resolveInput picks the drives to consolidate: a fleet file, explicit
// lists, or the built-in demo fleet when neither is given.
func resolveInput(usedRaw, totalRaw, file string, maxDrives int) ([]int, []int, error) {
	if file != "" {
		if usedRaw != "" || totalRaw != "" {
			return nil, nil, errors.New("--file cannot be combined with --used or --total")
		}
		fleet, err := storage.LoadFleetFile(file, maxDrives)
		if err != nil {
			return nil, nil, err
		}
		return fleet.Used, fleet.Total, nil
	}

	if usedRaw == "" && totalRaw == "" {
		return slices.Clone(demoUsed), slices.Clone(demoTotal), nil
	}
	if usedRaw == "" || totalRaw == "" {
		return nil, nil, errors.New("--used and --total must be given together")
	}

	used, err := config.ParseSizes(usedRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse --used: %w", err)
	}
	total, err := config.ParseSizes(totalRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse --total: %w", err)
	}
	return used, total, nil
}

func runOnce(w io.Writer, logger *zap.Logger, cfg config.Config, used, total []int, verify bool) error {
	for _, warning := range consolidator.CheckBounds(used, total, cfg.MaxDrives, cfg.MaxCapacity) {
		logger.Warn("input outside advised limits", zap.String("warning", warning))
	}

	printer, err := report.NewPrinter(w, cfg.Unit)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := consolidator.Consolidate(used, total)
	if err != nil {
		return err
	}
	logger.Debug("consolidation completed",
		zap.Int("drives", len(used)),
		zap.Int("minimum_drives", result.MinimumDrives),
		zap.Int("moves", result.Moves.Size()),
		zap.Duration("duration", time.Since(start)),
	)

	printer.Run(used, total, result)

	if verify {
		replayed, err := consolidator.Replay(used, result.Moves.Entries())
		if err != nil {
			return fmt.Errorf("replay moves: %w", err)
		}
		if !slices.Equal(replayed, result.FinalUsed) {
			return errReplayMismatch
		}
		fmt.Fprintln(w, "\nReplay verified")
	}
	return nil
}

func watchFleet(ctx context.Context, w io.Writer, logger *zap.Logger, cfg config.Config, file string, debounce time.Duration, verify bool) error {
	task := func() error {
		fleet, err := storage.LoadFleetFile(file, cfg.MaxDrives)
		if err != nil {
			return err
		}
		logger.Info("fleet loaded", zap.String("fleet", fleet.Name), zap.Int("drives", len(fleet.Used)))
		return runOnce(w, logger, cfg, fleet.Used, fleet.Total, verify)
	}

	runner := watch.New(file, task, watch.WithDebounce(debounce), watch.WithLogger(logger))
	return runner.Run(ctx)
}
