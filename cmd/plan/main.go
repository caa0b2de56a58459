// Command plan runs the slot planner offline against files.
//
// Usage:
//
//	plan schedule --forecast forecast.json --requests requests.json \
//	    --inventory inventory.xlsx --players players.csv --out plan.xlsx
//	plan check --forecast forecast.json --requests requests.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/config"
	"github.com/patrickwarner/openslot/internal/ingest"
	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/observability"
	"github.com/patrickwarner/openslot/internal/planner"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// inputFlags are the files shared by every subcommand.
type inputFlags struct {
	forecast  string
	requests  string
	inventory string
	players   string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.forecast, "forecast", "", "forecast JSON file (screen id -> unix hour -> OTS)")
	cmd.Flags().StringVar(&f.requests, "requests", "", "request JSON file, one object or an array")
	cmd.Flags().StringVar(&f.inventory, "inventory", "", "inventory workbook of free slots (optional)")
	cmd.Flags().StringVar(&f.players, "players", "", "player CSV mapping screen numbers to ids, required with --inventory")
	_ = cmd.MarkFlagRequired("forecast")
	_ = cmd.MarkFlagRequired("requests")
}

// env holds what a subcommand needs to run the planner.
type env struct {
	planner  *planner.Planner
	requests []models.AdvertisementRequest
	forecast models.Forecast
	ledger   models.ReservationLedger
	numbers  map[int64]string
	logger   *zap.Logger
}

func openFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer func() { _ = f.Close() }()
	v, err := parse(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func (f *inputFlags) load() (*env, error) {
	cfg := config.Load()
	logger, err := observability.InitLoggerWithService(cfg.ServiceName + "-plan")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	opts, err := cfg.PlannerOptions()
	if err != nil {
		return nil, err
	}
	p, err := planner.New(opts, nil, logger.Named("planner"), nil)
	if err != nil {
		return nil, err
	}
	e := &env{planner: p, numbers: map[int64]string{}, logger: logger}

	if e.forecast, err = openFile(f.forecast, ingest.ReadForecast); err != nil {
		return nil, err
	}
	if e.requests, err = openFile(f.requests, ingest.ReadRequests); err != nil {
		return nil, err
	}
	if f.inventory == "" {
		return e, nil
	}
	if f.players == "" {
		return nil, fmt.Errorf("--players is required with --inventory")
	}
	screens, err := openFile(f.players, ingest.ParsePlayers)
	if err != nil {
		return nil, err
	}
	for _, s := range screens {
		e.numbers[s.ID] = s.Number
	}
	invOpts := ingest.InventoryOptions{Location: opts.Location, MaxSlots: opts.Tiers.Max()}
	e.ledger, err = openFile(f.inventory, func(r io.Reader) (models.ReservationLedger, error) {
		return ingest.ParseInventory(r, ingest.PlayerIDs(screens), invOpts)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "plan",
		Short:         "Offline display slot planner",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.AddCommand(scheduleCmd())
	root.AddCommand(checkCmd())
	return root
}

func scheduleCmd() *cobra.Command {
	var (
		in       inputFlags
		strategy string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Plan a request batch and optionally write the schedule workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			e, err := in.load()
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()

			var plan *models.PlanResult
			switch strategy {
			case planner.StrategyOptimal:
				plan, err = e.planner.Plan(ctx, e.requests, e.forecast, e.ledger)
			case planner.StrategyGreedy:
				plan, err = e.planner.Greedy(ctx, e.requests, e.forecast, e.ledger)
			default:
				return fmt.Errorf("unknown strategy %q", strategy)
			}
			if err != nil {
				return err
			}

			if output != "" && plan.Status.HasSchedule() {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := ingest.WriteSchedule(f, plan, e.numbers, e.planner.Options().Location); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				e.logger.Info("schedule written", zap.String("path", output))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&strategy, "strategy", planner.StrategyOptimal, "optimal or greedy")
	cmd.Flags().StringVar(&output, "out", "", "schedule workbook to write")
	return cmd
}

func checkCmd() *cobra.Command {
	var in inputFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the aggregate feasibility gate for a request batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := in.load()
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()

			outcomes, err := e.planner.Check(cmd.Context(), e.requests, e.forecast, e.ledger)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcomes)
		},
	}
	in.register(cmd)
	return cmd
}
