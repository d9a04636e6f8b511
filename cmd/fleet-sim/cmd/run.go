package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/picogrid/fleet-dispatch-sim/pkg/logger"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
	"github.com/picogrid/fleet-dispatch-sim/pkg/utils"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fleet simulation",
	Long: `Run the fleet simulation with dispatch and failover until the configured
duration elapses or the process is interrupted. Pending emergency orders from
the fleet seed are dispatched once the simulation is up.`,
	RunE: runFleet,
}

func init() {
	runCmd.Flags().Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	runCmd.Flags().Bool("interactive", false, "prompt for run parameters")
	runCmd.Flags().Bool("no-server", false, "do not start the ops HTTP server")
	runCmd.Flags().Bool("no-dispatch", false, "do not dispatch pending emergency orders at startup")
}

func runFleet(cmd *cobra.Command, _ []string) error {
	overrides := make(map[string]interface{})
	if cmd.Flags().Changed("duration") {
		d, _ := cmd.Flags().GetDuration("duration")
		overrides["duration"] = d
	}

	cfg, err := loadConfig(overrides)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		if !utils.Interactive() {
			logger.Warn("Not a terminal; resolving run parameters from FLEET_* variables and defaults")
		}
		params, err := utils.PromptForParameters(cfg.RunParameters())
		if err != nil {
			return fmt.Errorf("failed to get parameters: %w", err)
		}
		for k, v := range params {
			overrides[k] = v
		}
		// Reload so prompted values win over the file and environment
		if cfg, err = loadConfig(overrides); err != nil {
			return fmt.Errorf("invalid parameters: %w", err)
		}
	}

	// Signals end the wait; services run on their own context so they can
	// land the fleet after an interrupt.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	var echo io.Writer
	if cfg.Logging.EchoJournal {
		echo = os.Stdout
	}
	a, err := newApp(runCtx, cfg, echo)
	if err != nil {
		return err
	}

	logger.LogSection(fmt.Sprintf("Starting %s", cfg.Simulation.Name))
	logger.LogKeyValues(map[string]interface{}{
		"run":      a.journal.RunID(),
		"drones":   len(cfg.Fleet.Drones),
		"orders":   len(cfg.Fleet.Orders),
		"tick":     cfg.Simulation.TickInterval,
		"duration": durationLabel(cfg.Simulation.Duration),
	})

	if len(cfg.Dispatch.GroundStaff) > 0 {
		logger.LogList("Ground staff paged on manual intervention:", cfg.Dispatch.GroundStaff)
	}

	if err := a.start(runCtx); err != nil {
		a.stop(context.Background())
		return err
	}

	waitCtx := sigCtx
	if cfg.Simulation.Duration > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(sigCtx, cfg.Simulation.Duration)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(waitCtx)
	noServer, _ := cmd.Flags().GetBool("no-server")
	if cfg.Server.Enabled && !noServer {
		g.Go(func() error { return a.serve(gctx) })
	}
	if noDispatch, _ := cmd.Flags().GetBool("no-dispatch"); !noDispatch {
		g.Go(func() error {
			dispatchPending(gctx, a)
			return nil
		})
	}
	g.Go(func() error {
		waitFor(gctx, 0)
		return nil
	})

	serveErr := g.Wait()
	if sigCtx.Err() != nil {
		logger.Warn("Received interrupt signal, stopping fleet...")
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), cfg.Simulation.StopTimeout+10*time.Second)
	defer cancelStop()
	if utils.Interactive() && echo == nil {
		landFleet(stopCtx, a)
	} else {
		a.stop(stopCtx)
	}

	a.journal.PrintSummary(os.Stdout)
	if cfg.Logging.EnableReport {
		var path string
		err := logger.WithSpinner("Writing report", func() error {
			var err error
			path, err = a.writeReport(stopCtx)
			return err
		})
		if err == nil {
			logger.Successf("Report saved to %s", path)
		}
	}

	if serveErr != nil {
		return fmt.Errorf("ops server failed: %w", serveErr)
	}
	logger.Success("Fleet run completed")
	return nil
}

// landFleet stops the app behind a spinner that counts the drones still
// airborne.
func landFleet(ctx context.Context, a *app) {
	label := func() string {
		airborne := 0
		for _, st := range a.scheduler.QueryAll() {
			if st.Mode.Airborne() {
				airborne++
			}
		}
		return fmt.Sprintf("Landing %d drones...", airborne)
	}
	spinner := logger.NewSpinner(label())
	spinner.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.stop(ctx)
	}()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			spinner.Success("Fleet landed")
			return
		case <-ticker.C:
			spinner.UpdateMessage(label())
		}
	}
}

// dispatchPending assigns every seeded emergency order that is still pending.
func dispatchPending(ctx context.Context, a *app) {
	pending, err := a.orders.Find(ctx, store.OrderFilter{
		Statuses:   []models.OrderStatus{models.OrderPending},
		Priorities: []models.Priority{models.PriorityEmergency},
	})
	if err != nil {
		logger.Errorf("Failed to list pending emergency orders: %v", err)
		return
	}

	for _, o := range pending {
		if ctx.Err() != nil {
			return
		}
		res, err := a.dispatcher.Assign(ctx, o.ID, "fleet-sim")
		if err != nil {
			logger.Warnf("Order %s not dispatched: %v", o.ID, err)
			continue
		}
		logger.Successf("Order %s dispatched to %s (ETA %s)", o.ID, res.AssignedDrone.ID, res.EstimatedTime.Round(time.Second))
	}
}

func durationLabel(d time.Duration) string {
	if d <= 0 {
		return "until interrupted"
	}
	return d.String()
}
