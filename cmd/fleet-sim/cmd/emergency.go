package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/picogrid/fleet-dispatch-sim/pkg/dispatch"
	"github.com/picogrid/fleet-dispatch-sim/pkg/logger"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
)

var emergencyCmd = &cobra.Command{
	Use:   "emergency [order-id...]",
	Short: "Dispatch emergency orders from the fleet seed and show the outcome",
	Long: `Load the configured fleet, rank the drones for each emergency order,
assign the best one and optionally force a failover to a backup drone. With no
order IDs every pending emergency order is dispatched.`,
	RunE: runEmergency,
}

func init() {
	emergencyCmd.Flags().String("failover", "", "force a failover after assignment (critical_battery, delayed_delivery, manual)")
	emergencyCmd.Flags().Duration("watch", 0, "keep simulating for this long after dispatch")
	emergencyCmd.Flags().Bool("candidates", true, "print the ranked candidates before assigning")
}

func runEmergency(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var reason models.FailoverReason
	if r, _ := cmd.Flags().GetString("failover"); r != "" {
		reason = models.FailoverReason(r)
		switch reason {
		case models.ReasonCriticalBattery, models.ReasonDelayedDelivery, models.ReasonManual:
		default:
			return fmt.Errorf("unknown failover reason %q", r)
		}
	}
	watch, _ := cmd.Flags().GetDuration("watch")
	showCandidates, _ := cmd.Flags().GetBool("candidates")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		a.stop(context.Background())
		return err
	}
	var once sync.Once
	shutdown := func() { once.Do(func() { a.stop(context.Background()) }) }
	defer shutdown()

	orderIDs := args
	if len(orderIDs) == 0 {
		if orderIDs, err = pendingEmergencies(ctx, a.orders); err != nil {
			return err
		}
	}
	if len(orderIDs) == 0 {
		logger.Warn("No pending emergency orders in the fleet seed")
		return nil
	}

	results := logger.NewTable("ORDER", "DRONE", "SCORE", "ETA", "PAUSED", "FAILOVER")
	for _, id := range orderIDs {
		logger.LogSubSection("Order " + id)

		if showCandidates {
			if err := printCandidates(ctx, a.dispatcher, id); err != nil {
				logger.Warnf("Could not rank drones for %s: %v", id, err)
			}
		}

		res, err := a.dispatcher.Assign(ctx, id, "fleet-sim emergency")
		if err != nil {
			logger.Errorf("Order %s: %v", id, err)
			results.AddRow(id, "-", "-", "-", "-", outcomeLabel(err))
			continue
		}

		failover := "-"
		if reason != "" {
			fo, err := a.dispatcher.Failover(ctx, id, reason)
			switch {
			case err != nil:
				failover = outcomeLabel(err)
			default:
				failover = fmt.Sprintf("%s → %s", res.AssignedDrone.ID, fo.AssignedDrone.ID)
				res = fo
			}
		}

		results.AddRow(
			id,
			res.AssignedDrone.ID,
			fmt.Sprintf("%.1f", res.Candidate.Score),
			res.EstimatedTime.Round(time.Second).String(),
			pausedLabel(res.PausedOrders),
			failover,
		)
	}

	if watch > 0 {
		logger.Progressf("Simulating for %s...", watch)
		waitFor(ctx, watch)
	}

	shutdown()

	fmt.Println()
	results.Print()
	a.journal.PrintSummary(os.Stdout)
	return nil
}

func pendingEmergencies(ctx context.Context, orders store.OrderRepository) ([]string, error) {
	pending, err := orders.Find(ctx, store.OrderFilter{
		Statuses:   []models.OrderStatus{models.OrderPending, models.OrderProcessing},
		Priorities: []models.Priority{models.PriorityEmergency},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list emergency orders: %w", err)
	}
	ids := make([]string, 0, len(pending))
	for _, o := range pending {
		if o.AssignedDrone == "" {
			ids = append(ids, o.ID)
		}
	}
	return ids, nil
}

func printCandidates(ctx context.Context, d *dispatch.Dispatcher, orderID string) error {
	candidates, err := d.Candidates(ctx, orderID)
	if err != nil {
		return err
	}
	table := logger.NewTable("RANK", "DRONE", "SCORE", "BATTERY", "PICKUP KM", "ETA MIN")
	for i, c := range candidates {
		table.AddRow(
			fmt.Sprintf("%d", i+1),
			c.Drone.ID,
			fmt.Sprintf("%.1f", c.Score),
			fmt.Sprintf("%.0f%%", c.Drone.BatteryLevel),
			fmt.Sprintf("%.2f", c.DistanceToPickupKm),
			fmt.Sprintf("%.1f", c.EstimatedTimeMinutes),
		)
	}
	table.Print()
	return nil
}

func pausedLabel(orders []*models.OrderRecord) string {
	if len(orders) == 0 {
		return "-"
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return strings.Join(ids, ",")
}

func outcomeLabel(err error) string {
	var manual *models.ManualInterventionError
	switch {
	case errors.As(err, &manual):
		return "manual intervention"
	case errors.Is(err, models.ErrNoCandidateDrone):
		return "no candidate"
	case errors.Is(err, models.ErrOrderNotFound):
		return "unknown order"
	default:
		return "error"
	}
}
