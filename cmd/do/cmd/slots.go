package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/config"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/service"
)

// SlotsCmd runs the slot maintenance jobs by hand, outside the scheduler.
func SlotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Goal slot maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Release reservations that outlived their TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSlots(func(slots *service.SlotService) error {
				released, err := slots.SweepExpired(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "released %d expired reservations\n", released)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Recount each goal's joined slots from its live reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSlots(func(slots *service.SlotService) error {
				fixed, err := slots.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "corrected %d goals\n", fixed)
				return nil
			})
		},
	})

	return cmd
}

func withSlots(fn func(slots *service.SlotService) error) error {
	return withDB(func(cfg *config.Config, database *sqlx.DB) error {
		bus := events.NewBus(0)
		defer bus.Close()

		slots := service.NewSlotService(
			repository.NewGoalRepository(database),
			clock.NewSystem(cfg.Location()),
			bus,
			cfg.SlotReservationTTL,
		)
		return fn(slots)
	})
}
