package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var statusEventLimit int

// statusCmd shows current alert states and recent transition events.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show alert states and recent transition events",
	Long: `Show the persisted alert state per rule key, including firing
episodes, snoozes, and the most recent transition events with their
delivery attempts.

Example:
  opsctl status --db data/opswatch.db --events 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		now := time.Now().UTC()

		states, err := store.AlertStates().List(ctx)
		if err != nil {
			return fmt.Errorf("list alert states: %w", err)
		}
		events, err := store.AlertEvents().ListRecent(ctx, statusEventLimit)
		if err != nil {
			return fmt.Errorf("list alert events: %w", err)
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(map[string]any{
				"states": states,
				"events": events,
			}, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(states) == 0 {
			fmt.Println("No alert states recorded yet.")
		} else {
			fmt.Printf("\n%-24s  %-8s  %-20s  %-20s  %s\n",
				"KEY", "STATE", "STARTED", "LAST NOTIFIED", "SNOOZED UNTIL")
			fmt.Println(strings.Repeat("-", 100))
			for _, st := range states {
				fmt.Printf("%-24s  %-8s  %-20s  %-20s  %s\n",
					st.Key,
					st.State,
					formatTimePtr(st.StartedAt),
					formatTimePtr(st.LastNotifiedAt),
					formatSnooze(st.SnoozedUntil, now),
				)
			}
		}

		if len(events) > 0 {
			fmt.Printf("\nRecent transitions:\n")
			for _, ev := range events {
				attempts, err := store.Deliveries().CountByEvent(ctx, ev.ID)
				if err != nil {
					return fmt.Errorf("count deliveries: %w", err)
				}
				acked := ""
				if ev.AckedBy != "" {
					acked = fmt.Sprintf("  acked by %s", ev.AckedBy)
				}
				fmt.Printf("  %s  %-24s  -> %-7s  %d attempt(s)%s\n",
					ev.At.Format("2006-01-02 15:04:05"),
					ev.Key,
					ev.State,
					attempts,
					acked,
				)
			}
		}
		fmt.Println()

		return nil
	},
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatSnooze(until *time.Time, now time.Time) string {
	if until == nil || until.Before(now) {
		return "-"
	}
	return until.Format("2006-01-02 15:04:05")
}

func init() {
	statusCmd.Flags().IntVar(&statusEventLimit, "events", 20, "number of recent transition events to show")
	rootCmd.AddCommand(statusCmd)
}
