package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/opswatch/internal/cases"
	"github.com/good-yellow-bee/opswatch/internal/models"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

var (
	caseUser     string
	caseOps      bool
	caseAdmin    bool
	caseStatus   string
	casePriority string
	caseLimit    int
)

// caseCmd represents the case command group
var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Incident case management commands",
	Long: `Commands for managing opswatch incident cases.

These commands operate directly on the database file and are intended
for operators working outside the HTTP API. Role flags stand in for
the identity facts the API receives from its upstream auth layer.

Examples:
  # List open cases
  opsctl case list --status open

  # Claim a case
  opsctl case claim alert-rag_red --user jdoe --ops

  # Resolve a case
  opsctl case set-status alert-rag_red resolved --user jdoe --ops`,
}

// caseListCmd lists cases
var caseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		filter := storage.CaseFilter{Limit: caseLimit}
		if caseStatus != "" {
			status, ok := models.ParseCaseStatus(caseStatus)
			if !ok {
				return fmt.Errorf("unknown status %q", caseStatus)
			}
			filter.Status = status
		}

		list, err := store.Cases().List(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("list cases: %w", err)
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(list, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(list) == 0 {
			fmt.Println("No cases found.")
			return nil
		}

		fmt.Printf("\n%-32s  %-12s  %-8s  %-16s  %s\n",
			"REQUEST ID", "STATUS", "PRIORITY", "ASSIGNED TO", "LAST TOUCHED")
		fmt.Println(strings.Repeat("-", 96))
		for _, c := range list {
			assigned := c.AssignedToUserID
			if assigned == "" {
				assigned = "-"
			}
			fmt.Printf("%-32s  %-12s  %-8s  %-16s  %s\n",
				c.RequestID,
				c.Status,
				c.Priority,
				assigned,
				c.LastTouchedAt.Format("2006-01-02 15:04:05"),
			)
		}
		fmt.Printf("\nTotal: %d case(s)\n", len(list))

		return nil
	},
}

// caseClaimCmd claims a case for the given user
var caseClaimCmd = &cobra.Command{
	Use:   "claim <request-id>",
	Short: "Claim a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCaseService(func(svc *cases.Service) error {
			c, err := svc.Claim(context.Background(), args[0], caseActor(), time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("case %s claimed by %s\n", c.RequestID, c.AssignedToUserID)
			return nil
		})
	},
}

// caseReleaseCmd releases a case claim
var caseReleaseCmd = &cobra.Command{
	Use:   "release <request-id>",
	Short: "Release a case claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCaseService(func(svc *cases.Service) error {
			c, err := svc.Release(context.Background(), args[0], caseActor(), time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("case %s released\n", c.RequestID)
			return nil
		})
	},
}

// caseSetStatusCmd changes a case's lifecycle status
var caseSetStatusCmd = &cobra.Command{
	Use:   "set-status <request-id> <status>",
	Short: "Change a case's status",
	Long: `Change a case's lifecycle status. Valid statuses are open,
in_progress, resolved, and closed. Closing requires --admin.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, ok := models.ParseCaseStatus(args[1])
		if !ok {
			return fmt.Errorf("unknown status %q", args[1])
		}
		return withCaseService(func(svc *cases.Service) error {
			c, err := svc.SetStatus(context.Background(), args[0], status, caseActor(), time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("case %s is now %s\n", c.RequestID, c.Status)
			return nil
		})
	},
}

// caseSetPriorityCmd changes a case's priority
var caseSetPriorityCmd = &cobra.Command{
	Use:   "set-priority <request-id> <priority>",
	Short: "Change a case's priority",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority, ok := models.ParseCasePriority(args[1])
		if !ok {
			return fmt.Errorf("unknown priority %q", args[1])
		}
		return withCaseService(func(svc *cases.Service) error {
			c, err := svc.SetPriority(context.Background(), args[0], priority, caseActor(), time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("case %s priority is now %s\n", c.RequestID, c.Priority)
			return nil
		})
	},
}

func caseActor() models.Actor {
	return models.Actor{
		UserID:  caseUser,
		IsOps:   caseOps || caseAdmin,
		IsAdmin: caseAdmin,
	}
}

func withCaseService(fn func(svc *cases.Service) error) error {
	if caseUser == "" {
		return fmt.Errorf("--user is required")
	}
	store, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(cases.NewService(store.Cases(), store.Audit()))
}

func init() {
	caseCmd.PersistentFlags().StringVar(&caseUser, "user", "", "acting user id")
	caseCmd.PersistentFlags().BoolVar(&caseOps, "ops", false, "act with the ops role")
	caseCmd.PersistentFlags().BoolVar(&caseAdmin, "admin", false, "act with the admin role (implies --ops)")

	caseListCmd.Flags().StringVar(&caseStatus, "status", "", "filter by status")
	caseListCmd.Flags().IntVar(&caseLimit, "limit", 100, "maximum cases to list")

	caseCmd.AddCommand(caseListCmd)
	caseCmd.AddCommand(caseClaimCmd)
	caseCmd.AddCommand(caseReleaseCmd)
	caseCmd.AddCommand(caseSetStatusCmd)
	caseCmd.AddCommand(caseSetPriorityCmd)
	rootCmd.AddCommand(caseCmd)
}
