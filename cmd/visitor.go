package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"visitor-access-control/internal/config"
	"visitor-access-control/internal/storage"

	"github.com/spf13/cobra"
)

var visitorCmd = &cobra.Command{
	Use:   "visitor",
	Short: "Manage visitor records",
	Long:  `List visitor records and drive their lifecycle from the command line.`,
}

var visitorStatusFilter string

var listVisitorsCmd = &cobra.Command{
	Use:   "list",
	Short: "List visitor records",
	Run: func(cmd *cobra.Command, args []string) {
		listVisitors(context.Background())
	},
}

var approveVisitorCmd = &cobra.Command{
	Use:   "approve <visitor_id>",
	Short: "Approve a pending visitor",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		transitionVisitorCLI(context.Background(), args[0], "approve")
	},
}

var enterVisitorCmd = &cobra.Command{
	Use:   "enter <visitor_id>",
	Short: "Mark an approved visitor as entered",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		transitionVisitorCLI(context.Background(), args[0], "enter")
	},
}

var exitVisitorCmd = &cobra.Command{
	Use:   "exit <visitor_id>",
	Short: "Mark an entered visitor as exited",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		transitionVisitorCLI(context.Background(), args[0], "exit")
	},
}

var denyVisitorCmd = &cobra.Command{
	Use:   "deny <visitor_id> [reason]",
	Short: "Deny a pending visitor",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		reason := ""
		if len(args) > 1 {
			reason = args[1]
		}
		denyVisitorCLI(context.Background(), args[0], reason)
	},
}

func listVisitors(ctx context.Context) {
	initCLILogger()

	status := storage.VisitorStatus(strings.ToLower(visitorStatusFilter))
	recs, err := provider.ListVisitors(ctx, config.Cfg.SocietyID, status)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list visitors: %v\n", err)
		os.Exit(1)
	}

	if len(recs) == 0 {
		fmt.Println("No visitor records found")
		return
	}

	// Print table header
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tVISITOR\tFLAT\tSTATUS\tRISK\tCREATED")
	fmt.Fprintln(w, "--\t-------\t----\t------\t----\t-------")

	for _, rec := range recs {
		risk := fmt.Sprintf("%s (%d)", rec.RiskLevel, rec.RiskScore)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.VisitorName, rec.FlatNumber, rec.Status, risk,
			rec.CreatedAt.Format(time.RFC3339))
	}

	w.Flush()
	fmt.Printf("\nTotal visitors: %d\n", len(recs))
}

func transitionVisitorCLI(ctx context.Context, id, action string) {
	initCLILogger()

	services, keys, err := BuildServices(config.Cfg, provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build services: %v\n", err)
		os.Exit(1)
	}
	defer keys.Close()

	var rec *storage.VisitorRecord
	switch action {
	case "approve":
		rec, err = services.Visitors.Approve(ctx, id, "cli")
	case "enter":
		rec, err = services.Visitors.MarkEntered(ctx, id, "cli")
	case "exit":
		rec, err = services.Visitors.MarkExited(ctx, id, "cli")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to %s visitor: %v\n", action, err)
		os.Exit(1)
	}
	fmt.Printf("Visitor %s is now %s\n", rec.ID, rec.Status)
}

func denyVisitorCLI(ctx context.Context, id, reason string) {
	initCLILogger()

	services, keys, err := BuildServices(config.Cfg, provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build services: %v\n", err)
		os.Exit(1)
	}
	defer keys.Close()

	rec, err := services.Visitors.Deny(ctx, id, "cli", reason)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to deny visitor: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Visitor %s is now %s\n", rec.ID, rec.Status)
}

func init() {
	rootCmd.AddCommand(visitorCmd)
	visitorCmd.AddCommand(listVisitorsCmd)
	visitorCmd.AddCommand(approveVisitorCmd)
	visitorCmd.AddCommand(enterVisitorCmd)
	visitorCmd.AddCommand(exitVisitorCmd)
	visitorCmd.AddCommand(denyVisitorCmd)

	listVisitorsCmd.Flags().StringVar(&visitorStatusFilter, "status", "", "filter by status (pending, approved, denied, entered, exited)")
}
