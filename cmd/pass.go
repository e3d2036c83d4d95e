package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"visitor-access-control/internal/config"
	"visitor-access-control/internal/pass"
	"visitor-access-control/internal/storage"

	"github.com/spf13/cobra"
)

var passCmd = &cobra.Command{
	Use:   "pass",
	Short: "Manage visitor passes",
	Long:  `Issue, list and revoke visitor passes from the command line.`,
}

var (
	passVisitorName  string
	passVisitorPhone string
	passFlatNumber   string
	passResidentRef  string
	passPurpose      string
	passTTLMinutes   uint
	passMaxScans     int
	passActiveOnly   bool
)

var issuePassCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new visitor pass",
	Run: func(cmd *cobra.Command, args []string) {
		issuePassCLI(context.Background())
	},
}

var listPassesCmd = &cobra.Command{
	Use:   "list",
	Short: "List passes",
	Run: func(cmd *cobra.Command, args []string) {
		listPasses(context.Background())
	},
}

var revokePassCmd = &cobra.Command{
	Use:   "revoke <pass_id>",
	Short: "Revoke a pass",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		revokePass(context.Background(), args[0])
	},
}

// Initialize logger with minimal output for CLI commands
func initCLILogger() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	slog.SetDefault(logger)
}

func passIssueRequest(now time.Time, ttlMinutes uint) pass.IssueRequest {
	return pass.IssueRequest{
		VisitorName:  passVisitorName,
		VisitorPhone: passVisitorPhone,
		FlatNumber:   passFlatNumber,
		ResidentRef:  passResidentRef,
		Purpose:      passPurpose,
		ValidFrom:    now,
		ValidUntil:   now.Add(time.Duration(ttlMinutes) * time.Minute),
		MaxScans:     passMaxScans,
	}
}

func issuePassCLI(ctx context.Context) {
	initCLILogger()

	services, keys, err := BuildServices(config.Cfg, provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build services: %v\n", err)
		os.Exit(1)
	}
	defer keys.Close()

	now := time.Now().UTC()
	ttl := passTTLMinutes
	if ttl == 0 {
		ttl = config.Cfg.PassTTL
	}

	issued, err := services.Passes.Issue(ctx, passIssueRequest(now, ttl))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue pass: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Pass ID:     %s\n", issued.Credential.PassID)
	fmt.Printf("Visitor:     %s\n", issued.Credential.VisitorName)
	fmt.Printf("Flat:        %s\n", issued.Credential.FlatNumber)
	fmt.Printf("Valid until: %s\n", issued.Credential.ValidUntil.Format(time.RFC3339))
	fmt.Printf("Max scans:   %d\n", issued.Credential.MaxScans)
	fmt.Printf("Token:       %s\n", issued.Token)
}

func listPasses(ctx context.Context) {
	initCLILogger()

	creds, err := provider.ListCredentials(ctx, passActiveOnly)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list passes: %v\n", err)
		os.Exit(1)
	}

	if len(creds) == 0 {
		fmt.Println("No passes found")
		return
	}

	// Print table header
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PASS ID\tVISITOR\tFLAT\tSCANS\tACTIVE\tVALID UNTIL")
	fmt.Fprintln(w, "-------\t-------\t----\t-----\t------\t-----------")

	for _, cred := range creds {
		scans := fmt.Sprintf("%d/%d", cred.ScansUsed, cred.MaxScans)
		if cred.MaxScans == storage.UnlimitedScans {
			scans = fmt.Sprintf("%d/unlimited", cred.ScansUsed)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			cred.PassID, cred.VisitorName, cred.FlatNumber, scans,
			cred.IsActive, cred.ValidUntil.Format(time.RFC3339))
	}

	w.Flush()
	fmt.Printf("\nTotal passes: %d\n", len(creds))
}

func revokePass(ctx context.Context, passID string) {
	initCLILogger()

	services, keys, err := BuildServices(config.Cfg, provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build services: %v\n", err)
		os.Exit(1)
	}
	defer keys.Close()

	if err := services.Passes.Revoke(ctx, passID, "cli"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to revoke pass: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Pass %s revoked\n", passID)
}

func init() {
	rootCmd.AddCommand(passCmd)
	passCmd.AddCommand(issuePassCmd)
	passCmd.AddCommand(listPassesCmd)
	passCmd.AddCommand(revokePassCmd)

	issuePassCmd.Flags().StringVar(&passVisitorName, "name", "", "visitor name (required)")
	issuePassCmd.Flags().StringVar(&passVisitorPhone, "phone", "", "visitor phone number")
	issuePassCmd.Flags().StringVar(&passFlatNumber, "flat", "", "flat number (required)")
	issuePassCmd.Flags().StringVar(&passResidentRef, "resident", "cli", "issuing resident reference")
	issuePassCmd.Flags().StringVar(&passPurpose, "purpose", "", "purpose of the visit")
	issuePassCmd.Flags().UintVar(&passTTLMinutes, "ttl", 0, "validity in minutes (default from config)")
	issuePassCmd.Flags().IntVar(&passMaxScans, "max-scans", 1, "scan limit, -1 for unlimited")
	issuePassCmd.MarkFlagRequired("name")
	issuePassCmd.MarkFlagRequired("flat")

	listPassesCmd.Flags().BoolVar(&passActiveOnly, "active", false, "list active passes only")
}
