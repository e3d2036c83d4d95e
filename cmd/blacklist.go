package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"visitor-access-control/internal/storage"
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage the flagged phone number list",
	Long:  `List blacklist entries and import them from society office CSV exports.`,
}

var listBlacklistCmd = &cobra.Command{
	Use:   "list",
	Short: "List blacklist entries",
	Run: func(cmd *cobra.Command, args []string) {
		listBlacklist(context.Background())
	},
}

var importBlacklistCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import blacklist entries from a CSV export",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		importBlacklist(context.Background(), args[0])
	},
}

func listBlacklist(ctx context.Context) {
	initCLILogger()

	entries, err := provider.ListBlacklist(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list blacklist: %v\n", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		fmt.Println("Blacklist is empty")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PHONE\tACTIVE\tREASON\tADDED BY\tADDED AT")
	fmt.Fprintln(w, "-----\t------\t------\t--------\t--------")

	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n",
			e.Phone, e.Active, e.Reason, e.AddedBy, e.AddedAt.Format(time.RFC3339))
	}

	w.Flush()
	fmt.Printf("\nTotal entries: %d\n", len(entries))
}

// openCSV opens a CSV export, transparently decoding UTF-16 when the file
// carries a BOM. Office exports from spreadsheet tools often do.
func openCSV(path string) (*csv.Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open CSV file: %w", err)
	}

	bom := make([]byte, 2)
	n, err := f.Read(bom)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, nil, fmt.Errorf("failed to read BOM: %w", err)
	}

	var reader *csv.Reader
	if n == 2 && (bom[0] == 0xFE && bom[1] == 0xFF || bom[0] == 0xFF && bom[1] == 0xFE) {
		// UTF-16 BOM detected
		utf16bom := unicode.BOMOverride(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder())
		utf16Reader := transform.NewReader(io.MultiReader(
			// Prepend BOM bytes back to stream
			strings.NewReader(string(bom)),
			f,
		), utf16bom)
		reader = csv.NewReader(utf16Reader)
	} else {
		// No BOM, assume sensible UTF-8
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to seek file: %w", err)
		}
		reader = csv.NewReader(f)
	}

	reader.LazyQuotes = true
	reader.FieldsPerRecord = 0

	return reader, f, nil
}

func importBlacklist(ctx context.Context, path string) {
	initCLILogger()

	reader, f, err := openCSV(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	headers, err := reader.Read()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read CSV header: %v\n", err)
		os.Exit(1)
	}

	// Find index of relevant fields
	idxPhone, idxReason := -1, -1
	for i, h := range headers {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "phone":
			idxPhone = i
		case "reason":
			idxReason = i
		}
	}
	if idxPhone == -1 {
		fmt.Fprintln(os.Stderr, "CSV file missing required phone column")
		os.Exit(1)
	}

	imported := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading CSV: %v\n", err)
			os.Exit(1)
		}

		phone := strings.TrimSpace(record[idxPhone])
		if phone == "" {
			continue
		}
		reason := ""
		if idxReason != -1 && idxReason < len(record) {
			reason = strings.TrimSpace(record[idxReason])
		}

		entry := storage.BlacklistEntry{
			Phone:   phone,
			Reason:  reason,
			AddedBy: "import",
			AddedAt: time.Now().UTC(),
			Active:  true,
		}
		if err := provider.UpsertBlacklistEntry(ctx, entry); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to import %s: %v\n", phone, err)
			os.Exit(1)
		}
		imported++
	}

	fmt.Printf("Imported %d blacklist entries\n", imported)
}

func init() {
	rootCmd.AddCommand(blacklistCmd)
	blacklistCmd.AddCommand(listBlacklistCmd)
	blacklistCmd.AddCommand(importBlacklistCmd)
}
