package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/tendant/simple-storefront/internal/logging"
	"github.com/tendant/simple-storefront/pkg/storefront/admin"
	"github.com/tendant/simple-storefront/pkg/storefront/config"
	"golang.org/x/crypto/bcrypt"
)

const usage = `Storefront Admin CLI

Maintenance commands for a storefront deployment. Commands other than
hash-password open the same database and chunk store as the server.

USAGE:
  storefront-admin <command> [options]

COMMANDS:
  hash-password <password>   Print a bcrypt hash for ADMIN_PASSWORD_HASH
  list                       List catalog records
  stats                      Show record and blob statistics
  sweep-orphans              Delete blobs no record references

OPTIONS:
  --json                     Output as JSON (list, stats, sweep-orphans)
  --dry-run                  Report orphans without deleting (sweep-orphans)
  --grace=<duration>         Skip blobs younger than this (sweep-orphans, default: 1h)

  Configuration is read from the environment and from a .env file in the
  current directory.

EXAMPLES:
  storefront-admin hash-password 's3cret'
  storefront-admin list --json
  storefront-admin sweep-orphans --dry-run --grace=24h
`

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "help", "--help", "-h":
		fmt.Println(usage)
		return
	case "hash-password":
		if len(os.Args) != 3 {
			log.Fatal("usage: storefront-admin hash-password <password>")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[2]), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(string(hash))
		return
	}

	opts, err := parseOptions(os.Args[2:])
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	app, err := cfg.Build(ctx, logger)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer app.Close()

	switch command {
	case "list":
		err = handleList(ctx, app, opts)
	case "stats":
		err = handleStats(ctx, app, opts)
	case "sweep-orphans":
		err = handleSweep(ctx, app, opts, logger)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Println(usage)
		app.Close()
		os.Exit(1)
	}
	if err != nil {
		app.Close()
		log.Fatalf("%s failed: %v", command, err)
	}
}

type options struct {
	json   bool
	dryRun bool
	grace  time.Duration
}

func parseOptions(args []string) (options, error) {
	opts := options{grace: time.Hour}
	for _, arg := range args {
		key, value := parseFlag(arg)
		switch key {
		case "json":
			opts.json = true
		case "dry-run":
			opts.dryRun = true
		case "grace":
			d, err := time.ParseDuration(value)
			if err != nil {
				return opts, fmt.Errorf("invalid --grace: %w", err)
			}
			opts.grace = d
		default:
			return opts, fmt.Errorf("unknown option: %s", arg)
		}
	}
	return opts, nil
}

func parseFlag(arg string) (string, string) {
	if len(arg) > 2 && arg[:2] == "--" {
		arg = arg[2:]
		for i, c := range arg {
			if c == '=' {
				return arg[:i], arg[i+1:]
			}
		}
		return arg, "true"
	}
	return "", ""
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func handleList(ctx context.Context, app *config.App, opts options) error {
	records, err := app.Service.ListContent(ctx)
	if err != nil {
		return err
	}
	if opts.json {
		return printJSON(records)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tCATEGORY\tFILE\tCOVER\tGALLERY\tUPDATED\n")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID.String()[:8]+"...",
			truncate(r.Name, 30),
			r.Category,
			yesNo(r.PrimaryFileID != nil),
			yesNo(r.CoverImageID != nil),
			len(r.GalleryImageIDs),
			r.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d\n", len(records))
	return nil
}

func handleStats(ctx context.Context, app *config.App, opts options) error {
	stats, err := app.Reconciler.GetStatistics(ctx)
	if err != nil {
		return err
	}
	if opts.json {
		return printJSON(stats)
	}

	fmt.Println("=== Catalog Statistics ===")
	fmt.Printf("\nRecords: %d\n", stats.Records)
	if len(stats.ByCategory) > 0 {
		fmt.Println("\nBy Category:")
		categories := make([]string, 0, len(stats.ByCategory))
		for c := range stats.ByCategory {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Printf("  %-15s: %d\n", c, stats.ByCategory[c])
		}
	}
	fmt.Printf("\nBlobs: %d (%d bytes)\n", stats.Blobs, stats.BlobBytes)
	fmt.Printf("  referenced:   %d\n", stats.Referenced)
	fmt.Printf("  unreferenced: %d\n", stats.Unreferenced)
	return nil
}

func handleSweep(ctx context.Context, app *config.App, opts options, logger *slog.Logger) error {
	result, err := app.Reconciler.SweepOrphans(ctx, admin.SweepRequest{
		GracePeriod: opts.grace,
		DryRun:      opts.dryRun,
	})
	if err != nil {
		return err
	}
	if opts.json {
		return printJSON(result)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "BLOB\tNAME\tSIZE\tCREATED\n")
	for _, b := range result.Orphans {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", b.ID, truncate(b.Name, 30), b.Size, b.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()

	if result.DryRun {
		fmt.Printf("\n%d orphaned blobs (dry run, nothing deleted)\n", len(result.Orphans))
	} else {
		fmt.Printf("\nDeleted %d of %d orphaned blobs\n", len(result.Deleted), len(result.Orphans))
	}
	for _, e := range result.Errors {
		logger.Warn("orphan not removed", "err", e)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
