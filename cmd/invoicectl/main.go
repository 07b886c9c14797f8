package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/invoice-ai/invoiceai/internal/analytics"
	"github.com/invoice-ai/invoiceai/internal/archive"
	"github.com/invoice-ai/invoiceai/internal/common"
	"github.com/invoice-ai/invoiceai/internal/export"
	"github.com/invoice-ai/invoiceai/internal/policy"
	"github.com/invoice-ai/invoiceai/internal/repository"
	"github.com/invoice-ai/invoiceai/internal/store"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dsn     = flag.String("dsn", "", "archive database DSN (defaults to ARCHIVE_DSN)")
		format  = flag.String("format", "json", "export format: json | csv | xlsx | report")
		invoice = flag.String("invoice", "", "invoice id for json/csv exports")
		out     = flag.String("out", "", "output file path (defaults to stdout)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()
	if *dsn == "" {
		*dsn = os.Getenv("ARCHIVE_DSN")
	}
	if *dsn == "" {
		printError("Error: --dsn or ARCHIVE_DSN is required\n")
		os.Exit(1)
	}

	repo, err := repository.Open(*dsn, logger)
	if err != nil {
		printError("Error: open archive: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	records, err := repo.Load()
	if err != nil {
		printError("Error: load archive: %v\n", err)
		os.Exit(1)
	}
	ledger := archive.NewLedger(logger)
	ledger.Restore(records)
	exports := export.NewService(ledger, logger)

	var data []byte
	switch *format {
	case "json":
		if *invoice != "" {
			id, perr := uuid.Parse(*invoice)
			if perr != nil {
				printError("Error: --invoice must be a UUID\n")
				os.Exit(1)
			}
			data, err = exports.InvoiceJSON(id)
		} else {
			data, err = exports.LedgerJSON("")
		}
	case "csv":
		if *invoice == "" {
			printError("Error: --invoice is required for csv export\n")
			os.Exit(1)
		}
		id, perr := uuid.Parse(*invoice)
		if perr != nil {
			printError("Error: --invoice must be a UUID\n")
			os.Exit(1)
		}
		data, err = exports.InvoiceCSV(id)
	case "xlsx":
		data, err = exports.LedgerXLSX()
	case "report":
		cfg := common.LoadConfig()
		// empty store: the CLI reports over archived history only
		st := store.New(policy.Thresholds{
			AutoApproveMin: cfg.Policy.AutoApproveMin,
			ReviewMin:      cfg.Policy.ReviewMin,
		}, logger)
		agg := analytics.NewAggregator(st, ledger, analytics.CostModel{
			ManualCostPerInvoice:     cfg.Analytics.ManualCostPerInvoice,
			AutomationCostPerInvoice: cfg.Analytics.AutomationCostPerInvoice,
		}, logger)
		data, err = exports.AnalyticsPDF(agg.Compute())
	default:
		printError("Error: unknown --format %q\n", *format)
		os.Exit(1)
	}
	if err != nil {
		printError("Error: export: %v\n", err)
		os.Exit(1)
	}

	if *out == "" {
		if _, werr := os.Stdout.Write(data); werr != nil {
			printError("Error: write output: %v\n", werr)
			os.Exit(1)
		}
		return
	}
	if werr := os.WriteFile(*out, data, 0o644); werr != nil {
		printError("Error: write %s: %v\n", *out, werr)
		os.Exit(1)
	}
	fmt.Printf("wrote %d bytes to %s\n", len(data), *out)
}
