// export-undelivered-orders writes the undelivered order report to an xlsx
// file using the same filters and row cap as the HTTP export.
//
// Usage (from backend directory):
//
//	ERP_DB_USER=... ERP_DB_PASSWORD=... ERP_DB_HOST=... ERP_DB_NAME=... \
//	go run ./cmd/export-undelivered-orders -mtl-item-no A100 -start 2024-01-01 -end 2024-01-31 -out report.xlsx
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/erpweb/erp_backend/config"
	"github.com/erpweb/erp_backend/models/reports"
)

func main() {
	orderNo := flag.String("order-no", "", "Optional: order number contains")
	mtlItemNo := flag.String("mtl-item-no", "", "Optional: item number contains")
	mtlItemName := flag.String("mtl-item-name", "", "Optional: item name contains")
	start := flag.String("start", "", "Optional: earliest expected delivery date (YYYY-MM-DD)")
	end := flag.String("end", "", "Optional: latest expected delivery date (YYYY-MM-DD)")
	out := flag.String("out", reports.UndeliveredOrderFilename, "Output file")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall timeout")
	flag.Parse()

	f, err := reports.NormalizeFilter(url.Values{
		"orderNo":     {*orderNo},
		"mtlItemNo":   {*mtlItemNo},
		"mtlItemName": {*mtlItemName},
		"startDate":   {*start},
		"endDate":     {*end},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid filter: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	config.ConnectErpDatabaseWithRetry()
	if config.GetErpDB() == nil {
		fmt.Fprintln(os.Stderr, "erp database not initialized. Set ERP_DB_* env vars.")
		os.Exit(1)
	}

	report := reports.NewUndeliveredOrderReport(
		reports.NewGormQuerier(config.GetErpDB),
		reports.OptionsFromEnv(config.GetLogger()),
	)
	buf, err := report.Export(ctx, f)
	if errors.Is(err, reports.ErrExportTooLarge) {
		fmt.Fprintf(os.Stderr, "more than %d rows match; narrow the filter or raise EXPORT_MAX_ROWS\n", report.MaxExportRows())
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", *out, buf.Len())
}
