package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"greenthumb/config"
	"greenthumb/services"

	"go.uber.org/zap"
)

var (
	last   = flag.Int("n", 7, "Number of most recent records to print")
	export = flag.String("export", "", "Write the full log as CSV to this file (- for stdout)")
)

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
		time.Local = loc
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := services.OpenHistoryStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open history store", zap.Error(err))
	}

	if *export != "" {
		out := os.Stdout
		if *export != "-" {
			f, err := os.Create(*export)
			if err != nil {
				logger.Fatal("Failed to create export file", zap.Error(err))
			}
			defer f.Close()
			out = f
		}
		if err := services.ExportCSV(ctx, store, out); err != nil {
			logger.Fatal("Failed to export history", zap.Error(err))
		}
		return
	}

	records, err := services.MostRecent(ctx, store, *last)
	if err != nil {
		logger.Fatal("Failed to read history", zap.Error(err))
	}

	fmt.Printf("Total entries shown: %d (backend: %s)\n", len(records), cfg.HistoryBackend)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tHUMIDITY\tTEMPERATURE\tDIAGNOSIS")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%d%%\t%d°C\t%s\n", r.Timestamp.Format(services.HistoryTimeLayout), r.Humidity, r.Temperature, r.Diagnosis)
	}
	w.Flush()
}
