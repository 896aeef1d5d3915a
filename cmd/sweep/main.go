// Command sweep runs a configuration at several timestep sizes and seeds and
// reports the end-of-run molecule counts per species, so the dependence of
// boundary behaviour on dt can be checked.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/rdboundary/config"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	dtList := flag.String("dts", "0.004,0.002,0.001", "Comma separated timestep sizes")
	horizon := flag.Float64("time", 0.5, "Simulated time per run")
	seeds := flag.Int("seeds", 3, "Number of seeds per timestep size")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if *outputDir == "" {
		fmt.Fprintln(os.Stderr, "--output is required")
		os.Exit(2)
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	dts, err := parseDTs(strings.Split(*dtList, ","))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	base, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	var species []string
	for _, sc := range base.Species {
		species = append(species, sc.Name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var rows []Row
	start := time.Now()
	total := len(dts) * *seeds
	done := 0
	for _, dt := range dts {
		runs := make([]map[string]Outcome, 0, *seeds)
		for i := 0; i < *seeds; i++ {
			seed := uint64(i*1000 + 42)
			out, err := runOnce(ctx, *configPath, dt, *horizon, seed)
			if err != nil {
				fmt.Fprintf(os.Stderr, "run dt=%g seed=%d: %v\n", dt, seed, err)
				os.Exit(1)
			}
			runs = append(runs, out)
			done++

			elapsed := time.Since(start)
			remaining := time.Duration(total-done) * (elapsed / time.Duration(done))
			fmt.Printf("Run %d/%d: dt=%g seed=%d | elapsed: %s, ETA: %s\n",
				done, total, dt, seed, formatDuration(elapsed), formatDuration(remaining))
		}
		rows = append(rows, aggregate(dt, stepsFor(dt, *horizon), species, runs)...)
	}

	path := filepath.Join(*outputDir, "sweep.csv")
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", path, err)
		os.Exit(1)
	}
	defer f.Close()
	if err := gocsv.Marshal(rows, f); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("\nSweep complete after %d runs in %s\n", done, formatDuration(time.Since(start)))
	for _, r := range rows {
		fmt.Printf("  dt=%-8g %-4s molecules=%.1f±%.1f compartment=%.1f absorbed=%.1f±%.1f\n",
			r.DT, r.Species, r.MoleculesMean, r.MoleculesStderr, r.CompartmentMean, r.AbsorbedMean, r.AbsorbedStderr)
	}
	fmt.Printf("Results saved to: %s\n", path)
}
