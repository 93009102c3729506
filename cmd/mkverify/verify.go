package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/mkverify/internal/config"
	"github.com/banshee-data/mkverify/internal/coverage"
	"github.com/banshee-data/mkverify/internal/db"
	"github.com/banshee-data/mkverify/internal/monitoring"
	"github.com/banshee-data/mkverify/internal/pipeline"
	"github.com/banshee-data/mkverify/internal/render"
	"github.com/banshee-data/mkverify/internal/security"
	"github.com/banshee-data/mkverify/internal/timeutil"
)

func handleVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	modelPath := fs.String("model", "", "Model description (.yaml, required)")
	settingsPath := fs.String("settings", "", "Numeric settings (.json)")
	dbPath := fs.String("db", "", "Record the run in this SQLite database")
	pngPath := fs.String("png", "", "Write a PNG of the cell classes")
	htmlPath := fs.String("html", "", "Write an interactive HTML chart")
	summary := fs.Bool("summary", false, "Print per-dimension invariant bounds")
	workers := fs.Int("workers", 0, "Concurrent oracle queries (0 uses settings)")
	quiet := fs.Bool("quiet", false, "Suppress phase logs and progress")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if *modelPath == "" {
		fmt.Fprintln(stderr, "Error: -model is required")
		fs.Usage()
		return exitError
	}

	for _, out := range []struct {
		path string
		exts []string
	}{
		{*pngPath, []string{".png"}},
		{*htmlPath, []string{".html", ".htm"}},
		{*dbPath, nil},
	} {
		if out.path == "" {
			continue
		}
		if err := security.ValidateOutputPath(out.path, out.exts...); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
	}

	if *quiet {
		prev := monitoring.Logf
		monitoring.SetLogger(nil)
		defer monitoring.SetLogger(prev)
	}

	model, err := config.LoadModel(*modelPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load model: %v\n", err)
		return exitError
	}
	settings := config.EmptySettings()
	if *settingsPath != "" {
		if settings, err = config.LoadSettings(*settingsPath); err != nil {
			fmt.Fprintf(stderr, "Failed to load settings: %v\n", err)
			return exitError
		}
	}
	if *workers > 0 {
		settings.Workers = workers
	}

	v, err := pipeline.FromModel(model, settings)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid model: %v\n", err)
		return exitError
	}
	if !*quiet {
		v.Progress = newProgressPrinter(stderr, settings.GetProgressInterval(), timeutil.RealClock{}).Update
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	report, err := v.Run(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Verification failed: %v\n", err)
		return exitError
	}

	scene := v.Scene(report)
	if err := writeOutputs(scene, *pngPath, *htmlPath, *summary, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Failed to write output: %v\n", err)
		return exitError
	}

	if *dbPath != "" {
		runID, err := recordRun(*dbPath, v, report)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to record run: %v\n", err)
			return exitError
		}
		fmt.Fprintf(stdout, "Run: %s\n", runID)
	}

	fmt.Fprintf(stdout, "%s: initial volume %g, covered volume %g\n",
		report.Verdict(), report.Coverage.InitialVolume, report.Coverage.CoveredVolume)
	if report.Verdict() == coverage.Safe {
		return exitSafe
	}
	return exitUnsafe
}

// writeOutputs renders the requested artefacts. Planar-only outputs are
// skipped with a notice for other dimensions, and the text summary is
// printed instead.
func writeOutputs(scene render.Scene, pngPath, htmlPath string, summary bool, stdout, stderr io.Writer) error {
	planarSkipped := false
	if pngPath != "" {
		err := render.PlotPNG(pngPath, scene)
		switch {
		case errors.Is(err, render.ErrNotPlanar):
			fmt.Fprintf(stderr, "Skipping %s: %v\n", pngPath, err)
			planarSkipped = true
		case err != nil:
			return err
		}
	}
	if htmlPath != "" {
		if err := writeChart(htmlPath, scene); err != nil {
			if !errors.Is(err, render.ErrNotPlanar) {
				return err
			}
			fmt.Fprintf(stderr, "Skipping %s: %v\n", htmlPath, err)
			planarSkipped = true
		}
	}
	if summary || planarSkipped {
		return render.Summary(stdout, scene)
	}
	return nil
}

func writeChart(path string, scene render.Scene) error {
	if scene.Grid == nil || scene.Grid.Dims != 2 {
		return render.ErrNotPlanar
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.ChartHTML(f, scene); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func recordRun(path string, v *pipeline.Verifier, report *pipeline.Report) (string, error) {
	database, err := db.Open(path)
	if err != nil {
		return "", err
	}
	defer database.Close()

	run, err := v.Record(report)
	if err != nil {
		return "", err
	}
	if err := db.NewRunStore(database.DB).Insert(run, report.KStep.Start, report.Invariant); err != nil {
		return "", err
	}
	return run.RunID, nil
}
