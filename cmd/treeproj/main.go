// Command treeproj renders LIDAR tree scans into 2D density images.
//
// Every .las file under the input directory is recentred on its highest
// point, projected onto vertical planes at a set of horizontal angles, and
// written out as one grayscale PNG per angle, darker where returns are
// denser. Subdirectories of the input root are treated as species and
// mirrored in the output tree.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/canopy.view/internal/batch"
	"github.com/banshee-data/canopy.view/internal/config"
	"github.com/banshee-data/canopy.view/internal/manifest"
	"github.com/banshee-data/canopy.view/internal/report"
	"github.com/banshee-data/canopy.view/internal/version"
)

// CLIConfig holds all command-line configuration
type CLIConfig struct {
	ConfigPath   string
	ManifestPath string
	ReportPath   string
	Thumbnails   bool
	Angles       string
	Quiet        bool
	ShowVersion  bool

	InputDir  string
	OutputDir string
	Workers   int
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config", "", "Path to a JSON tuning file")
	flag.StringVar(&cfg.ManifestPath, "manifest", "", "Record run outcomes to this SQLite database")
	flag.StringVar(&cfg.ReportPath, "report", "", "Write an HTML batch report to this path")
	flag.BoolVar(&cfg.Thumbnails, "thumbs", false, "Write a small preview thumbnail beside each image")
	flag.StringVar(&cfg.Angles, "angles", "", "Comma-separated projection angles in degrees (default 0,45,90,135)")
	flag.BoolVar(&cfg.Quiet, "quiet", false, "Suppress progress logging")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <input_dir> <output_dir> [n_workers]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Renders each LAS tree scan under <input_dir> into per-angle density images\n")
		fmt.Fprintf(os.Stderr, "under <output_dir>. Subdirectories of <input_dir> are treated as species\n")
		fmt.Fprintf(os.Stderr, "and mirrored in the output tree.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s ./scans ./images\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s ./scans ./images 8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -thumbs -report batch.html -manifest runs.db ./scans ./images\n", os.Args[0])
	}

	flag.Parse()

	if cfg.ShowVersion {
		return cfg
	}

	args := flag.Args()
	if len(args) < 2 || len(args) > 3 {
		fmt.Fprintln(os.Stderr, "Error: input and output directories are required")
		flag.Usage()
		os.Exit(1)
	}
	cfg.InputDir = args[0]
	cfg.OutputDir = args[1]

	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 {
			fmt.Fprintf(os.Stderr, "Error: n_workers must be a positive integer, got %q\n", args[2])
			flag.Usage()
			os.Exit(1)
		}
		cfg.Workers = n
	}

	return cfg
}

// parseAngles converts a comma-separated list of degrees into projection
// angles.
func parseAngles(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	angles := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("empty angle in %q", s)
		}
		a, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid angle %q", p)
		}
		if a < 0 || a >= 360 {
			return nil, fmt.Errorf("angle %v out of range [0, 360)", a)
		}
		angles = append(angles, a)
	}
	return angles, nil
}

func main() {
	cfg := parseFlags()

	if cfg.ShowVersion {
		fmt.Println(version.String())
		return
	}

	if cfg.Quiet {
		log.SetOutput(io.Discard)
	}

	opt := batch.DefaultOptions()

	if cfg.ConfigPath != "" {
		tuning, err := config.Load(cfg.ConfigPath)
		if err != nil {
			log.Fatalf("Config error: %v", err)
		}
		tuning.Apply(&opt)
	}
	if cfg.Workers > 0 {
		opt.Workers = cfg.Workers
	}
	if cfg.Angles != "" {
		angles, err := parseAngles(cfg.Angles)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			flag.Usage()
			os.Exit(1)
		}
		opt.Angles = angles
	}
	opt.Thumbnails = cfg.Thumbnails

	startedAt := opt.Clock.Now()

	sum, err := batch.Run(cfg.InputDir, cfg.OutputDir, opt)
	if err != nil {
		log.Fatalf("Conversion failed: %v", err)
	}

	printSummary(sum)

	if cfg.ManifestPath != "" {
		recordManifest(cfg, sum, opt, startedAt)
	}
	if cfg.ReportPath != "" {
		writeReport(cfg, sum, opt)
	}
}

func printSummary(sum *batch.Summary) {
	images := 0
	for _, r := range sum.Results {
		images += r.Images
	}

	fmt.Printf("\nConversion summary:\n")
	fmt.Printf("  Files:     %d\n", sum.Total)
	fmt.Printf("  Succeeded: %d\n", sum.Succeeded)
	fmt.Printf("  Failed:    %d\n", sum.Failed())
	fmt.Printf("  Images:    %d\n", images)
	fmt.Printf("  Elapsed:   %v\n", sum.Elapsed.Round(time.Millisecond))

	if sum.Failed() > 0 {
		fmt.Printf("\nFailed files:\n")
		for _, r := range sum.Results {
			if r.Err != nil {
				fmt.Printf("  %s: %v\n", r.Task.Input, r.Err)
			}
		}
	}

	fmt.Printf("\ncompleted %d/%d files\n", sum.Succeeded, sum.Total)
}

// recordManifest persists the run outcome. Failures here only warn: the
// images are already on disk, so a broken manifest database must not turn
// a finished conversion into an error.
func recordManifest(cfg *CLIConfig, sum *batch.Summary, opt batch.Options, startedAt time.Time) {
	db, err := manifest.Open(cfg.ManifestPath)
	if err != nil {
		log.Printf("Warning: manifest database unavailable: %v", err)
		return
	}
	defer db.Close()

	id, err := db.RecordRun(sum, manifest.RunMeta{
		InputDir:  cfg.InputDir,
		OutputDir: cfg.OutputDir,
		Workers:   opt.Workers,
		Angles:    opt.Angles,
		StartedAt: startedAt,
	})
	if err != nil {
		log.Printf("Warning: failed to record run: %v", err)
		return
	}
	log.Printf("[manifest] recorded run %s", id)
}

func writeReport(cfg *CLIConfig, sum *batch.Summary, opt batch.Options) {
	err := report.Write(cfg.ReportPath, sum, report.Params{
		InputDir: cfg.InputDir,
		Workers:  opt.Workers,
		Angles:   opt.Angles,
	})
	if err != nil {
		log.Printf("Warning: failed to write report: %v", err)
		return
	}
	log.Printf("[report] wrote %s", cfg.ReportPath)
}
