// Package batch walks a directory of LIDAR tree scans and fans the
// per-file projection work across a fixed pool of workers. Each file
// becomes one task: read, recentre on the canopy anchor, project at every
// configured angle, and write one density image per angle. A failing task
// is logged and counted; it never stops the run.
package batch

import (
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/canopy.view/internal/las"
	"github.com/banshee-data/canopy.view/internal/pointcloud"
	"github.com/banshee-data/canopy.view/internal/render"
	"github.com/banshee-data/canopy.view/internal/timeutil"
)

// DefaultAngles are the standard projection rotations. 180 and above
// mirror views the set already covers.
var DefaultAngles = []float64{0, 45, 90, 135}

// Options configure a run.
type Options struct {
	// Workers sizes the pool. Zero or negative means one per CPU.
	Workers int

	// Angles are the horizontal view rotations, in degrees.
	Angles []float64

	// Render controls rasterisation of each image.
	Render render.Options

	// Thumbnails additionally writes a small preview beside each image.
	Thumbnails bool

	// Clock times the run and its tasks.
	Clock timeutil.Clock
}

// DefaultOptions returns the standard batch configuration.
func DefaultOptions() Options {
	return Options{
		Workers: runtime.NumCPU(),
		Angles:  append([]float64(nil), DefaultAngles...),
		Render:  render.DefaultOptions(),
		Clock:   timeutil.RealClock{},
	}
}

// TaskResult records the outcome of one task.
type TaskResult struct {
	Task     Task
	Images   int
	Duration time.Duration
	Err      error
}

// Summary aggregates a completed run.
type Summary struct {
	Total     int
	Succeeded int
	Elapsed   time.Duration
	Results   []TaskResult
}

// Failed returns the number of tasks that ended in an error.
func (s *Summary) Failed() int {
	return s.Total - s.Succeeded
}

// Run discovers tasks under inputRoot and processes them across the worker
// pool. Task failures are logged and recorded in the summary, never
// returned: the error covers configuration problems only, found before any
// work is scheduled.
func Run(inputRoot, outputRoot string, opt Options) (*Summary, error) {
	if opt.Workers <= 0 {
		opt.Workers = runtime.NumCPU()
	}
	if len(opt.Angles) == 0 {
		opt.Angles = append([]float64(nil), DefaultAngles...)
	}
	if opt.Clock == nil {
		opt.Clock = timeutil.RealClock{}
	}

	tasks, err := Discover(inputRoot, outputRoot)
	if err != nil {
		return nil, err
	}

	workers := opt.Workers
	if workers > len(tasks) {
		workers = len(tasks)
	}
	log.Printf("[batch] %d files across %d workers, angles %v", len(tasks), workers, opt.Angles)

	start := opt.Clock.Now()
	results := make([]TaskResult, len(tasks))
	queue := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				results[i] = runTask(tasks[i], opt)
			}
		}()
	}
	for i := range tasks {
		queue <- i
	}
	close(queue)
	wg.Wait()

	sum := &Summary{
		Total:   len(tasks),
		Elapsed: opt.Clock.Since(start),
		Results: results,
	}
	for _, r := range results {
		if r.Err == nil {
			sum.Succeeded++
		}
	}
	log.Printf("[batch] completed %d/%d files in %v", sum.Succeeded, sum.Total, sum.Elapsed.Round(time.Millisecond))
	return sum, nil
}

// runTask is the per-task error boundary: failures are logged with the
// offending path and recorded in the result, never propagated.
func runTask(t Task, opt Options) TaskResult {
	start := opt.Clock.Now()
	images, err := ProcessTask(t, opt)
	if err != nil {
		log.Printf("[worker] %s failed: %v", t.Input, err)
	}
	return TaskResult{Task: t, Images: images, Duration: opt.Clock.Since(start), Err: err}
}

// ProcessTask renders every configured angle for one input file and
// returns the number of images written, thumbnails included. The first
// failure stops the file; images already written stay on disk.
func ProcessTask(t Task, opt Options) (int, error) {
	cloud, err := las.ReadFile(t.Input)
	if err != nil {
		return 0, err
	}
	if len(cloud.Points) == 0 {
		return 0, fmt.Errorf("%s: %w", t.Input, pointcloud.ErrEmptyCloud)
	}

	off, err := pointcloud.AnchorOffset(cloud.Points)
	if err != nil {
		return 0, err
	}
	pointcloud.Recenter(cloud.Points, off)

	stem := strings.TrimSuffix(filepath.Base(t.Input), filepath.Ext(t.Input))
	written := 0
	for _, angle := range opt.Angles {
		label := render.AngleLabel(angle)

		proj := pointcloud.Project(cloud.Points, pointcloud.PlaneAt(angle))
		grid, err := pointcloud.BuildGrid(proj)
		if err != nil {
			return written, fmt.Errorf("angle %s: %w", label, err)
		}
		img, err := render.Heatmap(grid, opt.Render)
		if err != nil {
			return written, fmt.Errorf("angle %s: %w", label, err)
		}

		path := filepath.Join(t.OutputDir, fmt.Sprintf("%s_%s.png", stem, label))
		if err := render.WritePNG(path, img); err != nil {
			return written, err
		}
		written++

		if opt.Thumbnails {
			thumb := render.Thumbnail(img, opt.Render.ThumbHeightPx)
			path := filepath.Join(t.OutputDir, fmt.Sprintf("%s_%s_thumb.png", stem, label))
			if err := render.WritePNG(path, thumb); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}
