package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoInputs means discovery found no point cloud files under the input
// root.
var ErrNoInputs = errors.New("no point cloud files found")

// Task is one unit of parallel work: a single input file and the directory
// its rendered images land in.
type Task struct {
	Input     string
	OutputDir string
	Species   string // empty for a flat batch
}

// Discover builds the task list for a run. An input root containing
// subdirectories is treated as one species per subdirectory, each mirrored
// to a like-named folder under the output root. A root holding point cloud
// files directly becomes a single flat batch writing to the output root
// itself. Output directories are not created here; they appear lazily as
// images are written, so a failed run leaves no empty tree behind.
func Discover(inputRoot, outputRoot string) ([]Task, error) {
	info, err := os.Stat(inputRoot)
	if err != nil {
		return nil, fmt.Errorf("input root %s: %w", inputRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input root %s is not a directory", inputRoot)
	}

	entries, err := os.ReadDir(inputRoot)
	if err != nil {
		return nil, fmt.Errorf("reading input root: %w", err)
	}

	var species []string
	for _, e := range entries {
		if e.IsDir() {
			species = append(species, e.Name())
		}
	}

	var tasks []Task
	if len(species) > 0 {
		sort.Strings(species)
		for _, sp := range species {
			files, err := cloudFiles(filepath.Join(inputRoot, sp))
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				tasks = append(tasks, Task{
					Input:     f,
					OutputDir: filepath.Join(outputRoot, sp),
					Species:   sp,
				})
			}
		}
	} else {
		files, err := cloudFiles(inputRoot)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			tasks = append(tasks, Task{Input: f, OutputDir: outputRoot})
		}
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoInputs, inputRoot)
	}
	return tasks, nil
}

// cloudFiles lists the .las and .laz files directly inside dir, sorted by
// name. Compressed .laz files are listed and later fail their task, so the
// run summary accounts for them.
func cloudFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".las", ".laz":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
