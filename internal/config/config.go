// Package config loads optional JSON tuning for the projection pipeline.
// Every field is a pointer so absent keys fall back to the pipeline
// defaults instead of zero values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/canopy.view/internal/batch"
	"github.com/banshee-data/canopy.view/internal/render"
)

// maxConfigSize caps tuning files at 1MB; anything larger is a mistake.
const maxConfigSize = 1 << 20

// Tuning is the optional JSON configuration for a batch run.
type Tuning struct {
	// Angles overrides the projection rotations, in degrees.
	Angles *[]float64 `json:"angles,omitempty"`

	// ImageHeightPx overrides the rendered image height.
	ImageHeightPx *int `json:"image_height_px,omitempty"`

	// VMaxScale overrides the display ceiling fraction.
	VMaxScale *float64 `json:"vmax_scale,omitempty"`

	// ThumbHeightPx overrides the thumbnail height.
	ThumbHeightPx *int `json:"thumb_height_px,omitempty"`

	// Workers overrides the worker pool size.
	Workers *int `json:"workers,omitempty"`
}

// DefaultTuning returns a Tuning with every field explicitly set to the
// pipeline defaults.
func DefaultTuning() *Tuning {
	opt := batch.DefaultOptions()
	return &Tuning{
		Angles:        ptrAngles(batch.DefaultAngles),
		ImageHeightPx: ptrInt(opt.Render.HeightPx),
		VMaxScale:     ptrFloat64(opt.Render.VMaxScale),
		ThumbHeightPx: ptrInt(opt.Render.ThumbHeightPx),
		Workers:       ptrInt(opt.Workers),
	}
}

// Load reads and validates a tuning file.
func Load(path string) (*Tuning, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return nil, fmt.Errorf("config file must have a .json extension, got %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config file not accessible: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var t Tuning
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks every present field for a usable value.
func (t *Tuning) Validate() error {
	if t.Angles != nil {
		if len(*t.Angles) == 0 {
			return fmt.Errorf("angles must not be empty")
		}
		for _, a := range *t.Angles {
			if a < 0 || a >= 360 {
				return fmt.Errorf("angle %v out of range [0, 360)", a)
			}
		}
	}
	if t.ImageHeightPx != nil && *t.ImageHeightPx < 1 {
		return fmt.Errorf("image_height_px must be positive, got %d", *t.ImageHeightPx)
	}
	if t.VMaxScale != nil && (*t.VMaxScale <= 0 || *t.VMaxScale > 1) {
		return fmt.Errorf("vmax_scale must be in (0, 1], got %v", *t.VMaxScale)
	}
	if t.ThumbHeightPx != nil && *t.ThumbHeightPx < 1 {
		return fmt.Errorf("thumb_height_px must be positive, got %d", *t.ThumbHeightPx)
	}
	if t.Workers != nil && *t.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *t.Workers)
	}
	return nil
}

// GetAngles returns the configured angles or the default set.
func (t *Tuning) GetAngles() []float64 {
	if t.Angles != nil {
		return append([]float64(nil), (*t.Angles)...)
	}
	return append([]float64(nil), batch.DefaultAngles...)
}

// GetImageHeightPx returns the configured image height or the default.
func (t *Tuning) GetImageHeightPx() int {
	if t.ImageHeightPx != nil {
		return *t.ImageHeightPx
	}
	return render.DefaultOptions().HeightPx
}

// GetVMaxScale returns the configured display ceiling or the default.
func (t *Tuning) GetVMaxScale() float64 {
	if t.VMaxScale != nil {
		return *t.VMaxScale
	}
	return render.DefaultOptions().VMaxScale
}

// GetThumbHeightPx returns the configured thumbnail height or the default.
func (t *Tuning) GetThumbHeightPx() int {
	if t.ThumbHeightPx != nil {
		return *t.ThumbHeightPx
	}
	return render.DefaultOptions().ThumbHeightPx
}

// GetWorkers returns the configured worker count or the default of one
// worker per CPU.
func (t *Tuning) GetWorkers() int {
	if t.Workers != nil {
		return *t.Workers
	}
	return batch.DefaultOptions().Workers
}

// Apply writes the effective tuning onto a batch configuration, falling
// back to the defaults for absent fields.
func (t *Tuning) Apply(opt *batch.Options) {
	opt.Angles = t.GetAngles()
	opt.Render.HeightPx = t.GetImageHeightPx()
	opt.Render.VMaxScale = t.GetVMaxScale()
	opt.Render.ThumbHeightPx = t.GetThumbHeightPx()
	opt.Workers = t.GetWorkers()
}

func ptrInt(i int) *int { return &i }

func ptrFloat64(f float64) *float64 { return &f }

func ptrAngles(a []float64) *[]float64 {
	c := append([]float64(nil), a...)
	return &c
}
