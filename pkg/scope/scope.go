// Package scope draws the live ECG trace with vitals markers.
package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/govitals/pkg/config"
	"github.com/itohio/govitals/pkg/sample"
	"github.com/itohio/govitals/pkg/session"
)

// ScopeWidget is a custom Fyne widget that displays the ECG trace like a
// bedside monitor.
type ScopeWidget struct {
	widget.BaseWidget

	cfg *config.DisplayConfig

	// Data (protected by mu)
	mu      sync.RWMutex
	vitals  []session.Vitals
	hypoxia bool

	// Display buffer (reused for downsampling)
	displaySamples []sample.Sample

	view viewport

	maxDisplayPoints int
}

// New creates a new ScopeWidget instance.
func New(cfg *config.DisplayConfig) *ScopeWidget {
	if cfg == nil {
		cfg = &config.Default().Display
	}
	s := &ScopeWidget{
		cfg:              cfg,
		displaySamples:   make([]sample.Sample, 0, cfg.MaxPoints),
		maxDisplayPoints: cfg.MaxPoints,
	}
	s.view = fitViewport(nil, cfg, time.Now())
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

// UpdateData replaces the displayed trace and vitals markers.
// Call it from the session callback via fyne.Do().
func (s *ScopeWidget) UpdateData(snap session.Snapshot) {
	s.mu.Lock()

	s.displaySamples = sample.DownsampleSamples(s.displaySamples, snap.Samples, s.maxDisplayPoints)
	s.hypoxia = snap.Hypoxia
	s.view = fitViewport(s.displaySamples, s.cfg, time.Now())
	s.vitals = trackVitals(s.vitals, snap, s.view.xMin)

	s.mu.Unlock()

	// Refresh outside the lock; the renderer takes a read lock.
	s.Refresh()
}

// trackVitals appends a new report as a marker and drops markers older
// than cutoff.
func trackVitals(markers []session.Vitals, snap session.Snapshot, cutoff time.Time) []session.Vitals {
	if snap.HasVitals && (len(markers) == 0 || !markers[len(markers)-1].Timestamp.Equal(snap.Vitals.Timestamp)) {
		markers = append(markers, snap.Vitals)
	}
	i := 0
	for i < len(markers) && markers[i].Timestamp.Before(cutoff) {
		i++
	}
	return append(markers[:0], markers[i:]...)
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 10, G: 16, B: 10, A: 255})
	return &scopeRenderer{
		scope:   s,
		grid:    grid,
		objects: []fyne.CanvasObject{grid},
	}
}
