package scope

import (
	"image/color"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/govitals/pkg/sample"
	"github.com/itohio/govitals/pkg/session"
)

var (
	gridColor   = color.RGBA{R: 30, G: 60, B: 30, A: 255}
	labelColor  = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	traceColor  = color.RGBA{R: 60, G: 255, B: 90, A: 255}
	markerColor = color.RGBA{R: 80, G: 160, B: 255, A: 255}
	alertColor  = color.RGBA{R: 255, G: 60, B: 60, A: 255}
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	// Background
	grid *canvas.Rectangle

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// plot is the drawing area inside the axis margins.
type plot struct {
	x, y, w, h float32
	view       viewport
}

func (p plot) pos(t time.Time, value float64) fyne.Position {
	return fyne.NewPos(p.x+p.view.x(t)*p.w, p.y+p.h-p.view.y(value)*p.h)
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 250)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh redraws the trace.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	samples := r.scope.displaySamples
	vitals := r.scope.vitals
	hypoxia := r.scope.hypoxia
	view := r.scope.view
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.grid}

	const (
		marginLeft   = float32(50)
		marginRight  = float32(20)
		marginTop    = float32(25)
		marginBottom = float32(30)
	)
	p := plot{
		x:    marginLeft,
		y:    marginTop,
		w:    size.Width - marginLeft - marginRight,
		h:    size.Height - marginTop - marginBottom,
		view: view,
	}

	r.drawGrid(p)
	r.drawTrace(p, samples)
	r.drawMarkers(p, vitals)
	if hypoxia {
		r.drawBanner(p, "HYPOXIA")
	}
}

// drawGrid draws the ECG paper grid with ADC and time labels.
func (r *scopeRenderer) drawGrid(p plot) {
	const numHLines = 8
	for i := range numHLines + 1 {
		y := p.y + float32(i)*p.h/numHLines
		r.addLine(fyne.NewPos(p.x, y), fyne.NewPos(p.x+p.w, y), gridColor, 1)

		value := p.view.yMax - float64(i)*(p.view.yMax-p.view.yMin)/numHLines
		text := canvas.NewText(formatValue(value), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(p.x-5, y-6))
		r.objects = append(r.objects, text)
	}

	const numVLines = 10
	span := p.view.xMax.Sub(p.view.xMin)
	for i := range numVLines + 1 {
		x := p.x + float32(i)*p.w/numVLines
		r.addLine(fyne.NewPos(x, p.y), fyne.NewPos(x, p.y+p.h), gridColor, 1)

		offset := time.Duration(int64(span) * int64(i) / numVLines)
		text := canvas.NewText(formatTime(offset), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, p.y+p.h+5))
		r.objects = append(r.objects, text)
	}
}

// drawTrace draws the ECG curve.
func (r *scopeRenderer) drawTrace(p plot, samples []sample.Sample) {
	var prev fyne.Position
	havePrev := false
	for _, s := range samples {
		if !p.view.visible(s.Timestamp) {
			havePrev = false
			continue
		}
		pos := p.pos(s.Timestamp, s.Value)
		if havePrev {
			r.addLine(prev, pos, traceColor, 1.5)
		}
		prev, havePrev = pos, true
	}
}

// drawMarkers draws a vertical line and a label for each vitals report.
func (r *scopeRenderer) drawMarkers(p plot, vitals []session.Vitals) {
	for _, v := range vitals {
		if !p.view.visible(v.Timestamp) {
			continue
		}
		x := p.x + p.view.x(v.Timestamp)*p.w
		r.addLine(fyne.NewPos(x, p.y), fyne.NewPos(x, p.y+p.h), markerColor, 1)

		text := canvas.NewText(formatVitals(v), markerColor)
		text.TextSize = 11
		text.Alignment = fyne.TextAlignLeading
		text.Move(fyne.NewPos(x+3, p.y+2))
		r.objects = append(r.objects, text)
	}
}

func (r *scopeRenderer) drawBanner(p plot, msg string) {
	text := canvas.NewText(msg, alertColor)
	text.TextSize = 14
	text.TextStyle = fyne.TextStyle{Bold: true}
	text.Alignment = fyne.TextAlignTrailing
	text.Move(fyne.NewPos(p.x+p.w, p.y-22))
	r.objects = append(r.objects, text)
}

func (r *scopeRenderer) addLine(a, b fyne.Position, c color.Color, width float32) {
	line := canvas.NewLine(c)
	line.Position1 = a
	line.Position2 = b
	line.StrokeWidth = width
	r.objects = append(r.objects, line)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func formatTime(d time.Duration) string {
	if d < time.Second {
		return strconv.FormatFloat(d.Seconds(), 'f', 2, 64) + "s"
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
}

func formatVitals(v session.Vitals) string {
	if v.SpO2 == 0 && v.HeartRate == 0 {
		return "--"
	}
	return strconv.Itoa(v.SpO2) + "% " + strconv.Itoa(v.HeartRate) + "bpm"
}
