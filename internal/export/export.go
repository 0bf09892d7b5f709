// Package export writes waterfall archives to disk. An export bundle
// is three files sharing a base name: a Sqlite database with the raw
// spectral rows, a PNG capture of the rendered display, and a JSON
// report summarizing the session.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/sdrtools/heatwave/internal/render"
	"github.com/sdrtools/heatwave/internal/spectrum"
)

// Snapshot is the display state captured at the moment of export.
type Snapshot struct {
	CreatedAt   time.Time
	CenterFreq  float64
	SampleRate  float64
	FFTSize     int
	Window      string
	Gain        float64
	ColorScheme string
	Bounds      render.PowerBounds
	Rows        []*spectrum.Row // oldest first
	Image       image.Image     // rendered frame, nil skips the PNG
	Annotations []spectrum.Annotation
	Markers     [5]*spectrum.Marker
}

// Result lists the files an export produced.
type Result struct {
	DBPath     string
	ImagePath  string
	ReportPath string
}

// Exporter writes export bundles into a directory.
type Exporter struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger sets the logger. If this option is not provided, logging
// is disabled.
func WithLogger(logger *slog.Logger) func(*Exporter) {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides time lookups, for tests.
func WithClock(now func() time.Time) func(*Exporter) {
	return func(e *Exporter) { e.now = now }
}

// NewExporter creates an exporter writing bundles into dir.
func NewExporter(dir string, options ...func(*Exporter)) *Exporter {
	e := &Exporter{
		dir:    dir,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Export writes a bundle for snap and returns the produced file paths.
func (e *Exporter) Export(ctx context.Context, snap *Snapshot) (*Result, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	base := filepath.Join(e.dir, "heatwave_"+e.now().Format("20060102_150405"))
	result := &Result{
		DBPath:     base + ".sqlite",
		ReportPath: base + "_report.json",
	}

	if err := e.writeDatabase(ctx, result.DBPath, snap); err != nil {
		return nil, err
	}

	if snap.Image != nil {
		result.ImagePath = base + ".png"
		if err := writeImage(result.ImagePath, snap.Image); err != nil {
			return nil, err
		}
	}

	if err := writeReport(result.ReportPath, snap); err != nil {
		return nil, err
	}

	e.logger.Info("export complete",
		"rows", len(snap.Rows),
		"annotations", len(snap.Annotations),
		"database", result.DBPath)

	return result, nil
}

func (e *Exporter) writeDatabase(ctx context.Context, path string, snap *Snapshot) (err error) {
	store := NewStore(path)
	defer closeWithError(store, &err)

	sessionID, err := store.CreateSession(ctx, snap)
	if err != nil {
		return err
	}
	if err = store.StoreRows(ctx, sessionID, snap.Rows); err != nil {
		return err
	}
	if err = store.StoreAnnotations(ctx, sessionID, snap.Annotations); err != nil {
		return err
	}
	return store.StoreMarkers(ctx, sessionID, snap.Markers)
}

func writeImage(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}
	defer closeWithError(f, &err)

	if err = png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}
	return nil
}

type reportAnnotation struct {
	Timestamp time.Time `json:"timestamp"`
	Frequency float64   `json:"frequency"`
	Row       int64     `json:"row"`
	Power     float64   `json:"power"`
	Note      string    `json:"note"`
}

type reportMarker struct {
	Slot      int     `json:"slot"`
	Frequency float64 `json:"frequency"`
}

type report struct {
	CreatedAt   time.Time          `json:"createdAt"`
	CenterFreq  float64            `json:"centerFrequency"`
	SampleRate  float64            `json:"sampleRate"`
	FFTSize     int                `json:"fftSize"`
	Window      string             `json:"window"`
	Gain        float64            `json:"gain"`
	ColorScheme string             `json:"colorScheme"`
	RowCount    int                `json:"rowCount"`
	PowerMin    float64            `json:"powerMin"`
	PowerMax    float64            `json:"powerMax"`
	PowerMean   float64            `json:"powerMean"`
	PowerMedian float64            `json:"powerMedian"`
	PowerP05    float64            `json:"powerP05"`
	PowerP95    float64            `json:"powerP95"`
	Annotations []reportAnnotation `json:"annotations"`
	Markers     []reportMarker     `json:"markers"`
}

func writeReport(path string, snap *Snapshot) error {
	r := report{
		CreatedAt:   snap.CreatedAt.UTC(),
		CenterFreq:  snap.CenterFreq,
		SampleRate:  snap.SampleRate,
		FFTSize:     snap.FFTSize,
		Window:      snap.Window,
		Gain:        snap.Gain,
		ColorScheme: snap.ColorScheme,
		RowCount:    len(snap.Rows),
		Annotations: make([]reportAnnotation, 0, len(snap.Annotations)),
		Markers:     make([]reportMarker, 0, len(snap.Markers)),
	}

	var power []float64
	for _, row := range snap.Rows {
		power = append(power, row.Power...)
	}
	if len(power) > 0 {
		sort.Float64s(power)
		r.PowerMin = power[0]
		r.PowerMax = power[len(power)-1]
		r.PowerMean = stat.Mean(power, nil)
		r.PowerMedian = stat.Quantile(0.5, stat.Empirical, power, nil)
		r.PowerP05 = stat.Quantile(0.05, stat.Empirical, power, nil)
		r.PowerP95 = stat.Quantile(0.95, stat.Empirical, power, nil)
	}

	for _, a := range snap.Annotations {
		r.Annotations = append(r.Annotations, reportAnnotation{
			Timestamp: a.Timestamp.UTC(),
			Frequency: a.Frequency,
			Row:       a.Row,
			Power:     a.Power,
			Note:      a.Note,
		})
	}
	for slot, m := range snap.Markers {
		if m != nil {
			r.Markers = append(r.Markers, reportMarker{Slot: slot + 1, Frequency: m.Frequency})
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
