package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sdrtools/heatwave/internal/control"
	"github.com/sdrtools/heatwave/internal/dsp"
	"github.com/sdrtools/heatwave/internal/export"
	"github.com/sdrtools/heatwave/internal/fbdev"
	"github.com/sdrtools/heatwave/internal/render"
	"github.com/sdrtools/heatwave/internal/sdr"
	"github.com/sdrtools/heatwave/internal/waterfall"
)

const (
	testBins    = 16
	testHistory = 4
)

// scriptedSource replays a fixed sequence of blocks and errors, then
// reports acquisition gaps forever.
type scriptedSource struct {
	blocks []*sdr.SampleBlock
	errs   []error
	calls  int
	gain   float64
}

func (s *scriptedSource) ReadBlock(ctx context.Context) (*sdr.SampleBlock, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.blocks) {
		return s.blocks[i], nil
	}
	return nil, fmt.Errorf("%w: script exhausted", sdr.ErrAcquisitionGap)
}

func (s *scriptedSource) SetGain(db float64) error   { s.gain = db; return nil }
func (s *scriptedSource) SetFrequency(float64) error { return nil }
func (s *scriptedSource) Close() error               { return nil }

func testBlock() *sdr.SampleBlock {
	samples := make([]complex64, testBins)
	for i := range samples {
		samples[i] = complex(0.1, 0)
	}
	return &sdr.SampleBlock{
		Timestamp:  time.Now(),
		CenterFreq: 100e6,
		SampleRate: 1e6,
		Samples:    samples,
	}
}

type harness struct {
	driver *Driver
	source *scriptedSource
	sink   *fbdev.MemorySink
	state  *control.State
	buffer *waterfall.Buffer
	keys   chan control.Key
}

func newHarness(t *testing.T, source *scriptedSource) *harness {
	t.Helper()

	estimator, err := dsp.NewEstimator(testBins, dsp.WindowBlackmanHarris)
	if err != nil {
		t.Fatalf("Failed to create estimator: %v", err)
	}
	buffer, err := waterfall.New(testHistory, testBins)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}
	compositor, err := render.NewCompositor(128, 100)
	if err != nil {
		t.Fatalf("Failed to create compositor: %v", err)
	}

	state := &control.State{
		Scheme:      render.SchemeDefault,
		ScrollSpeed: 10,
		AutoScale:   true,
		Gain:        28,
		CursorStep:  100e3,
	}
	sink := fbdev.NewMemorySink(128, 100)
	keys := make(chan control.Key, 16)

	driver, err := New(Config{
		Source:     source,
		Estimator:  estimator,
		AGC:        dsp.NewAGC(dsp.AGCConfig{}, state.Gain),
		Buffer:     buffer,
		Compositor: compositor,
		Mapper:     render.NewColorMapper(state.Scheme, -120, -20),
		Sink:       sink,
		ColorMode:  fbdev.ColorMode32,
		State:      state,
		Controller: control.NewController(state),
		Keys:       keys,
		Window:     "blackman-harris",
	})
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}

	return &harness{
		driver: driver,
		source: source,
		sink:   sink,
		state:  state,
		buffer: buffer,
		keys:   keys,
	}
}

func TestDriver_CycleProducesFrame(t *testing.T) {
	h := newHarness(t, &scriptedSource{blocks: []*sdr.SampleBlock{testBlock()}})

	reset, err := h.driver.cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if reset {
		t.Error("Cycle without key input must not request a ticker reset")
	}
	if h.buffer.Len() != 1 {
		t.Errorf("Expected 1 stored row, got %d", h.buffer.Len())
	}
	if h.state.RowCount != 1 {
		t.Errorf("Expected row count 1, got %d", h.state.RowCount)
	}
	if h.sink.Frames != 1 {
		t.Errorf("Expected 1 written frame, got %d", h.sink.Frames)
	}
	if h.state.FreqStart != 100e6-0.5e6 || h.state.FreqEnd != 100e6+0.5e6 {
		t.Errorf("Frequency range not taken from the row: %.0f - %.0f", h.state.FreqStart, h.state.FreqEnd)
	}
	if h.state.CursorFreq != 100e6 {
		t.Errorf("Cursor should initialize to center, got %.0f", h.state.CursorFreq)
	}
}

func TestDriver_GapRepeatsLastRow(t *testing.T) {
	h := newHarness(t, &scriptedSource{
		blocks: []*sdr.SampleBlock{testBlock()},
		errs:   []error{nil, fmt.Errorf("%w: timeout", sdr.ErrAcquisitionGap)},
	})

	ctx := context.Background()
	if err := h.driver.acquire(ctx); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if err := h.driver.acquire(ctx); err != nil {
		t.Fatalf("Gap acquire failed: %v", err)
	}

	rows := h.buffer.Rows()
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows after a gap, got %d", len(rows))
	}
	for i := range rows[0].Power {
		if rows[0].Power[i] != rows[1].Power[i] {
			t.Fatalf("Bin %d differs: the gap row must repeat the previous one", i)
		}
	}
	if h.state.RowCount != 2 {
		t.Errorf("Gap rows still count, expected 2 got %d", h.state.RowCount)
	}
}

func TestDriver_GapBeforeFirstRow(t *testing.T) {
	h := newHarness(t, &scriptedSource{
		errs: []error{fmt.Errorf("%w: timeout", sdr.ErrAcquisitionGap)},
	})

	if err := h.driver.acquire(context.Background()); err != nil {
		t.Fatalf("Gap before the first row must not fail: %v", err)
	}
	if h.buffer.Len() != 0 {
		t.Errorf("Nothing to repeat yet, expected empty buffer, got %d rows", h.buffer.Len())
	}
}

func TestDriver_DeviceFailureIsFatal(t *testing.T) {
	h := newHarness(t, &scriptedSource{
		errs: []error{fmt.Errorf("%w: process exited", sdr.ErrDeviceFailure)},
	})

	err := h.driver.acquire(context.Background())
	if !errors.Is(err, sdr.ErrDeviceFailure) {
		t.Errorf("Expected a device failure, got %v", err)
	}
}

func TestDriver_QuitKeyStopsLoop(t *testing.T) {
	h := newHarness(t, &scriptedSource{blocks: []*sdr.SampleBlock{testBlock()}})

	h.keys <- 'q'
	_, err := h.driver.cycle(context.Background())
	if !errors.Is(err, errQuit) {
		t.Errorf("Expected quit, got %v", err)
	}

	// Run maps quit onto a clean shutdown
	h2 := newHarness(t, &scriptedSource{blocks: []*sdr.SampleBlock{testBlock()}})
	h2.keys <- 'q'
	if err := h2.driver.Run(context.Background()); err != nil {
		t.Errorf("Run should return nil on quit, got %v", err)
	}
}

func TestDriver_SpeedChangeRequestsTickerReset(t *testing.T) {
	h := newHarness(t, &scriptedSource{blocks: []*sdr.SampleBlock{testBlock()}})

	h.keys <- 'W'
	reset, err := h.driver.cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if !reset {
		t.Error("Speed change must request a ticker reset")
	}
	if h.state.ScrollSpeed != 10.5 {
		t.Errorf("Expected speed 10.5, got %.1f", h.state.ScrollSpeed)
	}
}

func TestDriver_PauseSkipsAcquisition(t *testing.T) {
	h := newHarness(t, &scriptedSource{})
	h.state.Paused = true

	if _, err := h.driver.cycle(context.Background()); err != nil {
		t.Fatalf("Paused cycle failed: %v", err)
	}
	if h.source.calls != 0 {
		t.Error("Paused pipeline must not read the device")
	}
	if h.sink.Frames != 1 {
		t.Error("Paused pipeline still renders frames")
	}
}

func TestDriver_ManualGainReachesDevice(t *testing.T) {
	h := newHarness(t, &scriptedSource{blocks: []*sdr.SampleBlock{testBlock()}})
	h.state.AGCEnabled = false

	h.keys <- 'G'
	if _, err := h.driver.cycle(context.Background()); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if h.state.Gain != 29 {
		t.Errorf("Expected state gain 29, got %.1f", h.state.Gain)
	}
	if h.source.gain != 29 {
		t.Errorf("Expected device gain 29, got %.1f", h.source.gain)
	}
}

func TestDriver_AGCAdjustsGain(t *testing.T) {
	h := newHarness(t, &scriptedSource{blocks: []*sdr.SampleBlock{testBlock()}})
	h.state.AGCEnabled = true

	// The quiet test block sits far below the AGC target, so the very
	// first row drives a maximum upward step.
	if err := h.driver.acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if h.source.gain <= 28 {
		t.Errorf("Expected AGC to raise the device gain above 28, got %.1f", h.source.gain)
	}
	if h.state.Gain != h.source.gain {
		t.Errorf("State gain %.1f should follow the device gain %.1f", h.state.Gain, h.source.gain)
	}
}

func TestDriver_ClearResetsBuffer(t *testing.T) {
	h := newHarness(t, &scriptedSource{
		blocks: []*sdr.SampleBlock{testBlock(), testBlock()},
	})

	ctx := context.Background()
	if _, err := h.driver.cycle(ctx); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}

	h.keys <- 'c'
	if _, err := h.driver.cycle(ctx); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}

	// The clear lands before this cycle's acquisition, so exactly the
	// post-clear row remains.
	if h.buffer.Len() != 1 {
		t.Errorf("Expected 1 row after clear plus one acquisition, got %d", h.buffer.Len())
	}
}

func TestDriver_FailedExportAdvancesMarker(t *testing.T) {
	blocks := make([]*sdr.SampleBlock, testHistory)
	for i := range blocks {
		blocks[i] = testBlock()
	}
	h := newHarness(t, &scriptedSource{blocks: blocks})

	// An export directory under a regular file cannot be created
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	h.driver.cfg.Exporter = export.NewExporter(filepath.Join(blocked, "exports"))

	ctx := context.Background()
	for i := 0; i < testHistory; i++ {
		if err := h.driver.acquire(ctx); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
	}
	if !h.driver.autoExportDue() {
		t.Fatal("Auto export should arm once the buffer fills")
	}

	h.driver.export(ctx)

	// One fill gets one attempt, success or not
	if h.driver.autoExportDue() {
		t.Error("A failed export must not stay armed for the next cycle")
	}
	if msg := h.state.Message(time.Now()); !strings.Contains(msg, "Export failed") {
		t.Errorf("Expected a failure message, got %q", msg)
	}
}

func TestDriver_AutoExportArming(t *testing.T) {
	blocks := make([]*sdr.SampleBlock, 2*testHistory)
	for i := range blocks {
		blocks[i] = testBlock()
	}
	h := newHarness(t, &scriptedSource{blocks: blocks})

	ctx := context.Background()

	// Not due on a partially filled buffer
	for i := 0; i < testHistory-1; i++ {
		if err := h.driver.acquire(ctx); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
	}
	if h.driver.autoExportDue() {
		t.Error("Auto export must wait for a full buffer")
	}

	if err := h.driver.acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !h.driver.autoExportDue() {
		t.Error("Auto export should arm once the buffer fills")
	}

	// After an export, a whole new buffer of rows must accumulate
	h.driver.exportedAt = h.buffer.Pushes()
	if h.driver.autoExportDue() {
		t.Error("Auto export must disarm right after an export")
	}
	for i := 0; i < testHistory; i++ {
		if err := h.driver.acquire(ctx); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
	}
	if !h.driver.autoExportDue() {
		t.Error("Auto export should re-arm after another full turn")
	}
}
