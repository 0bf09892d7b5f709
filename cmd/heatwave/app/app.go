// Package app wires the waterfall display together: tuner, spectrum
// estimator, waterfall buffer, compositor, framebuffer and keyboard.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sdrtools/heatwave/internal/control"
	"github.com/sdrtools/heatwave/internal/dsp"
	"github.com/sdrtools/heatwave/internal/export"
	"github.com/sdrtools/heatwave/internal/fbdev"
	"github.com/sdrtools/heatwave/internal/input"
	"github.com/sdrtools/heatwave/internal/pipeline"
	"github.com/sdrtools/heatwave/internal/render"
	"github.com/sdrtools/heatwave/internal/sdr"
	"github.com/sdrtools/heatwave/internal/settings"
	"github.com/sdrtools/heatwave/internal/waterfall"
)

// Run builds the pipeline from config and drives it until ctx is
// cancelled or the quit key arrives.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	state := &control.State{
		Scheme:      render.SchemeDefault,
		ScrollSpeed: config.Display.ScrollSpeed,
		AGCEnabled:  true,
		AutoScale:   true,
		Gain:        config.Device.Gain,
		CursorStep:  config.Device.SampleRate / 64,
		Averaging: dsp.Averaging{
			Mode:   dsp.AveragingMode(config.Device.Averaging.Mode),
			Window: config.Device.Averaging.Window,
			Weight: config.Device.Averaging.Weight,
		},
	}
	if state.Averaging.Mode == "" {
		state.Averaging.Mode = dsp.AveragingOff
	}

	if path := config.Settings.StatePath; path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			persisted, err := settings.Load(path)
			if err != nil {
				logger.Warn("saved display state unusable, starting from defaults",
					slog.String("path", path), slog.String("error", err.Error()))
			} else {
				persisted.Apply(state)
			}
		}
	}

	source, err := openSource(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := source.Close(); err != nil {
			logger.Warn("closing source", slog.String("error", err.Error()))
		}
	}()

	estimator, err := dsp.NewEstimator(config.Device.FFTSize, dsp.WindowKind(config.Device.Window))
	if err != nil {
		return fmt.Errorf("creating estimator: %w", err)
	}
	estimator.SetAveraging(state.Averaging)

	sink, mode, err := openSink(config, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("closing display", slog.String("error", err.Error()))
		}
	}()

	width, height := sink.Size()
	compositor, err := render.NewCompositor(width, height, render.WithFontPath(config.Display.FontPath))
	if err != nil {
		return fmt.Errorf("creating compositor: %w", err)
	}

	history := config.Display.History
	if history <= 0 {
		history = compositor.PlotHeight()
	}
	buffer, err := waterfallBuffer(history, estimator.Bins())
	if err != nil {
		return err
	}

	keys, restore, err := openKeyboard(ctx, logger)
	if err != nil {
		return err
	}
	if restore != nil {
		defer func() {
			if err := restore(); err != nil {
				logger.Warn("restoring terminal", slog.String("error", err.Error()))
			}
		}()
	}

	driver, err := pipeline.New(pipeline.Config{
		Source:       source,
		Estimator:    estimator,
		AGC:          dsp.NewAGC(dsp.AGCConfig{}, state.Gain),
		Buffer:       buffer,
		Compositor:   compositor,
		Mapper:       render.NewColorMapper(state.Scheme, 0, 1),
		Sink:         sink,
		ColorMode:    mode,
		State:        state,
		Controller:   control.NewController(state),
		Exporter:     export.NewExporter(config.Export.Directory, export.WithLogger(logger)),
		Keys:         keys,
		Window:       config.Device.Window,
		SettingsPath: config.Settings.StatePath,
	}, pipeline.WithLogger(logger))
	if err != nil {
		return err
	}

	logger.Info("starting display",
		slog.Float64("frequency", config.Device.Frequency),
		slog.Float64("sampleRate", config.Device.SampleRate),
		slog.Int("fftSize", config.Device.FFTSize),
		slog.Int("width", width),
		slog.Int("height", height))

	return driver.Run(ctx)
}

func openSource(ctx context.Context, config *Config, logger *slog.Logger) (sdr.Source, error) {
	if config.Device.Simulated {
		// Two tones inside the passband give the display something to show.
		offsets := []float64{
			-config.Device.SampleRate / 8,
			config.Device.SampleRate / 5,
		}
		return sdr.NewSimSource(config.Device.Frequency, config.Device.SampleRate, config.Device.FFTSize, offsets...), nil
	}

	source, err := sdr.NewRTLSource(ctx, sdr.RTLConfig{
		BinPath:     config.Device.BinPath,
		DeviceIndex: config.Device.DeviceIndex,
		CenterFreq:  config.Device.Frequency,
		SampleRate:  config.Device.SampleRate,
		Gain:        config.Device.Gain,
		PPM:         config.Device.PPMError,
		BlockSize:   config.Device.FFTSize,
		ReadTimeout: config.Device.ReadTimeout,
	}, sdr.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening tuner: %w", err)
	}
	return source, nil
}

func openSink(config *Config, logger *slog.Logger) (fbdev.Sink, fbdev.ColorMode, error) {
	device, err := fbdev.Open(config.Display.Framebuffer)
	if err != nil {
		return nil, 0, fmt.Errorf("opening framebuffer %s: %w", config.Display.Framebuffer, err)
	}

	var mode fbdev.ColorMode
	switch device.BitsPerPixel() {
	case 16:
		mode = fbdev.ColorMode16
	case 32:
		mode = fbdev.ColorMode32
	default:
		_ = device.Close()
		return nil, 0, fmt.Errorf("%w: unsupported depth %d bpp", fbdev.ErrSurfaceMismatch, device.BitsPerPixel())
	}

	logger.Info("framebuffer opened",
		slog.String("device", config.Display.Framebuffer),
		slog.Int("bpp", device.BitsPerPixel()))
	return device, mode, nil
}

// openKeyboard puts the terminal into raw mode and starts the key
// reader. The returned restore function may be nil when raw mode is
// unavailable; keys still arrive line buffered in that case.
func openKeyboard(ctx context.Context, logger *slog.Logger) (<-chan control.Key, func() error, error) {
	restore, err := input.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		logger.Warn("raw terminal mode unavailable", slog.String("error", err.Error()))
		restore = nil
	}

	reader := input.NewReader(os.Stdin, input.WithLogger(logger))
	go reader.Run(ctx)
	return reader.Keys(), restore, nil
}

func waterfallBuffer(history, bins int) (*waterfall.Buffer, error) {
	buffer, err := waterfall.New(history, bins, waterfall.WithPeakDecay(0.99))
	if err != nil {
		return nil, fmt.Errorf("creating waterfall buffer: %w", err)
	}
	return buffer, nil
}
