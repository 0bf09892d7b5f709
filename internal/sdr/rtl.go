package sdr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultBinPath     = "rtl_sdr"
	defaultBlockSize   = 2048
	defaultReadTimeout = time.Second

	// Raw rtl_sdr output is unsigned 8-bit I/Q centered at 127.5.
	iqOffset = 127.5
	iqScale  = 127.5
)

// RTLConfig describes an rtl_sdr capture process.
type RTLConfig struct {
	BinPath     string        // Path to the rtl_sdr binary
	DeviceIndex int           // Device index (-d)
	CenterFreq  float64       // Hz (-f)
	SampleRate  float64       // Hz (-s)
	Gain        float64       // dB (-g); 0 selects device auto gain
	PPM         int           // Frequency correction (-p)
	BlockSize   int           // Samples per block
	ReadTimeout time.Duration // Max wait in ReadBlock before a gap is reported
}

// Args builds the rtl_sdr command line for the current tuning state.
func (c *RTLConfig) Args() []string {
	args := []string{
		"-d", strconv.Itoa(c.DeviceIndex),
		"-f", strconv.FormatFloat(c.CenterFreq, 'f', 0, 64),
		"-s", strconv.FormatFloat(c.SampleRate, 'f', 0, 64),
	}
	if c.Gain > 0 {
		args = append(args, "-g", strconv.FormatFloat(c.Gain, 'f', 1, 64))
	}
	if c.PPM != 0 {
		args = append(args, "-p", strconv.Itoa(c.PPM))
	}
	return append(args, "-") // stream to stdout
}

// WithLogger sets the logger for the capture process.
func WithLogger(logger *slog.Logger) func(*RTLSource) {
	return func(s *RTLSource) {
		s.logger = logger.With(slog.String("device", "rtl-sdr"), slog.Int("index", s.cfg.DeviceIndex))
	}
}

// RTLSource reads complex sample blocks from a spawned rtl_sdr process.
// Retuning (gain or frequency) restarts the process with new arguments;
// the rtl_sdr CLI has no runtime control channel.
type RTLSource struct {
	cfg    RTLConfig
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	blocks  chan *SampleBlock
	procErr chan error
}

// NewRTLSource creates a source and starts the capture process.
func NewRTLSource(ctx context.Context, cfg RTLConfig, options ...func(*RTLSource)) (*RTLSource, error) {
	if cfg.BinPath == "" {
		cfg.BinPath = defaultBinPath
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = defaultBlockSize
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.SampleRate <= 0 || cfg.CenterFreq <= 0 {
		return nil, fmt.Errorf("%w: invalid tuning: freq=%f rate=%f", ErrDeviceFailure, cfg.CenterFreq, cfg.SampleRate)
	}

	s := &RTLSource{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}

	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RTLSource) start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, s.cfg.BinPath, s.cfg.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: creating stdout pipe: %w", ErrDeviceFailure, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: creating stderr pipe: %w", ErrDeviceFailure, err)
	}
	if err = cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: starting %s: %w", ErrDeviceFailure, s.cfg.BinPath, err)
	}

	s.cancel = cancel
	s.blocks = make(chan *SampleBlock, 4)
	s.procErr = make(chan error, 1)

	s.logger.Info("capture started",
		slog.Float64("centerFreq", s.cfg.CenterFreq),
		slog.Float64("sampleRate", s.cfg.SampleRate),
		slog.Float64("gain", s.cfg.Gain))

	s.wg.Add(2)
	go s.handleStdout(stdout, s.blocks, s.procErr)
	go s.handleStderr(stderr)

	go func() {
		s.wg.Wait()
		if err := cmd.Wait(); err != nil && !errors.Is(ctx.Err(), context.Canceled) {
			select {
			case s.procErr <- fmt.Errorf("%w: capture process exited: %w", ErrDeviceFailure, err):
			default:
			}
		}
	}()

	return nil
}

// handleStdout slices the raw I/Q byte stream into fixed-size blocks.
// When the consumer lags, the oldest queued block is dropped so the
// stream stays close to real time.
func (s *RTLSource) handleStdout(stdout io.Reader, blocks chan *SampleBlock, procErr chan<- error) {
	defer s.wg.Done()

	r := bufio.NewReaderSize(stdout, s.cfg.BlockSize*4)
	raw := make([]byte, s.cfg.BlockSize*2)

	for {
		if _, err := io.ReadFull(r, raw); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				select {
				case procErr <- fmt.Errorf("%w: reading samples: %w", ErrDeviceFailure, err):
				default:
				}
			}
			return
		}

		samples := make([]complex64, s.cfg.BlockSize)
		for i := range samples {
			re := (float32(raw[2*i]) - iqOffset) / iqScale
			im := (float32(raw[2*i+1]) - iqOffset) / iqScale
			samples[i] = complex(re, im)
		}

		block := &SampleBlock{
			Timestamp:  time.Now(),
			CenterFreq: s.cfg.CenterFreq,
			SampleRate: s.cfg.SampleRate,
			Samples:    samples,
		}

		select {
		case blocks <- block:
		default:
			select {
			case <-blocks:
			default:
			}
			blocks <- block
		}
	}
}

func (s *RTLSource) handleStderr(stderr io.Reader) {
	defer s.wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.logger.Warn(fmt.Sprintf("rtl_sdr >> %s", line))
	}
}

// ReadBlock returns the next sample block. A timeout yields an error
// wrapping ErrAcquisitionGap so the caller can keep its cadence.
func (s *RTLSource) ReadBlock(ctx context.Context) (*SampleBlock, error) {
	s.mu.Lock()
	blocks, procErr := s.blocks, s.procErr
	s.mu.Unlock()

	timer := time.NewTimer(s.cfg.ReadTimeout)
	defer timer.Stop()

	select {
	case block := <-blocks:
		return block, nil
	case err := <-procErr:
		return nil, err
	case <-timer.C:
		return nil, fmt.Errorf("%w: no samples within %s", ErrAcquisitionGap, s.cfg.ReadTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetGain restarts the capture process with a new gain.
func (s *RTLSource) SetGain(db float64) error {
	return s.retune(func(c *RTLConfig) { c.Gain = db })
}

// SetFrequency restarts the capture process tuned to a new center frequency.
func (s *RTLSource) SetFrequency(hz float64) error {
	return s.retune(func(c *RTLConfig) { c.CenterFreq = hz })
}

func (s *RTLSource) retune(mutate func(*RTLConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
	mutate(&s.cfg)
	return s.start(context.Background())
}

// Close stops the capture process.
func (s *RTLSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
		s.cancel = nil
	}
	return nil
}
