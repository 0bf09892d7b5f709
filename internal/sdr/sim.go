package sdr

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimSource synthesizes sample blocks containing a set of tones over a
// noise floor. It stands in for hardware in tests and in the -sim run
// mode, and honors gain so AGC behavior can be exercised end to end.
type SimSource struct {
	mu         sync.Mutex
	centerFreq float64
	sampleRate float64
	gain       float64
	blockSize  int
	tones      []float64 // offsets from the center frequency in Hz
	phase      float64
	rng        *rand.Rand
}

// NewSimSource creates a synthetic source. Tones are offsets from the
// center frequency in Hz and may be empty for pure noise.
func NewSimSource(centerFreq, sampleRate float64, blockSize int, tones ...float64) *SimSource {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	return &SimSource{
		centerFreq: centerFreq,
		sampleRate: sampleRate,
		gain:       20,
		blockSize:  blockSize,
		tones:      tones,
		rng:        rand.New(rand.NewSource(1)),
	}
}

func (s *SimSource) ReadBlock(ctx context.Context) (*SampleBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	amp := math.Pow(10, (s.gain-40)/20) // tone amplitude tracks the gain setting
	samples := make([]complex64, s.blockSize)
	dt := 1 / s.sampleRate
	for i := range samples {
		t := s.phase + float64(i)*dt
		var re, im float64
		for _, tone := range s.tones {
			re += amp * math.Cos(2*math.Pi*tone*t)
			im += amp * math.Sin(2*math.Pi*tone*t)
		}
		re += s.rng.NormFloat64() * 0.01
		im += s.rng.NormFloat64() * 0.01
		samples[i] = complex(float32(re), float32(im))
	}
	s.phase += float64(s.blockSize) * dt

	return &SampleBlock{
		Timestamp:  time.Now(),
		CenterFreq: s.centerFreq,
		SampleRate: s.sampleRate,
		Samples:    samples,
	}, nil
}

func (s *SimSource) SetGain(db float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gain = db
	return nil
}

func (s *SimSource) SetFrequency(hz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.centerFreq = hz
	return nil
}

func (s *SimSource) Close() error { return nil }
