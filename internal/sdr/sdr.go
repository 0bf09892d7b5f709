package sdr

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAcquisitionGap is returned when a sample block could not be
	// produced in time or arrived short. The pipeline substitutes a row
	// and keeps its cadence; the gap is never fatal by itself.
	ErrAcquisitionGap = errors.New("acquisition gap")

	// ErrDeviceFailure is returned when the device is unreachable or the
	// capture process died. The pipeline shuts down cleanly on it.
	ErrDeviceFailure = errors.New("device failure")
)

// SampleBlock is a fixed-length run of complex baseband samples tagged
// with the tuning state at capture time. Blocks are immutable once
// produced.
type SampleBlock struct {
	Timestamp  time.Time
	CenterFreq float64 // Hz
	SampleRate float64 // Hz
	Samples    []complex64
}

// Source abstracts an SDR device producing fixed-size sample blocks.
//
// ReadBlock blocks until a full block is available, the context is
// cancelled, or the read deadline passes, in which case it returns an
// error wrapping ErrAcquisitionGap. Any other error wraps
// ErrDeviceFailure.
type Source interface {
	ReadBlock(ctx context.Context) (*SampleBlock, error)
	SetGain(db float64) error
	SetFrequency(hz float64) error
	Close() error
}
