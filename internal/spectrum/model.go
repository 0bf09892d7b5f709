package spectrum

import "time"

// Row represents a single power spectrum computed from one block of
// baseband samples. Power values are in dB, one per frequency bin,
// ordered from the lowest to the highest frequency of the span.
type Row struct {
	Timestamp  time.Time `json:"timestamp"`  // When the source block was captured
	CenterFreq float64   `json:"centerFreq"` // Tuned center frequency in Hz
	SampleRate float64   `json:"sampleRate"` // Sample rate in Hz at capture time
	Power      []float64 `json:"power"`      // Power per bin in dB
}

// Bins returns the number of frequency bins in the row.
func (r *Row) Bins() int {
	return len(r.Power)
}

// FrequencyStart returns the frequency of the first bin in Hz.
func (r *Row) FrequencyStart() float64 {
	return r.CenterFreq - r.SampleRate/2
}

// FrequencyEnd returns the frequency just past the last bin in Hz.
func (r *Row) FrequencyEnd() float64 {
	return r.CenterFreq + r.SampleRate/2
}

// BinWidth returns the width of a single frequency bin in Hz.
func (r *Row) BinWidth() float64 {
	if len(r.Power) == 0 {
		return 0
	}
	return r.SampleRate / float64(len(r.Power))
}

// Clone returns a deep copy of the row. Rows handed to the waterfall
// buffer are treated as immutable; callers that want to keep mutating
// a power slice must clone first.
func (r *Row) Clone() *Row {
	power := make([]float64, len(r.Power))
	copy(power, r.Power)
	return &Row{
		Timestamp:  r.Timestamp,
		CenterFreq: r.CenterFreq,
		SampleRate: r.SampleRate,
		Power:      power,
	}
}

// Marker is a saved frequency slot. Slots are written by the marker-set
// commands and recalled to move the cursor.
type Marker struct {
	Frequency float64   `json:"frequency"` // Marked frequency in Hz
	SetAt     time.Time `json:"setAt"`     // When the slot was last written
}

// Annotation is a timestamped free-text note pinned to a waterfall row.
// Annotations are append-only; once created they are only rendered and
// exported, never mutated.
type Annotation struct {
	Timestamp time.Time `json:"timestamp"` // Creation time
	Frequency float64   `json:"frequency"` // Cursor frequency at creation in Hz
	Row       int64     `json:"row"`       // Pipeline row counter at creation
	Power     float64   `json:"power"`     // Power under the cursor at creation in dB
	Note      string    `json:"note"`      // Free text entered by the operator
}
