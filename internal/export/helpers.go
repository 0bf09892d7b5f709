package export

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"math"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError ignores ErrTxDone: after a successful commit the
// deferred rollback is a no-op, not a failure.
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	cErr := rb.Rollback()
	if cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

// encodePower packs a power row into little-endian float64 bytes.
func encodePower(power []float64) []byte {
	buf := make([]byte, len(power)*8)
	for i, p := range power {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(p))
	}
	return buf
}

// decodePower is the inverse of encodePower.
func decodePower(buf []byte) []float64 {
	power := make([]float64, len(buf)/8)
	for i := range power {
		power[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return power
}
