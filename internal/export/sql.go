package export

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      created_at,
                      center_freq,
                      sample_rate,
                      fft_size,
                      window,
                      gain,
                      color_scheme,
                      power_min,
                      power_max)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertRowSQL = `
INSERT INTO rows (session_id,
                  position,
                  timestamp,
                  freq_start,
                  bin_width,
                  power)
VALUES `

	insertAnnotationSQL = `
INSERT INTO annotations (session_id,
                         timestamp,
                         frequency,
                         row,
                         power,
                         note)
VALUES (?, ?, ?, ?, ?, ?)`

	insertMarkerSQL = `
INSERT INTO markers (session_id,
                     slot,
                     frequency)
VALUES (?, ?, ?)`
)

//go:embed schema.sql
var schemaSQL string
