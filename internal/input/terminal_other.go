//go:build !linux

package input

import "errors"

// MakeRaw is unsupported outside Linux; keystrokes are read line
// buffered instead.
func MakeRaw(fd int) (restore func() error, err error) {
	return nil, errors.New("raw terminal mode is only supported on linux")
}
