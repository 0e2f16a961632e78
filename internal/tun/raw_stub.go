//go:build !linux

package tun

import "errors"

// The raw backend talks to the Linux tunnel control node; other platforms
// only have the assisted backend.
func openRaw(Config) (Device, error) {
	return nil, errors.New("raw tun backend is only available on linux")
}
