// Package miclevel samples an audio input device and turns the raw
// amplitude into a smoothly animated level for a VU meter.
package miclevel

import (
	"errors"
	"math"
	"strings"
)

const (
	// DefaultDeviceID selects the system default input device.
	DefaultDeviceID = "default"

	filePrefix = "file:"
	peerPrefix = "webrtc:"

	maxInt16 = 32768.0
)

var (
	ErrDeviceNotFound = errors.New("audio input device not found")
	ErrNoPeer         = errors.New("no browser microphone connected")
)

// Device identifies an audio input. Devices are handed out by the device
// list or the browser and are never modified afterwards.
type Device struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default,omitempty"`
}

// FileDevice is a WAV file exposed as an input device.
type FileDevice struct {
	ID   string
	Name string
	Path string
}

func DefaultDevice() Device {
	return Device{ID: DefaultDeviceID, Name: "System default", IsDefault: true}
}

// PeerDevice is the browser microphone of the dialog with the given id.
func PeerDevice(dialogID string) Device {
	return Device{ID: peerPrefix + dialogID, Name: "Browser microphone"}
}

func fileDeviceID(id string) string {
	return filePrefix + id
}

func peakInt16(samples []int16) float64 {
	var peak float64
	for _, s := range samples {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	return min(peak/maxInt16, 1)
}

func peakInt(samples []int, bitDepth int) float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	full := float64(int64(1) << (bitDepth - 1))
	var peak float64
	for _, s := range samples {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	return min(peak/full, 1)
}

func trimScheme(id, prefix string) (string, bool) {
	if !strings.HasPrefix(id, prefix) {
		return "", false
	}
	return strings.TrimPrefix(id, prefix), true
}
