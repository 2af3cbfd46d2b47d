// Package audio is the platform capture boundary: device enumeration and
// 16-bit PCM callbacks.
package audio

import (
	"encoding/binary"
	"errors"
	"strings"
	"sync/atomic"
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ErrPermission is returned (wrapped) by a platform that refused access to
// the microphone.
var ErrPermission = errors.New("microphone access denied")

// ErrNoDevice is returned when there is nothing to capture from.
var ErrNoDevice = errors.New("no capture device")

// IsPermissionError reports whether err looks like a platform refusal rather
// than a missing or broken device.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "permission") ||
		strings.Contains(msg, "not authorized")
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	// Gain multiplies samples on backends that deliver int16 frames. Values
	// below 2 leave samples untouched.
	Gain int
}

// callbackSlot holds the current DataCallback. Backends call it from their
// own audio thread while the owner swaps it.
type callbackSlot struct {
	p atomic.Pointer[DataCallback]
}

func (s *callbackSlot) set(cb DataCallback) { s.p.Store(&cb) }
func (s *callbackSlot) clear()              { s.p.Store(nil) }

// deliver hands data to the callback, if any. It reports whether one was set.
func (s *callbackSlot) deliver(data []byte, frames uint32) bool {
	cb := s.p.Load()
	if cb == nil {
		return false
	}
	(*cb)(data, frames)
	return true
}

// pcmBytes encodes samples as little-endian bytes, applying gain with
// clipping.
func pcmBytes(samples []int16, gain int) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s)
		if gain > 1 {
			v = min(max(v*int32(gain), -32768), 32767)
		}
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(v)))
	}
	return data
}

func defaultName(d *DeviceInfo) string {
	if d != nil {
		return d.Name
	}
	return "system default"
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}
