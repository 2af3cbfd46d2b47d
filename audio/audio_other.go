//go:build !linux

package audio

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: %w", err)
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	result := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func deviceID(info *DeviceInfo) (malgo.DeviceID, error) {
	var id malgo.DeviceID
	raw, err := hex.DecodeString(info.ID)
	if err != nil || len(raw) > len(id) {
		return id, fmt.Errorf("%w: bad id for %q", ErrNoDevice, info.Name)
	}
	copy(id[:], raw)
	return id, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = config.Channels
	cfg.SampleRate = config.SampleRate

	if device != nil {
		id, err := deviceID(device)
		if err != nil {
			return nil, err
		}
		cfg.Capture.DeviceID = id.Pointer()
	}

	c := &malgoCapture{info: device}
	gain := config.Gain
	onData := func(_, data []byte, frames uint32) {
		// malgo reuses data after the callback returns.
		var buf []byte
		if gain > 1 {
			samples := make([]int16, len(data)/2)
			for i := range samples {
				samples[i] = int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
			}
			buf = pcmBytes(samples, gain)
		} else {
			buf = append([]byte(nil), data...)
		}
		c.cb.deliver(buf, frames)
	}

	dev, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		if IsPermissionError(err) {
			return nil, fmt.Errorf("%w: %w", ErrPermission, err)
		}
		return nil, fmt.Errorf("%w: malgo init device: %w", ErrNoDevice, err)
	}
	c.device = dev
	return c, nil
}

func (m *malgoContext) Close() {
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device *malgo.Device
	info   *DeviceInfo
	cb     callbackSlot

	mu      sync.Mutex
	running bool
}

func (c *malgoCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("malgo: capture already started")
	}
	if err := c.device.Start(); err != nil {
		if IsPermissionError(err) {
			return fmt.Errorf("%w: %w", ErrPermission, err)
		}
		return fmt.Errorf("malgo start: %w", err)
	}
	c.running = true
	return nil
}

func (c *malgoCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		_ = c.device.Stop()
		c.running = false
	}
}

func (c *malgoCapture) Close() {
	c.Stop()
	c.device.Uninit()
}

func (c *malgoCapture) SetCallback(cb DataCallback) { c.cb.set(cb) }
func (c *malgoCapture) ClearCallback()              { c.cb.clear() }
func (c *malgoCapture) DeviceName() string          { return defaultName(c.info) }
