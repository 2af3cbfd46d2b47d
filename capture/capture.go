// Package capture owns the single active microphone capture and turns its
// PCM fragments into one finalized, encoded buffer.
package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"jot/audio"
	"jot/encoder"
	"jot/log"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrActive            = errors.New("capture already active")
	ErrNotActive         = errors.New("capture not active")
)

// Audio is a finalized capture. Data is never mutated after Stop returns.
type Audio struct {
	Data       []byte
	Format     encoder.Format
	Duration   time.Duration
	Fragments  int
	EncodeTime time.Duration
}

// Seconds is the captured length rounded down to whole seconds.
func (a Audio) Seconds() int {
	return int(a.Duration / time.Second)
}

type Config struct {
	// Formats is the encoder preference list; empty means FLAC then WAV.
	Formats []string
	Device  *audio.DeviceInfo
	// Gain is passed to the audio backend; 0 or 1 records unamplified.
	Gain int
}

// Session wraps an audio.Context and allows one capture at a time.
type Session struct {
	actx audio.Context
	cfg  Config

	mu     sync.Mutex
	active bool
	dev    audio.CaptureDevice
	enc    encoder.Encoder

	blockChan  chan []int16
	encodeDone chan struct{}
	encodeErr  error

	bufMu     sync.Mutex
	sampleBuf []int16
	fragments int
	feeding   bool
}

func NewSession(actx audio.Context, cfg Config) *Session {
	return &Session{actx: actx, cfg: cfg}
}

// Format is the encoding of the current or last capture.
func (s *Session) Format() encoder.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return encoder.Format{}
	}
	return s.enc.Format()
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start opens the device and begins encoding. Failures are ErrPermissionDenied
// or ErrDeviceUnavailable wrapping the platform cause.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return ErrActive
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	enc, err := encoder.Select(s.cfg.Formats)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	dev, err := s.actx.NewCapture(s.cfg.Device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
		Gain:       s.cfg.Gain,
	})
	if err != nil {
		return classify(err)
	}

	s.enc = enc
	s.blockChan = make(chan []int16, 64)
	s.encodeDone = make(chan struct{})
	s.encodeErr = nil
	s.bufMu.Lock()
	s.sampleBuf = nil
	s.fragments = 0
	s.feeding = true
	s.bufMu.Unlock()

	go s.encodeLoop(enc, s.blockChan, s.encodeDone)

	dev.SetCallback(func(data []byte, _ uint32) {
		s.feed(data)
	})
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		s.drain()
		return classify(err)
	}

	s.dev = dev
	s.active = true
	log.Info(fmt.Sprintf("capture started device=%s format=%s", dev.DeviceName(), enc.Format().Name))
	return nil
}

func classify(err error) error {
	if audio.IsPermissionError(err) {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
}

func (s *Session) encodeLoop(enc encoder.Encoder, blocks <-chan []int16, done chan<- struct{}) {
	defer close(done)
	for block := range blocks {
		start := time.Now()
		if err := enc.EncodeBlock(block); err != nil && s.encodeErr == nil {
			s.encodeErr = err
		}
		enc.AddEncodeTime(time.Since(start))
	}
}

// feed runs on the device callback goroutine.
func (s *Session) feed(pcm []byte) {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	if !s.feeding {
		return
	}
	s.fragments++
	for i := 0; i+1 < len(pcm); i += 2 {
		s.sampleBuf = append(s.sampleBuf, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	for len(s.sampleBuf) >= encoder.BlockSize {
		block := make([]int16, encoder.BlockSize)
		copy(block, s.sampleBuf[:encoder.BlockSize])
		s.sampleBuf = s.sampleBuf[encoder.BlockSize:]
		s.blockChan <- block
	}
}

// drain flushes buffered samples and waits for the encoder goroutine.
// Callers hold s.mu.
func (s *Session) drain() int {
	s.bufMu.Lock()
	s.feeding = false
	if len(s.sampleBuf) > 0 {
		partial := make([]int16, len(s.sampleBuf))
		copy(partial, s.sampleBuf)
		s.blockChan <- partial
		s.sampleBuf = nil
	}
	fragments := s.fragments
	s.bufMu.Unlock()

	close(s.blockChan)
	<-s.encodeDone
	return fragments
}

// release stops and closes the device. Callers hold s.mu.
func (s *Session) release() {
	if s.dev == nil {
		return
	}
	s.dev.Stop()
	s.dev.ClearCallback()
	s.dev.Close()
	s.dev = nil
}

// Stop releases the device and returns the finalized audio. The device is
// released even when encoding failed.
func (s *Session) Stop() (Audio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return Audio{}, ErrNotActive
	}
	s.active = false
	s.release()
	fragments := s.drain()

	enc := s.enc
	if s.encodeErr != nil {
		return Audio{}, fmt.Errorf("encoding audio: %w", s.encodeErr)
	}
	if err := enc.Close(); err != nil {
		return Audio{}, fmt.Errorf("finalizing audio: %w", err)
	}

	data := make([]byte, len(enc.Bytes()))
	copy(data, enc.Bytes())
	a := Audio{
		Data:       data,
		Format:     enc.Format(),
		Duration:   time.Duration(enc.TotalFrames()) * time.Second / encoder.SampleRate,
		Fragments:  fragments,
		EncodeTime: enc.EncodeTime(),
	}
	log.Info(fmt.Sprintf("capture finalized format=%s bytes=%d duration=%s fragments=%d",
		a.Format.Name, len(a.Data), a.Duration, a.Fragments))
	return a, nil
}

// Abort releases the device and drops any buffered audio. It is a no-op when
// nothing is active.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.active = false
	s.release()
	s.drain()
	s.enc.Close()
	log.Info("capture aborted")
}
