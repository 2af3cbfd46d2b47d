package encoder

import (
	"fmt"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavEncoder writes 16-bit PCM WAV. The header is patched on Close, so the
// output is only valid afterwards.
type WavEncoder struct {
	tally
	out    memFile
	enc    *wav.Encoder
	format *audio.Format
}

func NewWav() *WavEncoder {
	e := &WavEncoder{
		format: &audio.Format{NumChannels: Channels, SampleRate: SampleRate},
	}
	e.enc = wav.NewEncoder(&e.out, SampleRate, BitsPerSample, Channels, 1)
	return e
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errClosed
	}
	if len(block) == 0 {
		return nil
	}
	data := make([]int, len(block))
	for i, s := range block {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{Format: e.format, Data: data, SourceBitDepth: BitsPerSample}
	if err := e.enc.Write(buf); err != nil {
		return fmt.Errorf("writing wav samples: %w", err)
	}
	e.frames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.frames == 0 {
		// the encoder only writes its header alongside the first samples
		if err := e.enc.Write(&audio.IntBuffer{Format: e.format, Data: []int{}, SourceBitDepth: BitsPerSample}); err != nil {
			return fmt.Errorf("writing wav header: %w", err)
		}
	}
	if err := e.enc.Close(); err != nil {
		return fmt.Errorf("closing wav: %w", err)
	}
	return nil
}

func (e *WavEncoder) Bytes() []byte {
	return e.out.buf
}

func (e *WavEncoder) Format() Format {
	return WAV
}
