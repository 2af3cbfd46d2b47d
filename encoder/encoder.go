package encoder

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Format describes an encoded container, carried downstream for content-type
// negotiation and file naming.
type Format struct {
	Name string
	MIME string
	Ext  string
}

var (
	FLAC = Format{Name: "flac", MIME: "audio/flac", Ext: "flac"}
	WAV  = Format{Name: "wav", MIME: "audio/wav", Ext: "wav"}
)

// DefaultPreference is tried in order when no preference is configured.
var DefaultPreference = []string{FLAC.Name, WAV.Name}

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	Format() Format
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}

var errClosed = errors.New("encoder closed")

// tally is the bookkeeping shared by the encoders. Callers hold mu while
// touching frames or closed.
type tally struct {
	mu         sync.Mutex
	frames     uint64
	encodeTime time.Duration
	closed     bool
}

func (t *tally) TotalFrames() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

func (t *tally) AddEncodeTime(d time.Duration) {
	t.mu.Lock()
	t.encodeTime += d
	t.mu.Unlock()
}

func (t *tally) EncodeTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encodeTime
}

var constructors = map[string]func() (Encoder, error){
	FLAC.Name: func() (Encoder, error) { return NewFlac() },
	WAV.Name:  func() (Encoder, error) { return NewWav(), nil },
}

// New returns an encoder for the named format.
func New(name string) (Encoder, error) {
	ctor, ok := constructors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown audio format %q", name)
	}
	return ctor()
}

// Select returns the first format in prefs that can be constructed. An empty
// list uses DefaultPreference.
func Select(prefs []string) (Encoder, error) {
	if len(prefs) == 0 {
		prefs = DefaultPreference
	}
	var lastErr error
	for _, name := range prefs {
		enc, err := New(name)
		if err == nil {
			return enc, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no audio format configured")
	}
	return nil, fmt.Errorf("no usable audio format in %v: %w", prefs, lastErr)
}
