// Package transcriber sends a finalized capture to the remote transcription
// endpoint and decodes the result.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
	"unicode/utf8"

	"jot/capture"
	"jot/log"
)

// AudioField is the multipart field carrying the audio file.
const AudioField = "audio"

var (
	ErrUnreachable       = errors.New("transcription service unreachable")
	ErrServiceFailure    = errors.New("transcription service failed")
	ErrMalformedResponse = errors.New("malformed transcription response")
)

// ServiceError is a non-2xx response or a 2xx response without a transcript.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("transcription service error %d: %s", e.Status, e.Message)
}

func (e *ServiceError) Unwrap() error { return ErrServiceFailure }

// Result is an immutable transcript. Language is empty when unknown;
// Confidence is meaningful only when HasConfidence is set.
type Result struct {
	Text          string
	Language      string
	Confidence    float64
	HasConfidence bool
	Metrics       *NetworkMetrics
}

type Transcriber interface {
	Transcribe(ctx context.Context, a capture.Audio) (Result, error)
}

const warmTimeout = 5 * time.Second

type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client issues exactly one request per Transcribe call and never retries.
type Client struct {
	cfg    Config
	client *TracedClient
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg, client: NewTracedClient()}
}

// Warm opens a connection to the endpoint ahead of the first upload.
func (c *Client) Warm() {
	ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	defer cancel()
	m, err := c.client.WarmConnection(ctx, c.cfg.URL)
	if err != nil {
		log.Warnf("warming %s: %v", c.cfg.URL, err)
		return
	}
	log.Info(fmt.Sprintf("connection warm in %dms (tls %dms)", m.Total.Milliseconds(), m.TLS.Milliseconds()))
}

// response keeps the optional fields raw so a badly typed one degrades to
// unknown instead of failing the transcription.
type response struct {
	Transcript          *string         `json:"transcript"`
	Language            json.RawMessage `json:"language"`
	LanguageProbability json.RawMessage `json:"language_probability"`
	Error               json.RawMessage `json:"error"`
}

func (c *Client) Transcribe(ctx context.Context, a capture.Audio) (Result, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	body, contentType, err := encodeBody(a)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	log.TranscriptionMetrics(log.NetMetrics{
		AudioLengthS: a.Duration.Seconds(),
		UploadKB:     float64(len(body)) / 1024,
		Format:       a.Format.Name,
		DNSTimeMs:    float64(resp.Metrics.DNS.Milliseconds()),
		TLSTimeMs:    float64(resp.Metrics.TLS.Milliseconds()),
		TTFBMs:       float64(resp.Metrics.TTFB.Milliseconds()),
		TotalTimeMs:  float64(resp.Metrics.Total.Milliseconds()),
		ConnReused:   resp.Metrics.ConnReused,
		Status:       resp.StatusCode,
	})

	res, err := decode(resp.StatusCode, resp.Body)
	if err != nil {
		return Result{}, err
	}
	res.Metrics = resp.Metrics
	return res, nil
}

func encodeBody(a capture.Audio) ([]byte, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	ext := a.Format.Ext
	if ext == "" {
		ext = "bin"
	}
	mime := a.Format.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="recording.%s"`, AudioField, ext))
	h.Set("Content-Type", mime)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(a.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

func decode(status int, body []byte) (Result, error) {
	if status < 200 || status > 299 {
		return Result{}, &ServiceError{Status: status, Message: errorMessage(status, body)}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Result{}, fmt.Errorf("%w: body is not a JSON object", ErrMalformedResponse)
	}
	var r response
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if r.Transcript == nil {
		return Result{}, &ServiceError{Status: status, Message: "response has no transcript"}
	}

	res := Result{Text: strings.TrimSpace(*r.Transcript)}
	if lang, ok := optional[string](r.Language, "language"); ok {
		res.Language = lang
	}
	if p, ok := optional[float64](r.LanguageProbability, "language_probability"); ok {
		res.Confidence = min(max(p, 0), 1)
		res.HasConfidence = true
	}
	return res, nil
}

// optional decodes an optional response field. Absent, null or badly typed
// values report false; the last is logged.
func optional[T any](raw json.RawMessage, field string) (T, bool) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warnf("transcription response: ignoring %s: %v", field, err)
		return v, false
	}
	return v, true
}

func errorMessage(status int, body []byte) string {
	var r response
	if json.Unmarshal(body, &r) == nil {
		if e, ok := optional[string](r.Error, "error"); ok && e != "" {
			return truncate(e, maxMessage)
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return http.StatusText(status)
	}
	return truncate(msg, maxMessage)
}

// maxMessage bounds a service error shown to the user, in bytes.
const maxMessage = 200

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
