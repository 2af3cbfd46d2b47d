package transcriber

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// maxResponse bounds how much of a service reply is read.
const maxResponse = 1 << 20

// NetworkMetrics is the httptrace timing of one request.
type NetworkMetrics struct {
	DNS        time.Duration
	ConnWait   time.Duration
	TCP        time.Duration
	TLS        time.Duration
	ReqHeaders time.Duration
	ReqBody    time.Duration
	TTFB       time.Duration
	Download   time.Duration
	Total      time.Duration
	ConnReused bool
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

// tracer fills a NetworkMetrics from httptrace hooks. Each phase is measured
// from the end of the previous one.
type tracer struct {
	m NetworkMetrics

	getConn, dns, tcp, tlsStart time.Time
	gotConn, headers, wrote     time.Time
	firstByte                   time.Time
}

func (t *tracer) hooks() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(string) { t.getConn = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			t.gotConn = time.Now()
			t.m.ConnWait = t.gotConn.Sub(t.getConn)
			t.m.ConnReused = info.Reused
		},
		DNSStart:          func(httptrace.DNSStartInfo) { t.dns = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { t.m.DNS = time.Since(t.dns) },
		ConnectStart:      func(string, string) { t.tcp = time.Now() },
		ConnectDone:       func(string, string, error) { t.m.TCP = time.Since(t.tcp) },
		TLSHandshakeStart: func() { t.tlsStart = time.Now() },
		TLSHandshakeDone:  func(tls.ConnectionState, error) { t.m.TLS = time.Since(t.tlsStart) },
		WroteHeaders: func() {
			t.headers = time.Now()
			t.m.ReqHeaders = t.headers.Sub(t.gotConn)
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			t.wrote = time.Now()
			t.m.ReqBody = t.wrote.Sub(t.headers)
		},
		GotFirstResponseByte: func() {
			t.firstByte = time.Now()
			t.m.TTFB = t.firstByte.Sub(t.wrote)
		},
	}
}

func (t *tracer) attach(req *http.Request) *http.Request {
	return req.WithContext(httptrace.WithClientTrace(req.Context(), t.hooks()))
}

// TracedClient keeps a small pool of connections to the transcription
// service and times every request on it.
type TracedClient struct {
	client *http.Client
}

func NewTracedClient() *TracedClient {
	return &TracedClient{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type TracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

// Do sends req and reads at most maxResponse bytes of the reply.
func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	var t tracer
	start := time.Now()
	resp, err := c.client.Do(t.attach(req))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	t.m.Download = time.Since(t.firstByte)
	t.m.Total = time.Since(start)

	return &TracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    &t.m,
	}, nil
}

// WarmConnection issues a HEAD so the first upload can reuse an open
// connection. Any status counts as warm.
func (c *TracedClient) WarmConnection(ctx context.Context, url string) (*NetworkMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	return resp.Metrics, nil
}
