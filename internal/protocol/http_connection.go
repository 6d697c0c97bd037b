// internal/protocol/http_connection.go
package protocol

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"labware-service/internal/model"
)

// HTTPConnection talks to a device exposing a REST API. There is no
// listener: every Transmit is one round trip and Receive hands back its body.
type HTTPConnection struct {
	cfg     Config
	codec   *Codec
	baseURL *url.URL
	logger  *zap.Logger

	mu      sync.Mutex
	client  *http.Client
	body    []byte
	headers map[string]string
	pending bool

	pacer *commandPacer
	stats *connectionStats
}

// NewHTTPConnection creates an HTTP connection; the session and base URL
// are built by Open
func NewHTTPConnection(cfg Config, logger *zap.Logger) (*HTTPConnection, error) {
	codec, err := NewCodec(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("protocol", "http"))
	return &HTTPConnection{
		cfg:    cfg,
		codec:  codec,
		logger: logger,
		pacer:  &commandPacer{delay: cfg.CommandDelay, logger: logger},
		stats:  &connectionStats{},
	}, nil
}

// BaseURL builds schema://address[:port]/ with the schema stripped of ':' and '/'
func BaseURL(cfg Config) (*url.URL, error) {
	schema := strings.Trim(cfg.Schema, ":/")
	if schema == "" {
		schema = "http"
	}
	host := cfg.Address
	if cfg.Port != "" {
		host = net.JoinHostPort(cfg.Address, cfg.Port)
	}
	base, err := url.Parse(schema + "://" + host + "/")
	if err != nil {
		return nil, connectionError("invalid base URL for %s: %v", host, err)
	}
	return base, nil
}

// Open creates the session with credentials, TLS policy and default headers
func (hc *HTTPConnection) Open(ctx context.Context) error {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if hc.client != nil {
		hc.logger.Warn("Session is already open")
		return nil
	}
	if err := hc.cfg.require("address"); err != nil {
		return err
	}
	base, err := BaseURL(hc.cfg)
	if err != nil {
		return err
	}
	hc.baseURL = base
	hc.logger.Debug("Constructed base URL", zap.String("base_url", base.String()))

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !hc.cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	hc.client = &http.Client{
		Transport: transport,
		Timeout:   hc.cfg.TransmitTimeout,
	}
	hc.body = nil
	hc.headers = nil
	hc.pending = false
	hc.pacer.reset()
	hc.stats.touch()

	hc.logger.Info("Session initialized", zap.String("base_url", base.String()))
	return nil
}

// Close drops the session
func (hc *HTTPConnection) Close() error {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if hc.client == nil {
		hc.logger.Warn("Trying to close a session that is not open")
		return nil
	}
	hc.client.CloseIdleConnections()
	hc.client = nil
	hc.logger.Info("Session closed")
	return nil
}

// IsOpen is true once a session exists; the protocol itself is stateless
func (hc *HTTPConnection) IsOpen() bool {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.client != nil
}

// Transmit issues a single request and caches the response
func (hc *HTTPConnection) Transmit(ctx context.Context, msg Message) error {
	hc.mu.Lock()
	client, base := hc.client, hc.baseURL
	hc.mu.Unlock()

	if client == nil {
		return connectionError("no session to %s", hc.cfg.Address)
	}

	endpoint, err := url.Parse(strings.TrimPrefix(msg.Endpoint, "/"))
	if err != nil {
		return protocolError("invalid endpoint %q: %v", msg.Endpoint, err)
	}
	target := base.ResolveReference(endpoint)
	method := strings.ToUpper(msg.Method)
	if method == "" {
		method = http.MethodGet
	}

	var payload io.Reader
	if msg.Data != "" {
		encoded, err := hc.codec.Encode(msg.Data)
		if err != nil {
			return err
		}
		payload = strings.NewReader(string(encoded))
	}

	hc.logger.Debug("Invoking endpoint",
		zap.String("url", target.String()),
		zap.String("method", method),
		zap.String("data", msg.Data),
	)

	var resp *http.Response
	err = hc.pacer.do(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, hc.cfg.TransmitTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, method, target.String(), payload)
		if err != nil {
			return protocolError("can't build request: %v", err)
		}
		if hc.cfg.User != "" {
			req.SetBasicAuth(hc.cfg.User, hc.cfg.Password)
		}
		for key, value := range hc.cfg.Headers {
			req.Header.Set(key, value)
		}

		resp, err = client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		headers := make(map[string]string, len(resp.Header))
		for key := range resp.Header {
			headers[key] = resp.Header.Get(key)
		}
		hc.logger.Debug("Reply headers", zap.Any("headers", headers))

		if resp.StatusCode >= http.StatusBadRequest {
			return protocolError("server replied with HTTP code %d (%s)", resp.StatusCode, string(body))
		}

		hc.mu.Lock()
		hc.body = body
		hc.headers = headers
		hc.pending = true
		hc.mu.Unlock()

		hc.stats.bytesRead.Add(int64(len(body)))
		return nil
	})
	if err != nil {
		return hc.classify(err, target.String())
	}

	hc.stats.transmits.Add(1)
	hc.stats.bytesWritten.Add(int64(len(msg.Data)))
	hc.stats.touch()
	return nil
}

func (hc *HTTPConnection) classify(err error, target string) error {
	if errors.Is(err, ErrConnection) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		hc.stats.timeouts.Add(1)
		return wrapConnectionError(ErrConnectionTimeout, err, "can't reach %s", target)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return wrapConnectionError(ErrConnection, err, "request to %s failed", target)
}

// Receive decodes the cached response body into a json reply carrying the
// response headers as parameters
func (hc *HTTPConnection) Receive(ctx context.Context, retries int) (*model.Reply, error) {
	hc.mu.Lock()
	body, headers, pending := hc.body, hc.headers, hc.pending
	hc.pending = false
	hc.mu.Unlock()

	if !pending {
		hc.logger.Warn("Receive called without a preceding request")
	}

	text, err := hc.codec.Decode(body)
	if err != nil {
		return nil, protocolError("can't decode device reply: %v", err)
	}

	hc.stats.replies.Add(1)
	return &model.Reply{
		Body:        text,
		ContentType: model.ContentTypeJSON,
		Parameters:  headers,
	}, nil
}

// ResetBuffer forgets the cached response
func (hc *HTTPConnection) ResetBuffer() {
	hc.mu.Lock()
	hc.body = nil
	hc.headers = nil
	hc.pending = false
	hc.mu.Unlock()
}

func (hc *HTTPConnection) Mode() model.ConnectionMode {
	return model.ConnectionModeHTTP
}

func (hc *HTTPConnection) Config() Config {
	return hc.cfg
}

func (hc *HTTPConnection) Stats() model.ConnectionStats {
	return hc.stats.snapshot(hc.IsOpen())
}
