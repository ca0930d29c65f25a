package ha

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"paneldash/internal/config"
	"paneldash/internal/entity"
	"paneldash/internal/mem"
	"paneldash/internal/metrics"
	"paneldash/internal/watchdog"

	"github.com/carlmjohnson/versioninfo"
	"go.uber.org/zap"
)

const (
	defaultTimeout         = 8 * time.Second
	defaultMaxResponseSize = 128 * 1024
	defaultRetryCount      = 3

	postRetryDelay = 500 * time.Millisecond
	getRetryDelay  = 1 * time.Second
)

// LinkCheck reports whether the station is associated. The client checks
// it before touching the wire.
type LinkCheck func() bool

// Client issues authenticated requests against the home-automation REST
// API. GETs reuse a keep-alive client bound to the base URL; POSTs get a
// fresh client per call so a rare service post never inherits a wedged
// connection.
type Client struct {
	baseURL    string
	authHeader string
	userAgent  string
	timeout    time.Duration
	maxSize    int
	retries    int

	linkUp    LinkCheck
	keepalive watchdog.Keepalive
	onRetry   func()
	alloc     mem.Allocator
	logger    *zap.Logger

	mu        sync.Mutex
	getClient *http.Client
}

type Option func(*Client)

func WithLinkCheck(f LinkCheck) Option {
	return func(c *Client) { c.linkUp = f }
}

func WithKeepalive(k watchdog.Keepalive) Option {
	return func(c *Client) { c.keepalive = k }
}

// WithRetryNotify registers a hook invoked before every retry attempt.
func WithRetryNotify(f func()) Option {
	return func(c *Client) { c.onRetry = f }
}

func WithAllocator(a mem.Allocator) Option {
	return func(c *Client) { c.alloc = a }
}

func NewClient(cfg config.HAConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrNotConfigured)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrNotConfigured)
	}
	c := &Client{
		baseURL:    cfg.BaseURL(),
		authHeader: "Bearer " + cfg.Token,
		userAgent:  "paneldash/" + versioninfo.Short(),
		timeout:    defaultTimeout,
		maxSize:    defaultMaxResponseSize,
		retries:    defaultRetryCount,
		logger:     logger.With(zap.String("component", "ha_client")),
	}
	if cfg.RequestTimeoutMillis > 0 {
		c.timeout = time.Duration(cfg.RequestTimeoutMillis) * time.Millisecond
	}
	if cfg.MaxResponseSize > 0 {
		c.maxSize = cfg.MaxResponseSize
	}
	if cfg.RetryCount > 0 {
		c.retries = cfg.RetryCount
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.alloc == nil {
		c.alloc = mem.NewExternal(0)
	}
	return c, nil
}

// GetEntity fetches and decodes a single entity state.
func (c *Client) GetEntity(id string) (entity.State, error) {
	body, err := c.doGET("/states/" + id)
	if err != nil {
		return entity.State{}, err
	}
	defer c.alloc.Put(body)
	return entity.ParseSingle(body)
}

// GetAllEntities fetches the bulk states array as a raw payload. The
// caller owns the returned buffer and must release it via ReleaseBody.
func (c *Client) GetAllEntities() ([]byte, error) {
	body, err := c.doGET("/states")
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		c.alloc.Put(body)
		return nil, ErrEmptyResponse
	}
	if trimmed[len(trimmed)-1] != ']' {
		c.logger.Warn("bulk response does not end with ']', likely truncated",
			zap.Int("size", len(body)))
	}
	return body, nil
}

// ReleaseBody returns a payload obtained from GetAllEntities to its tier.
func (c *Client) ReleaseBody(body []byte) {
	c.alloc.Put(body)
}

// CallService posts /services/<domain>/<service> with the entity id and
// any extra fields in the JSON body.
func (c *Client) CallService(domain, service, entityID string, extra map[string]any) error {
	payload := map[string]any{"entity_id": entityID}
	for k, v := range extra {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.doPOST(fmt.Sprintf("/services/%s/%s", domain, service), body)
}

func (c *Client) TurnOn(entityID string) error {
	return c.CallService("switch", "turn_on", entityID, nil)
}

func (c *Client) TurnOff(entityID string) error {
	return c.CallService("switch", "turn_off", entityID, nil)
}

func (c *Client) TriggerScene(sceneID string) error {
	return c.CallService("scene", "turn_on", sceneID, nil)
}

func (c *Client) feed() {
	if c.keepalive != nil {
		c.keepalive()
	}
}

func (c *Client) precheck() error {
	if c.linkUp != nil && !c.linkUp() {
		return ErrNotAssociated
	}
	return nil
}

func (c *Client) notifyRetry() {
	if c.onRetry != nil {
		c.onRetry()
	}
}

func countOutcome(method string, err error) {
	outcome := "ok"
	switch Classify(err) {
	case KindTransport:
		outcome = "transport"
	case KindProtocol:
		outcome = "protocol"
	case KindPrecondition:
		outcome = "precondition"
	}
	metrics.HTTPRequestsTotal.WithLabelValues(method, outcome).Inc()
}

// keepAliveClient returns the persistent GET client for the current base
// URL, creating it on first use.
func (c *Client) keepAliveClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getClient == nil {
		c.getClient = &http.Client{
			Timeout: c.timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 1,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return c.getClient
}

// teardownKeepAlive drops the persistent client so the next GET rebuilds
// its connection from scratch.
func (c *Client) teardownKeepAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getClient != nil {
		c.getClient.CloseIdleConnections()
		c.getClient = nil
	}
}

func (c *Client) doGET(path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			c.notifyRetry()
			time.Sleep(getRetryDelay)
		}
		if err := c.precheck(); err != nil {
			return nil, err
		}
		body, err := c.attempt(c.keepAliveClient(), http.MethodGet, path, nil)
		countOutcome(http.MethodGet, err)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if Classify(err) != KindTransport {
			return nil, err
		}
		c.teardownKeepAlive()
		c.logger.Warn("GET failed", zap.String("path", path), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, lastErr
}

func (c *Client) doPOST(path string, payload []byte) error {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			c.notifyRetry()
			time.Sleep(postRetryDelay)
		}
		if err := c.precheck(); err != nil {
			return err
		}
		client := &http.Client{Timeout: c.timeout}
		body, err := c.attempt(client, http.MethodPost, path, payload)
		countOutcome(http.MethodPost, err)
		client.CloseIdleConnections()
		if err == nil {
			c.alloc.Put(body)
			return nil
		}
		lastErr = err
		if Classify(err) != KindTransport {
			return err
		}
		c.logger.Warn("POST failed", zap.String("path", path), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return lastErr
}

// attempt issues exactly one request, feeding the watchdog on both sides
// and capturing at most maxSize bytes of the response body.
func (c *Client) attempt(client *http.Client, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("User-Agent", c.userAgent)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	c.feed()
	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	c.feed()

	if err != nil {
		if strings.Contains(err.Error(), "Client.Timeout") {
			c.logger.Warn("request hit budget", zap.String("path", path), zap.Duration("elapsed", elapsed))
		}
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if elapsed > c.timeout/2 {
		c.logger.Warn("slow request", zap.String("path", path), zap.Duration("elapsed", elapsed),
			zap.Duration("budget", c.timeout))
	}

	body, err := c.capture(resp.Body)
	c.feed()
	if err != nil {
		return nil, &TransportError{Op: "read " + path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		pe := &ProtocolError{StatusCode: resp.StatusCode, Body: string(body)}
		c.alloc.Put(body)
		return nil, pe
	}
	return body, nil
}

// capture reads a response into an external-tier buffer, capped at
// maxSize. Overflow drops the surplus with a warning.
func (c *Client) capture(r io.Reader) ([]byte, error) {
	buf := c.alloc.Get(c.maxSize)
	if buf == nil {
		return nil, mem.ErrExhausted(c.alloc, c.maxSize)
	}
	total := 0
	for total < c.maxSize {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf[:total], nil
			}
			c.alloc.Put(buf)
			return nil, err
		}
	}
	// cap reached; drain and drop the surplus
	dropped, _ := io.Copy(io.Discard, r)
	if dropped > 0 {
		c.logger.Warn("response exceeds capture buffer, surplus dropped",
			zap.Int("cap", c.maxSize), zap.Int64("dropped", dropped))
	}
	return buf[:total], nil
}
