// Package pce talks to the Illumio policy compute engine REST API (v2).
package pce

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/crucial707/rule-scheduler/internal/config"
)

const (
	apiPrefix      = "/api/v2"
	maxErrorBody   = 512
	defaultTimeout = 15 * time.Second
)

// Client is safe for concurrent use. Apply swaps credentials at runtime.
type Client struct {
	mu      sync.RWMutex
	cfg     config.PCEConfig
	http    *http.Client
	limiter *rate.Limiter

	log    zerolog.Logger
	labels labelCache
}

// New builds a client for cfg. Missing credentials are reported by Ready, not here.
func New(cfg config.PCEConfig, log zerolog.Logger) *Client {
	c := &Client{log: log.With().Str("component", "pce").Logger()}
	c.Apply(cfg)
	return c
}

// Apply replaces the connection settings and drops cached labels.
func (c *Client) Apply(cfg config.PCEConfig) {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // PCE_INSECURE_TLS
	}

	c.mu.Lock()
	c.cfg = cfg
	c.http = &http.Client{Timeout: timeout, Transport: transport}
	c.limiter = newLimiter(cfg.RatePerMinute)
	c.mu.Unlock()
	c.labels.reset()
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
}

// Ready reports config.ErrNotReady when credentials are incomplete.
func (c *Client) Ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Ready()
}

func (c *Client) orgPath(suffix string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return "/orgs/" + c.cfg.OrgID + suffix
}

// do sends one request. path is an href or org-relative path starting with
// "/orgs/". A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	c.mu.RLock()
	cfg, hc, limiter := c.cfg, c.http, c.limiter
	c.mu.RUnlock()

	if err := cfg.Ready(); err != nil {
		return err
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, path, err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("pce: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.URL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("pce: build %s %s: %w", method, path, err)
	}
	req.SetBasicAuth(cfg.APIKey, cfg.APISecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("pce: %s %s: %w", method, path, ctx.Err())
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("pce request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pce: decode %s %s: %w", method, path, err)
	}
	return nil
}
