// Package iplookup resolves client and server IP addresses.
package iplookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"drinkmailer/internal/adapters/http/perf"
)

// Unknown is reported when no address could be determined.
const Unknown = "unknown"

// Public lookup endpoints, tried in this order.
const (
	IpifyURL   = "https://api.ipify.org?format=json"
	HttpbinURL = "https://httpbin.org/ip"
)

// ErrEmptyAddress is returned when a provider answers without an address.
var ErrEmptyAddress = errors.New("empty address in response")

// ForwardedFor returns the first value of the X-Forwarded-For header, or Unknown.
func ForwardedFor(h http.Header) string {
	v := h.Get("X-Forwarded-For")
	if v == "" {
		return Unknown
	}
	first, _, _ := strings.Cut(v, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return Unknown
	}
	return first
}

// Provider returns this host's public address.
type Provider interface {
	Name() string
	Lookup(ctx context.Context) (string, error)
}

// JSONProvider reads one string field from a JSON document at URL.
type JSONProvider struct {
	name  string
	url   string
	field string
	http  *http.Client
	perf  *perf.Collector
}

// NewJSONProvider creates a provider. hc defaults to http.DefaultClient.
func NewJSONProvider(name, url, field string, hc *http.Client, collector *perf.Collector) *JSONProvider {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &JSONProvider{name: name, url: url, field: field, http: hc, perf: collector}
}

// Ipify returns the primary public lookup provider.
func Ipify(hc *http.Client, collector *perf.Collector) *JSONProvider {
	return NewJSONProvider("ipify", IpifyURL, "ip", hc, collector)
}

// Httpbin returns the fallback public lookup provider.
func Httpbin(hc *http.Client, collector *perf.Collector) *JSONProvider {
	return NewJSONProvider("httpbin", HttpbinURL, "origin", hc, collector)
}

// Name identifies the provider in logs.
func (p *JSONProvider) Name() string { return p.name }

// Lookup fetches the document and returns the configured field.
func (p *JSONProvider) Lookup(ctx context.Context) (string, error) {
	start := time.Now()
	status := 0
	defer func() {
		if p.perf != nil {
			p.perf.Record(perf.Entry{
				Kind:       perf.KindUpstream,
				Path:       "iplookup." + p.name,
				StatusCode: status,
				DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
				Timestamp:  start,
			})
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		status = perf.StatusTransportError
		return "", err
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	var doc map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode %s response: %w", p.name, err)
	}
	addr, _ := doc[p.field].(string)
	if addr == "" {
		return "", ErrEmptyAddress
	}
	return addr, nil
}

// Chain tries providers in order and falls back to Unknown.
type Chain struct {
	providers []Provider
}

// NewChain creates a chain over providers.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Resolve returns the first address any provider reports. Every failure is
// logged at WARN; when all fail the result is Unknown. It never errors.
func (c *Chain) Resolve(ctx context.Context) string {
	for _, p := range c.providers {
		addr, err := p.Lookup(ctx)
		if err == nil {
			slog.InfoContext(ctx, "iplookup_event", "event", "resolved", "provider", p.Name(), "ip", addr)
			return addr
		}
		slog.WarnContext(ctx, "iplookup_failed", "provider", p.Name(), "error", err)
	}
	slog.WarnContext(ctx, "iplookup_exhausted", "providers", len(c.providers))
	return Unknown
}
