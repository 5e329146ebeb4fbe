// Package provider talks to the external image-generation APIs.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shouni/go-http-kit/httpkit"
)

const (
	OpenAI    = "openai"
	Together  = "together_ai"
	Fal       = "fal_ai"
	Replicate = "replicate"
)

type Request struct {
	// Model is the provider-side model identifier.
	Model  string
	Prompt string
	Count  int
	Size   int
}

// Image is either inline bytes or a URL to fetch them from.
type Image struct {
	Data   []byte
	Format string
	URL    string
}

type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) ([]Image, error)
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.Code, e.Body)
}

// Permanent reports whether retrying cannot change the outcome.
func (e *StatusError) Permanent() bool {
	return permanentStatus(e.Code)
}

func permanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

// permanent reports whether err is a client error that another attempt cannot fix.
// httpkit classes every non-5xx failure as non-retryable, 429 included; rate limits
// stay retryable here.
func permanent(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Permanent()
	}
	var nr *httpkit.NonRetryableHTTPError
	if errors.As(err, &nr) {
		return permanentStatus(nr.StatusCode)
	}
	return false
}

// ValidKey mirrors the credential check used to decide whether a provider is usable.
func ValidKey(key string) bool {
	return len(strings.TrimSpace(key)) > 10
}

type Settings struct {
	Keys         map[string]string
	Timeout      time.Duration
	MaxRetries   int
	RateInterval time.Duration
	// Client defaults to NewHTTPClient(Timeout).
	Client       httpkit.Requester
}

// NewHTTPClient returns an httpkit client with its own retries disabled; attempts
// are counted by WithRetry so the rate limiter sees each one.
func NewHTTPClient(timeout time.Duration, opts ...httpkit.ClientOption) *httpkit.Client {
	return httpkit.New(timeout, append([]httpkit.ClientOption{httpkit.WithMaxRetries(0)}, opts...)...)
}

type Registry struct {
	generators map[string]Generator
}

func NewRegistry(generators ...Generator) *Registry {
	r := &Registry{generators: make(map[string]Generator)}
	for _, g := range generators {
		r.Register(g)
	}
	return r
}

// FromConfig builds a generator for every provider holding a valid key, each wrapped
// with pacing, retries and a per-call timeout.
func FromConfig(s Settings) *Registry {
	client := s.Client
	if client == nil {
		client = NewHTTPClient(s.Timeout)
	}
	r := NewRegistry()
	for name, key := range s.Keys {
		if !ValidKey(key) {
			log.Printf("Warning: no valid API key for %s, provider disabled", name)
			continue
		}
		var g Generator
		switch name {
		case OpenAI:
			g = NewOpenAI(key, client)
		case Together:
			g = NewTogether(key, client)
		case Fal:
			g = NewFal(key, client)
		case Replicate:
			g = NewReplicate(key, client)
		default:
			log.Printf("Warning: unknown provider %s ignored", name)
			continue
		}
		r.Register(WithRetry(g, s.MaxRetries, s.RateInterval, s.Timeout))
		log.Printf("Initialized %s generator", name)
	}
	return r
}

func (r *Registry) Register(g Generator) {
	r.generators[g.Name()] = g
}

func (r *Registry) Generator(name string) (Generator, bool) {
	g, ok := r.generators[name]
	return g, ok
}

func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	_, ok := r.generators[name]
	return ok
}

func postJSON(ctx context.Context, client httpkit.Requester, provider, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON(client, provider, req, out)
}

func getJSON(ctx context.Context, client httpkit.Requester, provider, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON(client, provider, req, out)
}

func doJSON(client httpkit.Requester, provider string, req *http.Request, out any) error {
	data, err := client.DoRequest(req)
	if err != nil {
		var nr *httpkit.NonRetryableHTTPError
		if errors.As(err, &nr) {
			return &StatusError{Provider: provider, Code: nr.StatusCode, Body: strings.TrimSpace(string(nr.Body))}
		}
		return fmt.Errorf("%s request failed: %w", provider, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}
