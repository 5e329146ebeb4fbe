package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shouni/go-http-kit/httpkit"
)

type ReplicateGenerator struct {
	BaseURL      string
	PollInterval time.Duration
	apiKey       string
	client       httpkit.Requester
}

func NewReplicate(apiKey string, client httpkit.Requester) *ReplicateGenerator {
	return &ReplicateGenerator{
		BaseURL:      "https://api.replicate.com",
		PollInterval: 2 * time.Second,
		apiKey:       apiKey,
		client:       client,
	}
}

func (g *ReplicateGenerator) Name() string {
	return Replicate
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// Generate runs one prediction per requested image. Predictions that outlast the
// synchronous wait are polled until they settle.
func (g *ReplicateGenerator) Generate(ctx context.Context, req Request) ([]Image, error) {
	var images []Image
	for i := 0; i < max(req.Count, 1); i++ {
		out, err := g.predict(ctx, req)
		if err != nil {
			return images, err
		}
		images = append(images, out...)
	}
	return images, nil
}

func (g *ReplicateGenerator) predict(ctx context.Context, req Request) ([]Image, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + g.apiKey,
		"Prefer":        "wait",
	}
	body := map[string]any{
		"input": map[string]any{
			"prompt":       req.Prompt,
			"aspect_ratio": "1:1",
		},
	}

	var p prediction
	url := fmt.Sprintf("%s/v1/models/%s/predictions", g.BaseURL, req.Model)
	if err := postJSON(ctx, g.client, Replicate, url, headers, body, &p); err != nil {
		return nil, err
	}

	for p.Status != "succeeded" {
		switch p.Status {
		case "failed", "canceled":
			return nil, fmt.Errorf("replicate prediction %s %s: %v", p.ID, p.Status, p.Error)
		}
		if p.URLs.Get == "" {
			return nil, fmt.Errorf("replicate prediction %s has no polling URL", p.ID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.PollInterval):
		}
		if err := getJSON(ctx, g.client, Replicate, p.URLs.Get, headers, &p); err != nil {
			return nil, err
		}
	}
	return outputImages(p.Output)
}

// outputImages accepts both the single-URL and URL-list output shapes.
func outputImages(raw json.RawMessage) ([]Image, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []Image{{URL: single}}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil || len(many) == 0 {
		return nil, fmt.Errorf("replicate prediction returned no output")
	}
	images := make([]Image, 0, len(many))
	for _, u := range many {
		images = append(images, Image{URL: u})
	}
	return images, nil
}
