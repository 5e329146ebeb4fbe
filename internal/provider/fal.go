package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/shouni/go-http-kit/httpkit"
)

type FalGenerator struct {
	BaseURL string
	apiKey  string
	client  httpkit.Requester
}

func NewFal(apiKey string, client httpkit.Requester) *FalGenerator {
	return &FalGenerator{BaseURL: "https://fal.run", apiKey: apiKey, client: client}
}

func (g *FalGenerator) Name() string {
	return Fal
}

func (g *FalGenerator) Generate(ctx context.Context, req Request) ([]Image, error) {
	body := map[string]any{
		"prompt":     req.Prompt,
		"num_images": max(req.Count, 1),
		"image_size": "square_hd",
	}
	var resp struct {
		Images []struct {
			URL         string `json:"url"`
			ContentType string `json:"content_type"`
		} `json:"images"`
	}
	headers := map[string]string{"Authorization": "Key " + g.apiKey}
	url := g.BaseURL + "/" + strings.TrimPrefix(req.Model, "/")
	if err := postJSON(ctx, g.client, Fal, url, headers, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("fal_ai response contained no images")
	}

	images := make([]Image, 0, len(resp.Images))
	for _, img := range resp.Images {
		images = append(images, Image{URL: img.URL, Format: allowedContentTypes[img.ContentType]})
	}
	return images, nil
}
