package provider

import (
	"context"
	"strings"

	"github.com/shouni/go-http-kit/httpkit"
)

type TogetherGenerator struct {
	BaseURL string
	apiKey  string
	client  httpkit.Requester
}

func NewTogether(apiKey string, client httpkit.Requester) *TogetherGenerator {
	return &TogetherGenerator{BaseURL: "https://api.together.xyz", apiKey: apiKey, client: client}
}

func (g *TogetherGenerator) Name() string {
	return Together
}

func (g *TogetherGenerator) Generate(ctx context.Context, req Request) ([]Image, error) {
	size := max(req.Size, 1024)
	steps := 28
	if strings.Contains(strings.ToLower(req.Model), "schnell") {
		steps = 4
	}
	body := map[string]any{
		"model":           req.Model,
		"prompt":          req.Prompt,
		"n":               max(req.Count, 1),
		"width":           size,
		"height":          size,
		"steps":           steps,
		"response_format": "b64_json",
	}
	var resp imagesResponse
	headers := map[string]string{"Authorization": "Bearer " + g.apiKey}
	if err := postJSON(ctx, g.client, Together, g.BaseURL+"/v1/images/generations", headers, body, &resp); err != nil {
		return nil, err
	}
	return decodeImages(resp)
}
