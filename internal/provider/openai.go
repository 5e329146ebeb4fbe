package provider

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/shouni/go-http-kit/httpkit"
)

type OpenAIGenerator struct {
	BaseURL string
	apiKey  string
	client  httpkit.Requester
}

func NewOpenAI(apiKey string, client httpkit.Requester) *OpenAIGenerator {
	return &OpenAIGenerator{BaseURL: "https://api.openai.com", apiKey: apiKey, client: client}
}

func (g *OpenAIGenerator) Name() string {
	return OpenAI
}

type imagesResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// Generate issues one request per image; dall-e-3 only accepts n=1.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) ([]Image, error) {
	count := max(req.Count, 1)
	size := max(req.Size, 1024)
	headers := map[string]string{"Authorization": "Bearer " + g.apiKey}

	var images []Image
	for i := 0; i < count; i++ {
		body := map[string]any{
			"model":           req.Model,
			"prompt":          req.Prompt,
			"n":               1,
			"size":            fmt.Sprintf("%dx%d", size, size),
			"quality":         "standard",
			"response_format": "b64_json",
		}
		var resp imagesResponse
		if err := postJSON(ctx, g.client, OpenAI, g.BaseURL+"/v1/images/generations", headers, body, &resp); err != nil {
			return images, err
		}
		out, err := decodeImages(resp)
		if err != nil {
			return images, err
		}
		images = append(images, out...)
	}
	return images, nil
}

func decodeImages(resp imagesResponse) ([]Image, error) {
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("response contained no images")
	}
	images := make([]Image, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.B64JSON != "" {
			data, err := base64.StdEncoding.DecodeString(d.B64JSON)
			if err != nil {
				return nil, fmt.Errorf("decode b64_json: %w", err)
			}
			images = append(images, Image{Data: data})
			continue
		}
		images = append(images, Image{URL: d.URL})
	}
	return images, nil
}
