package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shouni/go-http-kit/httpkit"
)

const maxImageSize = 20 * 1024 * 1024 // 20 MB

var allowedContentTypes = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
}

// Fetch returns the bytes and file extension of a generated image, downloading it
// when the provider only returned a URL.
func Fetch(ctx context.Context, client httpkit.Downloader, img Image) ([]byte, string, error) {
	if len(img.Data) > 0 {
		format := img.Format
		if format == "" {
			format = DetectFormat(img.Data)
		}
		return img.Data, format, nil
	}
	if img.URL == "" {
		return nil, "", fmt.Errorf("provider returned neither data nor URL")
	}
	if strings.HasPrefix(img.URL, "data:") {
		return decodeDataURL(img.URL)
	}
	return Download(ctx, client, img.URL)
}

// Download streams url through client, rejecting bodies over maxImageSize and
// anything that does not sniff as an image.
func Download(ctx context.Context, client httpkit.Downloader, url string) ([]byte, string, error) {
	var data []byte
	err := client.FetchStream(ctx, url, func(r io.Reader) error {
		lr := &io.LimitedReader{R: r, N: maxImageSize + 1}
		var err error
		if data, err = io.ReadAll(lr); err != nil {
			return err
		}
		if lr.N <= 0 {
			return errors.New("file too large")
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", url, err)
	}

	ext := DetectFormat(data)
	if ext == "" {
		return nil, "", fmt.Errorf("download %s: invalid content type %q", url, http.DetectContentType(data))
	}
	return data, ext, nil
}

// DetectFormat sniffs an image extension from its bytes. Unknown content yields "".
func DetectFormat(data []byte) string {
	ct := http.DetectContentType(data)
	if ext, ok := allowedContentTypes[strings.Split(ct, ";")[0]]; ok {
		return ext
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.Contains(head, []byte("<svg")) {
		return "svg"
	}
	return ""
}

func decodeDataURL(url string) ([]byte, string, error) {
	comma := strings.IndexByte(url, ',')
	if comma < 0 || !strings.Contains(url[:comma], ";base64") {
		return nil, "", fmt.Errorf("unsupported data URL")
	}
	data, err := base64.StdEncoding.DecodeString(url[comma+1:])
	if err != nil {
		return nil, "", fmt.Errorf("decode data URL: %w", err)
	}
	ext := DetectFormat(data)
	if ext == "" {
		return nil, "", fmt.Errorf("data URL is not an image")
	}
	return data, ext, nil
}
