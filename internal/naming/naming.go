// Package naming encodes and decodes the on-disk names of generated images.
//
// Names have the shape {prompt_id}_{model}_{YYYYMMDD}_{HHMMSS}[_{suffix}].{ext}.
// Decoding never fails: unknown shapes degrade to "unknown" fields.
package naming

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	Unknown = "unknown"

	timestampLayout = "20060102_150405"
	createdAtLayout = "2006-01-02 15:04:05"
	maxNameLength   = 50
)

var (
	reUnsafe      = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)
	reUnderscores = regexp.MustCompile(`_+`)
)

// CompoundModels lists model ids that contain an underscore once sanitized.
// The decoder treats the two tokens before the date as one model when they match.
var CompoundModels = map[string]bool{
	"flux_dev":       true,
	"flux_schnell":   true,
	"flux_lora":      true,
	"flux_pro":       true,
	"galleri5_icons": true,
	"ideogram_v2":    true,
	"recraft_v3":     true,
	"recraft_svg":    true,
}

type Metadata struct {
	PromptID  string `json:"prompt_id"`
	Model     string `json:"model"`
	Provider  string `json:"provider"`
	CreatedAt string `json:"created_at"`
	Extension string `json:"extension"`
	Filename  string `json:"filename"`
}

// Sanitize converts any string into a filesystem-safe name component.
func Sanitize(name string) string {
	clean := reUnsafe.ReplaceAllString(name, "_")
	clean = reUnderscores.ReplaceAllString(clean, "_")
	clean = strings.ToLower(strings.Trim(clean, "_"))
	if len(clean) > maxNameLength {
		clean = clean[:maxNameLength]
	}
	return clean
}

func Timestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

func Encode(promptID, model string, ts time.Time, ext string) string {
	return EncodeWithSuffix(promptID, model, ts, ext, "")
}

func EncodeWithSuffix(promptID, model string, ts time.Time, ext, suffix string) string {
	if ext == "" {
		ext = "png"
	}
	cleanModel := Sanitize(strings.NewReplacer("/", "_", "-", "_").Replace(model))
	base := Sanitize(promptID) + "_" + cleanModel + "_" + Timestamp(ts)
	if suffix != "" {
		base += "_" + Sanitize(suffix)
	}
	return base + "." + strings.TrimPrefix(ext, ".")
}

// Stem returns filename without its final extension.
func Stem(filename string) string {
	stem, _ := splitExt(filename)
	return stem
}

func Decode(filename string) Metadata {
	stem, ext := splitExt(filename)
	parts := strings.Split(stem, "_")

	meta := Metadata{
		PromptID:  Unknown,
		Model:     Unknown,
		CreatedAt: Unknown,
		Extension: ext,
		Filename:  filename,
	}

	dateIdx := -1
	for i := 0; i+1 < len(parts); i++ {
		if isDigits(parts[i], 8) && isDigits(parts[i+1], 6) {
			dateIdx = i
			break
		}
	}

	if dateIdx > 0 {
		modelStart := dateIdx - 1
		if dateIdx >= 3 && CompoundModels[parts[dateIdx-2]+"_"+parts[dateIdx-1]] {
			modelStart = dateIdx - 2
		}
		meta.Model = strings.Join(parts[modelStart:dateIdx], "_")
		if modelStart > 0 {
			meta.PromptID = strings.Join(parts[:modelStart], "_")
		}

		raw := parts[dateIdx] + "_" + parts[dateIdx+1]
		if ts, err := time.Parse(timestampLayout, raw); err == nil {
			meta.CreatedAt = ts.Format(createdAtLayout)
		} else {
			meta.CreatedAt = raw
		}
	} else {
		if len(parts) > 0 && parts[0] != "" {
			meta.PromptID = parts[0]
		}
		if len(parts) > 1 && parts[1] != "" {
			meta.Model = parts[1]
		}
	}

	meta.Provider = ProviderForModel(meta.Model)
	return meta
}

func ProviderForModel(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "dalle"):
		return "openai"
	case strings.Contains(m, "flux"):
		if strings.Contains(m, "dev") || strings.Contains(m, "schnell") || strings.Contains(m, "lora") {
			return "together_ai"
		}
		return "fal_ai"
	case strings.Contains(m, "galleri5"), strings.Contains(m, "ideogram"), strings.Contains(m, "recraft"):
		return "replicate"
	default:
		return Unknown
	}
}

func splitExt(filename string) (string, string) {
	if filename == "" {
		return "", ""
	}
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if ext == base {
		// dotfile such as ".png" has no stem of its own
		return base, ""
	}
	return strings.TrimSuffix(base, ext), strings.TrimPrefix(ext, ".")
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
