package naming

import (
	"strings"
	"testing"
	"time"
)

func TestDecode_ParsesGeneratedName(t *testing.T) {
	meta := Decode("circuit_orb_dalle3_20250619_172354.png")

	if meta.PromptID != "circuit_orb" {
		t.Fatalf("expected prompt_id circuit_orb, got %q", meta.PromptID)
	}
	if meta.Model != "dalle3" {
		t.Fatalf("expected model dalle3, got %q", meta.Model)
	}
	if meta.Provider != "openai" {
		t.Fatalf("expected provider openai, got %q", meta.Provider)
	}
	if meta.CreatedAt != "2025-06-19 17:23:54" {
		t.Fatalf("unexpected created_at %q", meta.CreatedAt)
	}
	if meta.Extension != "png" {
		t.Fatalf("unexpected extension %q", meta.Extension)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)
	name := Encode("circuit_orb", "flux_dev", ts, "png")

	if name != "circuit_orb_flux_dev_20250102_030405.png" {
		t.Fatalf("unexpected encoded name %q", name)
	}

	meta := Decode(name)
	if meta.PromptID != "circuit_orb" || meta.Model != "flux_dev" {
		t.Fatalf("round trip lost identity: %+v", meta)
	}
	if meta.CreatedAt != ts.Format("2006-01-02 15:04:05") {
		t.Fatalf("unexpected created_at %q", meta.CreatedAt)
	}
	if meta.Provider != "together_ai" {
		t.Fatalf("expected together_ai, got %q", meta.Provider)
	}
}

func TestDecode_IgnoresTrailingSuffix(t *testing.T) {
	meta := Decode("shield_recraft_v3_20240101_000000_nobg.png")
	if meta.PromptID != "shield" || meta.Model != "recraft_v3" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if meta.CreatedAt != "2024-01-01 00:00:00" {
		t.Fatalf("unexpected created_at %q", meta.CreatedAt)
	}
}

func TestDecode_Fallbacks(t *testing.T) {
	cases := []struct {
		name      string
		prompt    string
		model     string
		createdAt string
	}{
		{"logo.png", "logo", Unknown, Unknown},
		{"logo_flux.png", "logo", "flux", Unknown},
		{"", Unknown, Unknown, Unknown},
		{"20250619_172354.png", "20250619", "172354", Unknown},
		{"a_m_20251399_999999.png", "a", "m", "20251399_999999"},
	}

	for _, tc := range cases {
		meta := Decode(tc.name)
		if meta.PromptID != tc.prompt || meta.Model != tc.model || meta.CreatedAt != tc.createdAt {
			t.Fatalf("decode %q: got %+v", tc.name, meta)
		}
	}
}

func TestProviderForModel(t *testing.T) {
	cases := map[string]string{
		"dalle3":         "openai",
		"DALLE_3":        "openai",
		"flux_schnell":   "together_ai",
		"flux-lora":      "together_ai",
		"flux_pro":       "fal_ai",
		"galleri5_icons": "replicate",
		"ideogram":       "replicate",
		"recraft":        "replicate",
		"midjourney":     Unknown,
	}
	for model, want := range cases {
		if got := ProviderForModel(model); got != want {
			t.Fatalf("provider for %q: expected %q, got %q", model, want, got)
		}
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("  Circuit Orb!! v2 "); got != "circuit_orb_v2" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
	long := strings.Repeat("a", 80)
	if got := Sanitize(long); len(got) != 50 {
		t.Fatalf("expected truncation to 50, got %d", len(got))
	}
	if got := Sanitize("black-forest-labs/FLUX"); got != "black-forest-labs_flux" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
}
