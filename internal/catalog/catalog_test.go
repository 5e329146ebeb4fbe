package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"logo-forge/internal/apperr"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNew_BuiltinModels(t *testing.T) {
	c, err := New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if len(c.Models()) != len(builtinModels) {
		t.Fatalf("expected builtin models, got %d", len(c.Models()))
	}
	m, ok := c.Model("flux_dev")
	if !ok || m.Provider != "together_ai" {
		t.Fatalf("expected flux-dev on together_ai, got %+v %v", m, ok)
	}
}

func TestNew_ModelsFileOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "models.yaml", "models:\n  - id: recraft-svg\n    name: Recraft SVG\n  - id: dalle3\n    provider: openai\n    remote_model: dall-e-3\n")

	c, err := New(dir, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	models := c.Models()
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %+v", models)
	}
	if models[0].Provider != "replicate" || models[0].RemoteModel != "recraft-svg" {
		t.Fatalf("expected defaults filled in, got %+v", models[0])
	}
}

func TestPrompts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "prompts.json", `[{"id":"circuit_orb","title":"Circuit Orb","prompt":"a glowing orb"},{"title":"Neon Fox","text":"a neon fox"}]`)
	writeFile(t, dir, "extra.txt", "first idea\n\n second idea \n")
	writeFile(t, dir, "notes.md", "ignored")

	c, err := New(dir, "")
	if err != nil {
		t.Fatal(err)
	}

	prompts, err := c.Prompts("default")
	if err != nil {
		t.Fatalf("default prompts: %v", err)
	}
	if len(prompts) != 2 || prompts[1].ID != "neon_fox" || prompts[1].Prompt != "a neon fox" {
		t.Fatalf("unexpected prompts %+v", prompts)
	}

	lines, err := c.Prompts("extra.txt")
	if err != nil || len(lines) != 2 || lines[1].Prompt != "second idea" || lines[1].ID != "prompt_2" {
		t.Fatalf("unexpected txt prompts %+v %v", lines, err)
	}

	files, err := c.PromptFiles()
	if err != nil || len(files) != 1 || files[0] != "extra.txt" {
		t.Fatalf("unexpected prompt files %v %v", files, err)
	}

	if p, ok := c.LookupPrompt("circuit_orb"); !ok || p.Prompt != "a glowing orb" {
		t.Fatalf("lookup failed: %+v %v", p, ok)
	}
}

func TestPrompts_Errors(t *testing.T) {
	c, err := New(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	var nf *apperr.NotFoundError
	if _, err := c.Prompts("missing.json"); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
	var ve *apperr.ValidationError
	if _, err := c.Prompts("../secrets.json"); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
