// Package catalog holds the generation models and the prompt files offered to clients.
package catalog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"logo-forge/internal/apperr"
	"logo-forge/internal/naming"

	"github.com/patrickmn/go-cache"
	"gopkg.in/yaml.v2"
)

const (
	DefaultPromptFile = "prompts.json"
	modelsFileName    = "models.yaml"

	promptCacheExpiration = 5 * time.Minute
	promptCacheCleanup    = 15 * time.Minute
)

type Model struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Provider    string `yaml:"provider" json:"provider"`
	Description string `yaml:"description" json:"description"`
	// RemoteModel is the identifier sent to the provider API.
	RemoteModel string `yaml:"remote_model" json:"remote_model"`
}

type Prompt struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Prompt string `json:"prompt"`
}

var builtinModels = []Model{
	{ID: "dalle3", Name: "DALL-E 3", Provider: "openai", Description: "OpenAI's latest image generation model", RemoteModel: "dall-e-3"},
	{ID: "flux-dev", Name: "FLUX.1 [dev]", Provider: "together_ai", Description: "High-quality open-source model", RemoteModel: "black-forest-labs/FLUX.1-dev"},
	{ID: "flux-schnell", Name: "FLUX.1 [schnell]", Provider: "together_ai", Description: "Fast generation model", RemoteModel: "black-forest-labs/FLUX.1-schnell"},
	{ID: "flux-pro", Name: "FLUX.1 [pro]", Provider: "fal_ai", Description: "Professional quality model", RemoteModel: "fal-ai/flux-pro"},
	{ID: "ideogram-v2", Name: "Ideogram v2", Provider: "replicate", Description: "Text-aware image generation", RemoteModel: "ideogram-ai/ideogram-v2"},
	{ID: "recraft-v3", Name: "Recraft v3", Provider: "replicate", Description: "Style-controllable generation", RemoteModel: "recraft-ai/recraft-v3"},
}

type Catalog struct {
	configDir string
	models    []Model
	prompts   *cache.Cache
}

// New loads the model list from modelsFile, or CONFIG_DIR/models.yaml when present,
// falling back to the built-in list.
func New(configDir, modelsFile string) (*Catalog, error) {
	c := &Catalog{
		configDir: configDir,
		models:    builtinModels,
		prompts:   cache.New(promptCacheExpiration, promptCacheCleanup),
	}

	path := modelsFile
	if path == "" {
		candidate := filepath.Join(configDir, modelsFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		models, err := loadModels(path)
		if err != nil {
			return nil, err
		}
		c.models = models
		log.Printf("Loaded %d models from %s", len(models), path)
	}
	return c, nil
}

func loadModels(path string) ([]Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open models file: %w", err)
	}
	defer f.Close()

	var doc struct {
		Models []Model `yaml:"models"`
	}
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode models file %s: %w", path, err)
	}
	for i := range doc.Models {
		m := &doc.Models[i]
		if m.ID == "" {
			return nil, fmt.Errorf("models file %s: entry %d has no id", path, i)
		}
		if m.Provider == "" {
			m.Provider = naming.ProviderForModel(m.ID)
		}
		if m.RemoteModel == "" {
			m.RemoteModel = m.ID
		}
		if m.Name == "" {
			m.Name = m.ID
		}
	}
	return doc.Models, nil
}

func (c *Catalog) Models() []Model {
	out := make([]Model, len(c.models))
	copy(out, c.models)
	return out
}

// Model finds a catalog entry by id. Ids compare after sanitizing, so "flux-dev" and
// "flux_dev" are the same model.
func (c *Catalog) Model(id string) (Model, bool) {
	key := naming.Sanitize(strings.ReplaceAll(id, "-", "_"))
	for _, m := range c.models {
		if naming.Sanitize(strings.ReplaceAll(m.ID, "-", "_")) == key || m.RemoteModel == id {
			return m, true
		}
	}
	return Model{}, false
}

// PromptFiles lists the prompt files in CONFIG_DIR other than the default one.
func (c *Catalog) PromptFiles() ([]string, error) {
	entries, err := os.ReadDir(c.configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read config directory: %w", err)
	}
	files := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == DefaultPromptFile {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json", ".txt":
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Prompts reads a prompt file. "default" names prompts.json.
func (c *Catalog) Prompts(file string) ([]Prompt, error) {
	if file == "default" || file == "" {
		file = DefaultPromptFile
	}
	if file != filepath.Base(file) || strings.ContainsAny(file, `/\`) || file == ".." {
		return nil, apperr.NewValidation("Invalid prompt file name", file)
	}
	if cached, ok := c.prompts.Get(file); ok {
		return cached.([]Prompt), nil
	}

	data, err := os.ReadFile(filepath.Join(c.configDir, file))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("prompt file %s", file)
		}
		return nil, apperr.Internal(err)
	}

	var prompts []Prompt
	if strings.EqualFold(filepath.Ext(file), ".txt") {
		prompts = parseLines(data)
	} else {
		prompts, err = parseJSON(data)
		if err != nil {
			return nil, apperr.Processing("parse prompt file "+file, err)
		}
	}
	c.prompts.SetDefault(file, prompts)
	return prompts, nil
}

// LookupPrompt finds a prompt by id in the default prompt file.
func (c *Catalog) LookupPrompt(id string) (Prompt, bool) {
	prompts, err := c.Prompts(DefaultPromptFile)
	if err != nil {
		return Prompt{}, false
	}
	for _, p := range prompts {
		if p.ID == id {
			return p, true
		}
	}
	return Prompt{}, false
}

func parseLines(data []byte) []Prompt {
	prompts := []Prompt{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		prompts = append(prompts, Prompt{ID: fmt.Sprintf("prompt_%d", len(prompts)+1), Prompt: line})
	}
	return prompts
}

// parseJSON accepts an array of prompt objects, an array of strings, or an
// object mapping ids to prompt text.
func parseJSON(data []byte) ([]Prompt, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var byID map[string]string
		if err2 := json.Unmarshal(data, &byID); err2 != nil {
			return nil, err
		}
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		prompts := make([]Prompt, 0, len(ids))
		for _, id := range ids {
			prompts = append(prompts, Prompt{ID: id, Prompt: byID[id]})
		}
		return prompts, nil
	}

	prompts := make([]Prompt, 0, len(raw))
	for i, item := range raw {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			prompts = append(prompts, Prompt{ID: fmt.Sprintf("prompt_%d", i+1), Prompt: text})
			continue
		}
		var obj struct {
			ID     string `json:"id"`
			Title  string `json:"title"`
			Prompt string `json:"prompt"`
			Text   string `json:"text"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		p := Prompt{ID: obj.ID, Title: obj.Title, Prompt: obj.Prompt}
		if p.Prompt == "" {
			p.Prompt = obj.Text
		}
		if p.ID == "" {
			p.ID = naming.Sanitize(obj.Title)
		}
		if p.ID == "" {
			p.ID = fmt.Sprintf("prompt_%d", i+1)
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}
