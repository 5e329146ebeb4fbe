package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"logo-forge/internal/apperr"
	"logo-forge/internal/catalog"
	"logo-forge/internal/models"
	"logo-forge/internal/naming"
)

const (
	minImagesPerPrompt = 1
	maxImagesPerPrompt = 10

	msgInvalidConfig   = "Invalid workflow configuration"
	msgNoModels        = "At least one model must be selected"
	msgNoPrompts       = "At least one prompt must be provided"
	msgImagesNotNumber = "Images per prompt must be a valid number"
	msgImagesRange     = "Images per prompt must be between 1 and 10"
)

type ModelRef struct {
	ID          string `json:"id"`
	Provider    string `json:"provider"`
	RemoteModel string `json:"remote_model"`
}

type PromptRef struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Request struct {
	Models  []ModelRef
	Prompts []PromptRef
	Options models.JobOptions
}

type Defaults struct {
	RemoveBackground bool
	CreateICO        bool
}

// Resolver looks up catalog entries referenced by id. *catalog.Catalog satisfies it.
type Resolver interface {
	Model(id string) (catalog.Model, bool)
	LookupPrompt(id string) (catalog.Prompt, bool)
}

// DecodeRequest parses a start body. Every violated rule is reported, not only the first.
func DecodeRequest(body []byte, defaults Defaults, resolver Resolver) (Request, error) {
	req := Request{Options: models.JobOptions{
		RemoveBackground: defaults.RemoveBackground,
		CreateICO:        defaults.CreateICO,
		ImagesPerPrompt:  minImagesPerPrompt,
	}}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return req, apperr.NewValidation(msgInvalidConfig, "Request body must be a JSON object")
	}

	var errs []string
	modelRefs, modelErrs := decodeModels(fields["models"], resolver)
	errs = append(errs, modelErrs...)
	prompts, promptErrs := decodePrompts(fields["prompts"], resolver)
	errs = append(errs, promptErrs...)

	if raw, ok := fields["settings"]; ok && !isNull(raw) {
		n, err := decodeImagesPerPrompt(raw)
		if err != "" {
			errs = append(errs, err)
		} else if n > 0 {
			req.Options.ImagesPerPrompt = n
		}
	}

	for _, key := range []string{"removeBackground", "remove_background"} {
		if b, ok := decodeBool(fields[key]); ok {
			req.Options.RemoveBackground = b
		}
	}
	for _, key := range []string{"createICO", "create_ico"} {
		if b, ok := decodeBool(fields[key]); ok {
			req.Options.CreateICO = b
		}
	}

	if len(errs) > 0 {
		return req, apperr.NewValidation(msgInvalidConfig, errs...)
	}
	req.Models = modelRefs
	req.Prompts = prompts
	return req, nil
}

func decodeModels(raw json.RawMessage, resolver Resolver) ([]ModelRef, []string) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || len(entries) == 0 {
		return nil, []string{msgNoModels}
	}

	var (
		refs []ModelRef
		errs []string
	)
	for i, entry := range entries {
		var id string
		if err := json.Unmarshal(entry, &id); err != nil {
			var obj struct {
				ID       string `json:"id"`
				Provider string `json:"provider"`
			}
			if err := json.Unmarshal(entry, &obj); err != nil || obj.ID == "" {
				errs = append(errs, fmt.Sprintf("Model at position %d is invalid", i+1))
				continue
			}
			id = obj.ID
			if obj.Provider != "" {
				id = obj.Provider + ":" + obj.ID
			}
		}
		ref, err := resolveModel(strings.TrimSpace(id), resolver)
		if err != "" {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs, errs
}

// resolveModel accepts "provider:model" or a bare model id.
func resolveModel(ref string, resolver Resolver) (ModelRef, string) {
	if ref == "" {
		return ModelRef{}, "Model id must not be empty"
	}
	if providerName, id, ok := strings.Cut(ref, ":"); ok {
		if providerName == "" || id == "" {
			return ModelRef{}, fmt.Sprintf("Invalid model reference: %s", ref)
		}
		out := ModelRef{ID: id, Provider: providerName, RemoteModel: id}
		if resolver != nil {
			if m, found := resolver.Model(id); found && m.Provider == providerName {
				out.ID, out.RemoteModel = m.ID, m.RemoteModel
			}
		}
		return out, ""
	}

	if resolver != nil {
		if m, found := resolver.Model(ref); found {
			return ModelRef{ID: m.ID, Provider: m.Provider, RemoteModel: m.RemoteModel}, ""
		}
	}
	providerName := naming.ProviderForModel(ref)
	if providerName == naming.Unknown {
		return ModelRef{}, fmt.Sprintf("Unknown model: %s", ref)
	}
	return ModelRef{ID: ref, Provider: providerName, RemoteModel: ref}, ""
}

func decodePrompts(raw json.RawMessage, resolver Resolver) ([]PromptRef, []string) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || len(entries) == 0 {
		return nil, []string{msgNoPrompts}
	}

	var (
		refs []PromptRef
		errs []string
	)
	for i, entry := range entries {
		fallbackID := fmt.Sprintf("prompt_%d", i+1)

		var text string
		if err := json.Unmarshal(entry, &text); err == nil {
			text = strings.TrimSpace(text)
			if text == "" {
				errs = append(errs, fmt.Sprintf("Prompt at position %d is empty", i+1))
				continue
			}
			if resolver != nil {
				if p, found := resolver.LookupPrompt(text); found {
					refs = append(refs, PromptRef{ID: p.ID, Text: p.Prompt})
					continue
				}
			}
			refs = append(refs, PromptRef{ID: fallbackID, Text: text})
			continue
		}

		var obj struct {
			ID     string `json:"id"`
			Title  string `json:"title"`
			Prompt string `json:"prompt"`
			Text   string `json:"text"`
		}
		if err := json.Unmarshal(entry, &obj); err != nil {
			errs = append(errs, fmt.Sprintf("Prompt at position %d is invalid", i+1))
			continue
		}
		text = strings.TrimSpace(obj.Prompt)
		if text == "" {
			text = strings.TrimSpace(obj.Text)
		}
		if text == "" && obj.ID != "" && resolver != nil {
			if p, found := resolver.LookupPrompt(obj.ID); found {
				text = p.Prompt
			}
		}
		if text == "" {
			errs = append(errs, fmt.Sprintf("Prompt at position %d has no text", i+1))
			continue
		}
		id := obj.ID
		if id == "" {
			id = naming.Sanitize(obj.Title)
		}
		if id == "" {
			id = fallbackID
		}
		refs = append(refs, PromptRef{ID: id, Text: text})
	}
	return refs, errs
}

// decodeImagesPerPrompt returns 0 when the setting is absent.
func decodeImagesPerPrompt(raw json.RawMessage) (int, string) {
	var settings map[string]json.RawMessage
	if err := json.Unmarshal(raw, &settings); err != nil {
		return 0, ""
	}
	value, ok := settings["images_per_prompt"]
	if !ok || isNull(value) {
		return 0, ""
	}

	var n float64
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, msgImagesNotNumber
	}
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, msgImagesNotNumber
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, msgImagesNotNumber
		}
		n = f
	default:
		return 0, msgImagesNotNumber
	}

	if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, msgImagesNotNumber
	}
	if n < minImagesPerPrompt || n > maxImagesPerPrompt {
		return 0, msgImagesRange
	}
	return int(n), ""
}

func decodeBool(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 || isNull(raw) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, false
	}
	return b, true
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// ExpandTasks builds the model × prompt matrix, models in the outer loop.
func ExpandTasks(modelRefs []ModelRef, prompts []PromptRef) []models.GenerationTask {
	tasks := make([]models.GenerationTask, 0, len(modelRefs)*len(prompts))
	for mi, m := range modelRefs {
		for pi, p := range prompts {
			tasks = append(tasks, models.GenerationTask{
				Index:       len(tasks),
				ModelID:     m.ID,
				RemoteModel: m.RemoteModel,
				Provider:    m.Provider,
				PromptID:    p.ID,
				PromptText:  p.Text,
				ModelIndex:  mi,
				PromptIndex: pi,
			})
		}
	}
	return tasks
}
