package nlp

import (
	"context"
	"strings"

	"github.com/wisenet/wisenet-backend/internal/platform/llm"
	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// Extractor pulls named entities out of free text.
type Extractor interface {
	ExtractEntities(ctx context.Context, text, modelName string) ([]string, error)
}

type extractor struct {
	log       *logger.Logger
	llm       llm.Client
	templates *llm.Templates
}

func NewExtractor(log *logger.Logger, client llm.Client, templates *llm.Templates) Extractor {
	return &extractor{
		log:       log.With("component", "nlp"),
		llm:       client,
		templates: templates,
	}
}

func (e *extractor) ExtractEntities(ctx context.Context, text, modelName string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	prompt := e.templates.Render(llm.TemplateExtractEntities, text, 0)
	raw, err := e.llm.CompleteJSON(ctx, prompt, modelName)
	if err != nil {
		return nil, err
	}
	entities, err := llm.ParseStringList(raw)
	if err != nil {
		return nil, err
	}
	return dedupe(entities), nil
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(item))
	}
	return out
}
