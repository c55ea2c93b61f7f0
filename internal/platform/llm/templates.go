package llm

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Templates holds the prompt templates used by generation and analysis.
// Placeholders: {input} is the source text, {count} the requested item count.
// A YAML file (PROMPT_TEMPLATES_PATH) can override any of the defaults.
type Templates struct {
	templates map[string]string
}

const (
	TemplateAnalysisTitle    = "analysis_title"
	TemplateAnalysisKeywords = "analysis_keywords"
	TemplateAnalysisTags     = "analysis_tags"
	TemplateGeneratePrompts  = "generate_prompts"
	TemplateGenerateQuestion = "generate_questions"
	TemplateSummarize        = "summarize_document"
	TemplateExtractEntities  = "extract_entities"
)

func defaultTemplates() map[string]string {
	return map[string]string{
		TemplateAnalysisTitle: "Write a short title (at most ten words) for the following text. " +
			"Respond with JSON: {\"result\": \"<title>\"}\n\nText:\n{input}",
		TemplateAnalysisKeywords: "Extract the most important keywords from the following text. " +
			"Respond with JSON: {\"result\": [\"<keyword>\", ...]}\n\nText:\n{input}",
		TemplateAnalysisTags: "Propose broad classification tags for the following text. " +
			"Respond with JSON: {\"result\": [\"<tag>\", ...]}\n\nText:\n{input}",
		TemplateGeneratePrompts: "You are building a knowledge tree. From the following text, produce {count} " +
			"follow-up prompts that each explore one aspect in more depth. " +
			"Respond with JSON: {\"result\": [{\"prompt\": \"<prompt>\"}, ...]}\n\nText:\n{input}",
		TemplateGenerateQuestion: "From the following text, produce {count} questions a reader might ask, " +
			"answerable from the text. " +
			"Respond with JSON: {\"result\": [{\"question\": \"<question>\"}, ...]}\n\nText:\n{input}",
		TemplateSummarize: "Summarize the following document. " +
			"Respond with JSON: {\"result\": {\"title\": \"<title>\", \"summary\": \"<summary>\"}}\n\nDocument:\n{input}",
		TemplateExtractEntities: "List the named entities (people, places, organizations, products) in the " +
			"following text. Respond with JSON: {\"result\": [\"<entity>\", ...]}\n\nText:\n{input}",
	}
}

func NewTemplates() *Templates {
	return &Templates{templates: defaultTemplates()}
}

// LoadTemplates returns the defaults overlaid with the YAML file at path.
// An empty path returns the defaults unchanged.
func LoadTemplates(path string) (*Templates, error) {
	t := NewTemplates()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("llm: read templates: %w", err)
	}
	overrides := map[string]string{}
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("llm: parse templates: %w", err)
	}
	for name, tpl := range overrides {
		if strings.TrimSpace(tpl) != "" {
			t.templates[name] = tpl
		}
	}
	return t, nil
}

func (t *Templates) Render(name, input string, count int) string {
	tpl, ok := t.templates[name]
	if !ok {
		return ""
	}
	out := strings.ReplaceAll(tpl, "{input}", input)
	out = strings.ReplaceAll(out, "{count}", fmt.Sprintf("%d", count))
	return out
}
