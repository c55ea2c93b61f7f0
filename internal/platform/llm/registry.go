package llm

import (
	"strings"

	"github.com/wisenet/wisenet-backend/internal/platform/envutil"
)

// Route describes where a model name is served: an OpenAI-compatible
// chat-completions endpoint plus the provider-side model id.
type Route struct {
	Provider string
	BaseURL  string
	APIKey   string
	ModelID  string
}

// Registry maps the user-facing model names to provider routes. Unknown
// names fall through to the local Ollama endpoint, which serves arbitrary
// open models by name.
type Registry struct {
	openAIBase   string
	openAIKey    string
	deepseekBase string
	deepseekKey  string
	dashBase     string
	dashKey      string
	ollamaBase   string
}

func NewRegistryFromEnv() *Registry {
	return &Registry{
		openAIBase:   strings.TrimRight(envutil.Str("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		openAIKey:    envutil.Str("OPENAI_API_KEY", ""),
		deepseekBase: strings.TrimRight(envutil.Str("DEEPSEEK_BASE_URL", "https://api.deepseek.com"), "/"),
		deepseekKey:  envutil.Str("DEEPSEEK_API_KEY", ""),
		dashBase:     strings.TrimRight(envutil.Str("DASHSCOPE_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode"), "/"),
		dashKey:      envutil.Str("DASHSCOPE_API_KEY", ""),
		ollamaBase:   strings.TrimRight(envutil.Str("OLLAMA_ENDPOINT", "http://127.0.0.1:11434"), "/"),
	}
}

// AllModels lists the model names the routing table knows about, in display
// order. The first entry is the fallback default.
func AllModels() []string {
	return []string{
		"llama3.1", "wizardlm2",
		"gpt-4o", "gpt-4-turbo", "gpt-4",
		"deepseek",
		"qwen-plus", "qwen-max",
	}
}

func DefaultModel() string {
	return envutil.Str("DEFAULT_LLM_NAME", "llama3.1")
}

func (r *Registry) Resolve(name string) Route {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultModel()
	}

	switch name {
	case "gpt-4o", "gpt-4-turbo", "gpt-4":
		return Route{Provider: "openai", BaseURL: r.openAIBase, APIKey: r.openAIKey, ModelID: name}
	case "deepseek":
		return Route{Provider: "deepseek", BaseURL: r.deepseekBase, APIKey: r.deepseekKey, ModelID: "deepseek-chat"}
	case "qwen-plus", "qwen-max":
		return Route{Provider: "dashscope", BaseURL: r.dashBase, APIKey: r.dashKey, ModelID: name}
	default:
		return Route{Provider: "ollama", BaseURL: r.ollamaBase, ModelID: name}
	}
}
