package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"subweave/internal/subtitle"
	"subweave/internal/task"
)

const (
	// entrySeparator delimits subtitle entries inside one request so the
	// model can keep a strict 1:1 line alignment.
	entrySeparator = "\n@@@\n"
	// inlineBreakPlaceholder protects line breaks inside a single entry
	// from being confused with entry boundaries.
	inlineBreakPlaceholder = "<br>"
)

// Config configures the LLM transport.
type Config struct {
	APIKey string
	APIURL string
	// Model is used when a task's TranslationConfig leaves the model
	// unset.
	Model   string
	Timeout time.Duration
}

// Validate fails fast on configuration errors so they never consume
// the retry budget.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("llm api key is required")
	}
	return nil
}

// TranslateRequest is one segment translation call.
type TranslateRequest struct {
	Entries        []subtitle.Entry
	Keywords       []string
	SourceLanguage string
	TargetLanguage string
	Config         task.TranslationConfig
}

// Translator is the transport collaborator: one call per segment,
// returning exactly one translated text per input entry.
type Translator interface {
	Translate(ctx context.Context, req TranslateRequest) ([]string, error)
}

// Client is the go-openai backed transport.
type Client struct {
	api          *openai.Client
	defaultModel string
	timeout      time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIURL != "" {
		apiCfg.BaseURL = cfg.APIURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		api:          openai.NewClientWithConfig(apiCfg),
		defaultModel: model,
		timeout:      timeout,
	}, nil
}

// Translate sends the segment to the model and splits the response back
// into per-entry texts. The entry count is NOT validated here; the
// caller treats a mismatch as a retryable alignment failure.
func (c *Client) Translate(ctx context.Context, req TranslateRequest) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	texts := make([]string, 0, len(req.Entries))
	for _, entry := range req.Entries {
		texts = append(texts, strings.ReplaceAll(entry.Text, "\n", inlineBreakPlaceholder))
	}

	model := req.Config.Model
	if model == "" {
		model = c.defaultModel
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.3,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: BuildPrompt(req),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: strings.Join(texts, entrySeparator),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return ParseResponse(resp.Choices[0].Message.Content), nil
}

// ParseResponse splits model output into per-entry texts and restores
// inline line breaks.
func ParseResponse(content string) []string {
	content = strings.TrimSpace(content)
	parts := strings.Split(content, strings.TrimSpace(entrySeparator))
	ret := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		part = strings.ReplaceAll(part, inlineBreakPlaceholder, "\n")
		ret = append(ret, part)
	}
	return ret
}

// BuildPrompt builds the system prompt for a segment translation.
func BuildPrompt(req TranslateRequest) string {
	var prompt strings.Builder

	target := req.TargetLanguage
	if req.Config.TaiwanOptimization {
		target = "Traditional Chinese (Taiwan)"
	}

	prompt.WriteString("You are a professional subtitle translation expert. Translate subtitles from " +
		req.SourceLanguage + " to " + target + ".\n\n")

	if len(req.Keywords) > 0 {
		prompt.WriteString("=== TERMINOLOGY ===\n")
		prompt.WriteString("The following terms must be rendered consistently every time they appear:\n")
		for _, kw := range req.Keywords {
			prompt.WriteString("- " + kw + "\n")
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("=== TRANSLATION GUIDELINES ===\n")
	prompt.WriteString("1. Ensure the translation flows naturally while preserving meaning\n")
	if req.Config.TaiwanOptimization {
		prompt.WriteString("2. Use Taiwan-standard vocabulary and phrasing, not mainland usage\n")
	}
	if req.Config.NaturalTone {
		prompt.WriteString("3. Prefer colloquial, spoken-language phrasing over literal translation\n")
	}
	if req.Config.SubtitleTiming {
		prompt.WriteString("4. Keep each subtitle short enough to read in its on-screen time\n")
	}
	prompt.WriteString("5. Preserve " + inlineBreakPlaceholder + " inline break markers exactly\n")

	prompt.WriteString("\n=== OUTPUT FORMAT ===\n")
	prompt.WriteString("The input contains subtitle entries separated by " + strings.TrimSpace(entrySeparator) + " markers.\n")
	prompt.WriteString("Return ONLY the translated entries, separated by the same " + strings.TrimSpace(entrySeparator) + " markers.\n")
	prompt.WriteString("Do not include any explanations, notes, or additional text.\n")
	prompt.WriteString("The number of output entries must exactly match the number of input entries.\n")

	return prompt.String()
}
