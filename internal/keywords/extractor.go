// Package keywords produces the terminology constraint fed into every
// segment translation, biasing the model toward consistent renderings
// of names and recurring terms.
package keywords

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"subweave/pkg/log"
)

// Set holds extracted keywords. Final is the deduplicated union of the
// AI-generated and user-supplied terms and is what the translator uses.
type Set struct {
	AIGenerated []string `json:"ai_generated"`
	User        []string `json:"user"`
	Final       []string `json:"final"`
}

// Merge builds a Set from its parts, deduplicating the union while
// keeping first-seen order (user terms first).
func Merge(aiGenerated, user []string) Set {
	seen := make(map[string]bool)
	final := make([]string, 0, len(aiGenerated)+len(user))
	for _, term := range append(append([]string{}, user...), aiGenerated...) {
		term = strings.TrimSpace(term)
		if term == "" || seen[strings.ToLower(term)] {
			continue
		}
		seen[strings.ToLower(term)] = true
		final = append(final, term)
	}
	return Set{AIGenerated: aiGenerated, User: user, Final: final}
}

// chatAPI is the slice of the go-openai client the extractor uses.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Extractor asks the LLM for key terms worth translating consistently.
type Extractor struct {
	client chatAPI
	model  string
}

func NewExtractor(apiKey, apiURL, model string) *Extractor {
	cfg := openai.DefaultConfig(apiKey)
	if apiURL != "" {
		cfg.BaseURL = apiURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Extractor{client: openai.NewClientWithConfig(cfg), model: model}
}

// NewExtractorWithClient is used by tests to inject a fake chat API.
func NewExtractorWithClient(client chatAPI, model string) *Extractor {
	return &Extractor{client: client, model: model}
}

// Extract generates keywords from the video title plus context and
// merges them with user-supplied terms. Extraction failures (missing
// credentials, transport errors, unparsable output) degrade to a
// user-only set without aborting the pipeline.
func (e *Extractor) Extract(ctx context.Context, title, contextText string, userTerms []string) Set {
	aiTerms, err := e.generate(ctx, title, contextText)
	if err != nil {
		log.Warn("Keyword extraction degraded to user terms only: %v", err)
		return Merge(nil, userTerms)
	}
	return Merge(aiTerms, userTerms)
}

func (e *Extractor) generate(ctx context.Context, title, contextText string) ([]string, error) {
	if e == nil || e.client == nil {
		return nil, fmt.Errorf("keyword extractor is not configured")
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You extract proper nouns and recurring terminology from video metadata. " +
					"Return ONLY a JSON object of the form {\"keywords\": [\"...\"]}, no other text.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(title, contextText),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("keyword extraction call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("keyword extraction returned no choices")
	}

	var parsed struct {
		Keywords []string `json:"keywords"`
	}
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("parse keyword response: %w, raw response: %s", err, content)
	}
	return parsed.Keywords, nil
}

func buildPrompt(title, contextText string) string {
	const maxContext = 4000
	if len(contextText) > maxContext {
		contextText = contextText[:maxContext] + "..."
	}

	var sb strings.Builder
	sb.WriteString("Extract the character names, place names and recurring terminology that a subtitle translator must render consistently.\n\n")
	if title != "" {
		sb.WriteString(fmt.Sprintf("Title: %s\n", title))
	}
	if contextText != "" {
		sb.WriteString(fmt.Sprintf("Context:\n%s\n", contextText))
	}
	return sb.String()
}
