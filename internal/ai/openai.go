package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyTranscript is returned when there is nothing to analyze.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Analysis represents the AI analysis result
type Analysis struct {
	Context     string   `json:"context"`
	Title       string   `json:"title"`
	Summary     []string `json:"summary"`
	ActionItems []string `json:"action_items"`
	KeyPoints   []string `json:"key_points"`
}

// Analyzer summarizes finished transcripts with an OpenAI chat model.
type Analyzer struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer. baseURL may be empty for the public API.
func NewAnalyzer(apiKey, baseURL, model string, logger *slog.Logger) *Analyzer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.With("component", "analyzer"),
	}
}

// Analyze asks the model for a structured summary of transcript.
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (*Analysis, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}

	detectedContext := DetectContext(transcript)
	systemPrompt, userPrompt := BuildPrompt(transcript, detectedContext)

	a.logger.Debug("analysis request",
		"model", a.model,
		"context", detectedContext,
		"transcript_chars", len(transcript))

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		Temperature: 0.3, // Low temperature for factual output
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	a.logger.Debug("analysis response",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	content := resp.Choices[0].Message.Content
	var result Analysis
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		extracted := extractJSONFromMarkdown(content)
		if err := json.Unmarshal([]byte(extracted), &result); err != nil {
			return nil, fmt.Errorf("failed to parse OpenAI response as JSON: %w", err)
		}
	}

	fillDefaults(&result, detectedContext)
	a.logger.Info("analysis complete",
		"context", result.Context,
		"summary_items", len(result.Summary),
		"action_items", len(result.ActionItems))
	return &result, nil
}

// fillDefaults derives missing fields from the summary.
func fillDefaults(result *Analysis, detectedContext string) {
	if result.Context == "" {
		result.Context = detectedContext
	}

	// Use first summary item as title (truncate to 10 words)
	if result.Title == "" && len(result.Summary) > 0 {
		titleWords := strings.Fields(result.Summary[0])
		if len(titleWords) > 10 {
			titleWords = titleWords[:10]
		}
		result.Title = strings.Join(titleWords, " ")
	}

	if len(result.KeyPoints) == 0 && len(result.Summary) > 0 {
		result.KeyPoints = result.Summary[:min(3, len(result.Summary))]
	}
	if result.ActionItems == nil {
		result.ActionItems = []string{}
	}
}

// extractJSONFromMarkdown extracts JSON from markdown code blocks
func extractJSONFromMarkdown(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}

	return strings.TrimSpace(content)
}
