package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

// geminiSafety relaxes the dangerous-content filter to high-confidence only.
// Questions about bleeding gums, extractions or pain medication otherwise get
// refused as medical harm.
var geminiSafety = []*genai.SafetySetting{
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockOnlyHigh},
}

// GeminiLLMClient talks to the Gemini API.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: create gemini client: %w", err)
	}
	return &GeminiLLMClient{client: client, modelID: modelID}, nil
}

func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	history, last, err := geminiTurns(req.Messages)
	if err != nil {
		return LLMResponse{}, err
	}

	modelID := c.modelID
	if m := strings.TrimSpace(req.Model); m != "" {
		modelID = m
	}
	model := c.client.GenerativeModel(modelID)
	model.SafetySettings = geminiSafety
	model.SetCandidateCount(1)
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if system := geminiSystemText(req); system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	cs := model.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: gemini completion: %w", err)
	}
	return geminiResponse(resp)
}

func geminiSystemText(req LLMRequest) string {
	parts := make([]string, 0, len(req.System))
	for _, s := range req.System {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem && strings.TrimSpace(msg.Content) != "" {
			parts = append(parts, strings.TrimSpace(msg.Content))
		}
	}
	return strings.Join(parts, "\n\n")
}

// geminiTurns splits messages into chat history and the parts of the final
// user turn. System messages are carried by the system instruction instead.
func geminiTurns(msgs []ChatMessage) ([]*genai.Content, []genai.Part, error) {
	turns := make([]ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role != RoleSystem {
			turns = append(turns, msg)
		}
	}
	if len(turns) == 0 {
		return nil, nil, errors.New("conversation: gemini requires at least one message")
	}

	var history []*genai.Content
	for _, msg := range turns[:len(turns)-1] {
		parts := geminiParts(msg)
		if len(parts) == 0 {
			continue
		}
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: parts})
	}
	last := geminiParts(turns[len(turns)-1])
	if len(last) == 0 {
		return nil, nil, errors.New("conversation: gemini last message is empty")
	}
	return history, last, nil
}

// geminiParts sends attachments as inline blobs ahead of the text.
func geminiParts(msg ChatMessage) []genai.Part {
	parts := make([]genai.Part, 0, len(msg.Attachments)+1)
	for _, att := range msg.Attachments {
		if len(att.Data) > 0 {
			parts = append(parts, genai.Blob{MIMEType: att.MIMEType, Data: att.Data})
		}
	}
	if text := strings.TrimSpace(msg.Content); text != "" {
		parts = append(parts, genai.Text(text))
	}
	return parts
}

func geminiResponse(resp *genai.GenerateContentResponse) (LLMResponse, error) {
	if resp == nil {
		return LLMResponse{}, errors.New("conversation: gemini returned no response")
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return LLMResponse{}, fmt.Errorf("%w: gemini prompt %s", ErrContentBlocked, fb.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return LLMResponse{}, fmt.Errorf("%w: gemini answer stopped for safety", ErrContentBlocked)
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned empty content")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	result := LLMResponse{
		Text:       strings.TrimSpace(text.String()),
		StopReason: candidate.FinishReason.String(),
	}
	if u := resp.UsageMetadata; u != nil {
		result.Usage = TokenUsage{
			InputTokens:  u.PromptTokenCount,
			OutputTokens: u.CandidatesTokenCount,
			TotalTokens:  u.TotalTokenCount,
		}
	}
	return result, nil
}

// Close releases the underlying gRPC connection.
func (c *GeminiLLMClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
