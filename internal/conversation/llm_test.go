package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLMClient struct {
	response  LLMResponse
	err       error
	requests  []LLMRequest
	responses []LLMResponse
	calls     int
}

func (s *stubLLMClient) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.requests = append(s.requests, req)
	defer func() { s.calls++ }()
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	if len(s.responses) > 0 {
		if s.calls >= len(s.responses) {
			return LLMResponse{}, errors.New("no scripted response")
		}
		return s.responses[s.calls], nil
	}
	return s.response, nil
}

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func converseText(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(4), TotalTokens: aws.Int32(14)},
	}
}

func TestBedrockCompleteSendsImagesAndText(t *testing.T) {
	api := &fakeConverse{out: converseText(" Looks healthy. ")}
	client := NewBedrockLLMClient(api, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System: []string{"be brief"},
		Messages: []ChatMessage{{
			Role:        RoleUser,
			Content:     "Is this normal?",
			Attachments: []Attachment{{MIMEType: "image/png", Data: []byte{1, 2, 3}}},
		}},
		MaxTokens:   100,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Looks healthy.", resp.Text)
	assert.Equal(t, int32(14), resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.StopReason)

	require.NotNil(t, api.input)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(api.input.ModelId))
	require.Len(t, api.input.Messages, 1)
	blocks := api.input.Messages[0].Content
	require.Len(t, blocks, 2)
	img, ok := blocks[0].(*brtypes.ContentBlockMemberImage)
	require.True(t, ok)
	assert.Equal(t, brtypes.ImageFormatPng, img.Value.Format)
	_, ok = blocks[1].(*brtypes.ContentBlockMemberText)
	assert.True(t, ok)
}

func TestBedrockCompleteDocumentsAndJSONMode(t *testing.T) {
	api := &fakeConverse{out: converseText(`{"ok":true}`)}
	client := NewBedrockLLMClient(api, "model")

	_, err := client.Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{
			Role:        RoleUser,
			Content:     "read this",
			Attachments: []Attachment{{MIMEType: "application/pdf", Data: []byte("%PDF")}},
		}},
		Temperature: -1,
		JSON:        true,
	})
	require.NoError(t, err)
	_, ok := api.input.Messages[0].Content[0].(*brtypes.ContentBlockMemberDocument)
	assert.True(t, ok)
	assert.Len(t, api.input.System, 1)
	assert.Nil(t, api.input.InferenceConfig)
}

func TestBedrockCompleteRejectsUnsupportedAttachments(t *testing.T) {
	client := NewBedrockLLMClient(&fakeConverse{out: converseText("x")}, "model")
	_, err := client.Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: RoleUser, Attachments: []Attachment{{MIMEType: "image/heic", Data: []byte{1}}}}},
	})
	assert.ErrorIs(t, err, ErrUnsupportedAttachment)
}

func TestBedrockContentFilterBlocks(t *testing.T) {
	out := converseText("partial")
	out.StopReason = brtypes.StopReasonContentFiltered
	client := NewBedrockLLMClient(&fakeConverse{out: out}, "model")

	_, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}})
	assert.ErrorIs(t, err, ErrContentBlocked)

	client = NewBedrockLLMClient(&fakeConverse{err: errors.New("throttled")}, "model")
	_, err = client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}})
	assert.ErrorContains(t, err, "bedrock converse: throttled")
}

func TestBedrockCompleteRequiresModel(t *testing.T) {
	client := NewBedrockLLMClient(&fakeConverse{}, "")
	_, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}})
	assert.Error(t, err)
}

func TestBedrockExtractOutputTextErrors(t *testing.T) {
	_, err := bedrockExtractOutputText(nil)
	assert.Error(t, err)
	_, err = bedrockExtractOutputText(converseText("   "))
	assert.Error(t, err)
}

func TestGeminiParts(t *testing.T) {
	parts := geminiParts(ChatMessage{
		Role:        RoleUser,
		Content:     " what is this? ",
		Attachments: []Attachment{{MIMEType: "image/jpeg", Data: []byte{0xff}}, {MIMEType: "image/png"}},
	})
	require.Len(t, parts, 2)
	blob, ok := parts[0].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", blob.MIMEType)
	assert.Equal(t, genai.Text("what is this?"), parts[1])

	assert.Empty(t, geminiParts(ChatMessage{Content: "  "}))
}

func TestGeminiTurns(t *testing.T) {
	history, last, err := geminiTurns([]ChatMessage{
		{Role: RoleSystem, Content: "be kind"},
		{Role: RoleUser, Content: "Do you take Cigna?"},
		{Role: RoleAssistant, Content: "Yes."},
		{Role: RoleUser, Content: "Great"},
	})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("Great")}, last)

	_, _, err = geminiTurns([]ChatMessage{{Role: RoleSystem, Content: "only system"}})
	assert.Error(t, err)
	_, _, err = geminiTurns([]ChatMessage{{Role: RoleUser, Content: " "}})
	assert.Error(t, err)

	system := geminiSystemText(LLMRequest{System: []string{"a", " "}, Messages: []ChatMessage{{Role: RoleSystem, Content: "b"}}})
	assert.Equal(t, "a\n\nb", system)
}

func TestGeminiResponseSafetyBlocks(t *testing.T) {
	_, err := geminiResponse(&genai.GenerateContentResponse{
		PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
	})
	assert.ErrorIs(t, err, ErrContentBlocked)

	_, err = geminiResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	})
	assert.ErrorIs(t, err, ErrContentBlocked)
}

func TestGeminiResponse(t *testing.T) {
	resp, err := geminiResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []genai.Part{genai.Text("Floss "), genai.Text("daily.")}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, "Floss daily.", resp.Text)
	assert.Equal(t, int32(5), resp.Usage.TotalTokens)

	_, err = geminiResponse(&genai.GenerateContentResponse{})
	assert.Error(t, err)
}

func TestFallbackLLMClient(t *testing.T) {
	primary := &stubLLMClient{err: errors.New("quota")}
	fallback := &stubLLMClient{response: LLMResponse{Text: "from fallback"}}
	client := NewFallbackLLMClient(nil,
		Provider{Name: "gemini", Client: primary},
		Provider{Name: "bedrock", Client: fallback},
	)

	resp, err := client.Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)

	onlyPrimary := NewFallbackLLMClient(nil, Provider{Name: "gemini", Client: primary}, Provider{Name: "bedrock"})
	_, err = onlyPrimary.Complete(context.Background(), LLMRequest{})
	assert.EqualError(t, err, "gemini: quota")

	fallback.err = errors.New("down too")
	_, err = client.Complete(context.Background(), LLMRequest{})
	assert.EqualError(t, err, "gemini: quota\nbedrock: down too")
}

func TestFallbackNeedsAClient(t *testing.T) {
	assert.Panics(t, func() { NewFallbackLLMClient(nil, Provider{Name: "empty"}) })
}

func TestFallbackSkippedWhenContextDone(t *testing.T) {
	primary := &stubLLMClient{err: context.DeadlineExceeded}
	fallback := &stubLLMClient{response: LLMResponse{Text: "late"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewFallbackLLMClient(nil, Provider{Name: "gemini", Client: primary}, Provider{Name: "bedrock", Client: fallback})
	_, err := client.Complete(ctx, LLMRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, fallback.calls)
}
