package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const bedrockJSONInstruction = "Respond with a single JSON object and nothing else."

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockLLMClient talks to the Bedrock Converse API.
type BedrockLLMClient struct {
	api     bedrockConverseAPI
	modelID string
}

// NewBedrockLLMClient builds a client; modelID is used when a request names no model.
func NewBedrockLLMClient(api bedrockConverseAPI, modelID string) *BedrockLLMClient {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api, modelID: strings.TrimSpace(modelID)}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = c.modelID
	}
	if modelID == "" {
		return LLMResponse{}, errors.New("conversation: bedrock model id is required")
	}

	system, messages, err := bedrockMessages(req)
	if err != nil {
		return LLMResponse{}, err
	}
	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(modelID),
		System:          system,
		Messages:        messages,
		InferenceConfig: bedrockInference(req),
	})
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: bedrock converse: %w", err)
	}

	switch out.StopReason {
	case brtypes.StopReasonContentFiltered, brtypes.StopReasonGuardrailIntervened:
		return LLMResponse{}, fmt.Errorf("%w: bedrock stop reason %s", ErrContentBlocked, out.StopReason)
	}
	text, err := bedrockExtractOutputText(out)
	if err != nil {
		return LLMResponse{}, err
	}

	resp := LLMResponse{Text: strings.TrimSpace(text), StopReason: string(out.StopReason)}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

// bedrockMessages splits system text from the conversation turns. System-role
// messages join the system blocks; JSON mode adds one more instruction.
func bedrockMessages(req LLMRequest) ([]brtypes.SystemContentBlock, []brtypes.Message, error) {
	var system []brtypes.SystemContentBlock
	addSystem := func(text string) {
		if text = strings.TrimSpace(text); text != "" {
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: text})
		}
	}
	for _, block := range req.System {
		addSystem(block)
	}

	messages := make([]brtypes.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		var role brtypes.ConversationRole
		switch msg.Role {
		case RoleSystem:
			addSystem(msg.Content)
			continue
		case RoleUser:
			role = brtypes.ConversationRoleUser
		case RoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return nil, nil, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
		blocks, err := bedrockContent(msg)
		if err != nil {
			return nil, nil, err
		}
		if len(blocks) > 0 {
			messages = append(messages, brtypes.Message{Role: role, Content: blocks})
		}
	}
	if req.JSON {
		addSystem(bedrockJSONInstruction)
	}
	return system, messages, nil
}

// bedrockInference returns nil when the request sets nothing. A negative
// temperature leaves the model default.
func bedrockInference(req LLMRequest) *brtypes.InferenceConfiguration {
	cfg := &brtypes.InferenceConfiguration{}
	set := false
	if req.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(req.MaxTokens)
		set = true
	}
	if req.Temperature >= 0 {
		cfg.Temperature = aws.Float32(req.Temperature)
		set = true
	}
	if req.TopP > 0 {
		cfg.TopP = aws.Float32(req.TopP)
		set = true
	}
	if !set {
		return nil
	}
	return cfg
}

// bedrockContent puts attachments before the text so the model sees the card
// or photo before the question about it.
func bedrockContent(msg ChatMessage) ([]brtypes.ContentBlock, error) {
	blocks := make([]brtypes.ContentBlock, 0, len(msg.Attachments)+1)
	for i, att := range msg.Attachments {
		if len(att.Data) == 0 {
			continue
		}
		if att.MIMEType == "application/pdf" {
			blocks = append(blocks, &brtypes.ContentBlockMemberDocument{Value: brtypes.DocumentBlock{
				Format: brtypes.DocumentFormatPdf,
				Name:   aws.String(fmt.Sprintf("document-%d", i+1)),
				Source: &brtypes.DocumentSourceMemberBytes{Value: att.Data},
			}})
			continue
		}
		format, ok := bedrockImageFormat(att.MIMEType)
		if !ok {
			return nil, fmt.Errorf("%w: bedrock cannot read %s", ErrUnsupportedAttachment, att.MIMEType)
		}
		blocks = append(blocks, &brtypes.ContentBlockMemberImage{Value: brtypes.ImageBlock{
			Format: format,
			Source: &brtypes.ImageSourceMemberBytes{Value: att.Data},
		}})
	}
	if content := strings.TrimSpace(msg.Content); content != "" {
		blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: content})
	}
	return blocks, nil
}

// HEIC is not accepted by Converse.
func bedrockImageFormat(mime string) (brtypes.ImageFormat, bool) {
	switch mime {
	case "image/jpeg":
		return brtypes.ImageFormatJpeg, true
	case "image/png":
		return brtypes.ImageFormatPng, true
	case "image/gif":
		return brtypes.ImageFormatGif, true
	case "image/webp":
		return brtypes.ImageFormatWebp, true
	}
	return "", false
}

func bedrockExtractOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("conversation: bedrock response is nil")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("conversation: bedrock response has no message")
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errors.New("conversation: bedrock response has no text")
	}
	return b.String(), nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
