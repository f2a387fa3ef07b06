package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/AyushPatel04/dental-chatbot/internal/chatflow"
	"github.com/AyushPatel04/dental-chatbot/internal/uploads"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// CardExtractor reads insurance card photos with a vision-capable model.
type CardExtractor struct {
	llm    LLMClient
	images ImageLoader
	tracer trace.Tracer
	logger *logging.Logger
}

var _ chatflow.CardExtractor = (*CardExtractor)(nil)

func NewCardExtractor(llm LLMClient, images ImageLoader, logger *logging.Logger) *CardExtractor {
	if llm == nil || images == nil {
		panic("conversation: card extractor needs an llm client and an image loader")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CardExtractor{
		llm:    llm,
		images: images,
		tracer: otel.Tracer("dental.internal.conversation"),
		logger: logger,
	}
}

// ExtractCardInfo returns the provider, member id and member name printed on
// the card. A card with neither a provider nor a member id fails with ErrExtraction.
func (e *CardExtractor) ExtractCardInfo(ctx context.Context, ref uploads.Reference) (chatflow.CardInfo, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.extract_card")
	defer span.End()

	data, err := e.images.Load(ctx, ref)
	if err != nil {
		span.RecordError(err)
		return chatflow.CardInfo{}, fmt.Errorf("conversation: load card %s: %w", ref.Key, err)
	}

	resp, err := e.llm.Complete(ctx, LLMRequest{
		Messages: []ChatMessage{{
			Role:        RoleUser,
			Content:     cardExtractionPrompt,
			Attachments: []Attachment{{MIMEType: ref.MIMEType, Data: data}},
		}},
		MaxTokens:   200,
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		span.RecordError(err)
		return chatflow.CardInfo{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	info, err := parseCardInfo(resp.Text)
	if err != nil {
		e.logger.Warn("card extraction returned unusable output", "key", ref.Key, "error", err)
		return chatflow.CardInfo{}, err
	}
	return info, nil
}

func parseCardInfo(text string) (chatflow.CardInfo, error) {
	var info chatflow.CardInfo
	if err := json.Unmarshal([]byte(extractJSONObject(text)), &info); err != nil {
		return chatflow.CardInfo{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	info.Provider = strings.TrimSpace(info.Provider)
	info.MemberID = strings.TrimSpace(info.MemberID)
	info.MemberName = strings.TrimSpace(info.MemberName)
	if info.Provider == "" && info.MemberID == "" {
		return chatflow.CardInfo{}, fmt.Errorf("%w: no provider or member id", ErrExtraction)
	}
	return info, nil
}
