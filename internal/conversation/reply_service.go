package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AyushPatel04/dental-chatbot/internal/chatflow"
	"github.com/AyushPatel04/dental-chatbot/internal/uploads"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// ImageLoader fetches the bytes of a stored upload.
type ImageLoader interface {
	Load(ctx context.Context, ref uploads.Reference) ([]byte, error)
}

// ReplyService answers free-form patient questions with the language model.
type ReplyService struct {
	llm        LLMClient
	classifier *TopicClassifier
	images     ImageLoader
	clinic     string
	tracer     trace.Tracer
	logger     *logging.Logger
}

var _ chatflow.ReplyService = (*ReplyService)(nil)

// NewReplyService builds the reply service. A nil classifier answers every
// question; a nil image loader rejects image questions.
func NewReplyService(llm LLMClient, classifier *TopicClassifier, images ImageLoader, clinic string, logger *logging.Logger) *ReplyService {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReplyService{
		llm:        llm,
		classifier: classifier,
		images:     images,
		clinic:     clinic,
		tracer:     otel.Tracer("dental.internal.conversation"),
		logger:     logger,
	}
}

// GenerateReply answers text, looking at image when one is attached.
func (s *ReplyService) GenerateReply(ctx context.Context, text string, image *uploads.Reference) (string, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.generate_reply", trace.WithAttributes(
		attribute.Bool("has_image", image != nil),
	))
	defer span.End()

	screened := ScreenQuestion(text)
	if screened.Blocked {
		span.SetAttributes(attribute.Bool("guard_blocked", true))
		s.logger.Warn("question blocked by guard", "score", screened.Score, "reasons", screened.Reasons)
		return guardedReply, nil
	}
	text = screened.Text
	if image == nil && s.classifier != nil {
		onTopic, err := s.classifier.OnTopic(ctx, text)
		if err != nil {
			s.logger.Warn("topic classification failed, answering anyway", "error", err)
		}
		if !onTopic {
			span.SetAttributes(attribute.Bool("off_topic", true))
			return offTopicReply, nil
		}
	}

	msg := ChatMessage{Role: RoleUser, Content: text}
	if image != nil {
		att, err := s.attachment(ctx, *image)
		if err != nil {
			span.RecordError(err)
			return "", err
		}
		msg.Attachments = []Attachment{att}
		if msg.Content == "" {
			msg.Content = defaultImageQuestion
		}
	}
	if msg.Content == "" {
		return "", fmt.Errorf("%w: empty question", ErrUpstream)
	}

	resp, err := s.llm.Complete(ctx, LLMRequest{
		System:      []string{replySystemPrompt(s.clinic)},
		Messages:    []ChatMessage{msg},
		MaxTokens:   600,
		Temperature: 0.4,
	})
	if errors.Is(err, ErrContentBlocked) {
		span.SetAttributes(attribute.Bool("provider_blocked", true))
		s.logger.Warn("provider safety filter blocked reply", "error", err)
		return guardedReply, nil
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply", ErrUpstream)
	}
	if v := ScreenReply(reply); v.Blocked {
		span.SetAttributes(attribute.Bool("guard_withheld", true))
		s.logger.Warn("reply withheld by guard", "reasons", v.Reasons)
		return guardedReply, nil
	}
	s.logger.Debug("reply generated",
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return reply, nil
}

func (s *ReplyService) attachment(ctx context.Context, ref uploads.Reference) (Attachment, error) {
	if s.images == nil {
		return Attachment{}, fmt.Errorf("%w: image questions are not configured", ErrUpstream)
	}
	data, err := s.images.Load(ctx, ref)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: load %s: %w", ErrUpstream, ref.Key, err)
	}
	return Attachment{MIMEType: ref.MIMEType, Data: data}, nil
}
