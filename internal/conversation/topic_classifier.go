package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TopicClassifier asks the model whether a question belongs in a dental chat.
type TopicClassifier struct {
	client LLMClient
}

func NewTopicClassifier(client LLMClient) *TopicClassifier {
	return &TopicClassifier{client: client}
}

// OnTopic reports whether question should be answered. Unparseable answers
// count as on topic.
func (c *TopicClassifier) OnTopic(ctx context.Context, question string) (bool, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return true, nil
	}

	resp, err := c.client.Complete(ctx, LLMRequest{
		Messages:  []ChatMessage{{Role: RoleUser, Content: fmt.Sprintf(topicClassifierPrompt, question)}},
		MaxTokens: 20,
		JSON:      true,
	})
	if err != nil {
		return true, err
	}

	var result struct {
		OnTopic *bool `json:"on_topic"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Text)), &result); err != nil || result.OnTopic == nil {
		return true, nil
	}
	return *result.OnTopic, nil
}

// extractJSONObject trims code fences and prose around the first JSON object.
func extractJSONObject(text string) string {
	content := strings.TrimSpace(text)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
