package conversation

import "context"

const stubReply = "I can't look that up right now. Please call the office and our team will be happy to help."

// StubLLMClient answers without a model, for local runs without credentials.
// JSON requests get an on-topic verdict so classification never blocks.
type StubLLMClient struct{}

func (StubLLMClient) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	if req.JSON {
		return LLMResponse{Text: `{"on_topic": true}`, StopReason: "stub"}, nil
	}
	return LLMResponse{Text: stubReply, StopReason: "stub"}, nil
}
