package providers

import "encoding/json"

// Usage is the token accounting extracted from one upstream response.
type Usage struct {
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Merge copies every non-zero field of next into u. Streaming responses
// report model and token counts on different events.
func (u *Usage) Merge(next Usage) {
	if next.Model != "" {
		u.Model = next.Model
	}
	if next.InputTokens > 0 {
		u.InputTokens = next.InputTokens
	}
	if next.OutputTokens > 0 {
		u.OutputTokens = next.OutputTokens
	}
}

// ParseBody extracts usage from a complete, non-streaming response body.
func ParseBody(parserType string, body []byte) Usage {
	switch parserType {
	case "anthropic":
		return ParseAnthropicBody(body)
	case "gemini":
		return ParseGeminiChunk(body)
	case "cohere":
		return ParseCohereChunk(string(body))
	default:
		return ParseOpenAIChunk(string(body))
	}
}

// ParseEvent extracts usage from one SSE event of a streaming response.
func ParseEvent(parserType, eventType, data string) Usage {
	switch parserType {
	case "anthropic":
		return ParseAnthropicSSE(eventType, data)
	case "gemini":
		return ParseGeminiChunk([]byte(data))
	case "cohere":
		return ParseCohereChunk(data)
	default:
		return ParseOpenAIChunk(data)
	}
}

func decode(data []byte, v any) bool {
	return json.Unmarshal(data, v) == nil
}
