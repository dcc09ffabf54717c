package providers

// ParseOpenAIChunk extracts usage from an OpenAI-compatible response body or
// SSE chunk. Streaming responses only carry usage on the final chunk.
func ParseOpenAIChunk(data string) Usage {
	var chunk struct {
		Model string `json:"model"`
		Usage *struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if !decode([]byte(data), &chunk) {
		return Usage{}
	}
	u := Usage{Model: chunk.Model}
	if chunk.Usage != nil {
		u.InputTokens = chunk.Usage.PromptTokens
		u.OutputTokens = chunk.Usage.CompletionTokens
	}
	return u
}
