package providers

// ParseAnthropicSSE extracts usage from Anthropic SSE events.
// message_start carries the model and input_tokens, message_delta the output_tokens.
func ParseAnthropicSSE(eventType, data string) Usage {
	switch eventType {
	case "message_start":
		var msg struct {
			Message struct {
				Model string `json:"model"`
				Usage struct {
					InputTokens int64 `json:"input_tokens"`
				} `json:"usage"`
			} `json:"message"`
		}
		if decode([]byte(data), &msg) {
			return Usage{Model: msg.Message.Model, InputTokens: msg.Message.Usage.InputTokens}
		}
	case "message_delta":
		var msg struct {
			Usage struct {
				OutputTokens int64 `json:"output_tokens"`
			} `json:"usage"`
		}
		if decode([]byte(data), &msg) {
			return Usage{OutputTokens: msg.Usage.OutputTokens}
		}
	}
	return Usage{}
}

func ParseAnthropicBody(body []byte) Usage {
	var resp struct {
		Model string `json:"model"`
		Usage struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}
	if !decode(body, &resp) {
		return Usage{}
	}
	return Usage{Model: resp.Model, InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}
}
