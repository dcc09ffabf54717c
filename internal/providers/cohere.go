package providers

type cohereTokens struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ParseCohereChunk handles both the v1 chat shape (response.meta.tokens) and
// the v2 shape (usage.tokens).
func ParseCohereChunk(data string) Usage {
	var v1 struct {
		Response *struct {
			Meta *struct {
				Tokens *cohereTokens `json:"tokens"`
			} `json:"meta"`
		} `json:"response"`
	}
	if decode([]byte(data), &v1) && v1.Response != nil && v1.Response.Meta != nil && v1.Response.Meta.Tokens != nil {
		return Usage{InputTokens: v1.Response.Meta.Tokens.InputTokens, OutputTokens: v1.Response.Meta.Tokens.OutputTokens}
	}

	var v2 struct {
		Usage *struct {
			Tokens *cohereTokens `json:"tokens"`
		} `json:"usage"`
	}
	if decode([]byte(data), &v2) && v2.Usage != nil && v2.Usage.Tokens != nil {
		return Usage{InputTokens: v2.Usage.Tokens.InputTokens, OutputTokens: v2.Usage.Tokens.OutputTokens}
	}
	return Usage{}
}
