package providers

// ParseGeminiChunk extracts usage from Gemini responses, streamed or not.
// Gemini reports usageMetadata with promptTokenCount / candidatesTokenCount.
func ParseGeminiChunk(data []byte) Usage {
	var chunk struct {
		ModelVersion  string `json:"modelVersion"`
		UsageMetadata *struct {
			PromptTokenCount     int64 `json:"promptTokenCount"`
			CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}
	if !decode(data, &chunk) || chunk.UsageMetadata == nil {
		return Usage{}
	}
	return Usage{
		Model:        chunk.ModelVersion,
		InputTokens:  chunk.UsageMetadata.PromptTokenCount,
		OutputTokens: chunk.UsageMetadata.CandidatesTokenCount,
	}
}
