package proxy

import (
	"bufio"
	"io"
	"strings"

	"github.com/gluk-w/claworc/llm-router/internal/providers"
)

// StreamingParser reads SSE lines and extracts token usage.
type StreamingParser struct {
	ParserType string
	Result     providers.Usage
}

// ParseSSEStream reads an SSE stream, writes each line to the writer, and extracts usage.
func (sp *StreamingParser) ParseSSEStream(reader io.Reader, writer io.Writer) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024) // 1MB buffer

	var currentEvent string

	for scanner.Scan() {
		line := scanner.Text()

		if _, err := writer.Write([]byte(line + "\n")); err != nil {
			return err
		}
		if f, ok := writer.(interface{ Flush() }); ok {
			f.Flush()
		}

		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				continue
			}
			sp.Result.Merge(providers.ParseEvent(sp.ParserType, currentEvent, data))
		}
		if line == "" {
			currentEvent = ""
		}
	}

	return scanner.Err()
}
