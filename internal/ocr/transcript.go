package ocr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// transcribePrompt is the shared prompt used by the LLM providers
const transcribePrompt = `You are an OCR engine. Read every line of text in the image, top to bottom, left to right.

Return ONLY valid JSON in this exact format:
{
  "lines": ["first line", "second line"]
}

Important:
- Copy each line exactly as printed, including punctuation, currency symbols and capitalization
- One array entry per printed line, in reading order
- Do not correct spelling, translate, summarize or add text that is not in the image
- If the image contains no text, return {"lines": []}
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

type transcript struct {
	Lines []string `json:"lines"`
}

// parseTranscript converts an LLM transcription into a one-page document
func parseTranscript(text string) (*Document, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Models sometimes wrap the object in prose
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var t transcript
	if err := json.Unmarshal([]byte(text), &t); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	lines := make([]string, 0, len(t.Lines))
	for _, line := range t.Lines {
		// a model may put several printed lines in one entry
		for _, part := range strings.Split(line, "\n") {
			if strings.TrimSpace(part) != "" {
				lines = append(lines, part)
			}
		}
	}

	return SingleDocument(lines), nil
}
