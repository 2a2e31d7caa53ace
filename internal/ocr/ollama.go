package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama implements Analyzer using a local Ollama vision model
// Recommended models for transcription:
//   - qwen2-vl:7b (good OCR capabilities)
//   - llava:1.6
//   - llava-phi3 (smaller, faster, less accurate)
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama Analyzer
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models are slow on CPU
		},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Name returns the provider name
func (o *Ollama) Name() string {
	return "ollama"
}

// Analyze transcribes the image and returns a succeeded document
func (o *Ollama) Analyze(ctx context.Context, img Image) (*Document, error) {
	prepared, err := img.Prepare()
	if err != nil {
		return nil, err
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading printed and handwritten text in images. You transcribe text exactly as it appears.",
			},
			{
				Role:    "user",
				Content: transcribePrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(prepared.Data)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &SubmissionError{Op: "chat", Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &SubmissionError{Op: "chat", Err: fmt.Errorf("calling ollama API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &SubmissionError{Op: "chat", Err: fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &SubmissionError{Op: "chat", Err: fmt.Errorf("decoding response: %w", err)}
	}

	doc, err := parseTranscript(chatResp.Message.Content)
	if err != nil {
		return nil, &SubmissionError{Op: "chat", Err: fmt.Errorf("parsing transcript: %w", err)}
	}
	return doc, nil
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
