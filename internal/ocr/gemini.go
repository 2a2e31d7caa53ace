package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements Analyzer using Google Gemini as a one-shot transcriber
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Analyzer
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// Name returns the provider name
func (g *Gemini) Name() string {
	return "gemini"
}

// Analyze transcribes the image and returns a succeeded document
func (g *Gemini) Analyze(ctx context.Context, img Image) (*Document, error) {
	prepared, err := img.Prepare()
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects the format suffix ("png"), not the MIME type
	format := strings.TrimPrefix(prepared.ContentType, "image/")
	parts := []genai.Part{
		genai.ImageData(format, prepared.Data),
		genai.Text(transcribePrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, &SubmissionError{Op: "generate", Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &SubmissionError{Op: "generate", Err: fmt.Errorf("no response from gemini")}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	doc, err := parseTranscript(responseText.String())
	if err != nil {
		return nil, &SubmissionError{Op: "generate", Err: fmt.Errorf("parsing transcript: %w", err)}
	}
	return doc, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
