// Package ai is a minimal OpenAI API client covering the two operations the
// processing pipeline needs: audio transcription and JSON-mode chat
// completion.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Models used by the pipeline.
const (
	TranscriptionModel = "gpt-4o-transcribe"
	ChatModel          = "gpt-4o"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Outbound calls carry explicit timeouts so a stuck upstream can never block
// a worker indefinitely. Transcription gets longer, audio bodies are large.
const (
	transcribeTimeout = 120 * time.Second
	chatTimeout       = 60 * time.Second
)

// Client calls the OpenAI REST API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient builds a client with default timeouts.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: transcribeTimeout},
	}
}

// WithBaseURL points the client at a different API base (tests, proxies).
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

// Transcribe converts an audio stream to text.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", TranscriptionModel); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("reading audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	respBody, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parsing transcription response: %w", err)
	}
	return parsed.Text, nil
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatJSON runs a JSON-mode chat completion at a deterministic-leaning
// temperature and returns the raw message content.
func (c *Client) ChatJSON(ctx context.Context, system, user string) (string, error) {
	reqBody := chatRequest{
		Model: ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.2,
		ResponseFormat: responseFormat{Type: "json_object"},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	respBody, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parsing chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty response from AI")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
