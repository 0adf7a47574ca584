// Package ai is a small client for OpenAI-compatible chat completion APIs,
// used for diagnosis suggestions, OCR and lab-result extraction.
package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3/client"
)

var (
	ErrDisabled      = errors.New("ai: assistant is disabled")
	ErrEmptyResponse = errors.New("ai: empty response")
)

// StatusError is a non-2xx answer from the completion endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ai: upstream status %d: %s", e.Code, e.Body)
}

// Image is an inline image attachment.
type Image struct {
	Name string
	MIME string
	Data []byte
}

func (i Image) dataURL() string {
	mime := i.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Prompt is one chat completion request.
type Prompt struct {
	System string
	Text   string
	Images []Image
	// JSON asks the model for a single JSON object.
	JSON bool
}

// ---------------------------------------------------------------------------
// wire types
// ---------------------------------------------------------------------------

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

type Client struct {
	cfg  Config
	http *client.Client
}

func New(cfg Config) *Client {
	cc := client.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		cc.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Client{cfg: cfg, http: cc}
}

func (c *Client) Enabled() bool { return c != nil && c.cfg.Enabled }

func (c *Client) buildRequest(p Prompt) chatRequest {
	model := c.cfg.Model
	var content any = p.Text
	if len(p.Images) > 0 {
		model = c.cfg.VisionModel
		parts := []contentPart{{Type: "text", Text: p.Text}}
		for _, img := range p.Images {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: img.dataURL()}})
		}
		content = parts
	}

	req := chatRequest{Model: model, Temperature: 0.2}
	if p.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: p.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: content})
	if p.JSON {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return req
}

// Chat returns the first choice's text.
func (c *Client) Chat(ctx context.Context, p Prompt) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	resp, err := c.http.Post("/chat/completions", client.Config{
		Ctx:    ctx,
		Body:   c.buildRequest(p),
		Header: map[string]string{"Content-Type": "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("ai: request: %w", err)
	}
	defer resp.Close()

	if code := resp.StatusCode(); code < 200 || code > 299 {
		body := string(resp.Body())
		if len(body) > 512 {
			body = body[:512]
		}
		return "", &StatusError{Code: code, Body: body}
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

// ChatJSON asks for a JSON object and decodes it into out.
func (c *Client) ChatJSON(ctx context.Context, p Prompt, out any) error {
	p.JSON = true
	text, err := c.Chat(ctx, p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripFences(text)), out); err != nil {
		return fmt.Errorf("ai: decode answer: %w", err)
	}
	return nil
}

// StripFences removes a markdown code fence around a model answer.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
