// Package analysis asks a vision model for a structured threat assessment of a frame.
package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

const systemPrompt = "You are a security assistant analyzing images. " +
	"Do not identify or make assumptions about specific individuals. " +
	"Instead, describe visible people's posture (e.g., sitting, running), visible object types " +
	"(e.g., bags, tools, weapons), and potential threats. Return the following fields:\n" +
	"- profiles: list of descriptions of each human\n" +
	"- weapons: list of any objects resembling weapons\n" +
	"- danger: brief summary of threat level\n" +
	"- action_required: true/false flag\n" +
	"Respond strictly in JSON format only. Avoid vague statements or refusals."

const userPrompt = "Analyze this image and return the structured information as instructed."

var (
	ErrRefused      = errors.New("model refused or failed to respond with structured data")
	ErrEmptyChoices = errors.New("model returned no choices")
)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type Client struct {
	http *resty.Client
	cfg  Config
	now  func() time.Time
}

func NewClient(cfg Config) *Client {
	r := resty.New()
	r.SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/"))
	r.SetTimeout(cfg.Timeout)
	r.SetHeader("Content-Type", "application/json")
	r.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		r.SetAuthToken(cfg.APIKey)
	}
	r.JSONMarshal = json.Marshal
	r.JSONUnmarshal = json.Unmarshal

	return &Client{http: r, cfg: cfg, now: time.Now}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
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

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Analyze sends one JPEG image for assessment. imagePath is echoed into the result.
// Any failure, including a refusal or an unparseable answer, is returned as an
// error; no retry is attempted.
func (c *Client) Analyze(ctx context.Context, image []byte, imagePath string) (models.Analysis, error) {
	ts := models.AnalysisTimestamp(c.now())

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: userPrompt},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
				}},
			}},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&chatResponse{}).
		SetError(&apiError{}).
		Post("/chat/completions")
	if err != nil {
		return models.Analysis{}, fmt.Errorf("analysis request: %w", err)
	}
	if resp.IsError() {
		if apiErr, ok := resp.Error().(*apiError); ok && apiErr.Error.Message != "" {
			return models.Analysis{}, fmt.Errorf("analysis api: %s: %s", resp.Status(), apiErr.Error.Message)
		}
		return models.Analysis{}, fmt.Errorf("analysis api: %s", resp.Status())
	}

	result, ok := resp.Result().(*chatResponse)
	if !ok || len(result.Choices) == 0 {
		return models.Analysis{}, ErrEmptyChoices
	}

	raw := result.Choices[0].Message.Content
	return ParseAnswer(raw, ts, imagePath)
}

type answer struct {
	Profiles       *models.Descriptions `json:"profiles"`
	Weapons        *models.Descriptions `json:"weapons"`
	Danger         *string              `json:"danger"`
	ActionRequired json.RawMessage      `json:"action_required"`
}

// ParseAnswer turns the model's text into an analysis. Code fences around the
// JSON are tolerated; a refusal or an empty/invalid object is an error.
func ParseAnswer(raw, ts, imagePath string) (models.Analysis, error) {
	text := stripFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil || len(fields) == 0 ||
		strings.Contains(strings.ToLower(raw), "sorry") {
		return models.Analysis{}, ErrRefused
	}

	var a answer
	if err := json.Unmarshal([]byte(text), &a); err != nil {
		return models.Analysis{}, fmt.Errorf("%w: %v", ErrRefused, err)
	}

	out := models.Analysis{
		Status:           models.StatusSuccess,
		Timestamp:        ts,
		ImagePath:        imagePath,
		Profiles:         models.Descriptions{},
		Weapons:          models.Descriptions{},
		Danger:           models.DefaultDanger,
		ActionRequired:   parseFlag(a.ActionRequired),
		RawModelResponse: &raw,
	}
	if a.Profiles != nil {
		out.Profiles = *a.Profiles
	}
	if a.Weapons != nil {
		out.Weapons = *a.Weapons
	}
	if a.Danger != nil {
		out.Danger = *a.Danger
	}
	return out, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// parseFlag accepts true/false as a JSON bool or string.
func parseFlag(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}
