// Package parser calls the external natural-language availability parser
// (spec §1: "assumed to be a remote text→structured-availability service
// called through a narrow interface"). Michael's configured backend is
// Gemini; no SDK for it ships in the example pack, so the client is
// hand-rolled net/http + encoding/json in the same style the teacher uses
// for its Google Calendar and Zoom REST clients (conferencing.go,
// calendar.go: http.NewRequest, bearer/query-key auth, json.Marshal body,
// json.NewDecoder response).
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"
	requestTimeout  = 30 * time.Second
)

// Message is one turn of prior conversation context supplied by the
// caller, so the parser can resolve follow-ups like "actually make it
// Thursday instead".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Window is one caller-described availability window, already expressed
// in the caller's timezone.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Result is the structured availability extracted from free-text,
// returned to the caller alongside a conversational reply.
type Result struct {
	Windows         []Window `json:"windows"`
	DurationMinutes int      `json:"durationMinutes,omitempty"`
	SystemMessage   string   `json:"systemMessage"`
}

// Client talks to the configured Gemini endpoint.
type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

func New(apiKey string) *Client {
	return &Client{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		http:     &http.Client{Timeout: requestTimeout},
	}
}

type geminiRequest struct {
	Contents          []geminiContent    `json:"contents"`
	SystemInstruction *geminiContent     `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenConfig    `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	ResponseMIMEType string `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Parse sends the caller's message plus prior turns to the parser and
// returns the extracted availability windows. timezone anchors relative
// phrases ("tomorrow afternoon") to the caller's local calendar date.
func (c *Client) Parse(ctx context.Context, message, timezone string, previous []Message) (*Result, error) {
	if message == "" {
		return nil, fmt.Errorf("parser: message must not be empty")
	}

	contents := make([]geminiContent, 0, len(previous)+1)
	for _, m := range previous {
		contents = append(contents, geminiContent{Role: geminiRole(m.Role), Parts: []geminiPart{{Text: m.Content}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: message}}})

	reqBody := geminiRequest{
		Contents: contents,
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: systemPrompt(timezone)}},
		},
		GenerationConfig: geminiGenConfig{ResponseMIMEType: "application/json"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", c.endpoint, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parser: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("parser: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parser: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("parser: upstream returned %d: %s", resp.StatusCode, string(body))
	}

	var gr geminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, fmt.Errorf("parser: decode response envelope: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("parser: upstream returned no candidates")
	}

	var result Result
	if err := json.Unmarshal([]byte(gr.Candidates[0].Content.Parts[0].Text), &result); err != nil {
		return nil, fmt.Errorf("parser: decode structured result: %w", err)
	}
	return &result, nil
}

func geminiRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return "user"
}

func systemPrompt(timezone string) string {
	return fmt.Sprintf(`You extract availability windows from a scheduling conversation.
The caller's timezone is %s; resolve relative dates against it.
Respond with JSON matching {"windows":[{"start":RFC3339,"end":RFC3339}],"durationMinutes":int,"systemMessage":string}.
systemMessage is a short conversational reply confirming what you understood.`, timezone)
}
