package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
	"resty.dev/v3"
)

// DefaultEndpoint is the chatbot API the client talks to unless configured otherwise.
const DefaultEndpoint = "https://chatbot-api-rouge.vercel.app/api"

// HTTPClient posts questions to a JSON endpoint that replies with {"text": ...}.
type HTTPClient struct {
	url    string
	client *resty.Client
	logger *zap.Logger
}

// NewHTTPClient creates an endpoint client. A nil logger discards output.
func NewHTTPClient(url string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &HTTPClient{
		url:    url,
		client: client,
		logger: logger.Named("endpoint"),
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// Answer sends the question with its history. Transport errors, non-2xx
// statuses and replies without text all come back as *AnswerError.
func (c *HTTPClient) Answer(ctx context.Context, req Request) (Response, error) {
	if req.ChatHistory == nil {
		req.ChatHistory = emptyHistory
	}
	c.logger.Debug("sending question",
		zap.Int("history", len(req.ChatHistory)),
		zap.Int("question_len", len(req.Question)),
	)

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(req).
		Post(c.url)
	if err != nil {
		return Response{}, &AnswerError{Class: ClassNetwork, Message: err.Error(), Cause: err}
	}

	body := resp.Bytes()
	status := resp.StatusCode()
	c.logger.Debug("endpoint replied", zap.Int("status", status), zap.Int("bytes", len(body)))

	if status < 200 || status >= 300 {
		return Response{}, &AnswerError{
			Class:   ClassStatus,
			Status:  status,
			Message: fmt.Sprintf("HTTP %d: %s", status, errorText(body)),
		}
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, &AnswerError{
			Class:   ClassMalformed,
			Status:  status,
			Message: fmt.Sprintf("invalid response: %s", truncate(string(body), 200)),
			Cause:   err,
		}
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return Response{}, &AnswerError{Class: ClassMalformed, Status: status, Message: "No text in response"}
	}
	return parsed, nil
}

// Ping issues a GET against the endpoint and returns the status code.
func (c *HTTPClient) Ping(ctx context.Context) (int, error) {
	resp, err := c.client.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return 0, fmt.Errorf("health check failed: %w", err)
	}
	return resp.StatusCode(), nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	return c.client.Close()
}

var emptyHistory = []*genai.Content{}

// errorText prefers the "error" field of a JSON body, then the raw body.
func errorText(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		return "Unknown error"
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return truncate(s, 400)
	}
	return "Unknown error"
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
