// Package conversation maintains the chat with the assistant model. Messages
// may carry text, an annotated screenshot, or both; the client keeps the
// running history so follow-up messages stay in context.
package conversation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/s0s0/VolcanoChat/logutil"
)

// Chat API structures
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type ChatResponse struct {
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Content string `json:"content"`
}

type APIError struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code"` // Can be string or number
}

const (
	maxRetries   = 3
	initialDelay = 1 * time.Second
	maxTokens    = 2000
	systemPrompt = "You are VolcanoChat, a desktop assistant. The user sends text, " +
		"screenshots of their screen, or both. Red strokes on a screenshot are the " +
		"user's own annotations pointing at what matters. Answer concisely."
)

// Client holds the conversation history and sends messages sequentially.
type Client struct {
	mu         sync.Mutex
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	history    []Message
	retryDelay time.Duration
}

func New(endpoint, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		retryDelay: initialDelay,
	}
}

// Send appends a user message built from text and an optional JPEG image,
// queries the model, and returns the assistant's reply. The exchange only
// enters the history once the model has answered, so a failed send can be
// retried without duplicating the user turn.
func (c *Client) Send(ctx context.Context, text string, jpeg []byte) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("API key is required")
	}
	if text == "" && len(jpeg) == 0 {
		return "", fmt.Errorf("nothing to send")
	}

	var content []Content
	if text != "" {
		content = append(content, Content{Type: "text", Text: text})
	}
	if len(jpeg) > 0 {
		dataURL := fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(jpeg))
		content = append(content, Content{Type: "image_url", ImageURL: &ImageURL{URL: dataURL}})
	}
	userMsg := Message{Role: "user", Content: content}

	c.mu.Lock()
	messages := make([]Message, 0, len(c.history)+2)
	messages = append(messages, Message{Role: "system", Content: []Content{{Type: "text", Text: systemPrompt}}})
	messages = append(messages, c.history...)
	messages = append(messages, userMsg)
	c.mu.Unlock()

	request := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   maxTokens,
	}

	// Retry logic with exponential backoff
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(c.retryDelay) * (1.5 * float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		response, err := c.makeAPIRequest(ctx, request)
		if err != nil {
			lastErr = err
			continue
		}
		if len(response.Choices) == 0 {
			lastErr = fmt.Errorf("no choices in API response")
			continue
		}

		reply := response.Choices[0].Message.Content
		log.Printf("Conversation: reply received: %s", logutil.Trim(reply, 120))

		c.mu.Lock()
		c.history = append(c.history, userMsg,
			Message{Role: "assistant", Content: []Content{{Type: "text", Text: reply}}})
		c.mu.Unlock()
		return reply, nil
	}

	return "", fmt.Errorf("failed after %d attempts: %v", maxRetries, lastErr)
}

// Reset drops the conversation history.
func (c *Client) Reset() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}

// Len reports the number of messages in the history.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

func (c *Client) makeAPIRequest(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("X-Title", "VolcanoChat")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %v", err)
	}
	defer resp.Body.Close()

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %v", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("API error: %s (type: %s, code: %v)", response.Error.Message, response.Error.Type, response.Error.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	return &response, nil
}
