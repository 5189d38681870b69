package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"algomind/src/log"
)

const (
	DefaultURL   = "http://localhost:11434/api"
	DefaultModel = "qwen2.5:7b"
)

// GenerateRequest represents the request structure for model generation
type GenerateRequest struct {
	Model   string                 `json:"model"`
	System  string                 `json:"system"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// ErrTruncated is returned when the response was truncated
type ErrTruncated struct {
	Message string
}

func (e *ErrTruncated) Error() string {
	return e.Message
}

// GenerateResponse represents one line of a streamed generation
type GenerateResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Client represents an Ollama API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	options    map[string]interface{}
}

// NewClient creates a new Ollama API client bound to one model
func NewClient(baseURL, model string, c *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	if c == nil {
		c = http.DefaultClient
	}

	return &Client{
		httpClient: c,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
	}
}

// WithOptions returns a copy of the client that sends options with every request
func (c *Client) WithOptions(options map[string]interface{}) *Client {
	cp := *c
	cp.options = options
	return &cp
}

// Model returns the model name used for generation
func (c *Client) Model() string {
	return c.model
}

// Generate performs model generation and returns the complete response
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	var fullResponse strings.Builder
	for chunk, err := range c.GenerateStream(ctx, system, prompt) {
		if err != nil {
			return "", err
		}
		fullResponse.WriteString(chunk)
	}

	if fullResponse.Len() == 0 {
		return "", fmt.Errorf("no response received from Ollama")
	}
	return fullResponse.String(), nil
}

// GenerateStream yields the response chunks as the model produces them. The
// sequence ends after the final chunk or the first error.
func (c *Client) GenerateStream(ctx context.Context, system, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.post(ctx, "/generate", GenerateRequest{
			Model:   c.model,
			System:  system,
			Prompt:  prompt,
			Stream:  true,
			Options: c.options,
		})
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}
			if len(bytes.TrimSpace(line)) > 0 {
				var response GenerateResponse
				if uerr := json.Unmarshal(line, &response); uerr != nil {
					log.Error(uerr, "failed to unmarshal response line", "line", string(line))
					yield("", fmt.Errorf("error unmarshaling response: %w", uerr))
					return
				}
				if response.Error != "" {
					yield("", fmt.Errorf("ollama error: %s", response.Error))
					return
				}
				if response.Truncated {
					yield("", &ErrTruncated{Message: "Response was truncated by the model"})
					return
				}
				if response.Response != "" && !yield(response.Response, nil) {
					return
				}
				if response.Done {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				yield("", fmt.Errorf("stream ended before the model finished"))
				return
			}
		}
	}
}

// Ping checks that the server is reachable
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tags", nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %s", resp.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error(err, "failed to make request to ollama")
		return nil, fmt.Errorf("error making request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ollama returned status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
