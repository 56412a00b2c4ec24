package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultMurekaBaseURL = "https://api.mureka.ai/v1"

type MurekaConfig struct {
	APIKey string
	Model  string

	BaseURL    string
	HTTPClient *http.Client
}

// MurekaClient is a Generator backed by the Mureka song API.
type MurekaClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewMurekaClient(cfg MurekaConfig) *MurekaClient {
	c := &MurekaClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
	}
	if c.model == "" {
		c.model = "auto"
	}
	if c.baseURL == "" {
		c.baseURL = defaultMurekaBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

type murekaGenerateRequest struct {
	Lyrics string `json:"lyrics"`
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type murekaTask struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Choices []struct {
		URL string `json:"url"`
	} `json:"choices"`
}

// Generate submits lyrics and returns the task id. HTTP 429 maps to
// ErrRateLimited.
func (c *MurekaClient) Generate(ctx context.Context, lyrics, style string) (string, error) {
	if strings.TrimSpace(lyrics) == "" {
		return "", errors.New("mureka: lyrics are empty")
	}
	payload, err := json.Marshal(murekaGenerateRequest{Lyrics: lyrics, Model: c.model, Prompt: style})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/song/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var task murekaTask
	if err := c.do(req, &task); err != nil {
		return "", err
	}
	if task.ID == "" {
		return "", errors.New("mureka: response has no task id")
	}
	return task.ID, nil
}

func (c *MurekaClient) PollStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/song/query/"+url.PathEscape(taskID), nil)
	if err != nil {
		return TaskStatus{}, err
	}

	var task murekaTask
	if err := c.do(req, &task); err != nil {
		return TaskStatus{}, err
	}

	switch task.Status {
	case "succeeded":
		st := TaskStatus{State: TaskSucceeded}
		if len(task.Choices) > 0 {
			st.URL = task.Choices[0].URL
		}
		return st, nil
	case "failed", "timeouted", "cancelled":
		return TaskStatus{State: TaskFailed}, nil
	default:
		return TaskStatus{State: TaskPending}, nil
	}
}

func (c *MurekaClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, string(body))
	}
	if resp.StatusCode >= 400 {
		return &APIError{Service: "mureka", StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("mureka: parse response: %w", err)
	}
	return nil
}
