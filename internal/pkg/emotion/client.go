package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/qs3c/himera_gate_server/config"
)

// Neutral 空文本与分类失败时的默认标签
const Neutral = "neutral"

var ErrNotConfigured = errors.New("emotion classifier not configured")

type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"score"`
}

// Client 调用外部情绪分类服务
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(cfg config.EmotionConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Classify 空文本直接返回 neutral，不发请求
func (c *Client) Classify(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{Label: Neutral, Confidence: 1.0}, nil
	}
	if c.baseURL == "" {
		return Result{}, ErrNotConfigured
	}

	jsonBody, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Result{}, fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(jsonBody))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("calling classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decoding response: %w", err)
	}
	if out.Label == "" {
		return Result{}, errors.New("classifier returned empty label")
	}
	return out, nil
}
