// Package insights integrates with the external financial insight
// provider used for monthly reports.
package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avezhov/finance-service/internal/config"
	"github.com/avezhov/finance-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Client calls the insight provider over HTTP
type Client struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new insights client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url: cfg.InsightsURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

type insightsRequest struct {
	Month string              `json:"month"`
	Stats models.MonthlyStats `json:"stats"`
}

type insightsResponse struct {
	Insights []string `json:"insights"`
}

// MonthlyInsights posts the month's stats to the provider and returns
// its commentary. Any failure is returned to the caller, which falls
// back to generic insights.
func (c *Client) MonthlyInsights(ctx context.Context, stats models.MonthlyStats, month string) ([]string, error) {
	if c.url == "" {
		return nil, fmt.Errorf("insight provider not configured")
	}

	body, err := json.Marshal(insightsRequest{Month: month, Stats: stats})
	if err != nil {
		return nil, fmt.Errorf("failed to encode insights request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from insight provider", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed insightsResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse insights response: %w", err)
	}
	if len(parsed.Insights) == 0 {
		return nil, fmt.Errorf("insight provider returned no insights")
	}
	return parsed.Insights, nil
}
