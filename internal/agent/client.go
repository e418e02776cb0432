package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arclight-c2/arclight/internal/models"
	"github.com/arclight-c2/arclight/internal/server/dto"
	authentication "github.com/arclight-c2/arclight/pkg/auth"
	"github.com/arclight-c2/arclight/pkg/logger"
	"github.com/arclight-c2/arclight/pkg/middleware"
)

// Client is the signed HTTP client for the agent API. Every request body is
// signed with the agent's PSK; the server recomputes the signature over the
// exact bytes sent, so the body buffer is marshaled once and never rewritten.
type Client struct {
	httpClient *http.Client
	baseURL    string
	agentID    string
	psk        string
	logger     *logger.CanonicalLogger
}

func NewClient(cfg *Config, timeout time.Duration, log *logger.CanonicalLogger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.ServerURL, "/"),
		agentID:    cfg.AgentID,
		psk:        cfg.PSK,
		logger:     log,
	}
}

// Probe checks server reachability. Used by the startup connectivity probe.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Beacon performs one beacon round trip.
func (c *Client) Beacon(ctx context.Context, req *dto.BeaconRequest) (*dto.BeaconResponse, error) {
	var resp dto.BeaconResponse
	if err := c.signedPost(ctx, "/api/v1/agent/beacon", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendResults submits task results outside the beacon cycle.
func (c *Client) SendResults(ctx context.Context, results []models.TaskResult) error {
	return c.signedPost(ctx, "/api/v1/agent/task_results", results, nil)
}

// SendTelemetry submits a named-metric batch.
func (c *Client) SendTelemetry(ctx context.Context, batch *dto.TelemetryBatchRequest) error {
	return c.signedPost(ctx, "/api/v1/agent/telemetry", batch, nil)
}

func (c *Client) signedPost(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderAgentID, c.agentID)
	req.Header.Set(middleware.HeaderSignature, authentication.Sign(c.psk, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(b))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
