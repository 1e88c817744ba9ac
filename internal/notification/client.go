package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/skillboard-api/internal/config"
)

// Client delivers messages through the external notification gateway. The
// gateway is addressed with an opaque per-user delivery token; delivery
// failures are always non-fatal to the operation that triggered them.
type Client struct {
	serviceURL string
	enabled    bool
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new notification gateway client
func NewClient(cfg *config.NotificationConfig, logger *slog.Logger) *Client {
	return &Client{
		serviceURL: cfg.ServiceURL,
		enabled:    cfg.Enabled && cfg.ServiceURL != "",
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// payload is the gateway's delivery request shape
type payload struct {
	FID   int64  `json:"fid"`
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send delivers a message to the user identified by fid using their stored
// delivery token
func (c *Client) Send(ctx context.Context, fid int64, token, title, body string) error {
	if !c.enabled {
		c.logger.Debug("notification gateway disabled, skipping", "fid", fid)
		return nil
	}

	data, err := json.Marshal(payload{FID: fid, Token: token, Title: title, Body: body})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification gateway returned status %d", resp.StatusCode)
	}
	return nil
}
