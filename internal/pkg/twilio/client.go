package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.twilio.com"

// Config holds Twilio API credentials for the WhatsApp channel.
type Config struct {
	BaseURL      string
	AccountSID   string
	AuthToken    string
	WhatsAppFrom string // e.g. "whatsapp:+14155238886"
	WhatsAppTo   string // operator group number, e.g. "whatsapp:+5511999990000"
	Timeout      time.Duration
}

// Client sends WhatsApp messages and downloads inbound media
// through the Twilio Messages API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether credentials are configured. When false the
// caller should skip operator alerts instead of failing the operation.
func (c *Client) Enabled() bool {
	return c.cfg.AccountSID != "" && c.cfg.AuthToken != ""
}

type sendResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// SendOperatorMessage posts a WhatsApp message to the configured
// operator number. Used to alert operators about new payout requests.
func (c *Client) SendOperatorMessage(ctx context.Context, body string) error {
	return c.send(ctx, c.cfg.WhatsAppTo, body)
}

// SendMessage posts a WhatsApp message to an arbitrary recipient.
func (c *Client) SendMessage(ctx context.Context, to, body string) error {
	return c.send(ctx, to, body)
}

func (c *Client) send(ctx context.Context, to, body string) error {
	if !c.Enabled() {
		return fmt.Errorf("twilio: credentials not configured")
	}
	if to == "" {
		return fmt.Errorf("twilio: recipient is required")
	}
	if body == "" {
		return fmt.Errorf("twilio: message body is required")
	}

	form := url.Values{}
	form.Set("From", c.cfg.WhatsAppFrom)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("twilio: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var sr sendResponse
		if json.Unmarshal(respBody, &sr) == nil && sr.ErrorMessage != "" {
			return fmt.Errorf("twilio: send failed (status %d): %s", resp.StatusCode, sr.ErrorMessage)
		}
		return fmt.Errorf("twilio: send failed with status %d", resp.StatusCode)
	}
	return nil
}

// DownloadMedia fetches an inbound media attachment by its Twilio URL.
// Twilio media endpoints require basic auth and respond with a redirect
// to the actual content, which the default client follows.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	if !c.Enabled() {
		return nil, "", fmt.Errorf("twilio: credentials not configured")
	}
	if mediaURL == "" {
		return nil, "", fmt.Errorf("twilio: media url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("twilio: build media request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("twilio: download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("twilio: media download failed with status %d", resp.StatusCode)
	}

	const maxMediaSize = 10 << 20
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("twilio: read media body: %w", err)
	}
	if len(data) > maxMediaSize {
		return nil, "", fmt.Errorf("twilio: media exceeds %d bytes", maxMediaSize)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
