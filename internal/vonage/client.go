package vonage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const defaultSMSURL = "https://rest.nexmo.com/sms/json"

// DefaultRecordingHosts are the platform hosts recordings are served from.
// Entries are path.Match patterns against the URL hostname.
var DefaultRecordingHosts = []string{"api.nexmo.com", "api.vonage.com", "api-*.vonage.com"}

// ErrUntrustedRecordingURL is returned when a recording URL is not https on
// an allowed platform host. No token is signed for such URLs.
var ErrUntrustedRecordingURL = errors.New("vonage: untrusted recording url")

// APIError is a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vonage: status %d: %s", e.StatusCode, e.Body)
}

// Config configures the platform client.
type Config struct {
	APIKey    string
	APISecret string
	SMSFrom   string
	Signer    *TokenSigner

	// RecordingHosts restricts DownloadRecording; empty uses DefaultRecordingHosts.
	RecordingHosts []string

	SMSURL     string
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client talks to the platform REST APIs used by the voicemail flow:
// authenticated recording download and outbound SMS.
type Client struct {
	apiKey     string
	apiSecret  string
	smsFrom    string
	signer     *TokenSigner
	hosts      []string
	smsURL     string
	httpClient *http.Client
	now        func() time.Time
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("vonage: api key and secret are required")
	}
	c := &Client{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		smsFrom:    cfg.SMSFrom,
		signer:     cfg.Signer,
		hosts:      cfg.RecordingHosts,
		smsURL:     cfg.SMSURL,
		httpClient: cfg.HTTPClient,
		now:        cfg.Now,
	}
	if len(c.hosts) == 0 {
		c.hosts = DefaultRecordingHosts
	}
	for _, h := range c.hosts {
		if _, err := path.Match(h, ""); err != nil {
			return nil, fmt.Errorf("vonage: bad recording host pattern %q: %w", h, err)
		}
	}
	if c.smsURL == "" {
		c.smsURL = defaultSMSURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// DownloadRecording streams the recording at recordingURL into dst and
// returns the number of bytes written. The caller bounds it with ctx.
// The URL must be https on an allowed host, since the request carries an
// application token.
func (c *Client) DownloadRecording(ctx context.Context, recordingURL string, dst io.Writer) (int64, error) {
	if err := c.checkRecordingURL(recordingURL); err != nil {
		return 0, err
	}
	if c.signer == nil {
		return 0, errors.New("vonage: token signer not configured")
	}
	token, err := c.signer.Sign(c.now())
	if err != nil {
		return 0, fmt.Errorf("vonage: sign token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return io.Copy(dst, resp.Body)
}

func (c *Client) checkRecordingURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrustedRecordingURL, err)
	}
	if u.Scheme != "https" || u.User != nil {
		return fmt.Errorf("%w: %s", ErrUntrustedRecordingURL, u.Redacted())
	}
	host := strings.ToLower(u.Hostname())
	for _, pattern := range c.hosts {
		if ok, _ := path.Match(strings.ToLower(pattern), host); ok {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q not allowed", ErrUntrustedRecordingURL, host)
}

type smsResponse struct {
	MessageCount string       `json:"message-count"`
	Messages     []smsMessage `json:"messages"`
}

type smsMessage struct {
	To        string `json:"to"`
	MessageID string `json:"message-id"`
	Status    string `json:"status"`
	ErrorText string `json:"error-text"`
}

// SendSMS sends a unicode text message from the configured sender.
// The message is accepted only when the first message status is "0".
func (c *Client) SendSMS(ctx context.Context, to, text string) error {
	data := url.Values{}
	data.Set("api_key", c.apiKey)
	data.Set("api_secret", c.apiSecret)
	data.Set("from", c.smsFrom)
	data.Set("to", to)
	data.Set("text", text)
	data.Set("type", "unicode")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.smsURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out smsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("vonage: parse sms response: %w", err)
	}
	if len(out.Messages) == 0 {
		return fmt.Errorf("vonage: sms response has no messages")
	}
	if m := out.Messages[0]; m.Status != "0" {
		return fmt.Errorf("vonage: sms rejected: status %s: %s", m.Status, m.ErrorText)
	}
	return nil
}
