package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/iamwavecut/modcore/internal/config"
	apperrors "github.com/iamwavecut/modcore/internal/errors"
)

// Message is the unit handed to the scoring oracle.
type Message struct {
	ID        string
	UserID    int64
	ChatID    int64
	Text      string
	Timestamp time.Time
}

type Symbol struct {
	Score       float64 `json:"score"`
	MetricScore float64 `json:"metric_score"`
}

// ScanResult is the oracle's verdict: a raw score plus the named symbols it
// attached to the message.
type ScanResult struct {
	Score   float64           `json:"score"`
	Action  string            `json:"action"`
	Symbols map[string]Symbol `json:"symbols"`
}

// Scanner is the read side of the oracle.
type Scanner interface {
	Scan(ctx context.Context, msg Message) (*ScanResult, error)
}

// Learner feeds labeled examples back into the oracle.
type Learner interface {
	LearnSpam(ctx context.Context, messageID, text string) error
	LearnHam(ctx context.Context, messageID, text string) error
}

// Client talks to an rspamd-compatible controller. The core treats it as an
// opaque scoring oracle; nothing here interprets message content.
type Client struct {
	baseURL    string
	password   string
	httpClient *http.Client
}

func NewClient(cfg config.Classifier) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Scan(ctx context.Context, msg Message) (*ScanResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkv2", strings.NewReader(formatEnvelope(msg)))
	if err != nil {
		return nil, errors.Wrap(err, "create scan request")
	}
	req.Header.Set("Content-Type", "message/rfc822")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrClassifierUnavailable, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Wrapf(apperrors.ErrClassifierUnavailable, "scan status %d: %s", resp.StatusCode, string(body))
	}
	result := &ScanResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, errors.Wrap(apperrors.ErrClassifierUnavailable, err.Error())
	}
	return result, nil
}

func (c *Client) LearnSpam(ctx context.Context, messageID, text string) error {
	return c.learn(ctx, "/learnspam", messageID, text)
}

func (c *Client) LearnHam(ctx context.Context, messageID, text string) error {
	return c.learn(ctx, "/learnham", messageID, text)
}

func (c *Client) learn(ctx context.Context, endpoint, messageID, text string) error {
	body := formatEnvelope(Message{ID: messageID, Text: text, Timestamp: time.Now()})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create learn request")
	}
	req.Header.Set("Content-Type", "message/rfc822")
	if c.password != "" {
		req.Header.Set("Password", c.password)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(apperrors.ErrClassifierUnavailable, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	// The controller rejects re-submissions of material it already holds;
	// that is a success for our purposes.
	if strings.Contains(string(raw), "already learned") {
		return nil
	}
	return errors.Wrapf(apperrors.ErrClassifierUnavailable, "learn status %d: %s", resp.StatusCode, string(raw))
}

// formatEnvelope wraps the message text into a minimal rfc822 envelope the
// controller accepts, carrying the telegram identifiers as headers.
func formatEnvelope(msg Message) string {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf(
		"Message-ID: <%s@telegram.bot>\r\n"+
			"Date: %s\r\n"+
			"From: telegram-user-%d@local\r\n"+
			"To: telegram-chat-%d@local\r\n"+
			"Subject: Telegram message\r\n"+
			"X-Telegram-User: %d\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		msg.ID,
		ts.Format(time.RFC1123Z),
		msg.UserID,
		msg.ChatID,
		msg.UserID,
		strings.ReplaceAll(msg.Text, "\n", "\r\n"),
	)
}
