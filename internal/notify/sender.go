// Package notify delivers migration notification emails through a hosted
// email provider.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/config"
	"golang.org/x/oauth2"
)

// Provider names accepted in notifications.service_type
const (
	ProviderBrevo      = "brevo"
	ProviderSendinblue = "sendinblue"
	ProviderSendGrid   = "sendgrid"
	ProviderMailgun    = "mailgun"
	ProviderCustom     = "custom"
)

const (
	brevoEndpoint    = "https://api.brevo.com/v3/smtp/email"
	sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"
	mailgunBaseURL   = "https://api.mailgun.net/v3"

	maxErrorBody = 4 << 10
)

var (
	// ErrServiceURLRequired is returned by the custom provider without a URL
	ErrServiceURLRequired = errors.New("EMAIL_SERVICE_URL is required for custom email service")
	// ErrMailgunDomain is returned when no mailgun domain can be determined
	ErrMailgunDomain = errors.New("mailgun domain is not configured")

	tagPattern           = regexp.MustCompile(`<[^>]*>`)
	mailgunDomainPattern = regexp.MustCompile(`v3/([^/]+)`)
)

// Message is one outbound email. Body is HTML.
type Message struct {
	To            string
	Subject       string
	Body          string
	MigrationData json.RawMessage
}

// Result describes what Send did
type Result struct {
	// Delivered is false when no provider is configured and the email was only logged
	Delivered bool
}

// Sender sends emails through the configured provider
type Sender struct {
	cfg        config.NotificationsConfig
	httpClient *http.Client
	logger     *slog.Logger

	// endpoints, overridable in tests
	brevoURL    string
	sendGridURL string
	mailgunURL  string
}

// NewSender creates a sender for cfg
func NewSender(cfg config.NotificationsConfig, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceType == "" {
		cfg.ServiceType = ProviderBrevo
	}
	return &Sender{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		brevoURL:    brevoEndpoint,
		sendGridURL: sendGridEndpoint,
		mailgunURL:  mailgunBaseURL,
	}
}

// Configured reports whether an API key is set
func (s *Sender) Configured() bool {
	return s.cfg.APIKey != ""
}

// Send delivers msg. Without an API key the email is logged and treated
// as sent.
func (s *Sender) Send(ctx context.Context, msg Message) (Result, error) {
	if !s.Configured() {
		s.logger.Info("Email would be sent (no service configured)",
			"to", msg.To,
			"subject", msg.Subject,
			"body", preview(msg.Body, 100))
		return Result{}, nil
	}

	var err error
	switch strings.ToLower(s.cfg.ServiceType) {
	case ProviderBrevo, ProviderSendinblue:
		err = s.sendBrevo(ctx, msg)
	case ProviderSendGrid:
		err = s.sendSendGrid(ctx, msg)
	case ProviderMailgun:
		err = s.sendMailgun(ctx, msg)
	default:
		err = s.sendCustom(ctx, msg)
	}
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("Email sent", "provider", s.cfg.ServiceType, "to", msg.To, "subject", msg.Subject)
	return Result{Delivered: true}, nil
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (s *Sender) sendBrevo(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"sender":      address{Email: s.cfg.From, Name: s.cfg.FromName},
		"to":          []address{{Email: msg.To}},
		"subject":     msg.Subject,
		"htmlContent": msg.Body,
	}
	req, err := jsonRequest(ctx, s.brevoURL, payload)
	if err != nil {
		return err
	}
	req.Header.Set("api-key", s.cfg.APIKey)
	return s.execute(s.httpClient, req)
}

func (s *Sender) sendSendGrid(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"personalizations": []map[string]any{{
			"to":      []address{{Email: msg.To}},
			"subject": msg.Subject,
		}},
		"from": address{Email: s.cfg.From, Name: s.cfg.FromName},
		"content": []map[string]string{{
			"type":  "text/html",
			"value": msg.Body,
		}},
	}
	req, err := jsonRequest(ctx, s.sendGridURL, payload)
	if err != nil {
		return err
	}
	return s.execute(s.bearerClient(ctx), req)
}

func (s *Sender) sendMailgun(ctx context.Context, msg Message) error {
	domain := s.cfg.MailgunDomain
	if domain == "" {
		if m := mailgunDomainPattern.FindStringSubmatch(s.cfg.ServiceURL); m != nil {
			domain = m[1]
		}
	}
	if domain == "" {
		return ErrMailgunDomain
	}

	form := url.Values{}
	form.Set("from", fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From))
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("html", msg.Body)

	endpoint := fmt.Sprintf("%s/%s/messages", strings.TrimRight(s.mailgunURL, "/"), url.PathEscape(domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", s.cfg.APIKey)
	return s.execute(s.httpClient, req)
}

func (s *Sender) sendCustom(ctx context.Context, msg Message) error {
	if s.cfg.ServiceURL == "" {
		return ErrServiceURLRequired
	}

	migrationData := msg.MigrationData
	if len(migrationData) == 0 || string(migrationData) == "null" {
		migrationData = json.RawMessage(`{}`)
	}
	payload := map[string]any{
		"to":            msg.To,
		"subject":       msg.Subject,
		"html":          msg.Body,
		"text":          StripTags(msg.Body),
		"migrationData": migrationData,
	}
	req, err := jsonRequest(ctx, s.cfg.ServiceURL, payload)
	if err != nil {
		return err
	}
	return s.execute(s.bearerClient(ctx), req)
}

// bearerClient returns a client that adds the API key as a bearer token
func (s *Sender) bearerClient(ctx context.Context) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.cfg.APIKey}))
	client.Timeout = s.httpClient.Timeout
	return client
}

func (s *Sender) execute(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("email service request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("email service error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func jsonRequest(ctx context.Context, endpoint string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode email payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// StripTags removes HTML tags, leaving the text content
func StripTags(html string) string {
	return tagPattern.ReplaceAllString(html, "")
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
