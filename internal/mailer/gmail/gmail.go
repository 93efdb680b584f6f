// Package gmail delivers report emails through the Gmail API. It is the
// backend for installations that cannot run an SMTP relay; authorization
// uses the OAuth client/token pair minted by cmd/oauth-init.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	goption "google.golang.org/api/option"

	"finbrief/internal/mailer"
)

type Client struct {
	svc  *gmailapi.Service
	from string
}

var _ mailer.Mailer = (*Client)(nil)

// NewFromEnv creates a Gmail client from environment variables.
// Required: GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE, plus
// GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE.
// Optional: MAIL_FROM (defaults to the authorized account, "me").
func NewFromEnv(ctx context.Context) (*Client, error) {
	clientJSON, err := readEnvJSON("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, err
	}

	cfg, err := google.ConfigFromJSON(clientJSON, gmailapi.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenJSON, err := readEnvJSON("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, err
	}

	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	svc, err := gmailapi.NewService(ctx,
		goption.WithHTTPClient(cfg.Client(ctx, &tok)))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}

	from := strings.TrimSpace(os.Getenv("MAIL_FROM"))
	if from == "" {
		from = "me"
	}

	slog.InfoContext(ctx, "Gmail mail backend initialized", "from", from)

	return &Client{svc: svc, from: from}, nil
}

// SendReport renders the report and submits it as a raw RFC 822 message on
// behalf of the authorized account.
func (c *Client) SendReport(ctx context.Context, msg mailer.ReportEmail) error {
	body, err := mailer.RenderHTML(msg)
	if err != nil {
		return err
	}

	var raw strings.Builder
	fmt.Fprintf(&raw, "From: %s\r\n", c.from)
	fmt.Fprintf(&raw, "To: %s\r\n", msg.Email)
	fmt.Fprintf(&raw, "Subject: %s\r\n", msg.Subject())
	raw.WriteString("MIME-Version: 1.0\r\n")
	raw.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	raw.WriteString("\r\n")
	raw.WriteString(body)

	gm := &gmailapi.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw.String())),
	}

	if _, err := c.svc.Users.Messages.Send("me", gm).Context(ctx).Do(); err != nil {
		return fmt.Errorf("send report email to %s: %w", msg.Email, err)
	}

	slog.InfoContext(ctx, "Report email delivered via Gmail",
		"to", msg.Email,
		"subject", msg.Subject())

	return nil
}

// readEnvJSON reads credential material from an inline JSON env var or,
// failing that, from a file path env var.
func readEnvJSON(jsonKey, fileKey string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(jsonKey)); v != "" {
		return []byte(v), nil
	}
	if path := strings.TrimSpace(os.Getenv(fileKey)); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fileKey, err)
		}
		return b, nil
	}
	return nil, errors.New("set " + jsonKey + " or " + fileKey)
}
