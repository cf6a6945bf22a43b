package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

const apiBaseURL = "https://api.telegram.org"

// Notifier sends run digests to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  apiBaseURL,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify posts a Markdown digest of the run to Telegram.
func (n *Notifier) Notify(ctx context.Context, report domain.RunReport) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimSuffix(n.baseURL, "/"), n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", BuildDigest(report))
	form.Set("parse_mode", "Markdown")
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// BuildDigest renders the report as a short Markdown message.
func BuildDigest(report domain.RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", escape(report.Query.Text))

	if !report.Result.Success {
		fmt.Fprintf(&b, "Run failed: %s\n", escape(report.Result.Error))
		return b.String()
	}
	if len(report.Products) == 0 {
		fmt.Fprintf(&b, "No products found (%d candidates).\n", report.Result.CandidateCount)
		return b.String()
	}

	fmt.Fprintf(&b, "Top %d of %d candidates:\n\n", report.Result.Top10Count, report.Result.CandidateCount)
	for _, p := range report.Products {
		fmt.Fprintf(&b, "%d. %s - %d/100\n%s\n",
			p.Rank,
			escape(p.Product.DisplayName()),
			p.Scores.Overall,
			escape(p.Rationale))
		if len(p.Citations) > 0 {
			fmt.Fprintf(&b, "%s\n", escape(p.Citations[0].SourceURL))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escape(s string) string {
	return markdownEscaper.Replace(s)
}
