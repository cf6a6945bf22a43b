// Package events publishes run reports to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

// DefaultSubjectPrefix is prepended to the lowercased terminal status.
const DefaultSubjectPrefix = "productscout.runs"

type publisher interface {
	Publish(subject string, data []byte) error
}

// Notifier publishes every run report as JSON on <prefix>.<status>.
type Notifier struct {
	pub    publisher
	conn   *nats.Conn
	prefix string
}

var _ ports.Notifier = (*Notifier)(nil)

// Connect dials NATS and returns a notifier owning the connection.
func Connect(url, prefix string) (*Notifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("productscout"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	n := newNotifier(nc, prefix)
	n.conn = nc
	return n, nil
}

func newNotifier(pub publisher, prefix string) *Notifier {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Notifier{pub: pub, prefix: prefix}
}

type runEvent struct {
	QueryID    string                `json:"queryId"`
	Query      string                `json:"query"`
	Status     domain.QueryStatus    `json:"status"`
	Result     domain.PipelineResult `json:"result"`
	Products   []productEvent        `json:"products"`
	OccurredAt time.Time             `json:"occurredAt"`
}

type productEvent struct {
	Rank      int    `json:"rank"`
	ProductID string `json:"productId,omitempty"`
	Name      string `json:"name"`
	Overall   int    `json:"overall"`
}

// Subject returns the subject a report with the given status is published on.
func (n *Notifier) Subject(status domain.QueryStatus) string {
	return n.prefix + "." + strings.ToLower(string(status))
}

// Notify publishes the report.
func (n *Notifier) Notify(_ context.Context, report domain.RunReport) error {
	status := domain.StatusCompleted
	if !report.Result.Success {
		status = domain.StatusFailed
	}

	event := runEvent{
		QueryID:    report.Result.QueryID,
		Query:      report.Query.Text,
		Status:     status,
		Result:     report.Result,
		Products:   make([]productEvent, 0, len(report.Products)),
		OccurredAt: time.Now().UTC(),
	}
	for _, p := range report.Products {
		event.Products = append(event.Products, productEvent{
			Rank:      p.Rank,
			ProductID: p.ProductID,
			Name:      p.Product.DisplayName(),
			Overall:   p.Scores.Overall,
		})
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	subject := n.Subject(status)
	if err := n.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the owned connection, if any.
func (n *Notifier) Close() {
	if n.conn != nil {
		_ = n.conn.Drain()
	}
}
