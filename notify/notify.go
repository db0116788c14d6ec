// Package notify implements the Notifier: the engine-side half of the
// outbound delivery contract described in spec §6. It satisfies
// governor.Sink so the Global Governor's notification drainer can hand it
// messages at the fixed drain cadence, and wraps a channels.Channel for
// actual platform delivery.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/veillebot/change"
	"github.com/hazyhaar/veillebot/channels"
	"github.com/hazyhaar/veillebot/store"
)

// Message is the outbound shape handed to governor.Enqueue: URL,
// change_type, similarity_final, an optional safe diff, and a flag
// distinguishing cooldown/diagnostic events from change alerts.
type Message struct {
	URL             string
	ChangeType      store.ChangeType
	SimilarityFinal float64
	SafeDiff        string
	Kind            Kind
	Reason          string // populated for Cooldown/Diagnostic kinds
}

// Kind distinguishes the three notification shapes the engine emits.
type Kind string

const (
	KindChange     Kind = "change"
	KindCooldown   Kind = "cooldown"
	KindDiagnostic Kind = "diagnostic"
)

// Notifier delivers messages to a chat. One Notifier instance is shared by
// the Patrol Engine (change alerts), the Request Manager's cooldown hook,
// and the 3-failure diagnostic path.
type Notifier struct {
	channel channels.Channel
	logger  *slog.Logger
}

// New wraps ch as a Notifier.
func New(ch channels.Channel, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{channel: ch, logger: logger}
}

// Deliver satisfies governor.Sink. msg is expected to be a Message; any
// other type is logged and dropped rather than panicking the drainer.
func (n *Notifier) Deliver(ctx context.Context, chatID string, msg any) error {
	m, ok := msg.(Message)
	if !ok {
		n.logger.Warn("notify: dropped notification of unexpected type", "chat_id", chatID)
		return nil
	}

	err := n.channel.Send(ctx, channels.Message{
		RecipientID: chatID,
		Text:        format(m),
		Timestamp:   time.Now(),
	})
	if err != nil {
		n.logger.Warn("notify: delivery failed", "chat_id", chatID, "url", m.URL, "error", err)
	}
	return err
}

func format(m Message) string {
	switch m.Kind {
	case KindCooldown:
		return fmt.Sprintf("⚠️ %s is temporarily unreachable and has been paused: %s", m.URL, m.Reason)
	case KindDiagnostic:
		return fmt.Sprintf("⚠️ %s has failed %s", m.URL, m.Reason)
	default:
		body := fmt.Sprintf("🔔 Change detected on %s\ntype: %s\nsimilarity: %.2f",
			m.URL, m.ChangeType, m.SimilarityFinal)
		if m.SafeDiff != "" {
			body += "\n\n" + m.SafeDiff
		}
		return body
	}
}

// ChangeMessage builds a change-alert Message from a computed change
// decision, optionally including the safe diff per the monitor's
// include_diff config.
func ChangeMessage(url string, changeType store.ChangeType, metrics change.Metrics, safeDiff string, includeDiff bool) Message {
	m := Message{
		URL:             url,
		ChangeType:      changeType,
		SimilarityFinal: metrics.Final,
		Kind:            KindChange,
	}
	if includeDiff {
		m.SafeDiff = safeDiff
	}
	return m
}

// CooldownMessage builds the one-shot notification emitted when a host's
// breaker trips to OPEN.
func CooldownMessage(url string) Message {
	return Message{URL: url, Kind: KindCooldown, Reason: "repeated failures; monitoring paused for up to 1 hour"}
}

// DiagnosticMessage builds the notification emitted after three
// consecutive failures on a monitor.
func DiagnosticMessage(url string) Message {
	return Message{URL: url, Kind: KindDiagnostic, Reason: "3 consecutive checks in a row"}
}
