package notification

import (
	"context"
	"log/slog"
)

const (
	// KindETFCreated indicates ETF shares were created offchain.
	KindETFCreated = "etf_created"
	// KindTokenized indicates offchain shares were converted to onchain tokens.
	KindTokenized = "tokenized"
	// KindRedeemed indicates onchain tokens were converted back to shares.
	KindRedeemed = "redeemed"
	// KindSwapSettled indicates a two-asset swap completed all four legs.
	KindSwapSettled = "swap_settled"
)

// Message describes a confirmed-operation notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier receives confirmed-operation notifications published by the
// coordinator, decoupled from the settlement control flow.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
