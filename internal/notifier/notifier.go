// Package notifier
package notifier

import (
	"time"

	"github.com/pouyanh/rsi-trader/internal/utils"
)

// Notifier interface for sending notifications (e.g., Telegram, email).
type Notifier interface {
	Send(msg string) error
	SendWithRetry(msg string) error
}

// Noop discards all notifications. Used when no channel is configured.
type Noop struct{}

func (Noop) Send(msg string) error          { return nil }
func (Noop) SendWithRetry(msg string) error { return nil }

// RetryWithNotification retries an action and reports persistent failure
// through the notifier.
func RetryWithNotification(n Notifier, action func() error, description string, attempts int, delay time.Duration) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = action(); err == nil {
			return nil
		}
		utils.GetLogger().Printf("Notifier | %s failed (attempt %d/%d): %v", description, i, attempts, err)
		time.Sleep(delay)
	}
	n.SendWithRetry("persistent failure: " + description)
	return err
}
