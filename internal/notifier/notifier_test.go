package notifier

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingNotifier struct {
	sent []string
}

func (r *recordingNotifier) Send(msg string) error { r.sent = append(r.sent, msg); return nil }
func (r *recordingNotifier) SendWithRetry(msg string) error {
	r.sent = append(r.sent, msg)
	return nil
}

func TestRetryWithNotificationEventualSuccess(t *testing.T) {
	n := &recordingNotifier{}
	calls := 0
	err := RetryWithNotification(n, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}, "flaky action", 3, time.Millisecond)

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Empty(t, n.sent, "success must not notify")
}

func TestRetryWithNotificationPersistentFailure(t *testing.T) {
	n := &recordingNotifier{}
	calls := 0
	err := RetryWithNotification(n, func() error {
		calls++
		return errors.New("down")
	}, "doomed action", 3, time.Millisecond)

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "doomed action")
}

func TestNoopDiscards(t *testing.T) {
	assert.NoError(t, Noop{}.Send("x"))
	assert.NoError(t, Noop{}.SendWithRetry("x"))
}
