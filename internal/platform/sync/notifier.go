package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/andrewinci/actual-sync/pkg/logger"
)

// Notification priorities (ntfy scale: 1 min .. 5 max)
const (
	PriorityDefault = 3
	PriorityHigh    = 4
)

const (
	titleClean  = "Actual sync completed"
	titleIssues = "Actual sync completed with issues"
)

// BuildNotification derives the notification from a finished run.
// Output depends only on the counters and names, in run order.
func BuildNotification(result RunResult) Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "Accounts synced: %d\n", result.AccountSyncs)
	fmt.Fprintf(&b, "New transactions: %d\n", result.NewTransactions)
	fmt.Fprintf(&b, "Balance mismatches: %d", result.BalanceMismatches)

	if !result.HasIssues() {
		return Notification{
			Title:    titleClean,
			Body:     b.String(),
			Tags:     []string{"white_check_mark", "moneybag"},
			Priority: PriorityDefault,
		}
	}

	if len(result.MismatchedBanks) > 0 {
		fmt.Fprintf(&b, "\nMismatched accounts: %s", strings.Join(result.MismatchedBanks, ", "))
	}
	if len(result.Failed) > 0 {
		fmt.Fprintf(&b, "\nFailed accounts: %d", len(result.Failed))
		for _, f := range result.Failed {
			fmt.Fprintf(&b, "\n- %s: %v", f.Name, f.Err)
		}
	}

	return Notification{
		Title:    titleIssues,
		Body:     b.String(),
		Tags:     []string{"warning", "moneybag"},
		Priority: PriorityHigh,
	}
}

// NotificationDecider dispatches the run summary. It never fails the run.
type NotificationDecider struct {
	notifier Notifier
	logger   *logger.Logger
}

// NewNotificationDecider creates a decider; a nil notifier makes Dispatch a no-op
func NewNotificationDecider(notifier Notifier, log *logger.Logger) *NotificationDecider {
	return &NotificationDecider{
		notifier: notifier,
		logger:   log.WithField("component", "notification"),
	}
}

// Dispatch posts the notification for result. Failures are logged and dropped.
// It reports whether a notification was delivered.
func (d *NotificationDecider) Dispatch(ctx context.Context, result RunResult) bool {
	if d.notifier == nil {
		return false
	}

	n := BuildNotification(result)
	log := d.logger.WithContext(ctx)

	if err := d.notifier.Post(ctx, n); err != nil {
		log.Error("failed to send notification", "title", n.Title, "error", err)
		return false
	}

	log.Info("notification sent", "title", n.Title, "has_issues", result.HasIssues())
	return true
}
