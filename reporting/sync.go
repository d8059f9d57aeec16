package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SyncTimeoutError means one or more reporters failed to flush within the
// configured timeout. The run result itself is unaffected; reported output
// may be incomplete.
type SyncTimeoutError struct {
	Pending []string
}

func (e *SyncTimeoutError) Error() string {
	return fmt.Sprintf("reporters did not synchronize in time: %s", strings.Join(e.Pending, ", "))
}

// IsSyncTimeout checks if the error is or wraps a SyncTimeoutError.
func IsSyncTimeout(err error) bool {
	var syncErr *SyncTimeoutError
	return err != nil && errors.As(err, &syncErr)
}

// WaitForSync polls every reporter until all report synchronized, the
// timeout elapses or ctx is cancelled. On timeout it returns a
// SyncTimeoutError naming the laggards.
func WaitForSync(ctx context.Context, log *zap.SugaredLogger, reporters []Reporter, interval, timeout time.Duration) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pending := pendingReporters(reporters)
		if len(pending) == 0 {
			return nil
		}
		if !time.Now().Before(deadline) {
			log.Warnw("Reporter sync timed out", "pending", pending, "timeout", timeout)
			return &SyncTimeoutError{Pending: pending}
		}

		log.Debugw("Waiting for reporters to synchronize", "pending", pending)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func pendingReporters(reporters []Reporter) []string {
	var pending []string
	for _, r := range reporters {
		if !r.Synchronized() {
			pending = append(pending, r.Name())
		}
	}
	return pending
}
