// Package watch waits for results to appear on the lemma server.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/usi-verification-and-security/ptplib/pkg/header"
	"github.com/usi-verification-and-security/ptplib/pkg/lemmaserver"
)

// PollInterval is the delay between two result lookups.
const PollInterval = 200 * time.Millisecond

// ResultGetter looks up the result reported for an owner.
type ResultGetter interface {
	GetResult(ctx context.Context, owner header.Header) (string, error)
}

// PollForResult polls until a result is reported for the owner's
// (name, node) and returns it, or fails once timeout elapses.
func PollForResult(ctx context.Context, client ResultGetter, owner header.Header, timeout time.Duration) (string, error) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-timeoutCh:
			return "", fmt.Errorf("timeout waiting for result after %v", timeout)

		case <-ticker.C:
			result, err := client.GetResult(ctx, owner)
			if err != nil {
				if lemmaserver.IsNotFound(err) {
					continue
				}
				return "", fmt.Errorf("failed to query for result: %w", err)
			}
			return result, nil
		}
	}
}
