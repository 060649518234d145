// internal/browser/context_utils.go
package browser

import (
	"context"
)

// CombineContext returns a context derived from ctx1 that is also canceled when
// ctx2 is done. Values come from ctx1 only, which matters for chromedp: the
// target (tab) travels in the session context while the caller's context
// carries the operational deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)
	stop := context.AfterFunc(ctx2, cancel)

	return combinedCtx, func() {
		stop()
		cancel()
	}
}
