package goMFA

import (
	"context"

	"github.com/MrEthical07/goMFA/notify"
)

// emit adds the request's client details to event and queues it.
func (e *Engine) emit(ctx context.Context, event notify.Event) {
	if e == nil || e.notifier == nil {
		return
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		event = event.WithData("ip", ip)
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		event = event.WithData("userAgent", ua)
	}
	e.notifier.Emit(ctx, event)
}
