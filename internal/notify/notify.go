// Package notify delivers alert messages.
package notify

import "context"

// Notifier sends one alert. Implementations are best effort; callers log
// failures and move on.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, message string) error

func (f Func) Notify(ctx context.Context, message string) error {
	return f(ctx, message)
}
