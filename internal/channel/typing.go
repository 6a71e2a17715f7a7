package channel

import (
	"context"
	"time"
)

// DefaultTypingInterval refreshes the indicator before the platform lets it
// lapse (about ten seconds on Discord).
const DefaultTypingInterval = 8 * time.Second

// StartTypingLoop sends typing indicators to channelID every interval until
// the returned stop function is called or ctx ends. stop blocks until the
// loop goroutine has exited and is safe to call more than once.
func StartTypingLoop(ctx context.Context, ch TypingChannel, channelID int64, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// Send an initial typing indicator immediately.
		_ = ch.SendTyping(ctx, channelID)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = ch.SendTyping(ctx, channelID)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
