package client

import (
	"context"
	"time"
)

// Schedule is the backoff between successive reconnect attempts.
var Schedule = []time.Duration{
	time.Second, time.Second, time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second,
	15 * time.Second, 15 * time.Second, 15 * time.Second,
}

// Delay returns the backoff for the given attempt. Attempts past the end of
// Schedule wait 30 seconds.
func Delay(attempt int) time.Duration {
	if attempt < len(Schedule) {
		return Schedule[attempt]
	}
	return 30 * time.Second
}

// Reconnect dials the last address again until it succeeds or ctx ends.
// It does nothing while the connection is still up.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.reconnect(ctx, Delay)
}

func (c *Client) reconnect(ctx context.Context, delay func(int) time.Duration) error {
	addr := c.Addr()
	for attempt := 0; ; attempt++ {
		if c.IsConnected() {
			return nil
		}
		err := c.ConnectAddr(ctx, addr)
		if err == nil {
			return nil
		}
		wait := delay(attempt)
		c.log.Warn().Err(err).Str("addr", addr).Int("attempt", attempt+1).Dur("retry_in", wait).Msg("reconnect failed")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
