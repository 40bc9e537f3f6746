package client

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// countdown drives the question-window display timer. Once per second it
// recomputes the remaining time from the window deadline and the wall clock
// rather than decrementing a counter, so it stays correct across suspension.
// It never writes to the canonical store; it only feeds the display
// callback, and once stopped it guarantees no further tick is delivered.
type countdown struct {
	log    zerolog.Logger
	onTick func(int)

	mu     sync.Mutex
	cancel chan struct{}
}

func newCountdown(log zerolog.Logger, onTick func(int)) *countdown {
	return &countdown{log: log, onTick: onTick}
}

func (c *countdown) start(deadline time.Time) {
	c.mu.Lock()
	if c.cancel != nil {
		close(c.cancel)
	}
	done := make(chan struct{})
	c.cancel = done
	c.mu.Unlock()

	c.emit(secondsLeft(deadline, time.Now()))
	go c.run(deadline, done)
}

// stop cancels the running timer, if any, and zeroes the display.
func (c *countdown) stop() {
	c.mu.Lock()
	running := c.cancel != nil
	if running {
		close(c.cancel)
		c.cancel = nil
	}
	c.mu.Unlock()

	if running {
		c.emit(0)
	}
}

func (c *countdown) run(deadline time.Time, done chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			// A tick may race the close of done; re-check before
			// emitting so nothing fires after teardown.
			select {
			case <-done:
				return
			default:
			}
			left := secondsLeft(deadline, now)
			c.emit(left)
			if left == 0 {
				// Display stays at zero; the window itself concludes
				// only when the server says so.
				return
			}
		}
	}
}

func (c *countdown) emit(left int) {
	if c.onTick != nil {
		c.onTick(left)
	}
}

func secondsLeft(deadline, now time.Time) int {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}
