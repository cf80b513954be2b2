package transport

import (
	"math/rand"
	"time"
)

// backoff produces reconnection delays: exponential growth from an initial
// delay up to a cap, with full jitter so a fleet of clients does not redial
// in lockstep.
type backoff struct {
	initial time.Duration
	max     time.Duration
	attempt int
}

func newBackoff(initial, max time.Duration) *backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &backoff{initial: initial, max: max}
}

// next returns the delay before the upcoming attempt and advances the
// attempt counter. The delay is drawn uniformly from (0, ceiling] where the
// ceiling doubles per attempt until it hits the cap.
func (b *backoff) next() time.Duration {
	ceiling := b.initial << b.attempt
	if ceiling > b.max || ceiling <= 0 {
		ceiling = b.max
	} else {
		b.attempt++
	}

	return time.Duration(rand.Int63n(int64(ceiling))) + 1
}

// reset returns the backoff to its initial ceiling after a successful
// connection.
func (b *backoff) reset() {
	b.attempt = 0
}
