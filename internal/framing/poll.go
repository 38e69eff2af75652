package framing

import "time"

// PollPolicy is the tiered wait a blocking receiver applies while no
// complete message is ready. The tiers trade CPU spin against latency.
type PollPolicy struct {
	Busy          time.Duration // partial message, raw backlog at or above BusyThreshold
	Draining      time.Duration // partial message, backlog nearly drained
	Idle          time.Duration // nothing pending at all
	BusyThreshold int
}

// DefaultPollPolicy returns the 5ms / 10ms / 200ms tiers.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Busy:          5 * time.Millisecond,
		Draining:      10 * time.Millisecond,
		Idle:          200 * time.Millisecond,
		BusyThreshold: 5,
	}
}

// Delay returns how long to wait before checking again. partial reports
// whether any decoder holds an incomplete message; backlog is the number of
// raw chunks behind it.
func (p PollPolicy) Delay(partial bool, backlog int) time.Duration {
	if !partial {
		return p.Idle
	}
	if backlog >= p.BusyThreshold {
		return p.Busy
	}
	return p.Draining
}
