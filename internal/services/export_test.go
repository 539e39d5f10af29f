package services

import "time"

// SetClock replaces the message timestamp source.
func SetClock(m *Messaging, now func() time.Time) {
	m.now = now
}

// SetLease replaces how long the relay holds claimed rows.
func SetLease(rl *Relay, d time.Duration) {
	rl.lease = d
}
