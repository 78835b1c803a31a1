// Package clock centralises "now" and "today" so tests can pin time.
package clock

import "time"

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// Location is the zone calendar dates are computed in.
var Location = time.Local

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }

// Today returns midnight of the current day in Location.
func Today() time.Time { return DateOf(NowFunc()) }

// DateOf truncates t to midnight in Location.
func DateOf(t time.Time) time.Time {
	t = t.In(Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location)
}
