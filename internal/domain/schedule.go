// Package domain defines the core persistence models for the application.
// This file holds the pure scheduling rules shared by the intake and review
// flows: consultation status values, the allowed status transitions, and
// 10-minute slot snapping for preferred consultation times.
package domain

import "time"

// Consultation request status values. A request starts as StatusPending and
// is resolved exactly once to StatusApproved or StatusRejected.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Consultation request kinds: whether the request originates from a
// prospective buyer or from the seller side.
const (
	KindBuy  = "buy"
	KindSell = "sell"
)

// StatusLabels maps a status to its user-facing Korean label.
var StatusLabels = map[string]string{
	StatusPending:  "대기중",
	StatusApproved: "승인됨",
	StatusRejected: "거절됨",
}

// allowedTransitions is the directed graph of permitted status changes.
// Approved and rejected are terminal: there is no revert through the review
// surface; any such need is a manual data correction.
var allowedTransitions = map[string][]string{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {},
	StatusRejected: {},
}

// ValidStatus reports whether s is one of the three enumerated statuses.
func ValidStatus(s string) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// ValidKind reports whether k is "buy" or "sell".
func ValidKind(k string) bool { return k == KindBuy || k == KindSell }

// CanTransition reports whether from -> to is a permitted status change.
// Self-transitions are not permitted; the review surface writes each
// resolution exactly once.
func CanTransition(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SlotMinutes is the granularity of consultation slots.
const SlotMinutes = 10

// Wire formats for the date and time fields of a slot.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// SnapSlot rounds t up to the next 10-minute boundary, carrying minute
// overflow into the hour (and, at 23:5x, into the next day). Times already
// on a boundary are returned unchanged, so snapping is idempotent. Seconds
// and sub-second components are dropped.
func SnapSlot(t time.Time) time.Time {
	t = t.Truncate(time.Minute)
	rem := t.Minute() % SlotMinutes
	if rem == 0 {
		return t
	}
	return t.Add(time.Duration(SlotMinutes-rem) * time.Minute)
}

// ParseSlot parses a (date, clock) pair in DateLayout/TimeLayout and returns
// the snapped slot time. The zone is UTC; slots are wall-clock values, not
// instants, and are compared as strings once formatted.
func ParseSlot(date, clock string) (time.Time, error) {
	t, err := time.Parse(DateLayout+" "+TimeLayout, date+" "+clock)
	if err != nil {
		return time.Time{}, err
	}
	return SnapSlot(t), nil
}

// FormatSlot splits a slot time back into its wire-format date and clock.
func FormatSlot(t time.Time) (date, clock string) {
	return t.Format(DateLayout), t.Format(TimeLayout)
}
