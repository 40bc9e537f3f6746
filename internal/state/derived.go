package state

import (
	"math"
	"time"
)

// Derived facts are pure functions over a snapshot. They are recomputed for
// every snapshot and hold nothing across calls; a host flag computed from
// one snapshot never outlives it.

// UserSeat finds the snapshot owner's seat in the current room.
func UserSeat(s Snapshot) (Seat, bool) {
	if s.Room == nil {
		return Seat{}, false
	}
	for _, seat := range s.Room.Seats {
		if seat.UserID == s.Identity.UserID {
			return seat, true
		}
	}
	return Seat{}, false
}

// IsHost reports whether the snapshot owner holds the host seat.
func IsHost(s Snapshot) bool {
	seat, ok := UserSeat(s)
	return ok && seat.IsHost
}

// IsMyTurn reports whether the active question window belongs to the
// snapshot owner. It is false in every status other than question_active.
func IsMyTurn(s Snapshot) bool {
	game := s.Game()
	if game == nil || game.Status != StatusQuestionActive || game.ActiveWindow == nil {
		return false
	}
	seat, ok := UserSeat(s)
	return ok && game.ActiveWindow.SeatIdx == seat.SeatIdx
}

// Remaining computes the whole seconds left in the active window at the
// given wall-clock instant, clamped at zero. Outside question_active it is
// always zero.
func Remaining(s Snapshot, now time.Time) int {
	game := s.Game()
	if game == nil || game.Status != StatusQuestionActive || game.ActiveWindow == nil {
		return 0
	}
	left := game.ActiveWindow.Deadline().Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}
