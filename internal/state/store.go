package state

import (
	"errors"
	"sync"
)

// ErrUnknownStatus is returned when a game snapshot carries a status outside
// the enumerated set. The caller logs and ignores the snapshot.
var ErrUnknownStatus = errors.New("state: unknown game status")

// Snapshot is an immutable view of the store at one version. Subscribers and
// projections work on snapshots only; nothing read from a snapshot can
// observe later mutations.
type Snapshot struct {
	Identity        Identity
	Conn            ConnectionState
	Room            *RoomState
	Pending         []PendingGuess
	Alert           string
	HostLeavePrompt bool
}

// InRoom reports whether the snapshot holds a joined room.
func (s Snapshot) InRoom() bool { return s.Room != nil }

// Game returns the game state of the snapshot, or nil outside a room.
func (s Snapshot) Game() *GameState {
	if s.Room == nil {
		return nil
	}
	return s.Room.Game
}

// Store is the single source of truth for client-visible state. All
// mutation entry points are invoked from the event loop; readers get copies.
type Store struct {
	mu       sync.Mutex
	identity Identity
	conn     ConnectionState
	room     *RoomState
	pending  []PendingGuess
	alert    string
	leaveAsk bool

	nextSub int
	subs    map[int]chan Snapshot
}

func NewStore(identity Identity) *Store {
	return &Store{
		identity: identity,
		conn:     ConnectionState{Status: ConnDisconnected},
		subs:     make(map[int]chan Snapshot),
	}
}

// Snapshot returns a copy of the current state.
func (st *Store) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshotLocked()
}

// Identity returns the user this store acts for. Event handlers read it at
// invocation time instead of capturing it at registration.
func (st *Store) Identity() Identity {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.identity
}

// Subscribe registers a snapshot listener. Each mutation publishes the new
// snapshot; a slow subscriber misses intermediate versions rather than
// blocking the event loop. The returned cancel func must be called on
// teardown.
func (st *Store) Subscribe() (<-chan Snapshot, func()) {
	st.mu.Lock()
	defer st.mu.Unlock()
	id := st.nextSub
	st.nextSub++
	ch := make(chan Snapshot, 16)
	st.subs[id] = ch
	return ch, func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if _, ok := st.subs[id]; ok {
			delete(st.subs, id)
			close(ch)
		}
	}
}

// SetConnStatus records transport connectivity. A transition to anything
// other than connected drops the room and game state so that nothing stale
// is ever shown as current while offline.
func (st *Store) SetConnStatus(status ConnStatus, lastError string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.conn = ConnectionState{Status: status, LastError: lastError}
	if status != ConnConnected {
		st.clearRoomLocked()
	}
	st.publishLocked()
}

// ApplyRoomState replaces the room snapshot wholesale.
func (st *Store) ApplyRoomState(room RoomState) error {
	if room.Game != nil && !room.Game.Status.known() {
		return ErrUnknownStatus
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.room = room.clone()
	st.publishLocked()
	return nil
}

// ApplyGameState replaces the game snapshot wholesale. Entering
// question_active clears the pending-guess list regardless of what it held.
func (st *Store) ApplyGameState(game GameState) error {
	if !game.Status.known() {
		return ErrUnknownStatus
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.room == nil {
		// A game event with no joined room is stale traffic from a
		// previous membership; drop it.
		return nil
	}
	st.room.Game = game.Clone()
	if game.Status == StatusQuestionActive {
		st.pending = nil
	}
	st.publishLocked()
	return nil
}

// AddPendingGuess appends a guess awaiting judgment. Duplicate delivery of
// the same guess ID is a no-op.
func (st *Store) AddPendingGuess(g PendingGuess) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.room == nil {
		return
	}
	for _, have := range st.pending {
		if have.GuessID == g.GuessID {
			return
		}
	}
	st.pending = append(st.pending, g)
	st.publishLocked()
}

// RemovePendingGuess drops one guess, used for optimistic removal after a
// judge command is sent.
func (st *Store) RemovePendingGuess(guessID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, have := range st.pending {
		if have.GuessID == guessID {
			st.pending = append(st.pending[:i], st.pending[i+1:]...)
			st.publishLocked()
			return
		}
	}
}

// ClearPending empties the guess list when a question window concludes.
func (st *Store) ClearPending() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.pending == nil {
		return
	}
	st.pending = nil
	st.publishLocked()
}

// UpdateSeatConnected flips a seat's connectivity flag. Seat order and host
// assignment stay untouched; those only ever come from room:state.
func (st *Store) UpdateSeatConnected(userID string, connected bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.room == nil {
		return
	}
	for i := range st.room.Seats {
		if st.room.Seats[i].UserID == userID {
			st.room.Seats[i].IsConnected = connected
			st.publishLocked()
			return
		}
	}
}

// SetAlert overwrites the single user-visible error slot, last write wins.
func (st *Store) SetAlert(message string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.alert = message
	st.publishLocked()
}

// ClearAlert dismisses the current error message.
func (st *Store) ClearAlert() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.alert == "" {
		return
	}
	st.alert = ""
	st.publishLocked()
}

// SetHostLeavePrompt marks that the server asked the host to confirm a leave
// that would end the game for everyone.
func (st *Store) SetHostLeavePrompt(on bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.leaveAsk = on
	st.publishLocked()
}

// ClearRoom drops room, game and pending state after a confirmed leave or a
// forced game end.
func (st *Store) ClearRoom() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.clearRoomLocked()
	st.publishLocked()
}

// Reset tears the whole store down: connection, room, game, pending and
// error state. Used when the owning session closes so that nothing leaks
// into a later session.
func (st *Store) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.conn = ConnectionState{Status: ConnDisconnected}
	st.alert = ""
	st.clearRoomLocked()
	st.publishLocked()
}

func (st *Store) clearRoomLocked() {
	st.room = nil
	st.pending = nil
	st.leaveAsk = false
}

func (st *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Identity:        st.identity,
		Conn:            st.conn,
		Room:            st.room.clone(),
		Alert:           st.alert,
		HostLeavePrompt: st.leaveAsk,
	}
	if st.pending != nil {
		snap.Pending = append([]PendingGuess(nil), st.pending...)
	}
	return snap
}

func (st *Store) publishLocked() {
	snap := st.snapshotLocked()
	for _, ch := range st.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
