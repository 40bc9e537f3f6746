package client

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quizlink/quizlink/internal/state"
	"github.com/quizlink/quizlink/internal/transport"
)

var (
	ErrMissingIdentity = errors.New("quizlink: missing user identity")
	ErrSessionClosed   = errors.New("quizlink: session closed")
)

// sender is the outbound half of the transport, split out so tests can
// capture commands without a live connection.
type sender interface {
	Send(event string, payload any) error
	Close() error
}

// Options configure one game session.
type Options struct {
	URL      string
	Token    string
	Identity state.Identity
	Logger   zerolog.Logger

	// OnTick receives the remaining seconds of the active question window,
	// about once per second, and a final 0 when the window closes. Display
	// state only; the canonical deadline lives in the store.
	OnTick func(secondsLeft int)
}

// Session owns the synchronization core for one authenticated user: the
// transport channel, the event demultiplexer, the state store and the
// countdown. Callers hold the session explicitly and pass it where needed;
// there is no ambient singleton.
type Session struct {
	log   zerolog.Logger
	store *state.Store
	ch    sender
	clock *countdown

	handlers map[string]func([]byte)

	mu     sync.Mutex
	closed bool
}

// Dial authenticates and connects. It fails fast, creating no session, when
// the token or the user identity is absent.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	if opts.Token == "" {
		return nil, transport.ErrMissingToken
	}
	if opts.Identity.UserID == "" {
		return nil, ErrMissingIdentity
	}

	s := newSession(state.NewStore(opts.Identity), opts.Logger, opts.OnTick)
	ch, err := transport.Dial(ctx, transport.Config{
		URL:    opts.URL,
		Token:  opts.Token,
		Logger: opts.Logger,
	}, s.dispatch, s.onTransportState)
	if err != nil {
		return nil, err
	}
	s.ch = ch
	return s, nil
}

func newSession(store *state.Store, log zerolog.Logger, onTick func(int)) *Session {
	s := &Session{
		log:   log,
		store: store,
		clock: newCountdown(log, onTick),
	}
	s.registerHandlers()
	return s
}

// Snapshot returns the current immutable state view.
func (s *Session) Snapshot() state.Snapshot { return s.store.Snapshot() }

// Subscribe delivers a snapshot after every store mutation.
func (s *Session) Subscribe() (<-chan state.Snapshot, func()) { return s.store.Subscribe() }

// DismissAlert clears the current room/game error message.
func (s *Session) DismissAlert() { s.store.ClearAlert() }

// Close tears the session down: countdown cancelled and store reset under
// the session mutex, so any handler still in flight finishes first and none
// can resurrect cleared state afterward.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.clock.stop()
	s.store.Reset()
	s.mu.Unlock()

	if s.ch != nil {
		return s.ch.Close()
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) onTransportState(ts transport.State, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	switch ts {
	case transport.StateConnected:
		s.store.SetConnStatus(state.ConnConnected, "")
	case transport.StateConnecting:
		// The store drops room and game state here; whatever the server
		// holds for us is re-sent as fresh snapshots after reconnect.
		s.clock.stop()
		s.store.SetConnStatus(state.ConnConnecting, reason)
	case transport.StateErrored:
		s.clock.stop()
		s.store.SetConnStatus(state.ConnError, reason)
	default:
		s.clock.stop()
		s.store.SetConnStatus(state.ConnDisconnected, reason)
	}
}

// syncClock aligns the countdown with the latest game snapshot.
func (s *Session) syncClock() {
	game := s.store.Snapshot().Game()
	if game != nil && game.Status == state.StatusQuestionActive && game.ActiveWindow != nil {
		s.clock.start(game.ActiveWindow.Deadline())
		return
	}
	s.clock.stop()
}

var _ sender = (*transport.Channel)(nil)
