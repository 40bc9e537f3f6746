package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizlink/quizlink/internal/protocol"
	"github.com/quizlink/quizlink/internal/state"
	"github.com/quizlink/quizlink/internal/transport"
)

type sentCommand struct {
	event   string
	payload any
}

// fakeSender records outbound commands instead of writing to a socket.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentCommand
	err  error
}

func (f *fakeSender) Send(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentCommand{event: event, payload: payload})
	return nil
}

func (f *fakeSender) Close() error { return nil }

func (f *fakeSender) commands() []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCommand(nil), f.sent...)
}

func newTestSession(t *testing.T) (*Session, *fakeSender) {
	t.Helper()
	s := newSession(state.NewStore(state.Identity{UserID: "u1", Username: "Alice"}), zerolog.Nop(), nil)
	fake := &fakeSender{}
	s.ch = fake
	s.onTransportState(transport.StateConnected, nil)
	return s, fake
}

// feed pushes one inbound event through the demultiplexer the way the
// transport reader goroutine would.
func feed(t *testing.T, s *Session, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	s.dispatch(protocol.Envelope{Event: event, Payload: data})
}

func joinRoom(t *testing.T, s *Session) {
	t.Helper()
	feed(t, s, protocol.EvtRoomState, state.RoomState{
		Code:     "ABC123",
		Settings: roomSettings(),
		Seats: []state.Seat{
			{SeatIdx: 0, UserID: "u1", Username: "Alice", IsHost: true, IsConnected: true},
			{SeatIdx: 1, UserID: "u2", Username: "Bob", IsConnected: true},
		},
		Game: &state.GameState{Status: state.StatusOpenFloor, TotalQuestionsTarget: 10, Scores: map[string]int{"u1": 0, "u2": 0}},
	})
}

func roomSettings() state.Settings {
	return state.Settings{
		PlayersMax:        8,
		DirectSeconds:     30,
		PassSeconds:       15,
		PointsPerQuestion: 100,
		TotalQuestions:    10,
		InputMode:         "text",
	}
}

func activeQuestion(deadline time.Time, seatIdx int) state.GameState {
	return state.GameState{
		Status:       state.StatusQuestionActive,
		TurnOwnerIdx: seatIdx,
		ActiveWindow: &state.ActiveWindow{
			EndsAt:           deadline.UnixMilli(),
			SeatIdx:          seatIdx,
			IsDirectQuestion: true,
		},
		Question:             &state.Question{ID: "q1", Prompt: "Capital of France?"},
		Scores:               map[string]int{"u1": 0, "u2": 0},
		TotalQuestionsTarget: 10,
	}
}

func TestCommandsGuardedWhileDisconnected(t *testing.T) {
	s := newSession(state.NewStore(state.Identity{UserID: "u1"}), zerolog.Nop(), nil)
	fake := &fakeSender{}
	s.ch = fake

	if err := s.JoinRoom("ABC123"); err != ErrNotConnected {
		t.Fatalf("JoinRoom: expected ErrNotConnected, got %v", err)
	}
	if err := s.LeaveRoom("ABC123"); err != ErrNotConnected {
		t.Fatalf("LeaveRoom: expected ErrNotConnected, got %v", err)
	}
	if got := fake.commands(); len(got) != 0 {
		t.Fatalf("guarded commands must not reach the wire, sent %+v", got)
	}
}

func TestCommandsRequireRoomMembership(t *testing.T) {
	s, fake := newTestSession(t)

	for name, call := range map[string]func() error{
		"LeaveRoom":     func() error { return s.LeaveRoom("ABC123") },
		"StartGame":     s.StartGame,
		"StartQuestion": s.StartQuestion,
		"NextQuestion":  s.NextQuestion,
		"SubmitAnswer":  func() error { return s.SubmitAnswer("Paris") },
	} {
		if err := call(); err != ErrNotInRoom {
			t.Errorf("%s: expected ErrNotInRoom, got %v", name, err)
		}
	}
	if got := fake.commands(); len(got) != 0 {
		t.Fatalf("nothing should have been sent, got %+v", got)
	}
}

func TestJoinRoomSendsCommand(t *testing.T) {
	s, fake := newTestSession(t)

	if err := s.JoinRoom("ABC123"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	got := fake.commands()
	if len(got) != 1 || got[0].event != protocol.CmdRoomJoin {
		t.Fatalf("expected one %s command, got %+v", protocol.CmdRoomJoin, got)
	}
	payload, ok := got[0].payload.(protocol.JoinRoomPayload)
	if !ok || payload.Code != "ABC123" {
		t.Fatalf("unexpected payload %+v", got[0].payload)
	}
}

func TestSubmitAnswerTrimsWhitespace(t *testing.T) {
	s, fake := newTestSession(t)
	joinRoom(t, s)

	if err := s.SubmitAnswer("   \t  "); err != ErrEmptyAnswer {
		t.Fatalf("expected ErrEmptyAnswer, got %v", err)
	}
	if err := s.SubmitAnswer("  Paris  "); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	got := fake.commands()
	if len(got) != 1 {
		t.Fatalf("expected exactly one sent command, got %d", len(got))
	}
	payload := got[0].payload.(protocol.SubmitAnswerPayload)
	if payload.Answer != "Paris" || payload.Code != "ABC123" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestPendingGuessLifecycle(t *testing.T) {
	s, _ := newTestSession(t)
	joinRoom(t, s)

	feed(t, s, protocol.EvtGameQuestionStarted, activeQuestion(time.Now().Add(30*time.Second), 1))
	feed(t, s, protocol.EvtGameAnswerSubmitted, protocol.AnswerSubmittedPayload{
		UserID: "u2", Username: "Bob", Answer: "Paris", GuessID: "g1",
	})

	snap := s.Snapshot()
	if len(snap.Pending) != 1 || snap.Pending[0].GuessID != "g1" {
		t.Fatalf("expected pending guess g1, got %+v", snap.Pending)
	}

	// Duplicate delivery of the same guess must not double it.
	feed(t, s, protocol.EvtGameAnswerSubmitted, protocol.AnswerSubmittedPayload{
		UserID: "u2", Username: "Bob", Answer: "Paris", GuessID: "g1",
	})
	if snap := s.Snapshot(); len(snap.Pending) != 1 {
		t.Fatalf("duplicate answerSubmitted grew the pending list: %+v", snap.Pending)
	}

	solved := activeQuestion(time.Now(), 1)
	solved.Status = state.StatusOpenFloor
	solved.ActiveWindow = nil
	solved.Scores = map[string]int{"u1": 0, "u2": 100}
	feed(t, s, protocol.EvtGameQuestionSolved, solved)

	snap = s.Snapshot()
	if len(snap.Pending) != 0 {
		t.Fatalf("questionSolved must clear pending guesses, got %+v", snap.Pending)
	}
	if snap.Game().Scores["u2"] != 100 {
		t.Fatalf("expected updated scores, got %+v", snap.Game().Scores)
	}
}

func TestNewQuestionClearsStalePending(t *testing.T) {
	s, _ := newTestSession(t)
	joinRoom(t, s)

	feed(t, s, protocol.EvtGameQuestionStarted, activeQuestion(time.Now().Add(30*time.Second), 1))
	feed(t, s, protocol.EvtGameAnswerSubmitted, protocol.AnswerSubmittedPayload{
		UserID: "u2", Answer: "stale", GuessID: "g1",
	})

	// The next question window starts with an empty pending list even if the
	// previous one was never explicitly concluded.
	feed(t, s, protocol.EvtGameQuestionStarted, activeQuestion(time.Now().Add(30*time.Second), 0))
	if got := s.Snapshot().Pending; len(got) != 0 {
		t.Fatalf("entering question_active must clear pending, got %+v", got)
	}
}

func TestJudgeAnswerRemovesGuessOptimistically(t *testing.T) {
	s, fake := newTestSession(t)
	joinRoom(t, s)
	feed(t, s, protocol.EvtGameQuestionStarted, activeQuestion(time.Now().Add(30*time.Second), 1))
	feed(t, s, protocol.EvtGameAnswerSubmitted, protocol.AnswerSubmittedPayload{
		UserID: "u2", Answer: "Paris", GuessID: "g1",
	})

	if err := s.JudgeAnswer("g1", protocol.DecisionCorrect, 100); err != nil {
		t.Fatalf("JudgeAnswer: %v", err)
	}

	if got := s.Snapshot().Pending; len(got) != 0 {
		t.Fatalf("judged guess must leave pending immediately, got %+v", got)
	}
	got := fake.commands()
	last := got[len(got)-1]
	payload := last.payload.(protocol.JudgeAnswerPayload)
	if payload.GuessID != "g1" || payload.Decision != protocol.DecisionCorrect || payload.Points != 100 {
		t.Fatalf("unexpected judge payload %+v", payload)
	}
}

func TestJudgeAnswerIncorrectOmitsPoints(t *testing.T) {
	s, fake := newTestSession(t)
	joinRoom(t, s)
	feed(t, s, protocol.EvtGameAnswerSubmitted, protocol.AnswerSubmittedPayload{
		UserID: "u2", Answer: "London", GuessID: "g2",
	})

	if err := s.JudgeAnswer("g2", protocol.DecisionIncorrect, 100); err != nil {
		t.Fatalf("JudgeAnswer: %v", err)
	}

	got := fake.commands()
	payload := got[len(got)-1].payload.(protocol.JudgeAnswerPayload)
	if payload.Points != 0 {
		t.Fatalf("incorrect verdicts carry no points, got %+v", payload)
	}
}

func TestJudgeAnswerKeepsGuessOnSendFailure(t *testing.T) {
	s, fake := newTestSession(t)
	joinRoom(t, s)
	feed(t, s, protocol.EvtGameAnswerSubmitted, protocol.AnswerSubmittedPayload{
		UserID: "u2", Answer: "Paris", GuessID: "g1",
	})

	fake.err = errors.New("write: broken pipe")
	if err := s.JudgeAnswer("g1", protocol.DecisionCorrect, 100); err == nil {
		t.Fatal("expected the send failure to surface")
	}
	if got := s.Snapshot().Pending; len(got) != 1 {
		t.Fatalf("failed judge must not remove the guess, got %+v", got)
	}
}

func TestGameEndedForcesTurnOff(t *testing.T) {
	s, _ := newTestSession(t)
	joinRoom(t, s)
	feed(t, s, protocol.EvtGameQuestionStarted, activeQuestion(time.Now().Add(30*time.Second), 0))

	if !state.IsMyTurn(s.Snapshot()) {
		t.Fatal("setup: expected it to be u1's turn")
	}

	feed(t, s, protocol.EvtGameEnded, protocol.GameEndedPayload{
		Winner:    &protocol.PlayerRef{UserID: "u2", Username: "Bob"},
		EndReason: "All questions answered",
	})

	snap := s.Snapshot()
	game := snap.Game()
	if game.Status != state.StatusEnded {
		t.Fatalf("expected ended status, got %s", game.Status)
	}
	if state.IsMyTurn(snap) {
		t.Fatal("nobody has a turn after the game ends")
	}
	if game.Outcome == nil || game.Outcome.WinnerID != "u2" || game.Outcome.EndReason != "All questions answered" {
		t.Fatalf("unexpected outcome %+v", game.Outcome)
	}
}

func TestCommandsRejectedAfterGameEnded(t *testing.T) {
	s, fake := newTestSession(t)
	joinRoom(t, s)
	feed(t, s, protocol.EvtGameEnded, protocol.GameEndedPayload{EndReason: "Host left"})

	if err := s.SubmitAnswer("Paris"); err != ErrGameEnded {
		t.Fatalf("SubmitAnswer: expected ErrGameEnded, got %v", err)
	}
	if err := s.StartQuestion(); err != ErrGameEnded {
		t.Fatalf("StartQuestion: expected ErrGameEnded, got %v", err)
	}
	// Leaving the finished room is still allowed.
	if err := s.LeaveRoom("ABC123"); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	got := fake.commands()
	if len(got) != 1 || got[0].event != protocol.CmdRoomLeave {
		t.Fatalf("expected only the leave command, got %+v", got)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	s, _ := newTestSession(t)
	joinRoom(t, s)
	before := s.Snapshot()

	s.dispatch(protocol.Envelope{Event: "room:confetti", Payload: []byte(`{"amount":9001}`)})

	after := s.Snapshot()
	if after.Room.Code != before.Room.Code || len(after.Room.Seats) != len(before.Room.Seats) {
		t.Fatal("unknown event mutated the store")
	}
}

func TestMalformedGameStateIgnored(t *testing.T) {
	s, _ := newTestSession(t)
	joinRoom(t, s)

	s.dispatch(protocol.Envelope{Event: protocol.EvtGameState, Payload: []byte(`{"status": 42`)})
	feed(t, s, protocol.EvtGameState, state.GameState{Status: "time_travel"})

	if got := s.Snapshot().Game().Status; got != state.StatusOpenFloor {
		t.Fatalf("bad payloads must not change the game, got %s", got)
	}
}

func TestErrorEventsSetAlert(t *testing.T) {
	s, _ := newTestSession(t)

	feed(t, s, protocol.EvtRoomError, protocol.ErrorPayload{Message: "room is full"})
	if got := s.Snapshot().Alert; got != "room is full" {
		t.Fatalf("expected room error alert, got %q", got)
	}

	feed(t, s, protocol.EvtGameError, protocol.ErrorPayload{Message: "only the host can do that"})
	if got := s.Snapshot().Alert; got != "only the host can do that" {
		t.Fatalf("newest alert wins, got %q", got)
	}

	s.DismissAlert()
	if got := s.Snapshot().Alert; got != "" {
		t.Fatalf("expected dismissed alert, got %q", got)
	}
}

func TestPresenceEventsToggleSeatConnectivity(t *testing.T) {
	s, _ := newTestSession(t)
	joinRoom(t, s)

	feed(t, s, protocol.EvtRoomPlayerDisconnected, protocol.PlayerPresencePayload{UserID: "u2", Username: "Bob"})
	if s.Snapshot().Room.Seats[1].IsConnected {
		t.Fatal("u2 should show as disconnected")
	}

	feed(t, s, protocol.EvtRoomPlayerConnected, protocol.PlayerPresencePayload{UserID: "u2", Username: "Bob"})
	if !s.Snapshot().Room.Seats[1].IsConnected {
		t.Fatal("u2 should show as reconnected")
	}
}

func TestHostLeaveConfirmationPrompt(t *testing.T) {
	s, _ := newTestSession(t)
	joinRoom(t, s)

	feed(t, s, protocol.EvtGameHostLeaveConfirmation, protocol.HostLeavePayload{
		Message: "Leaving will end the game for everyone",
	})

	snap := s.Snapshot()
	if !snap.HostLeavePrompt {
		t.Fatal("expected the host leave prompt to be raised")
	}
	if snap.Alert == "" {
		t.Fatal("expected the prompt message as alert")
	}
}

func TestLeftRoomClearsState(t *testing.T) {
	s, _ := newTestSession(t)
	joinRoom(t, s)

	feed(t, s, protocol.EvtRoomLeftSuccessfully, protocol.LeftPayload{Message: "left ABC123"})

	snap := s.Snapshot()
	if snap.Room != nil {
		t.Fatal("leaving must clear the room")
	}
	if snap.Conn.Status != state.ConnConnected {
		t.Fatalf("the channel stays up after leaving, got %s", snap.Conn.Status)
	}
}

func TestReconnectDropsRoomState(t *testing.T) {
	s, _ := newTestSession(t)
	joinRoom(t, s)
	feed(t, s, protocol.EvtGameQuestionStarted, activeQuestion(time.Now().Add(30*time.Second), 0))

	s.onTransportState(transport.StateConnecting, errors.New("read tcp: connection reset"))

	snap := s.Snapshot()
	if snap.Conn.Status != state.ConnConnecting {
		t.Fatalf("expected connecting, got %s", snap.Conn.Status)
	}
	if snap.Room != nil || len(snap.Pending) != 0 {
		t.Fatal("room and pending state must not survive a drop")
	}
	if snap.Conn.LastError == "" {
		t.Fatal("the drop cause should be recorded")
	}
}

func TestDialFailsFastWithoutCredentials(t *testing.T) {
	// Neither variant may create a session or attempt a connection; the
	// unreachable URL would otherwise surface as a dial error.
	_, err := Dial(context.Background(), Options{
		URL:      "ws://localhost:9/ws",
		Identity: state.Identity{UserID: "u1"},
	})
	if err != transport.ErrMissingToken {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}

	s, err := Dial(context.Background(), Options{
		URL:   "ws://localhost:9/ws",
		Token: "tok",
	})
	if err != ErrMissingIdentity {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
	if s != nil {
		t.Fatal("fail-fast must not hand out a session")
	}
}

func TestCloseResetsEverything(t *testing.T) {
	s, _ := newTestSession(t)
	joinRoom(t, s)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	snap := s.Snapshot()
	if snap.Room != nil || snap.Conn.Status != state.ConnDisconnected {
		t.Fatalf("close left residue: %+v", snap)
	}

	// Late traffic and commands after close are inert.
	feed(t, s, protocol.EvtRoomError, protocol.ErrorPayload{Message: "late"})
	if got := s.Snapshot().Alert; got != "" {
		t.Fatalf("dispatch after close must be a no-op, got alert %q", got)
	}
	if err := s.JoinRoom("ABC123"); err != ErrSessionClosed {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close must be a no-op, got %v", err)
	}
}

func TestCloseSerializesWithInFlightEvents(t *testing.T) {
	var mu sync.Mutex
	ticks := 0
	s := newSession(state.NewStore(state.Identity{UserID: "u1", Username: "Alice"}), zerolog.Nop(), func(int) {
		mu.Lock()
		ticks++
		mu.Unlock()
	})
	s.ch = &fakeSender{}
	s.onTransportState(transport.StateConnected, nil)

	roomPayload, err := json.Marshal(state.RoomState{
		Code:     "ABC123",
		Settings: roomSettings(),
		Seats: []state.Seat{
			{SeatIdx: 0, UserID: "u1", Username: "Alice", IsHost: true, IsConnected: true},
		},
		Game: &state.GameState{Status: state.StatusOpenFloor},
	})
	if err != nil {
		t.Fatalf("marshal room: %v", err)
	}
	questionPayload, err := json.Marshal(activeQuestion(time.Now().Add(30*time.Second), 0))
	if err != nil {
		t.Fatalf("marshal question: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			s.dispatch(protocol.Envelope{Event: protocol.EvtRoomState, Payload: roomPayload})
			s.dispatch(protocol.Envelope{Event: protocol.EvtGameQuestionStarted, Payload: questionPayload})
		}
	}()

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	<-done

	// However the close interleaved with the event flood, no handler may
	// resurrect cleared state.
	snap := s.Snapshot()
	if snap.Room != nil || snap.Conn.Status != state.ConnDisconnected {
		t.Fatalf("state resurrected after close: %+v", snap)
	}

	mu.Lock()
	settled := ticks
	mu.Unlock()
	time.Sleep(1100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if ticks != settled {
		t.Fatalf("countdown ticked after close: %d -> %d", settled, ticks)
	}
}
