package client

import (
	"encoding/json"

	"github.com/quizlink/quizlink/internal/protocol"
	"github.com/quizlink/quizlink/internal/state"
)

// registerHandlers wires one handler per named inbound event. Unknown events
// are ignored for forward compatibility.
func (s *Session) registerHandlers() {
	s.handlers = map[string]func([]byte){
		protocol.EvtRoomState:              s.onRoomState,
		protocol.EvtRoomError:              s.onRoomError,
		protocol.EvtRoomLeftSuccessfully:   s.onRoomLeft,
		protocol.EvtRoomPlayerConnected:    s.onPlayerConnected,
		protocol.EvtRoomPlayerDisconnected: s.onPlayerDisconnected,
		protocol.EvtRoomPlayerLeft:         s.onPlayerLeft,
		protocol.EvtRoomHostTransferred:    s.onHostTransferred,

		protocol.EvtGameState:                 s.onGameState,
		protocol.EvtGameError:                 s.onGameError,
		protocol.EvtGameStarted:               s.onGameState,
		protocol.EvtGamePaused:                s.onGameState,
		protocol.EvtGameQuestionStarted:       s.onGameState,
		protocol.EvtGameQuestionSolved:        s.onQuestionConcluded,
		protocol.EvtGameQuestionUnsolved:      s.onQuestionConcluded,
		protocol.EvtGameTurnAdvanced:          s.onQuestionConcluded,
		protocol.EvtGameNextQuestion:          s.onQuestionConcluded,
		protocol.EvtGameEnded:                 s.onGameEnded,
		protocol.EvtGameAnswerSubmitted:       s.onAnswerSubmitted,
		protocol.EvtGameHostLeaveConfirmation: s.onHostLeaveConfirmation,
	}
}

// dispatch routes one inbound envelope. It runs on the transport's reader
// goroutine, so handlers execute strictly in arrival order. The session
// mutex is held across the handler body: Close waits for a handler in
// flight, and no handler observes a half-torn-down session.
func (s *Session) dispatch(env protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	handler, ok := s.handlers[env.Event]
	if !ok {
		s.log.Debug().Str("event", env.Event).Msg("ignoring unknown event")
		return
	}
	handler(env.Payload)
}

func (s *Session) onRoomState(payload []byte) {
	var room state.RoomState
	if err := json.Unmarshal(payload, &room); err != nil {
		s.log.Warn().Err(err).Msg("bad room:state payload")
		return
	}
	if err := s.store.ApplyRoomState(room); err != nil {
		s.log.Error().Err(err).Str("code", room.Code).Msg("rejecting room snapshot")
		return
	}
	s.syncClock()
}

func (s *Session) onRoomError(payload []byte) {
	var p protocol.ErrorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	s.log.Warn().Str("message", p.Message).Msg("room error")
	s.store.SetAlert(p.Message)
}

func (s *Session) onRoomLeft(payload []byte) {
	var p protocol.LeftPayload
	_ = json.Unmarshal(payload, &p)
	s.log.Info().Str("message", p.Message).Msg("left room")
	s.clock.stop()
	s.store.ClearRoom()
}

func (s *Session) onPlayerConnected(payload []byte) {
	var p protocol.PlayerPresencePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.UserID == "" {
		return
	}
	s.store.UpdateSeatConnected(p.UserID, true)
}

func (s *Session) onPlayerDisconnected(payload []byte) {
	var p protocol.PlayerPresencePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.UserID == "" {
		return
	}
	s.store.UpdateSeatConnected(p.UserID, false)
}

func (s *Session) onPlayerLeft(payload []byte) {
	var p protocol.PlayerPresencePayload
	_ = json.Unmarshal(payload, &p)
	// Seat removal arrives with the next room:state; this event is
	// informational only.
	s.log.Info().Str("userId", p.UserID).Msg("player left room")
}

func (s *Session) onHostTransferred(payload []byte) {
	var p protocol.HostTransferredPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	// The host flag itself is only ever taken from the next room:state
	// snapshot; the client never reassigns it locally.
	s.log.Info().Str("newHostId", p.NewHostID).Msg("host transferred")
}

func (s *Session) onGameState(payload []byte) {
	var game state.GameState
	if err := json.Unmarshal(payload, &game); err != nil {
		s.log.Warn().Err(err).Msg("bad game state payload")
		return
	}
	if err := s.store.ApplyGameState(game); err != nil {
		s.log.Error().Err(err).Str("status", string(game.Status)).Msg("rejecting game snapshot")
		return
	}
	s.syncClock()
}

// onQuestionConcluded handles the mutually exclusive terminal signals of a
// question window: solved, unsolved, turn advanced, next question. Each
// clears the pending guesses and zeroes the countdown before the fresh game
// snapshot is applied.
func (s *Session) onQuestionConcluded(payload []byte) {
	s.store.ClearPending()
	s.clock.stop()
	if len(payload) > 0 {
		s.onGameState(payload)
	}
}

func (s *Session) onGameEnded(payload []byte) {
	var p protocol.GameEndedPayload
	_ = json.Unmarshal(payload, &p)
	s.clock.stop()
	s.store.ClearPending()

	snap := s.store.Snapshot()
	game := snap.Game()
	ended := state.GameState{Status: state.StatusEnded}
	if game != nil {
		ended = *game
		ended.Status = state.StatusEnded
		ended.ActiveWindow = nil
	}
	ended.Outcome = &state.Outcome{EndReason: p.EndReason}
	if p.Winner != nil {
		ended.Outcome.WinnerID = p.Winner.UserID
		ended.Outcome.WinnerName = p.Winner.Username
	}
	if err := s.store.ApplyGameState(ended); err != nil {
		s.log.Error().Err(err).Msg("rejecting game end")
		return
	}
	s.log.Info().Str("reason", p.EndReason).Msg("game ended")
}

func (s *Session) onGameError(payload []byte) {
	var p protocol.ErrorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	s.log.Warn().Str("message", p.Message).Msg("game error")
	s.store.SetAlert(p.Message)
}

func (s *Session) onAnswerSubmitted(payload []byte) {
	var p protocol.AnswerSubmittedPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.GuessID == "" {
		s.log.Warn().Msg("bad answerSubmitted payload")
		return
	}
	s.store.AddPendingGuess(state.PendingGuess{
		GuessID:    p.GuessID,
		UserID:     p.UserID,
		Username:   p.Username,
		Answer:     p.Answer,
		Validation: p.Validation,
	})
}

func (s *Session) onHostLeaveConfirmation(payload []byte) {
	var p protocol.HostLeavePayload
	_ = json.Unmarshal(payload, &p)
	s.store.SetHostLeavePrompt(true)
	if p.Message != "" {
		s.store.SetAlert(p.Message)
	}
}
