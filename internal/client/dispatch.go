package client

import (
	"errors"
	"strings"

	"github.com/quizlink/quizlink/internal/protocol"
	"github.com/quizlink/quizlink/internal/state"
)

var (
	ErrNotConnected = errors.New("quizlink: not connected")
	ErrNotInRoom    = errors.New("quizlink: not in a room")
	ErrEmptyAnswer  = errors.New("quizlink: answer is empty")
	ErrGameEnded    = errors.New("quizlink: game already ended")
)

// Commands are guarded emits: local preconditions are checked against the
// current snapshot, and a failed guard returns an error without sending,
// queueing or retrying anything. The server confirms or rejects each command
// later through an independent inbound event.

// JoinRoom asks the server to seat the current user in the given room.
func (s *Session) JoinRoom(code string) error {
	if err := s.guardConnected(); err != nil {
		return err
	}
	return s.ch.Send(protocol.CmdRoomJoin, protocol.JoinRoomPayload{Code: code})
}

// LeaveRoom asks the server to release the current user's seat.
func (s *Session) LeaveRoom(code string) error {
	if _, err := s.guardInRoom(false); err != nil {
		return err
	}
	return s.ch.Send(protocol.CmdRoomLeave, protocol.LeaveRoomPayload{Code: code})
}

// StartGame moves the room out of the lobby. Host only; the server enforces
// the privilege, this guard is UX-level.
func (s *Session) StartGame() error {
	code, err := s.guardInRoom(true)
	if err != nil {
		return err
	}
	return s.ch.Send(protocol.CmdGameStart, protocol.StartGamePayload{Code: code})
}

// StartQuestion opens the next question window.
func (s *Session) StartQuestion() error {
	code, err := s.guardInRoom(true)
	if err != nil {
		return err
	}
	return s.ch.Send(protocol.CmdGameStartQuestion, protocol.StartQuestionPayload{Code: code})
}

// SubmitAnswer sends a trimmed answer for the active question. Empty
// answers are rejected locally. No pending guess is recorded here; the
// entry appears when the server echoes game:answerSubmitted.
func (s *Session) SubmitAnswer(text string) error {
	answer := strings.TrimSpace(text)
	if answer == "" {
		return ErrEmptyAnswer
	}
	code, err := s.guardInRoom(true)
	if err != nil {
		return err
	}
	return s.ch.Send(protocol.CmdGameSubmitAnswer, protocol.SubmitAnswerPayload{Code: code, Answer: answer})
}

// JudgeAnswer sends the host's verdict on a pending guess and removes the
// guess from the local pending list immediately, independent of any server
// confirmation. Game status is never advanced optimistically.
func (s *Session) JudgeAnswer(guessID string, decision protocol.Decision, points int) error {
	code, err := s.guardInRoom(true)
	if err != nil {
		return err
	}
	payload := protocol.JudgeAnswerPayload{Code: code, GuessID: guessID, Decision: decision}
	if decision == protocol.DecisionCorrect {
		payload.Points = points
	}
	if err := s.ch.Send(protocol.CmdGameJudgeAnswer, payload); err != nil {
		return err
	}
	s.store.RemovePendingGuess(guessID)
	return nil
}

// NextQuestion skips past the current question without awarding points.
func (s *Session) NextQuestion() error {
	code, err := s.guardInRoom(true)
	if err != nil {
		return err
	}
	return s.ch.Send(protocol.CmdGameNextQuestion, protocol.NextQuestionPayload{Code: code})
}

func (s *Session) guardConnected() error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if s.store.Snapshot().Conn.Status != state.ConnConnected {
		return ErrNotConnected
	}
	return nil
}

// guardInRoom checks connectivity and membership and returns the current
// room code. With rejectEnded set it also refuses commands once the game
// reached its terminal state.
func (s *Session) guardInRoom(rejectEnded bool) (string, error) {
	if s.isClosed() {
		return "", ErrSessionClosed
	}
	snap := s.store.Snapshot()
	if snap.Conn.Status != state.ConnConnected {
		return "", ErrNotConnected
	}
	if snap.Room == nil {
		return "", ErrNotInRoom
	}
	if rejectEnded {
		if game := snap.Game(); game != nil && game.Status == state.StatusEnded {
			return "", ErrGameEnded
		}
	}
	return snap.Room.Code, nil
}
