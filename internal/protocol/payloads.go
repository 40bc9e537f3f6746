package protocol

// ErrorPayload carries room:error and game:error messages.
type ErrorPayload struct {
	Message string `json:"message"`
}

// LeftPayload carries room:leftSuccessfully.
type LeftPayload struct {
	Message string `json:"message"`
}

// PlayerPresencePayload carries room:playerConnected, room:playerDisconnected
// and room:playerLeft.
type PlayerPresencePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// HostTransferredPayload carries room:hostTransferred.
type HostTransferredPayload struct {
	NewHostID string `json:"newHostId"`
}

// PlayerRef identifies a player in event payloads that name one.
type PlayerRef struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// GameEndedPayload carries game:ended.
type GameEndedPayload struct {
	Winner    *PlayerRef `json:"winner,omitempty"`
	EndReason string     `json:"endReason,omitempty"`
}

// AnswerSubmittedPayload carries game:answerSubmitted.
type AnswerSubmittedPayload struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Answer     string `json:"answer"`
	GuessID    string `json:"guessId"`
	Validation string `json:"validation,omitempty"`
}

// HostLeavePayload carries game:hostLeaveConfirmation.
type HostLeavePayload struct {
	Message string `json:"message"`
}

// Outbound command payloads. Every command names the room it targets.

type JoinRoomPayload struct {
	Code string `json:"code"`
}

type LeaveRoomPayload struct {
	Code string `json:"code"`
}

type StartGamePayload struct {
	Code string `json:"code"`
}

type StartQuestionPayload struct {
	Code string `json:"code"`
}

type SubmitAnswerPayload struct {
	Code   string `json:"code"`
	Answer string `json:"answer"`
}

type JudgeAnswerPayload struct {
	Code     string   `json:"code"`
	GuessID  string   `json:"guessId"`
	Decision Decision `json:"decision"`
	Points   int      `json:"points,omitempty"`
}

type NextQuestionPayload struct {
	Code string `json:"code"`
}
