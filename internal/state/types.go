package state

import (
	"time"
)

// Identity is the authenticated user the session acts for.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ConnStatus is the transport-facing connection state.
type ConnStatus string

const (
	ConnDisconnected ConnStatus = "disconnected"
	ConnConnecting   ConnStatus = "connecting"
	ConnConnected    ConnStatus = "connected"
	ConnError        ConnStatus = "error"
)

// ConnectionState is the connectivity slot of the store.
type ConnectionState struct {
	Status    ConnStatus
	LastError string
}

// GameStatus enumerates the server-driven game phases.
type GameStatus string

const (
	StatusLobby          GameStatus = "lobby"
	StatusOpenFloor      GameStatus = "open_floor"
	StatusQuestionActive GameStatus = "question_active"
	StatusPaused         GameStatus = "paused"
	StatusEnded          GameStatus = "ended"
)

func (s GameStatus) known() bool {
	switch s {
	case StatusLobby, StatusOpenFloor, StatusQuestionActive, StatusPaused, StatusEnded:
		return true
	}
	return false
}

// Seat is a player's slot in the room. Seats are assigned by the server and
// always overwritten wholesale from the latest room snapshot; the client
// never reassigns SeatIdx or IsHost on its own.
type Seat struct {
	SeatIdx     int    `json:"seatIdx"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	IsHost      bool   `json:"isHost"`
	IsConnected bool   `json:"isConnected"`
}

// Settings are the room rules, fixed at room creation.
type Settings struct {
	PlayersMax        int    `json:"playersMax"`
	DirectSeconds     int    `json:"directSeconds"`
	PassSeconds       int    `json:"passSeconds"`
	PointsPerQuestion int    `json:"pointsPerQuestion"`
	TotalQuestions    int    `json:"totalQuestions"`
	InputMode         string `json:"inputMode"`
}

// Question is the payload shown during an active window.
type Question struct {
	ID       string `json:"id"`
	Prompt   string `json:"prompt"`
	Category string `json:"category,omitempty"`
	Hint     string `json:"hint,omitempty"`
}

// ActiveWindow is the timed interval in which the turn holder may answer.
// EndsAt is a Unix-millisecond deadline; remaining time is always derived
// from it against the wall clock, never counted down locally.
type ActiveWindow struct {
	EndsAt           int64 `json:"endsAt"`
	SeatIdx          int   `json:"seatIdx"`
	IsDirectQuestion bool  `json:"isDirectQuestion"`
	IsFirstPass      bool  `json:"isFirstPass"`
}

// Deadline converts the wire deadline into wall-clock time.
func (w ActiveWindow) Deadline() time.Time {
	return time.UnixMilli(w.EndsAt)
}

// QuestionRecord is one entry of the per-game question history.
type QuestionRecord struct {
	Question Question `json:"question"`
	Solved   bool     `json:"solved"`
	SolvedBy string   `json:"solvedBy,omitempty"`
}

// Outcome records how a finished game ended.
type Outcome struct {
	WinnerID   string `json:"winnerId,omitempty"`
	WinnerName string `json:"winnerName,omitempty"`
	EndReason  string `json:"endReason,omitempty"`
}

// GameState is the authoritative game snapshot as last reported by the
// server. ActiveWindow is present iff Status is question_active.
type GameState struct {
	Status               GameStatus       `json:"status"`
	TurnOwnerIdx         int              `json:"turnOwnerIdx"`
	ActiveWindow         *ActiveWindow    `json:"activeWindow,omitempty"`
	Question             *Question        `json:"question,omitempty"`
	HintRevealed         bool             `json:"hintRevealed"`
	Scores               map[string]int   `json:"scores,omitempty"`
	TotalQuestionsAsked  int              `json:"totalQuestionsAsked"`
	TotalQuestionsTarget int              `json:"totalQuestionsTarget"`
	QuestionHistory      []QuestionRecord `json:"questionHistory,omitempty"`
	Outcome              *Outcome         `json:"outcome,omitempty"`
}

// RoomState is the authoritative room snapshot. It is replaced, never
// merged, on every room:state event.
type RoomState struct {
	Code     string     `json:"code"`
	Settings Settings   `json:"settings"`
	Seats    []Seat     `json:"seats"`
	Game     *GameState `json:"gameState,omitempty"`
}

// PendingGuess is a submitted answer awaiting host judgment in the current
// question window.
type PendingGuess struct {
	GuessID    string `json:"guessId"`
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Answer     string `json:"answer"`
	Validation string `json:"validation,omitempty"`
}

// Clone returns a deep copy that shares nothing with the receiver. Holders
// of a snapshot never see later mutations of the original.
func (g *GameState) Clone() *GameState {
	if g == nil {
		return nil
	}
	out := *g
	if g.ActiveWindow != nil {
		w := *g.ActiveWindow
		out.ActiveWindow = &w
	}
	if g.Question != nil {
		q := *g.Question
		out.Question = &q
	}
	if g.Outcome != nil {
		o := *g.Outcome
		out.Outcome = &o
	}
	if g.Scores != nil {
		out.Scores = make(map[string]int, len(g.Scores))
		for k, v := range g.Scores {
			out.Scores[k] = v
		}
	}
	if g.QuestionHistory != nil {
		out.QuestionHistory = append([]QuestionRecord(nil), g.QuestionHistory...)
	}
	return &out
}

func (r *RoomState) clone() *RoomState {
	if r == nil {
		return nil
	}
	out := *r
	if r.Seats != nil {
		out.Seats = append([]Seat(nil), r.Seats...)
	}
	out.Game = r.Game.Clone()
	return &out
}
