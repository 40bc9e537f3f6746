package devserver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizlink/quizlink/internal/protocol"
	"github.com/quizlink/quizlink/internal/state"
)

var (
	ErrRoomFull     = errors.New("room is full")
	ErrNotHost      = errors.New("only the host can do that")
	ErrNotInRoom    = errors.New("you are not in this room")
	ErrWrongPhase   = errors.New("not possible in the current game phase")
	ErrUnknownGuess = errors.New("no such pending guess")
	ErrDeckEmpty    = errors.New("no questions left")
)

// Manager owns all live rooms of the development server.
type Manager struct {
	mu    sync.Mutex
	log   zerolog.Logger
	rooms map[string]*Room
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log, rooms: make(map[string]*Room)}
}

// Ensure returns the room with the given code, creating it with default
// settings and the built-in question deck on first use.
func (m *Manager) Ensure(code string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.rooms[code]; r != nil {
		return r
	}
	r := newRoom(code, m.log)
	r.mgr = m
	m.rooms[code] = r
	m.log.Info().Str("code", code).Msg("room created")
	return r
}

// Get returns an existing room or nil.
func (m *Manager) Get(code string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[code]
}

func (m *Manager) remove(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, code)
	m.log.Info().Str("code", code).Msg("room removed")
}

// member is one connected client of a room.
type member struct {
	id        state.Identity
	send      chan []byte
	leaveAsk  bool
	closeOnce sync.Once
}

func (mb *member) emit(event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return
	}
	select {
	case mb.send <- data:
	default:
		// Slow consumer; this is a dev harness, drop the frame.
	}
}

func (mb *member) close() {
	mb.closeOnce.Do(func() { close(mb.send) })
}

// Room holds the authoritative state of one game. Every mutation broadcasts
// the specific event that caused it plus a fresh room:state snapshot, so
// clients can always rebuild from the latest snapshot alone.
type Room struct {
	mu       sync.Mutex
	log      zerolog.Logger
	mgr      *Manager
	code     string
	settings state.Settings
	seats    []state.Seat
	game     *state.GameState
	deck     []state.Question
	deckIdx  int
	guesses  map[string]state.PendingGuess
	members  map[string]*member

	// windowSeq invalidates pending expiry timers when a window concludes
	// for any other reason first.
	windowSeq   int
	expiryTimer *time.Timer
}

func newRoom(code string, log zerolog.Logger) *Room {
	deck := questionDeck()
	return &Room{
		log:  log.With().Str("code", code).Logger(),
		code: code,
		settings: state.Settings{
			PlayersMax:        8,
			DirectSeconds:     30,
			PassSeconds:       15,
			PointsPerQuestion: 100,
			TotalQuestions:    len(deck),
			InputMode:         "text",
		},
		game:    &state.GameState{Status: state.StatusLobby, TotalQuestionsTarget: len(deck)},
		deck:    deck,
		guesses: make(map[string]state.PendingGuess),
		members: make(map[string]*member),
	}
}

// Join seats a new player, or reconnects a player who already holds a seat.
// The first player to join becomes host.
func (r *Room) Join(mb *member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old := r.members[mb.id.UserID]; old != nil && old != mb {
		old.close()
	}
	r.members[mb.id.UserID] = mb

	for i := range r.seats {
		if r.seats[i].UserID == mb.id.UserID {
			r.seats[i].IsConnected = true
			r.broadcastLocked(protocol.EvtRoomPlayerConnected,
				protocol.PlayerPresencePayload{UserID: mb.id.UserID, Username: mb.id.Username})
			r.broadcastStateLocked()
			return nil
		}
	}

	if r.game.Status != state.StatusLobby {
		return ErrWrongPhase
	}
	if len(r.seats) >= r.settings.PlayersMax {
		return ErrRoomFull
	}

	seat := state.Seat{
		SeatIdx:     len(r.seats),
		UserID:      mb.id.UserID,
		Username:    mb.id.Username,
		IsHost:      len(r.seats) == 0,
		IsConnected: true,
	}
	r.seats = append(r.seats, seat)
	r.log.Info().Str("userId", mb.id.UserID).Int("seat", seat.SeatIdx).Msg("player joined")
	r.broadcastLocked(protocol.EvtRoomPlayerConnected,
		protocol.PlayerPresencePayload{UserID: mb.id.UserID, Username: mb.id.Username})
	r.broadcastStateLocked()
	return nil
}

// Leave releases a player's seat. A host leaving a running game is asked to
// confirm once; the second leave ends the game for everyone. The returned
// bool reports whether the seat was actually released.
func (r *Room) Leave(mb *member) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.seatIndexLocked(mb.id.UserID)
	if idx < 0 {
		return false, ErrNotInRoom
	}

	running := r.game.Status != state.StatusLobby && r.game.Status != state.StatusEnded
	if running && r.seats[idx].IsHost && !mb.leaveAsk {
		mb.leaveAsk = true
		mb.emit(protocol.EvtGameHostLeaveConfirmation, protocol.HostLeavePayload{
			Message: "Leaving now ends the game for everyone. Leave again to confirm.",
		})
		return false, nil
	}

	wasHost := r.seats[idx].IsHost
	r.seats = append(r.seats[:idx], r.seats[idx+1:]...)
	for i := range r.seats {
		r.seats[i].SeatIdx = i
	}
	delete(r.members, mb.id.UserID)

	mb.emit(protocol.EvtRoomLeftSuccessfully, protocol.LeftPayload{
		Message: fmt.Sprintf("You left room %s", r.code),
	})
	r.broadcastLocked(protocol.EvtRoomPlayerLeft,
		protocol.PlayerPresencePayload{UserID: mb.id.UserID, Username: mb.id.Username})

	if len(r.seats) == 0 {
		r.cancelExpiryLocked()
		if r.mgr != nil {
			go r.mgr.remove(r.code)
		}
		return true, nil
	}

	if wasHost {
		r.seats[0].IsHost = true
		r.broadcastLocked(protocol.EvtRoomHostTransferred,
			protocol.HostTransferredPayload{NewHostID: r.seats[0].UserID})
	}

	if running && (wasHost || len(r.seats) < 2) {
		reason := "Player left"
		if wasHost {
			reason = "Host left"
		}
		r.endGameLocked(reason)
		return true, nil
	}

	r.broadcastStateLocked()
	return true, nil
}

// MarkDisconnected flags a seat offline without releasing it, so the player
// can reconnect into the same game.
func (r *Room) MarkDisconnected(mb *member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[mb.id.UserID] == mb {
		delete(r.members, mb.id.UserID)
	}
	idx := r.seatIndexLocked(mb.id.UserID)
	if idx < 0 {
		return
	}
	r.seats[idx].IsConnected = false
	r.broadcastLocked(protocol.EvtRoomPlayerDisconnected,
		protocol.PlayerPresencePayload{UserID: mb.id.UserID, Username: mb.id.Username})
	r.broadcastStateLocked()
}

// StartGame moves the lobby to the open floor. Host only.
func (r *Room) StartGame(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireHostLocked(userID); err != nil {
		return err
	}
	if r.game.Status != state.StatusLobby {
		return ErrWrongPhase
	}

	scores := make(map[string]int, len(r.seats))
	for _, seat := range r.seats {
		scores[seat.UserID] = 0
	}
	r.game = &state.GameState{
		Status:               state.StatusOpenFloor,
		TurnOwnerIdx:         0,
		Scores:               scores,
		TotalQuestionsTarget: r.settings.TotalQuestions,
	}
	r.log.Info().Msg("game started")
	r.broadcastGameLocked(protocol.EvtGameStarted)
	return nil
}

// StartQuestion opens a direct question window for the current turn owner.
func (r *Room) StartQuestion(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireHostLocked(userID); err != nil {
		return err
	}
	if r.game.Status != state.StatusOpenFloor {
		return ErrWrongPhase
	}
	if r.deckIdx >= len(r.deck) {
		return ErrDeckEmpty
	}

	question := r.deck[r.deckIdx]
	r.deckIdx++
	r.guesses = make(map[string]state.PendingGuess)

	r.game.Status = state.StatusQuestionActive
	r.game.Question = &question
	r.game.HintRevealed = false
	r.game.ActiveWindow = &state.ActiveWindow{
		EndsAt:           time.Now().Add(time.Duration(r.settings.DirectSeconds) * time.Second).UnixMilli(),
		SeatIdx:          r.game.TurnOwnerIdx,
		IsDirectQuestion: true,
	}
	r.armExpiryLocked(time.Duration(r.settings.DirectSeconds) * time.Second)
	r.log.Info().Str("question", question.ID).Int("turn", r.game.TurnOwnerIdx).Msg("question started")
	r.broadcastGameLocked(protocol.EvtGameQuestionStarted)
	return nil
}

// SubmitAnswer records a guess and announces it to the whole room for the
// host to judge.
func (r *Room) SubmitAnswer(userID, username, answer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seatIndexLocked(userID) < 0 {
		return ErrNotInRoom
	}
	if r.game.Status != state.StatusQuestionActive {
		return ErrWrongPhase
	}

	guess := state.PendingGuess{
		GuessID:  uuid.NewString(),
		UserID:   userID,
		Username: username,
		Answer:   answer,
	}
	r.guesses[guess.GuessID] = guess
	r.log.Info().Str("guessId", guess.GuessID).Str("userId", userID).Msg("answer submitted")
	r.broadcastLocked(protocol.EvtGameAnswerSubmitted, protocol.AnswerSubmittedPayload{
		UserID:   guess.UserID,
		Username: guess.Username,
		Answer:   guess.Answer,
		GuessID:  guess.GuessID,
	})
	return nil
}

// JudgeAnswer applies the host's verdict. A correct verdict awards points
// and concludes the question; an incorrect one just discards the guess.
func (r *Room) JudgeAnswer(userID, guessID string, decision protocol.Decision, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireHostLocked(userID); err != nil {
		return err
	}
	if r.game.Status != state.StatusQuestionActive {
		return ErrWrongPhase
	}
	guess, ok := r.guesses[guessID]
	if !ok {
		return ErrUnknownGuess
	}

	if decision != protocol.DecisionCorrect {
		delete(r.guesses, guessID)
		r.broadcastStateLocked()
		return nil
	}

	if points <= 0 {
		points = r.settings.PointsPerQuestion
	}
	r.game.Scores[guess.UserID] += points
	r.concludeQuestionLocked(true, guess.UserID)
	r.log.Info().Str("guessId", guessID).Str("solver", guess.UserID).Int("points", points).Msg("question solved")
	r.broadcastGameLocked(protocol.EvtGameQuestionSolved)
	r.maybeEndLocked()
	return nil
}

// NextQuestion skips the active question without awarding points.
func (r *Room) NextQuestion(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireHostLocked(userID); err != nil {
		return err
	}
	if r.game.Status != state.StatusQuestionActive {
		return ErrWrongPhase
	}

	r.concludeQuestionLocked(false, "")
	r.broadcastGameLocked(protocol.EvtGameNextQuestion)
	r.maybeEndLocked()
	return nil
}

// State returns a copy of the authoritative room snapshot.
func (r *Room) State() state.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Room) seatIndexLocked(userID string) int {
	for i, seat := range r.seats {
		if seat.UserID == userID {
			return i
		}
	}
	return -1
}

func (r *Room) requireHostLocked(userID string) error {
	idx := r.seatIndexLocked(userID)
	if idx < 0 {
		return ErrNotInRoom
	}
	if !r.seats[idx].IsHost {
		return ErrNotHost
	}
	return nil
}

// armExpiryLocked schedules the window deadline. A direct window that
// expires passes the question on; an expired pass window concludes the
// question unsolved.
func (r *Room) armExpiryLocked(in time.Duration) {
	r.cancelExpiryLocked()
	r.windowSeq++
	seq := r.windowSeq
	r.expiryTimer = time.AfterFunc(in, func() { r.windowExpired(seq) })
}

func (r *Room) cancelExpiryLocked() {
	if r.expiryTimer != nil {
		r.expiryTimer.Stop()
		r.expiryTimer = nil
	}
}

func (r *Room) windowExpired(seq int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.windowSeq || r.game.Status != state.StatusQuestionActive || r.game.ActiveWindow == nil {
		return
	}

	if r.game.ActiveWindow.IsDirectQuestion && len(r.seats) > 1 {
		// Pass to the next seat.
		next := (r.game.ActiveWindow.SeatIdx + 1) % len(r.seats)
		r.guesses = make(map[string]state.PendingGuess)
		r.game.ActiveWindow = &state.ActiveWindow{
			EndsAt:      time.Now().Add(time.Duration(r.settings.PassSeconds) * time.Second).UnixMilli(),
			SeatIdx:     next,
			IsFirstPass: true,
		}
		r.armExpiryLocked(time.Duration(r.settings.PassSeconds) * time.Second)
		r.log.Info().Int("seat", next).Msg("question passed on")
		r.broadcastGameLocked(protocol.EvtGameTurnAdvanced)
		return
	}

	r.concludeQuestionLocked(false, "")
	r.log.Info().Msg("question unsolved")
	r.broadcastGameLocked(protocol.EvtGameQuestionUnsolved)
	r.maybeEndLocked()
}

func (r *Room) concludeQuestionLocked(solved bool, solvedBy string) {
	if r.game.Question != nil {
		r.game.QuestionHistory = append(r.game.QuestionHistory, state.QuestionRecord{
			Question: *r.game.Question,
			Solved:   solved,
			SolvedBy: solvedBy,
		})
	}
	r.cancelExpiryLocked()
	r.windowSeq++
	r.guesses = make(map[string]state.PendingGuess)
	r.game.Status = state.StatusOpenFloor
	r.game.Question = nil
	r.game.ActiveWindow = nil
	r.game.HintRevealed = false
	r.game.TotalQuestionsAsked++
	if len(r.seats) > 0 {
		r.game.TurnOwnerIdx = (r.game.TurnOwnerIdx + 1) % len(r.seats)
	}
}

func (r *Room) maybeEndLocked() {
	if r.game.TotalQuestionsAsked >= r.game.TotalQuestionsTarget {
		r.endGameLocked("All questions asked")
	}
}

func (r *Room) endGameLocked(reason string) {
	r.cancelExpiryLocked()
	r.windowSeq++
	r.guesses = make(map[string]state.PendingGuess)
	r.game.Status = state.StatusEnded
	r.game.Question = nil
	r.game.ActiveWindow = nil

	var winner *protocol.PlayerRef
	best := -1
	for _, seat := range r.seats {
		if pts := r.game.Scores[seat.UserID]; pts > best {
			best = pts
			winner = &protocol.PlayerRef{UserID: seat.UserID, Username: seat.Username}
		}
	}
	if winner != nil {
		r.game.Outcome = &state.Outcome{WinnerID: winner.UserID, WinnerName: winner.Username, EndReason: reason}
	} else {
		r.game.Outcome = &state.Outcome{EndReason: reason}
	}

	r.log.Info().Str("reason", reason).Msg("game ended")
	r.broadcastLocked(protocol.EvtGameEnded, protocol.GameEndedPayload{Winner: winner, EndReason: reason})
	r.broadcastStateLocked()
}

func (r *Room) stateLocked() state.RoomState {
	return state.RoomState{
		Code:     r.code,
		Settings: r.settings,
		Seats:    append([]state.Seat(nil), r.seats...),
		// The live game is mutated in place under the room mutex; a
		// snapshot must not alias it.
		Game: r.game.Clone(),
	}
}

func (r *Room) broadcastLocked(event string, payload any) {
	for _, mb := range r.members {
		mb.emit(event, payload)
	}
}

func (r *Room) broadcastStateLocked() {
	r.broadcastLocked(protocol.EvtRoomState, r.stateLocked())
}

// broadcastGameLocked emits the given game event carrying the full fresh
// game state, followed by the authoritative room snapshot.
func (r *Room) broadcastGameLocked(event string) {
	r.broadcastLocked(event, r.game)
	r.broadcastStateLocked()
}
