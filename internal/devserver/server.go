package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quizlink/quizlink/internal/protocol"
	"github.com/quizlink/quizlink/internal/state"
)

const writeWait = 5 * time.Second

// Server is the in-memory development game server. It speaks the same wire
// protocol as the production backend so the client core can be exercised
// end to end without external infrastructure.
type Server struct {
	log      zerolog.Logger
	Rooms    *Manager
	upgrader websocket.Upgrader
}

func New(log zerolog.Logger) *Server {
	return &Server{
		log:   log,
		Rooms: NewManager(log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Mount attaches the websocket endpoint to the given gin engine.
func (s *Server) Mount(r *gin.Engine) {
	r.GET("/ws", s.handleWS)
}

// identityFromRequest reads the bearer credential. The dev server accepts
// "<userID>:<username>" tokens; real authentication lives in the production
// backend.
func identityFromRequest(r *http.Request) (state.Identity, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == r.Header.Get("Authorization") {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return state.Identity{}, errors.New("missing bearer token")
	}
	userID, username, ok := strings.Cut(token, ":")
	if !ok || userID == "" {
		return state.Identity{}, errors.New("malformed dev token, want userId:username")
	}
	if username == "" {
		username = userID
	}
	return state.Identity{UserID: userID, Username: username}, nil
}

func (s *Server) handleWS(c *gin.Context) {
	id, err := identityFromRequest(c.Request)
	if err != nil {
		c.String(http.StatusUnauthorized, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	mb := &member{id: id, send: make(chan []byte, 32)}
	s.log.Info().Str("userId", id.UserID).Msg("socket connected")
	go writePump(conn, mb)
	s.readLoop(conn, mb)
}

func writePump(conn *websocket.Conn, mb *member) {
	for data := range mb.send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	_ = conn.Close()
}

func (s *Server) readLoop(conn *websocket.Conn, mb *member) {
	var room *Room
	defer func() {
		if room != nil {
			room.MarkDisconnected(mb)
		}
		mb.close()
		_ = conn.Close()
		s.log.Info().Str("userId", mb.id.UserID).Msg("socket disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			mb.emit(protocol.EvtRoomError, protocol.ErrorPayload{Message: "malformed frame"})
			continue
		}
		s.handleCommand(mb, &room, env)
	}
}

func (s *Server) handleCommand(mb *member, room **Room, env protocol.Envelope) {
	switch env.Event {
	case protocol.CmdRoomJoin:
		var p protocol.JoinRoomPayload
		if !decode(mb, env.Payload, &p) {
			return
		}
		rm := s.Rooms.Ensure(p.Code)
		if err := rm.Join(mb); err != nil {
			mb.emit(protocol.EvtRoomError, protocol.ErrorPayload{Message: err.Error()})
			return
		}
		*room = rm

	case protocol.CmdRoomLeave:
		var p protocol.LeaveRoomPayload
		if !decode(mb, env.Payload, &p) {
			return
		}
		rm := s.Rooms.Get(p.Code)
		if rm == nil {
			mb.emit(protocol.EvtRoomError, protocol.ErrorPayload{Message: "room not found"})
			return
		}
		left, err := rm.Leave(mb)
		if err != nil {
			mb.emit(protocol.EvtRoomError, protocol.ErrorPayload{Message: err.Error()})
			return
		}
		if left {
			*room = nil
		}

	case protocol.CmdGameStart:
		s.gameCommand(mb, *room, func(rm *Room) error { return rm.StartGame(mb.id.UserID) })

	case protocol.CmdGameStartQuestion:
		s.gameCommand(mb, *room, func(rm *Room) error { return rm.StartQuestion(mb.id.UserID) })

	case protocol.CmdGameSubmitAnswer:
		var p protocol.SubmitAnswerPayload
		if !decode(mb, env.Payload, &p) {
			return
		}
		s.gameCommand(mb, *room, func(rm *Room) error {
			return rm.SubmitAnswer(mb.id.UserID, mb.id.Username, p.Answer)
		})

	case protocol.CmdGameJudgeAnswer:
		var p protocol.JudgeAnswerPayload
		if !decode(mb, env.Payload, &p) {
			return
		}
		s.gameCommand(mb, *room, func(rm *Room) error {
			return rm.JudgeAnswer(mb.id.UserID, p.GuessID, p.Decision, p.Points)
		})

	case protocol.CmdGameNextQuestion:
		s.gameCommand(mb, *room, func(rm *Room) error { return rm.NextQuestion(mb.id.UserID) })

	default:
		s.log.Debug().Str("event", env.Event).Msg("ignoring unknown command")
	}
}

func (s *Server) gameCommand(mb *member, rm *Room, run func(*Room) error) {
	if rm == nil {
		mb.emit(protocol.EvtGameError, protocol.ErrorPayload{Message: ErrNotInRoom.Error()})
		return
	}
	if err := run(rm); err != nil {
		mb.emit(protocol.EvtGameError, protocol.ErrorPayload{Message: err.Error()})
	}
}

func decode(mb *member, raw json.RawMessage, out any) bool {
	if err := json.Unmarshal(raw, out); err != nil {
		mb.emit(protocol.EvtRoomError, protocol.ErrorPayload{Message: "malformed payload"})
		return false
	}
	return true
}
