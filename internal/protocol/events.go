package protocol

// Inbound events (server -> client).
const (
	EvtRoomState              = "room:state"
	EvtRoomError              = "room:error"
	EvtRoomLeftSuccessfully   = "room:leftSuccessfully"
	EvtRoomPlayerConnected    = "room:playerConnected"
	EvtRoomPlayerDisconnected = "room:playerDisconnected"
	EvtRoomPlayerLeft         = "room:playerLeft"
	EvtRoomHostTransferred    = "room:hostTransferred"

	EvtGameState                 = "game:state"
	EvtGameError                 = "game:error"
	EvtGameStarted               = "game:started"
	EvtGameEnded                 = "game:ended"
	EvtGameQuestionStarted       = "game:questionStarted"
	EvtGameQuestionSolved        = "game:questionSolved"
	EvtGameQuestionUnsolved      = "game:questionUnsolved"
	EvtGameTurnAdvanced          = "game:turnAdvanced"
	EvtGameNextQuestion          = "game:nextQuestion"
	EvtGamePaused                = "game:paused"
	EvtGameAnswerSubmitted       = "game:answerSubmitted"
	EvtGameHostLeaveConfirmation = "game:hostLeaveConfirmation"
)

// Outbound commands (client -> server).
const (
	CmdRoomJoin          = "room:join"
	CmdRoomLeave         = "room:leave"
	CmdGameStart         = "game:start"
	CmdGameStartQuestion = "game:startQuestion"
	CmdGameSubmitAnswer  = "game:submitAnswer"
	CmdGameJudgeAnswer   = "game:judgeAnswer"
	CmdGameNextQuestion  = "game:nextQuestion"
)

// Decision is a host's verdict on a pending guess.
type Decision string

const (
	DecisionCorrect   Decision = "correct"
	DecisionIncorrect Decision = "incorrect"
)
