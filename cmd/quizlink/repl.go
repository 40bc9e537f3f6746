package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizlink/quizlink/internal/client"
	"github.com/quizlink/quizlink/internal/protocol"
	"github.com/quizlink/quizlink/internal/state"
)

var (
	errMissingToken = errors.New("no token given (--token or QUIZLINK_TOKEN)")
	errMissingUser  = errors.New("no user id given (--user-id or QUIZLINK_USER_ID)")
)

func runClient(ctx context.Context, cfg *cliConfig) error {
	level := zerolog.InfoLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	logger := zerolog.New(cw).Level(level).With().Timestamp().Logger()

	sess, err := client.Dial(ctx, client.Options{
		URL:      cfg.server,
		Token:    cfg.token,
		Identity: state.Identity{UserID: cfg.userID, Username: cfg.username},
		Logger:   logger,
		OnTick: func(left int) {
			if left > 0 && (left <= 5 || left%10 == 0) {
				fmt.Printf("  %ds left\n", left)
			}
		},
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	snapshots, unsubscribe := sess.Subscribe()
	defer unsubscribe()
	go func() {
		var lastAlert string
		var endedShown bool
		for snap := range snapshots {
			if snap.Alert != "" && snap.Alert != lastAlert {
				fmt.Printf("! %s\n", snap.Alert)
			}
			lastAlert = snap.Alert
			game := snap.Game()
			if game != nil && game.Status == state.StatusEnded && !endedShown {
				printOutcome(game)
				endedShown = true
			}
			if game == nil || game.Status != state.StatusEnded {
				endedShown = false
			}
		}
	}()

	if cfg.room != "" {
		if err := sess.JoinRoom(cfg.room); err != nil {
			logger.Warn().Err(err).Str("room", cfg.room).Msg("auto-join failed")
		}
	}

	fmt.Println("Connected. Type 'help' for commands.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := handleLine(sess, line); err != nil {
			fmt.Printf("! %v\n", err)
		}
	}
	return scanner.Err()
}

func handleLine(sess *client.Session, line string) error {
	fields := strings.Fields(line)
	verb, rest := fields[0], fields[1:]

	switch verb {
	case "help":
		printHelp()
		return nil
	case "join":
		if len(rest) != 1 {
			return errors.New("usage: join CODE")
		}
		return sess.JoinRoom(rest[0])
	case "leave":
		snap := sess.Snapshot()
		if snap.Room == nil {
			return client.ErrNotInRoom
		}
		return sess.LeaveRoom(snap.Room.Code)
	case "start":
		return sess.StartGame()
	case "question":
		return sess.StartQuestion()
	case "answer":
		return sess.SubmitAnswer(strings.Join(rest, " "))
	case "judge":
		if len(rest) < 2 {
			return errors.New("usage: judge GUESS_ID correct|incorrect [POINTS]")
		}
		decision := protocol.Decision(rest[1])
		points := 0
		if len(rest) > 2 {
			p, err := strconv.Atoi(rest[2])
			if err != nil {
				return fmt.Errorf("bad points %q: %w", rest[2], err)
			}
			points = p
		}
		return sess.JudgeAnswer(rest[0], decision, points)
	case "next":
		return sess.NextQuestion()
	case "state":
		printSnapshot(sess.Snapshot())
		return nil
	case "dismiss":
		sess.DismissAlert()
		return nil
	default:
		return fmt.Errorf("unknown command %q, try 'help'", verb)
	}
}

func printHelp() {
	fmt.Print(`Commands:
  join CODE                          join a room
  leave                              leave the current room
  start                              start the game (host)
  question                           open the next question (host)
  answer TEXT...                     submit an answer
  judge GUESS_ID correct|incorrect [POINTS]
  next                               skip the current question (host)
  state                              print the current view
  dismiss                            clear the last error message
  quit
`)
}

func printSnapshot(snap state.Snapshot) {
	fmt.Printf("connection: %s", snap.Conn.Status)
	if snap.Conn.LastError != "" {
		fmt.Printf(" (%s)", snap.Conn.LastError)
	}
	fmt.Println()
	if snap.Room == nil {
		fmt.Println("not in a room")
		return
	}

	fmt.Printf("room %s, %d/%d seats\n", snap.Room.Code, len(snap.Room.Seats), snap.Room.Settings.PlayersMax)
	for _, seat := range snap.Room.Seats {
		marks := ""
		if seat.IsHost {
			marks += " [host]"
		}
		if !seat.IsConnected {
			marks += " [offline]"
		}
		if seat.UserID == snap.Identity.UserID {
			marks += " [you]"
		}
		fmt.Printf("  %d. %s%s\n", seat.SeatIdx, seat.Username, marks)
	}

	game := snap.Game()
	if game == nil {
		return
	}
	fmt.Printf("game: %s, question %d/%d\n", game.Status, game.TotalQuestionsAsked, game.TotalQuestionsTarget)
	if game.Question != nil {
		fmt.Printf("  Q: %s\n", game.Question.Prompt)
	}
	if state.IsMyTurn(snap) {
		fmt.Printf("  your turn! %ds remaining\n", state.Remaining(snap, time.Now()))
	}
	for _, guess := range snap.Pending {
		fmt.Printf("  guess %s by %s: %q\n", guess.GuessID, guess.Username, guess.Answer)
	}
	if len(game.Scores) > 0 {
		fmt.Print("  scores:")
		for _, seat := range snap.Room.Seats {
			fmt.Printf(" %s=%d", seat.Username, game.Scores[seat.UserID])
		}
		fmt.Println()
	}
}

func printOutcome(game *state.GameState) {
	if game.Outcome == nil {
		fmt.Println("Game over.")
		return
	}
	if game.Outcome.WinnerName != "" {
		fmt.Printf("Game over (%s). Winner: %s\n", game.Outcome.EndReason, game.Outcome.WinnerName)
		return
	}
	fmt.Printf("Game over (%s).\n", game.Outcome.EndReason)
}
