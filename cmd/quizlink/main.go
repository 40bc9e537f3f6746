package main

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const releaseVersion = "0.1.0"

type cliConfig struct {
	server   string
	token    string
	userID   string
	username string
	room     string
	verbose  bool
}

func (c *cliConfig) validate() error {
	if c.token == "" {
		return errMissingToken
	}
	if c.userID == "" {
		return errMissingUser
	}
	if c.username == "" {
		c.username = c.userID
	}
	return nil
}

func newCmd(cfg *cliConfig) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizlink",
		Short:         "Terminal client for QuizLink trivia rooms.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return runClient(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.server, "server", "s", "ws://localhost:8080/ws", "websocket endpoint of the game server (env: QUIZLINK_SERVER)")
	fs.StringVar(&cfg.token, "token", "", "bearer token for authentication (env: QUIZLINK_TOKEN)")
	fs.StringVar(&cfg.userID, "user-id", "", "authenticated user id (env: QUIZLINK_USER_ID)")
	fs.StringVar(&cfg.username, "username", "", "display name, defaults to user id (env: QUIZLINK_USERNAME)")
	fs.StringVarP(&cfg.room, "room", "r", "", "room code to join immediately (env: QUIZLINK_ROOM)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display debug output (env: QUIZLINK_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	return cmd
}

func main() {
	_ = godotenv.Load()
	cfg := &cliConfig{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
