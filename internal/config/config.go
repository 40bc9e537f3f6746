package config

import "os"

type Config struct {
	Port      string
	ServerURL string
	Token     string
	UserID    string
	Username  string
}

func FromEnv() Config {
	c := Config{}
	c.Port = getenv("PORT", "8080")
	c.ServerURL = getenv("QUIZLINK_SERVER", "ws://localhost:8080/ws")
	c.Token = os.Getenv("QUIZLINK_TOKEN")
	c.UserID = os.Getenv("QUIZLINK_USER_ID")
	c.Username = getenv("QUIZLINK_USERNAME", c.UserID)
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
