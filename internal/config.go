package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host                 string        `env:"HOST,required=true"`
	Port                 int           `env:"PORT,required=true"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	JWTSecret            string        `env:"JWT_SECRET"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`
	BufferSize           int           `env:"BUFFER_SIZE,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,required=true"`
	CensoredWords        string        `env:"CENSORED_WORDS"`
	CensoredChar         string        `env:"CENSORED_CHAR"`
}

// CensoredWordList parses the comma-separated censored word list.
// An empty result disables moderation.
func (c Config) CensoredWordList() []string {
	var words []string
	for _, w := range strings.Split(c.CensoredWords, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// CharacterRune returns the replacement character for censored text,
// defaulting to '*' when unset.
func CharacterRune(str string) (rune, error) {
	if str == "" {
		return '*', nil
	}
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CENSORED_CHAR must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
