package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Recognized environment overrides. Values win over the config file.
const (
	EnvTargetURL    = "LISTINGWATCH_TARGET_URL"
	EnvStorageDrv   = "LISTINGWATCH_STORAGE_DRIVER"
	EnvStoragePath  = "LISTINGWATCH_STORAGE_PATH"
	EnvLogLevel     = "LISTINGWATCH_LOG_LEVEL"
	EnvBotToken     = "BOT_TOKEN"
	EnvChatID       = "CHAT_ID"
	EnvSMTPPassword = "SMTP_PASSWORD"
)

// LoadDotenv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are not overwritten; a missing file is not an error.
func LoadDotenv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides config fields from the environment using lookup
// (os.LookupEnv when nil). A token and a chat id both set in the
// environment enable the telegram sink.
func ApplyEnv(c *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvTargetURL); ok {
		c.Source.URL = v
	}
	if v, ok := get(EnvStorageDrv); ok {
		c.Storage.Driver = v
	}
	if v, ok := get(EnvStoragePath); ok {
		c.Storage.Path = v
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Logging.Level = v
	}
	if v, ok := get(EnvSMTPPassword); ok {
		c.Notify.Email.Password = v
	}

	token, hasToken := get(EnvBotToken)
	if hasToken {
		c.Notify.Telegram.Token = token
	}
	chat, hasChat := get(EnvChatID)
	if hasChat {
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q: %w", EnvChatID, chat, err)
		}
		c.Notify.Telegram.ChatID = id
	}
	if hasToken && hasChat {
		c.Notify.Telegram.Enabled = true
	}
	return nil
}
