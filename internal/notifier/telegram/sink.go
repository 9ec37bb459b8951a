// Package telegram delivers records to a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"listingwatch/internal/listing"
	logx "listingwatch/pkg/logx"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

const (
	textLimit    = 4000
	captionLimit = 1024
)

var ErrNoToken = errors.New("telegram token is empty")

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// RatePerSec caps outgoing API calls.
	RatePerSec int
	// LinkTemplate builds the detail link when a record has no URL; "{id}"
	// is replaced by the record id.
	LinkTemplate string
	// APIURL overrides the Bot API endpoint.
	APIURL string
	// Timeout bounds one HTTP call to the Bot API.
	Timeout time.Duration
}

// Sink sends one message per record. It never polls for updates.
type Sink struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	chat    *tele.Chat
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNoToken
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Sink{
		cfg:     cfg,
		log:     log,
		bot:     b,
		chat:    &tele.Chat{ID: cfg.ChatID},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}, nil
}

func (s *Sink) Name() string { return "telegram" }

// Send posts the photo with the rendered caption when the record has a photo
// and the caption fits; otherwise, or when the photo send fails, it posts
// plain HTML text.
func (s *Sink) Send(ctx context.Context, rec listing.Record) error {
	msg := Render(rec, s.cfg.LinkTemplate)

	if rec.PhotoRef != "" && runeLen(msg) <= captionLimit {
		err := s.call(ctx, func() error {
			photo := &tele.Photo{File: tele.FromURL(rec.PhotoRef), Caption: msg}
			_, err := s.bot.Send(s.chat, photo, s.options())
			return err
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		s.log.Debug("photo send failed; falling back to text",
			logx.String("record", rec.Key()), logx.Err(err))
	}
	return s.sendText(ctx, msg)
}

// SendError posts an operator alert as escaped plain text.
func (s *Sink) SendError(ctx context.Context, message string) error {
	return s.sendText(ctx, "⚠️ "+escape(message))
}

// SendStatus posts a routine status report as escaped plain text.
func (s *Sink) SendStatus(ctx context.Context, message string) error {
	return s.sendText(ctx, "ℹ️ "+escape(message))
}

func (s *Sink) sendText(ctx context.Context, text string) error {
	for _, chunk := range splitText(text, textLimit, tele.ModeHTML) {
		chunk := chunk
		if err := s.call(ctx, func() error {
			_, err := s.bot.Send(s.chat, chunk, s.options())
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) options() *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              s.cfg.ThreadID,
	}
}

// call waits for the rate limiter and runs fn. The Bot API client has no
// context support, so ctx only bounds the wait and is checked before the call.
func (s *Sink) call(ctx context.Context, fn func() error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

func runeLen(s string) int { return len([]rune(s)) }
