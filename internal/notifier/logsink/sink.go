// Package logsink writes records to the application log. It is the default
// sink when no remote channel is configured.
package logsink

import (
	"context"

	"listingwatch/internal/listing"
	"listingwatch/internal/notifier"
	logx "listingwatch/pkg/logx"
)

type Sink struct {
	log logx.Logger
}

func New(log logx.Logger) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{log: log}
}

func (s *Sink) Name() string { return "log" }

func (s *Sink) Send(ctx context.Context, rec listing.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info(notifier.Title(rec),
		logx.String("id", rec.ID),
		logx.String("address", rec.Address),
		logx.String("description", rec.Description),
		logx.String("price", rec.Prices.Primary),
		logx.String("price_secondary", rec.Prices.Secondary),
		logx.String("url", rec.URL),
	)
	return nil
}

func (s *Sink) SendError(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Error(message)
	return nil
}

func (s *Sink) SendStatus(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info(message)
	return nil
}
