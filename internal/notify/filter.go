package notify

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

const DefaultTestPrefix = "+1555"

// TestNumberFilter short-circuits messages to seeded fake numbers so they never reach
// the provider.
type TestNumberFilter struct {
	next   Sink
	prefix string
	logger zerolog.Logger
}

func NewTestNumberFilter(next Sink, prefix string, logger zerolog.Logger) *TestNumberFilter {
	if prefix == "" {
		prefix = DefaultTestPrefix
	}
	return &TestNumberFilter{next: next, prefix: prefix, logger: logger}
}

func (f *TestNumberFilter) Send(ctx context.Context, msg Message) (Result, error) {
	if strings.HasPrefix(msg.To, f.prefix) {
		f.logger.Debug().Str("to", msg.To).Msg("skipping test number")
		return Result{
			Success: true,
			Skipped: true,
			Status:  StatusSkipped,
			Error:   "Test number - not sent",
		}, nil
	}
	return f.next.Send(ctx, msg)
}

// LogSink only logs messages. Used when no broker is configured.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, msg Message) (Result, error) {
	s.logger.Info().
		Str("to", msg.To).
		Str("from", msg.From).
		Str("body", msg.Body).
		Msg("sms")
	return Result{Success: true, Status: StatusLogged, ProviderMessageID: msg.ID.String()}, nil
}
