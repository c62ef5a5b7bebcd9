// Package sender posts booking events to the salon's Telegram channel.
package sender

import (
	"context"
	"fmt"
	"html"
	"math"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/workwork-1/projectbotsalon/pkg/domain/booking"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

// Bot is the part of *tgbotapi.BotAPI the processor needs.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Processor struct {
	config ProcessorConfig
	logger zerolog.Logger

	bot   Bot
	queue chan string
	sleep func(ctx context.Context, d time.Duration)
}

func New(config ProcessorConfig, logger zerolog.Logger, bot Bot) *Processor {
	config = config.withDefaults()
	return &Processor{
		config: config,
		logger: logger.With().Str("component", "sender").Logger(),
		bot:    bot,
		queue:  make(chan string, config.QueueSize),
		sleep:  sleepCtx,
	}
}

// Notify queues a channel post for ev. It never blocks: when the queue is full the
// event is dropped and logged.
func (p *Processor) Notify(_ context.Context, ev booking.Event) {
	text := Format(ev)
	select {
	case p.queue <- text:
	default:
		p.logger.Warn().Int64("booking_id", ev.Booking.ID).Str("kind", string(ev.Kind)).Msg("notification queue full, dropped")
	}
}

// Run delivers queued posts until ctx is done.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-p.queue:
			if _, err := p.Send(ctx, text); err != nil {
				p.logger.Error().Err(err).Msg("notification lost")
			}
		}
	}
}

func (p *Processor) Send(ctx context.Context, text string) (int, error) {
	p.logger.Trace().Msg("In")
	defer p.logger.Trace().Msg("Out")

	msgToSend := p.config.message(text)

	var err error
	var msg tgbotapi.Message

	for i := 0; i < p.config.Attempts; i++ {
		msg, err = p.bot.Send(msgToSend)
		if err == nil {
			return msg.MessageID, nil
		}
		p.logger.Warn().Err(err).Int("retry", i+1).Msg("send failed, retrying")

		if i != 0 && i+1 < p.config.Attempts {
			p.sleep(ctx, time.Duration(math.Pow(2, float64(i)))*time.Second)
		}
		if ctx.Err() != nil {
			break
		}
	}
	p.logger.Error().Err(err).Msg("send permanently failed")

	return 0, errs.New("failed to send message").Arg("channel", p.config.ChannelID).Wrap(err)
}

// Format renders a booking event as an HTML channel post.
func Format(ev booking.Event) string {
	b := ev.Booking
	title := "🆕 Новая запись"
	if ev.Kind == booking.EventCancelled {
		title = "❌ Запись отменена"
	}
	return fmt.Sprintf("<b>%s #%d</b>\n%s, %s–%s\nУслуга: %s (%d мин)\nМастер: %s\nКлиент: %s, %s",
		title, b.ID,
		b.Day.Format("02.01.2006"), b.StartTime, b.EndTime,
		html.EscapeString(b.ServiceName), b.DurationMin,
		html.EscapeString(b.MasterName),
		html.EscapeString(b.ClientName), html.EscapeString(b.ClientPhone),
	)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
