package sender

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/workwork-1/projectbotsalon/pkg/domain/booking"
	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
)

type fakeBot struct {
	mu       sync.Mutex
	failures int
	sent     []tgbotapi.MessageConfig
	calls    int
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failures > 0 {
		b.failures--
		return tgbotapi.Message{}, errors.New("telegram: Too Many Requests")
	}
	msg := c.(tgbotapi.MessageConfig)
	b.sent = append(b.sent, msg)
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) messages() []tgbotapi.MessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), b.sent...)
}

func newProcessor(cfg ProcessorConfig, bot Bot) (*Processor, *[]time.Duration) {
	p := New(cfg, zerolog.Nop(), bot)
	var waits []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) { waits = append(waits, d) }
	return p, &waits
}

func TestSend_Retry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantErr   bool
		wantCalls int
		wantWaits int
	}{
		{"first try", 0, false, 1, 0},
		{"second try", 1, false, 2, 0},
		{"third try", 2, false, 3, 1},
		{"gives up", 5, true, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := &fakeBot{failures: tt.failures}
			p, waits := newProcessor(ProcessorConfig{ChannelID: "-1001234"}, bot)

			_, err := p.Send(context.Background(), "hello")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if bot.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", bot.calls, tt.wantCalls)
			}
			if len(*waits) != tt.wantWaits {
				t.Errorf("waits = %v", *waits)
			}
		})
	}
}

func TestSend_Addressing(t *testing.T) {
	bot := &fakeBot{}
	p, _ := newProcessor(ProcessorConfig{ChannelID: "-1001234"}, bot)
	_, _ = p.Send(context.Background(), "a")
	p, _ = newProcessor(ProcessorConfig{ChannelID: "@salon_bookings"}, bot)
	_, _ = p.Send(context.Background(), "b")

	sent := bot.messages()
	if sent[0].ChatID != -1001234 {
		t.Errorf("numeric channel: chat id %d", sent[0].ChatID)
	}
	if sent[1].ChannelUsername != "@salon_bookings" {
		t.Errorf("username channel: %q", sent[1].ChannelUsername)
	}
}

func TestNotify_Run(t *testing.T) {
	bot := &fakeBot{}
	p, _ := newProcessor(ProcessorConfig{ChannelID: "-1", QueueSize: 4}, bot)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Notify(ctx, booking.Event{Kind: booking.EventCreated, Booking: model.BookingView{
		ID: 7, Day: time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC),
		StartTime: slots.MustClock("10:00"), EndTime: slots.MustClock("11:00"),
		ServiceName: "Стрижка", DurationMin: 60, MasterName: "Анна", ClientName: "<Мария>", ClientPhone: "+79161234567",
	}})

	deadline := time.After(2 * time.Second)
	for len(bot.messages()) == 0 {
		select {
		case <-deadline:
			t.Fatal("notification not delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	text := bot.messages()[0].Text
	for _, want := range []string{"Новая запись #7", "07.01.2030, 10:00–11:00", "Стрижка (60 мин)", "&lt;Мария&gt;"} {
		if !strings.Contains(text, want) {
			t.Errorf("post %q lacks %q", text, want)
		}
	}
}

func TestNotify_FullQueueDrops(t *testing.T) {
	p, _ := newProcessor(ProcessorConfig{ChannelID: "-1", QueueSize: 1}, &fakeBot{})
	ev := booking.Event{Kind: booking.EventCancelled}
	p.Notify(context.Background(), ev)
	p.Notify(context.Background(), ev) // must not block
	if len(p.queue) != 1 {
		t.Fatalf("queue length %d", len(p.queue))
	}
}
