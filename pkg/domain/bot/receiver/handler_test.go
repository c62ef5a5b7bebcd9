package receiver

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/workwork-1/projectbotsalon/pkg/domain/booking"
	"github.com/workwork-1/projectbotsalon/pkg/repository/memstore"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
)

type fakeClient struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
}

func (c *fakeClient) Send(m tgbotapi.Chattable) (tgbotapi.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	c.nextID++
	return tgbotapi.Message{MessageID: c.nextID, Chat: &tgbotapi.Chat{ID: 1}}, nil
}

func (c *fakeClient) Request(m tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, m)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// last returns the text and inline keyboard of the latest sent or edited message.
func (c *fakeClient) last(t *testing.T) (string, *tgbotapi.InlineKeyboardMarkup) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatal("nothing sent")
	}
	switch v := c.sent[len(c.sent)-1].(type) {
	case tgbotapi.MessageConfig:
		if kb, ok := v.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
			return v.Text, &kb
		}
		return v.Text, nil
	case tgbotapi.EditMessageTextConfig:
		return v.Text, v.ReplyMarkup
	default:
		t.Fatalf("unexpected chattable %T", v)
		return "", nil
	}
}

func (c *fakeClient) lastAnswer(t *testing.T) tgbotapi.CallbackConfig {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.requests) - 1; i >= 0; i-- {
		if cb, ok := c.requests[i].(tgbotapi.CallbackConfig); ok {
			return cb
		}
	}
	t.Fatal("no callback answered")
	return tgbotapi.CallbackConfig{}
}

func (c *fakeClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func hasButton(kb *tgbotapi.InlineKeyboardMarkup, data string) bool {
	if kb == nil {
		return false
	}
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			if b.CallbackData != nil && *b.CallbackData == data {
				return true
			}
		}
	}
	return false
}

func command(userID int64, cmd string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      cmd,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func text(userID int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      s,
	}}
}

func press(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 100, Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}}
}

type botFixture struct {
	h        *Handler
	engine   *booking.Engine
	client   *fakeClient
	sessions *Store
	haircut  model.Service
	anna     model.Master
}

func newBotFixture(t *testing.T, admins ...int64) *botFixture {
	t.Helper()
	ctx := context.Background()

	opts := booking.DefaultOptions()
	opts.Now = func() time.Time { return time.Date(2030, 1, 7, 8, 0, 0, 0, time.UTC) } // Monday
	e := booking.New(memstore.New(), opts, zerolog.Nop())
	if _, err := e.SeedCatalog(ctx,
		[]model.Service{{Name: "Стрижка", DurationMin: 60, Price: 1500}},
		[]model.Master{{Name: "Анна"}},
	); err != nil {
		t.Fatal(err)
	}
	if _, err := e.EnsureSchedulesFromToday(ctx); err != nil {
		t.Fatal(err)
	}
	services, _ := e.ListServices(ctx)
	masters, _ := e.ListMasters(ctx)

	client := &fakeClient{}
	sessions := NewStore()
	h := NewHandler(e, client, sessions, zerolog.Nop(), admins)
	h.remindAfter = 0
	return &botFixture{h: h, engine: e, client: client, sessions: sessions, haircut: services[0], anna: masters[0]}
}

func (f *botFixture) session(t *testing.T, userID int64) *Session {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestHandler_BookingFlow(t *testing.T) {
	ctx := context.Background()
	f := newBotFixture(t)
	const user = int64(42)
	svc := PSvc + strconv.FormatInt(f.haircut.ID, 10)
	master := PM + strconv.FormatInt(f.anna.ID, 10)

	f.h.HandleUpdate(ctx, command(user, "/book"))
	if got, _ := f.client.last(t); !strings.Contains(got, "имя") {
		t.Fatalf("expected name prompt, got %q", got)
	}

	f.h.HandleUpdate(ctx, text(user, "Мария"))
	f.h.HandleUpdate(ctx, text(user, "916-123"))
	if got, _ := f.client.last(t); got != textBadPhone {
		t.Fatalf("expected phone rejection, got %q", got)
	}
	if s := f.session(t, user); s.State != StateAskPhone {
		t.Fatalf("state %d after bad phone", s.State)
	}

	f.h.HandleUpdate(ctx, text(user, "89161234567"))
	if _, kb := f.client.last(t); !hasButton(kb, svc) {
		t.Fatalf("service menu lacks %s", svc)
	}

	f.h.HandleUpdate(ctx, press(user, svc))
	if _, kb := f.client.last(t); !hasButton(kb, master) {
		t.Fatalf("master menu lacks %s", master)
	}

	f.h.HandleUpdate(ctx, press(user, master))
	_, kb := f.client.last(t)
	if !hasButton(kb, PD+"2030-01-07") || hasButton(kb, PD+"2030-01-12") {
		t.Fatalf("date menu must list working days only: %+v", kb)
	}

	f.h.HandleUpdate(ctx, press(user, PD+"2030-01-12"))
	if ans := f.client.lastAnswer(t); ans.Text != textNoSlots || !ans.ShowAlert {
		t.Fatalf("expected no-slots alert, got %+v", ans)
	}
	if s := f.session(t, user); s.State != StateBookDate {
		t.Fatalf("state %d after empty date", s.State)
	}

	f.h.HandleUpdate(ctx, press(user, PD+"2030-01-08"))
	if _, kb := f.client.last(t); !hasButton(kb, PT+"10:00") {
		t.Fatal("time menu lacks 10:00")
	}
	f.h.HandleUpdate(ctx, press(user, PT+"10:00"))
	if got, _ := f.client.last(t); !strings.Contains(got, "Подтвердите") {
		t.Fatalf("expected confirmation, got %q", got)
	}

	// Someone else takes the slot while the user hesitates.
	other, err := f.engine.RegisterClient(ctx, "Ольга", "+79160000000", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.CreateBooking(ctx, other, f.haircut.ID, f.anna.ID, "2030-01-08", "10:00"); err != nil {
		t.Fatal(err)
	}

	f.h.HandleUpdate(ctx, press(user, CbOk))
	if ans := f.client.lastAnswer(t); ans.Text != textSlotTaken {
		t.Fatalf("expected slot taken, got %+v", ans)
	}
	s := f.session(t, user)
	if s.State != StateBookTime || s.Booking.Time != "" {
		t.Fatalf("expected time step, got state %d time %q", s.State, s.Booking.Time)
	}
	if _, kb := f.client.last(t); hasButton(kb, PT+"10:00") || !hasButton(kb, PT+"11:00") {
		t.Fatal("time menu not refreshed")
	}

	f.h.HandleUpdate(ctx, press(user, PT+"11:00"))
	f.h.HandleUpdate(ctx, press(user, CbOk))
	if got, _ := f.client.last(t); !strings.Contains(got, "Запись успешно создана") {
		t.Fatalf("expected success, got %q", got)
	}
	s = f.session(t, user)
	if s.State != StateMain || s.ClientID == 0 {
		t.Fatalf("unexpected session after booking %+v", s)
	}

	clientID, found, err := f.engine.ResolveClient(ctx, "", ptr(user))
	if err != nil || !found || clientID != s.ClientID {
		t.Fatalf("client not linked to telegram id: %d %v %v", clientID, found, err)
	}
	list, _ := f.engine.ListClientBookings(ctx, clientID)
	if len(list) != 1 || list[0].StartTime.String() != "11:00" {
		t.Fatalf("unexpected bookings %+v", list)
	}

	// A known user skips name and phone.
	f.h.HandleUpdate(ctx, command(user, "/book"))
	if s := f.session(t, user); s.State != StateBookService {
		t.Fatalf("known user asked for name again, state %d", s.State)
	}
}

func TestHandler_CancelFromList(t *testing.T) {
	ctx := context.Background()
	f := newBotFixture(t)
	const user = int64(7)

	mine, _ := f.engine.RegisterClient(ctx, "Ира", "+79165550000", ptr(user))
	id, err := f.engine.CreateBooking(ctx, mine, f.haircut.ID, f.anna.ID, "2030-01-09", "12:00")
	if err != nil {
		t.Fatal(err)
	}
	stranger, _ := f.engine.RegisterClient(ctx, "Чужой", "+79165550001", nil)
	foreign, err := f.engine.CreateBooking(ctx, stranger, f.haircut.ID, f.anna.ID, "2030-01-09", "15:00")
	if err != nil {
		t.Fatal(err)
	}

	f.h.HandleUpdate(ctx, command(user, "/cancel"))
	_, kb := f.client.last(t)
	cancelMine := PX + strconv.FormatInt(id, 10)
	if !hasButton(kb, cancelMine) {
		t.Fatalf("list lacks %s", cancelMine)
	}

	f.h.HandleUpdate(ctx, press(user, PX+strconv.FormatInt(foreign, 10)))
	if ans := f.client.lastAnswer(t); ans.Text != "Запись не найдена" {
		t.Fatalf("foreign booking: got %+v", ans)
	}
	if b, _ := f.engine.GetBooking(ctx, foreign); b.Status != model.StatusConfirmed {
		t.Fatal("foreign booking was cancelled")
	}

	f.h.HandleUpdate(ctx, press(user, cancelMine))
	if ans := f.client.lastAnswer(t); ans.Text != "Запись отменена" {
		t.Fatalf("got %+v", ans)
	}
	if got, _ := f.client.last(t); !strings.Contains(got, "нет активных записей") {
		t.Fatalf("list not refreshed: %q", got)
	}
}

func TestHandler_FreeTextAndStart(t *testing.T) {
	ctx := context.Background()
	f := newBotFixture(t)

	f.h.HandleUpdate(ctx, command(5, "/start"))
	got, kb := f.client.last(t)
	if !strings.Contains(got, "/book") || !hasButton(kb, CbStart) {
		t.Fatalf("unexpected greeting %q", got)
	}
	f.h.HandleUpdate(ctx, press(5, CbStart))
	if _, kb := f.client.last(t); !hasButton(kb, CbBook) {
		t.Fatal("main menu expected")
	}

	f.h.HandleUpdate(ctx, text(5, "привет"))
	if got, _ := f.client.last(t); got != textUseButtons {
		t.Fatalf("expected reminder, got %q", got)
	}
}

func TestHandler_AdminList(t *testing.T) {
	ctx := context.Background()
	f := newBotFixture(t, 1)

	c, _ := f.engine.RegisterClient(ctx, "Мария", "+79161234567", nil)
	if _, err := f.engine.CreateBooking(ctx, c, f.haircut.ID, f.anna.ID, "2030-01-07", "16:00"); err != nil {
		t.Fatal(err)
	}

	f.h.HandleUpdate(ctx, command(1, "/today"))
	if got, _ := f.client.last(t); !strings.Contains(got, "16:00–17:00") || !strings.Contains(got, "Мария") {
		t.Fatalf("admin list: %q", got)
	}

	f.h.HandleUpdate(ctx, command(2, "/today"))
	if got, _ := f.client.last(t); got != textGreeting {
		t.Fatalf("non admin got %q", got)
	}
}

func TestRun_ShardsAndStops(t *testing.T) {
	f := newBotFixture(t)
	updates := make(chan tgbotapi.Update)
	done := make(chan struct{})
	go func() {
		f.h.Run(context.Background(), updates, 3)
		close(done)
	}()

	for user := int64(1); user <= 6; user++ {
		updates <- command(user, "/start")
	}
	updates <- tgbotapi.Update{} // no sender, skipped
	close(updates)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
	if n := f.client.sentCount(); n != 6 {
		t.Fatalf("expected 6 greetings, got %d", n)
	}
}
