// Package receiver drives the client-facing Telegram chat: a per-user state machine
// on top of the booking engine.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/workwork-1/projectbotsalon/pkg/domain/booking"
	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

// Client is the part of *tgbotapi.BotAPI the handler uses.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Booker is the booking engine as seen from the chat.
type Booker interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	GetService(ctx context.Context, id int64) (*model.Service, error)
	ListMasters(ctx context.Context) ([]model.Master, error)
	GetMaster(ctx context.Context, id int64) (*model.Master, error)
	AvailableDates(ctx context.Context, masterID int64, from time.Time, days int) ([]time.Time, error)
	GetAvailableSlots(ctx context.Context, masterID int64, date string, durationMin int) ([]booking.SlotView, error)
	RegisterClient(ctx context.Context, name, phone string, externalID *int64) (int64, error)
	ResolveClient(ctx context.Context, phone string, externalID *int64) (int64, bool, error)
	CreateBooking(ctx context.Context, clientID, serviceID, masterID int64, date, startTime string) (int64, error)
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	CancelBooking(ctx context.Context, id int64) error
	ListClientBookings(ctx context.Context, clientID int64) ([]model.BookingView, error)
	ListBookings(ctx context.Context, period booking.Period) ([]model.BookingView, error)
	Options() booking.Options
}

const (
	textGreeting = "👋 Добро пожаловать в салон красоты!\n\n" +
		"Доступные команды:\n" +
		"📝 /book - Записаться на услугу\n" +
		"📋 /my_bookings - Посмотреть ваши записи\n" +
		"❌ /cancel - Отменить запись"
	textUseButtons = "Пожалуйста, используйте кнопки 👆"
	textBadPhone   = "❌ Пожалуйста, введите корректный номер телефона (только цифры):"
	textBadName    = "❌ Имя не может быть пустым. Введите ваше имя:"
	textNoSlots    = "❌ На эту дату нет свободных слотов. Выберите другую дату"
	textSlotTaken  = "⛔ Это время уже занято. Выберите другое"
	textFailed     = "❌ Ошибка при создании записи. Попробуйте позже."
	textStale      = "Сессия устарела, начните заново"
)

type Handler struct {
	engine   Booker
	client   Client
	sessions SessionStore
	logger   zerolog.Logger

	admins      map[int64]bool
	remindAfter time.Duration
}

func NewHandler(engine Booker, client Client, sessions SessionStore, logger zerolog.Logger, admins []int64) *Handler {
	h := &Handler{
		engine:      engine,
		client:      client,
		sessions:    sessions,
		logger:      logger.With().Str("component", "receiver").Logger(),
		admins:      make(map[int64]bool, len(admins)),
		remindAfter: 5 * time.Second,
	}
	for _, id := range admins {
		h.admins[id] = true
	}
	return h
}

// HandleUpdate processes one update. Updates of the same user must not be handled
// concurrently; Run guarantees that.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	userID, ok := updateUserID(update)
	if !ok {
		return
	}
	sess, err := h.sessions.Get(ctx, userID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("load session")
		return
	}

	switch {
	case update.Message != nil:
		h.onMessage(ctx, update.Message, sess)
	case update.CallbackQuery != nil:
		h.onCallback(ctx, update.CallbackQuery, sess)
	}

	if err := h.sessions.Save(ctx, userID, sess); err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("save session")
	}
}

// ---------- Сообщения ----------

func (h *Handler) onMessage(ctx context.Context, m *tgbotapi.Message, sess *Session) {
	chatID := m.Chat.ID
	userID := m.From.ID

	if m.IsCommand() {
		switch m.Command() {
		case "start":
			sess.ResetFlow()
			sess.State = StateStart
			h.send(chatID, textGreeting, ptr(StartMenu()))
		case "book":
			h.beginBooking(ctx, sess, userID)
			h.show(ctx, chatID, 0, sess, userID)
		case "my_bookings", "cancel":
			sess.ResetFlow()
			sess.Go(StateMy)
			h.show(ctx, chatID, 0, sess, userID)
		case "today", "week":
			h.adminList(ctx, chatID, userID, booking.Period(m.Command()))
		default:
			h.send(chatID, textGreeting, nil)
		}
		return
	}

	text := strings.TrimSpace(m.Text)
	switch sess.State {
	case StateAskName:
		if text == "" || len([]rune(text)) > 100 {
			h.send(chatID, textBadName, nil)
			return
		}
		sess.Name = text
		sess.Go(StateAskPhone)
		h.show(ctx, chatID, 0, sess, userID)
	case StateAskPhone:
		if !ValidPhone(text) {
			h.send(chatID, textBadPhone, nil)
			return
		}
		sess.Phone = text
		sess.Go(StateBookService)
		h.show(ctx, chatID, 0, sess, userID)
	default:
		// Любой произвольный текст удаляем и напоминаем про кнопки
		_, _ = h.client.Request(tgbotapi.NewDeleteMessage(chatID, m.MessageID))
		sent, err := h.client.Send(tgbotapi.NewMessage(chatID, textUseButtons))
		if err != nil {
			return
		}
		go func(chatID int64, mid int) {
			time.Sleep(h.remindAfter)
			_, _ = h.client.Request(tgbotapi.NewDeleteMessage(chatID, mid))
		}(chatID, sent.MessageID)
	}
}

// beginBooking starts the flow; known Telegram users skip the name and phone steps.
func (h *Handler) beginBooking(ctx context.Context, sess *Session, userID int64) {
	sess.ResetFlow()
	if h.knownClient(ctx, sess, userID) {
		sess.Go(StateBookService)
		return
	}
	sess.Go(StateAskName)
}

func (h *Handler) knownClient(ctx context.Context, sess *Session, userID int64) bool {
	if sess.ClientID != 0 {
		return true
	}
	id, found, err := h.engine.ResolveClient(ctx, "", &userID)
	if err != nil {
		h.logger.Warn().Err(err).Int64("user_id", userID).Msg("resolve client")
		return false
	}
	if found {
		sess.ClientID = id
	}
	return found
}

func (h *Handler) adminList(ctx context.Context, chatID, userID int64, period booking.Period) {
	if !h.admins[userID] {
		h.send(chatID, textGreeting, nil)
		return
	}
	list, err := h.engine.ListBookings(ctx, period)
	if err != nil {
		h.logger.Error().Err(err).Msg("admin list bookings")
		h.send(chatID, textFailed, nil)
		return
	}
	if len(list) == 0 {
		h.send(chatID, "📋 Записей нет.", nil)
		return
	}
	var b strings.Builder
	b.WriteString("📋 Записи:\n")
	for _, v := range list {
		fmt.Fprintf(&b, "\n#%d %s %s–%s\n%s · %s\n%s, %s\n",
			v.ID, v.Day.Format("02.01"), v.StartTime, v.EndTime, v.ServiceName, v.MasterName, v.ClientName, v.ClientPhone)
	}
	h.send(chatID, b.String(), nil)
}

// ---------- Нажатия на inline-кнопки ----------

func (h *Handler) onCallback(ctx context.Context, cq *tgbotapi.CallbackQuery, sess *Session) {
	if cq.Message == nil {
		_, _ = h.client.Request(tgbotapi.NewCallback(cq.ID, ""))
		return
	}
	chatID, messageID := cq.Message.Chat.ID, cq.Message.MessageID
	userID := cq.From.ID
	data := cq.Data
	answer := ""

	switch {
	case data == CbStart || data == CbMain:
		sess.ResetFlow()
	case data == CbBook:
		h.beginBooking(ctx, sess, userID)
	case data == CbMy:
		sess.Go(StateMy)
	case data == CbHelp:
		sess.Go(StateHelp)
	case data == CbBack:
		sess.Back()

	case strings.HasPrefix(data, PSvc):
		id, _ := ID(data, PSvc)
		svc, err := h.engine.GetService(ctx, id)
		if err != nil {
			answer = h.fail(err, "service")
			break
		}
		sess.Booking.ServiceID, sess.Booking.ServiceName, sess.Booking.DurationMin = svc.ID, svc.Name, svc.DurationMin
		sess.Go(StateBookMaster)

	case strings.HasPrefix(data, PM):
		id, _ := ID(data, PM)
		m, err := h.engine.GetMaster(ctx, id)
		if err != nil {
			answer = h.fail(err, "master")
			break
		}
		sess.Booking.MasterID, sess.Booking.MasterName = m.ID, m.Name
		sess.Go(StateBookDate)

	case strings.HasPrefix(data, PD):
		val, _ := Is(data, PD)
		day, err := slots.ParseDate(val)
		if err != nil || day.Before(h.today()) || sess.Booking.MasterID == 0 {
			answer = textStale
			break
		}
		free, err := h.engine.GetAvailableSlots(ctx, sess.Booking.MasterID, val, sess.Booking.DurationMin)
		if err != nil {
			answer = h.fail(err, "slots")
			break
		}
		if len(free) == 0 {
			h.answer(cq.ID, textNoSlots, true)
			return
		}
		sess.Booking.Date = val
		sess.Go(StateBookTime)

	case strings.HasPrefix(data, PT):
		val, _ := Is(data, PT)
		if _, err := slots.ParseClock(val); err != nil {
			answer = textStale
			break
		}
		sess.Booking.Time = val
		sess.Go(StateBookConfirm)

	case data == CbOk:
		if done := h.confirm(ctx, cq, sess); done {
			return
		}
		answer = textSlotTaken

	case strings.HasPrefix(data, PX):
		id, _ := ID(data, PX)
		answer = h.cancel(ctx, sess, userID, id)
	}

	h.show(ctx, chatID, messageID, sess, userID)
	h.answer(cq.ID, answer, false)
}

// confirm commits the booking. It returns false when the slot was taken and the
// session went back to the time step.
func (h *Handler) confirm(ctx context.Context, cq *tgbotapi.CallbackQuery, sess *Session) bool {
	chatID, messageID := cq.Message.Chat.ID, cq.Message.MessageID
	userID := cq.From.ID
	bd := sess.Booking

	finish := func(text string) bool {
		sess.ResetFlow()
		h.edit(chatID, messageID, text, ptr(MainMenu()))
		h.answer(cq.ID, "", false)
		return true
	}

	if bd.ServiceID == 0 || bd.MasterID == 0 || bd.Date == "" || bd.Time == "" {
		return finish(textStale)
	}
	if !h.knownClient(ctx, sess, userID) {
		if sess.Name == "" || sess.Phone == "" {
			return finish(textStale)
		}
		id, err := h.engine.RegisterClient(ctx, sess.Name, sess.Phone, &userID)
		if err != nil {
			h.logger.Error().Err(err).Int64("user_id", userID).Msg("register client")
			return finish("❌ Ошибка при создании клиента. Попробуйте снова.")
		}
		sess.ClientID = id
	}

	id, err := h.engine.CreateBooking(ctx, sess.ClientID, bd.ServiceID, bd.MasterID, bd.Date, bd.Time)
	switch {
	case err == nil:
		h.logger.Info().Int64("booking_id", id).Int64("user_id", userID).Msg("booked via chat")
		return finish(fmt.Sprintf("✅ Запись успешно создана!\n\n🧴 %s\n💇 %s\n📅 %s в %s\n\n"+
			"📋 Посмотреть ваши записи: /my_bookings\n❌ Отменить запись: /cancel",
			bd.ServiceName, bd.MasterName, HumanDate(bd.Date), bd.Time))
	case errors.Is(err, errs.ErrConflict):
		sess.Booking.Time = ""
		sess.Back()
		if sess.State != StateBookTime {
			sess.State = StateBookTime
		}
		return false
	default:
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("create booking")
		return finish(textFailed)
	}
}

func (h *Handler) cancel(ctx context.Context, sess *Session, userID, bookingID int64) string {
	if bookingID == 0 || !h.knownClient(ctx, sess, userID) {
		return textStale
	}
	b, err := h.engine.GetBooking(ctx, bookingID)
	if err != nil || b.ClientID != sess.ClientID {
		return "Запись не найдена"
	}
	if err := h.engine.CancelBooking(ctx, bookingID); err != nil {
		return h.fail(err, "cancel")
	}
	return "Запись отменена"
}

func (h *Handler) fail(err error, op string) string {
	if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrValidation) {
		return textStale
	}
	h.logger.Error().Err(err).Str("op", op).Msg("callback failed")
	return textFailed
}

// ---------- Rendering по состоянию ----------

// render builds the text and keyboard of the session's current screen.
func (h *Handler) render(ctx context.Context, sess *Session, userID int64) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	switch sess.State {
	case StateStart:
		return textGreeting, ptr(StartMenu()), nil
	case StateAskName:
		return "👤 Введите ваше имя:", nil, nil
	case StateAskPhone:
		return "📱 Введите ваш номер телефона (только цифры):", nil, nil
	case StateBookService:
		services, err := h.engine.ListServices(ctx)
		if err != nil {
			return "", nil, err
		}
		return "💅 Выберите услугу:", ptr(ServiceMenu(services)), nil
	case StateBookMaster:
		masters, err := h.engine.ListMasters(ctx)
		if err != nil {
			return "", nil, err
		}
		return "💇 Выберите мастера:", ptr(MastersMenu(masters)), nil
	case StateBookDate:
		dates, err := h.engine.AvailableDates(ctx, sess.Booking.MasterID, h.today(), h.engine.Options().ScheduleDays)
		if err != nil {
			return "", nil, err
		}
		if len(dates) == 0 {
			return "❌ У мастера нет рабочих дней в ближайшее время.", ptr(BackMenu()), nil
		}
		return "📅 Выберите дату:", ptr(DateMenu(dates)), nil
	case StateBookTime:
		free, err := h.engine.GetAvailableSlots(ctx, sess.Booking.MasterID, sess.Booking.Date, sess.Booking.DurationMin)
		if err != nil {
			return "", nil, err
		}
		if len(free) == 0 {
			return textNoSlots, ptr(BackMenu()), nil
		}
		return "⏰ Выберите время:", ptr(TimeMenu(free)), nil
	case StateBookConfirm:
		bd := sess.Booking
		return fmt.Sprintf("📋 Подтвердите запись:\n\n🧴 Услуга: %s\n💇 Мастер: %s\n📅 Дата: %s\n⏰ Время: %s\n\nВсё верно?",
			bd.ServiceName, bd.MasterName, HumanDate(bd.Date), bd.Time), ptr(ConfirmMenu()), nil
	case StateMy:
		if !h.knownClient(ctx, sess, userID) {
			return "📋 У вас нет активных записей.", ptr(BackMenu()), nil
		}
		list, err := h.engine.ListClientBookings(ctx, sess.ClientID)
		if err != nil {
			return "", nil, err
		}
		if len(list) == 0 {
			return "📋 У вас нет активных записей.", ptr(BackMenu()), nil
		}
		var b strings.Builder
		b.WriteString("📋 Ваши записи:\n")
		for _, v := range list {
			fmt.Fprintf(&b, "\n📅 %s в %s\n🧴 Услуга: %s\n💇 Мастер: %s\n", HumanDate(v.Day.Format(slots.DateLayout)), v.StartTime, v.ServiceName, v.MasterName)
		}
		b.WriteString("\nНажмите на запись, чтобы отменить её.")
		return b.String(), ptr(MyMenu(list)), nil
	case StateHelp:
		return "Нажмите «Записаться», выберите услугу, мастера, дату и время.\n" +
			"Отменить запись можно в разделе «Мои записи».", ptr(BackMenu()), nil
	default:
		return "Выберите действие:", ptr(MainMenu()), nil
	}
}

// show sends the current screen, editing messageID when it is set.
func (h *Handler) show(ctx context.Context, chatID int64, messageID int, sess *Session, userID int64) {
	text, kb, err := h.render(ctx, sess, userID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Int("state", int(sess.State)).Msg("render")
		sess.ResetFlow()
		text, kb = textFailed, ptr(MainMenu())
	}
	if messageID != 0 {
		h.edit(chatID, messageID, text, kb)
		return
	}
	h.send(chatID, text, kb)
}

func (h *Handler) send(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := h.client.Send(msg); err != nil {
		h.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}

func (h *Handler) edit(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	var c tgbotapi.Chattable
	if kb != nil {
		c = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *kb)
	} else {
		c = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	if _, err := h.client.Send(c); err != nil {
		h.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("edit message")
	}
}

// answer гасит "часики" на кнопке
func (h *Handler) answer(callbackID, text string, alert bool) {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	_, _ = h.client.Request(cb)
}

func (h *Handler) today() time.Time {
	now := h.engine.Options().Now
	if now == nil {
		now = time.Now
	}
	return slots.Day(now())
}

func updateUserID(u tgbotapi.Update) (int64, bool) {
	switch {
	case u.Message != nil && u.Message.From != nil:
		return u.Message.From.ID, true
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		return u.CallbackQuery.From.ID, true
	}
	return 0, false
}

func ptr[T any](v T) *T { return &v }
