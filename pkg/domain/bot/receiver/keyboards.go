package receiver

import (
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/workwork-1/projectbotsalon/pkg/domain/booking"
	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
)

const buttonsPerRow = 3

// ---------- UI builders ----------

func backRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", CbBack))
}

func StartMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("НАЧАТЬ", CbStart)),
	)
}

func MainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📝 Записаться", CbBook)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Мои записи", CbMy)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❓ Помощь", CbHelp)),
	)
}

func BackMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(backRow())
}

func ServiceMenu(services []model.Service) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(services)+1)
	for _, s := range services {
		label := fmt.Sprintf("%s · %d мин · %d ₽", s.Name, s.DurationMin, s.Price)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, PSvc+strconv.FormatInt(s.ID, 10)),
		))
	}
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func MastersMenu(masters []model.Master) tgbotapi.InlineKeyboardMarkup {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(masters))
	for _, m := range masters {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(m.Name, PM+strconv.FormatInt(m.ID, 10)))
	}
	return grid(buttons, 2)
}

func DateMenu(dates []time.Time) tgbotapi.InlineKeyboardMarkup {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(dates))
	for _, d := range dates {
		iso := d.Format(slots.DateLayout)
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(HumanDate(iso), PD+iso))
	}
	return grid(buttons, buttonsPerRow)
}

func TimeMenu(free []booking.SlotView) tgbotapi.InlineKeyboardMarkup {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(free))
	for _, s := range free {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(s.StartTime, PT+s.StartTime))
	}
	return grid(buttons, 4)
}

func ConfirmMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", CbOk)),
		backRow(),
	)
}

// MyMenu has one cancel button per booking.
func MyMenu(list []model.BookingView) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(list)+1)
	for _, b := range list {
		label := fmt.Sprintf("❌ %s %s · %s", b.Day.Format("02.01"), b.StartTime, b.ServiceName)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, PX+strconv.FormatInt(b.ID, 10)),
		))
	}
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func grid(buttons []tgbotapi.InlineKeyboardButton, perRow int) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons)/perRow+2)
	for i := 0; i < len(buttons); i += perRow {
		end := min(i+perRow, len(buttons))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons[i:end]...))
	}
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

var weekdaysRu = [...]string{"вс", "пн", "вт", "ср", "чт", "пт", "сб"}

func HumanDate(iso string) string {
	t, err := time.Parse(slots.DateLayout, iso)
	if err != nil {
		return iso
	}
	return fmt.Sprintf("%s (%s)", t.Format("02.01"), weekdaysRu[t.Weekday()])
}
