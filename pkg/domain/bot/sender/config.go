package sender

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ProcessorConfig values come from TG_CHANNEL_ID and defaults.
type ProcessorConfig struct {
	ChannelID string
	Attempts  int
	QueueSize int
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}

// message addresses either a numeric chat id (-100...) or an @channel username.
func (c ProcessorConfig) message(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(c.ChannelID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(c.ChannelID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	return msg
}
