package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) isAdmin(userID int64) bool {
	return userID == b.config.AdminChatID
}

func (b *Bot) withAdminCheck(handler func(tgbotapi.Update)) func(tgbotapi.Update) {
	return func(update tgbotapi.Update) {
		if !b.isAdmin(update.Message.From.ID) {
			b.logger.Warnf("Rejected command from non-admin %d", update.Message.From.ID)
			b.sendMessage(update.Message.Chat.ID, "This bot only accepts commands from the operations admin.")
			return
		}
		handler(update)
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.API.Send(msg); err != nil {
		b.logger.Errorf("Failed to send message: %v", err)
	}
}
