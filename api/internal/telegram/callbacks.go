package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID

	// убрать клавиатуру, чтобы кнопку не нажали дважды
	edit := tgbotapi.NewEditMessageReplyMarkup(cid, cb.Message.MessageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	_, _ = r.Bot.Request(edit)

	switch {
	case strings.HasPrefix(cb.Data, cbReport):
		r.sendReport(ctx, cid, strings.TrimPrefix(cb.Data, cbReport))
	case strings.HasPrefix(cb.Data, cbRetry):
		r.send(cid, "Retrying…")
		r.runAnalysis(ctx, cid, strings.TrimPrefix(cb.Data, cbRetry), r.Pipeline.Reanalyze)
	}
}
