package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"parascope/api/internal/pipeline"
	"parascope/api/internal/sample"
)

func (r *Router) acceptPhoto(ctx context.Context, msg tgbotapi.Message) {
	// самое большое разрешение идёт последним
	ph := msg.Photo[len(msg.Photo)-1]
	r.analyzeFile(ctx, msg.Chat.ID, ph.FileID)
}

func (r *Router) acceptDocument(ctx context.Context, msg tgbotapi.Message) {
	r.analyzeFile(ctx, msg.Chat.ID, msg.Document.FileID)
}

func (r *Router) analyzeFile(ctx context.Context, chatID int64, fileID string) {
	s, err := r.Pipeline.Submit(ctx, FileScheme+"://"+fileID)
	if err != nil {
		r.sendError(chatID, err)
		return
	}
	setLast(chatID, s.ID)
	r.send(chatID, "Photo received, sample "+s.ID+". Analysing…")
	_, _ = r.Bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	r.runAnalysis(ctx, chatID, s.ID, r.Pipeline.Analyze)
}

func (r *Router) runAnalysis(ctx context.Context, chatID int64, id string,
	analyze func(context.Context, string) (pipeline.Outcome, error)) {
	out, err := analyze(ctx, id)
	if out.SampleID != "" {
		setLast(chatID, out.SampleID)
	}

	var (
		aerr *sample.AnalysisError
		rerr *sample.ReportCreationError
	)
	switch {
	case err == nil:
		r.sendOutcome(chatID, out, reportKeyboard(out.SampleID))
	case errors.As(err, &rerr):
		r.log().Warn("report creation failed", "sample_id", out.SampleID, "error", rerr.Err)
		r.sendOutcome(chatID, out, reportKeyboard(out.SampleID))
	case errors.As(err, &aerr):
		r.sendOutcome(chatID, out, retryKeyboard(out.SampleID))
	default:
		r.log().Error("analysis error", "sample_id", id, "error", err)
		r.sendError(chatID, err)
	}
}

func (r *Router) sendOutcome(chatID int64, out pipeline.Outcome, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, formatOutcome(out))
	msg.ReplyMarkup = kb
	if _, err := r.Bot.Send(msg); err != nil {
		r.log().Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}
