package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"parascope/api/internal/imageref"
	"parascope/api/internal/logger"
	"parascope/api/internal/pipeline"
	"parascope/api/internal/report"
	"parascope/api/internal/sample"
)

// FileScheme marks image refs that point at a Telegram file_id.
const FileScheme = "tgfile"

// Bot is the subset of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Pipeline interface {
	Submit(ctx context.Context, imageRef string) (sample.Sample, error)
	Analyze(ctx context.Context, id string) (pipeline.Outcome, error)
	Reanalyze(ctx context.Context, id string) (pipeline.Outcome, error)
	CreateReport(ctx context.Context, sampleID string) (*sample.Report, error)
}

type SampleReader interface {
	Get(ctx context.Context, id string) (sample.Sample, error)
}

type ReportReader interface {
	Get(ctx context.Context, sampleID string) (*sample.Report, error)
}

type Router struct {
	Bot      Bot
	Pipeline Pipeline
	Samples  SampleReader
	Reports  ReportReader
	Renderer *report.Renderer
	Health   func(ctx context.Context) error
	Log      *logger.Logger
}

// FileResolver lets imageref fetch tgfile:// refs through the bot, so the
// token stays out of stored image refs.
func FileResolver(bot Bot) imageref.Resolver {
	return func(_ context.Context, fileID string) (string, error) {
		return bot.GetFileDirectURL(fileID)
	}
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.HandleCommand(ctx, *upd.Message)
		return
	}
	if len(upd.Message.Photo) > 0 {
		r.acceptPhoto(ctx, *upd.Message)
		return
	}
	if upd.Message.Document != nil && strings.HasPrefix(upd.Message.Document.MimeType, "image/") {
		r.acceptDocument(ctx, *upd.Message)
		return
	}
	r.send(upd.Message.Chat.ID, "Send a photo of a stained smear to analyse it. /start for help.")
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.log().Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}

func (r *Router) sendError(chatID int64, err error) {
	r.send(chatID, fmt.Sprintf("Error: %v", err))
}

func (r *Router) log() *logger.Logger {
	if r.Log == nil {
		return logger.NewNop()
	}
	return r.Log
}
