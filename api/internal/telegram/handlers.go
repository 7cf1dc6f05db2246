package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"parascope/api/internal/report"
	"parascope/api/internal/sample"
)

const helpText = `Send a photo of a stained blood smear and I will check it for parasites.

Commands:
/status [id] - status of a sample (default: your last one)
/report [id] - report pages for a completed sample
/health - service check`

func (r *Router) HandleCommand(ctx context.Context, msg tgbotapi.Message) {
	cid := msg.Chat.ID
	arg := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "health":
		if r.Health != nil {
			if err := r.Health(ctx); err != nil {
				r.send(cid, "⚠️ Degraded: "+err.Error())
				return
			}
		}
		r.send(cid, "✅ OK")
	case "status":
		id := r.sampleArg(cid, arg)
		if id == "" {
			return
		}
		s, err := r.Samples.Get(ctx, id)
		if err != nil {
			r.replyLookupError(cid, id, err)
			return
		}
		r.send(cid, formatStatus(s))
	case "report":
		id := r.sampleArg(cid, arg)
		if id == "" {
			return
		}
		r.sendReport(ctx, cid, id)
	default:
		r.send(cid, "Unknown command. /start for help.")
	}
}

func (r *Router) sampleArg(chatID int64, arg string) string {
	if arg != "" {
		return arg
	}
	if id := getLast(chatID); id != "" {
		return id
	}
	r.send(chatID, "Which sample? Pass its id, e.g. /status 3f2a…")
	return ""
}

func (r *Router) replyLookupError(chatID int64, id string, err error) {
	if errors.Is(err, sample.ErrNotFound) {
		r.send(chatID, "Sample "+id+" not found.")
		return
	}
	r.sendError(chatID, err)
}

// sendReport sends the report as rendered pages. A completed sample whose
// report is missing gets one created first.
func (r *Router) sendReport(ctx context.Context, chatID int64, id string) {
	rep, err := r.Reports.Get(ctx, id)
	if errors.Is(err, sample.ErrNotFound) {
		rep, err = r.Pipeline.CreateReport(ctx, id)
	}
	if err != nil {
		r.replyLookupError(chatID, id, err)
		return
	}

	pages := report.Paginate(report.Document(rep), r.layout())
	if r.Renderer == nil {
		for _, p := range pages {
			r.send(chatID, strings.Join(p.Lines, "\n")+"\n\n"+p.Footer)
		}
		return
	}
	_, _ = r.Bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadPhoto))
	for _, p := range pages {
		png, err := r.Renderer.RenderPNG(p)
		if err != nil {
			r.sendError(chatID, err)
			return
		}
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
			Name:  fmt.Sprintf("report-%s-p%d.png", id, p.Number),
			Bytes: png,
		})
		photo.Caption = p.Footer
		if _, err := r.Bot.Send(photo); err != nil {
			r.log().Warn("telegram send photo failed", "chat_id", chatID, "error", err)
			return
		}
	}
}

func (r *Router) layout() report.Layout {
	if r.Renderer != nil {
		return r.Renderer.Layout
	}
	return report.DefaultLayout()
}
