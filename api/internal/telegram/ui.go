package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"parascope/api/internal/pipeline"
	"parascope/api/internal/sample"
)

const (
	cbReport = "report:"
	cbRetry  = "retry:"
)

func reportKeyboard(sampleID string) tgbotapi.InlineKeyboardMarkup {
	btn := tgbotapi.NewInlineKeyboardButtonData("📄 Report", cbReport+sampleID)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(btn))
}

func retryKeyboard(sampleID string) tgbotapi.InlineKeyboardMarkup {
	btn := tgbotapi.NewInlineKeyboardButtonData("🔁 Retry", cbRetry+sampleID)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(btn))
}

func formatOutcome(out pipeline.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔬 Sample %s\n", out.SampleID)
	switch {
	case out.Status == sample.StatusCompleted && out.Diagnosis != nil:
		d := out.Diagnosis
		fmt.Fprintf(&b, "Result: %s\nConfidence: %d%%\nParasites counted: %d\n",
			strings.ToUpper(string(d.Verdict)), d.Confidence, d.ParasiteCount)
		if f := strings.TrimSpace(d.Findings); f != "" {
			if r := []rune(f); len(r) > 1500 {
				f = string(r[:1500]) + "…"
			}
			b.WriteString("\n" + f)
		}
	case out.Status == sample.StatusFailed:
		b.WriteString(failureText(out.Reason))
	default:
		fmt.Fprintf(&b, "Status: %s", out.Status)
	}
	return b.String()
}

func failureText(reason sample.ReasonCode) string {
	switch reason {
	case sample.ReasonRateLimited:
		return "⚠️ Analysis failed: the model is rate limited. Retry in a minute."
	case sample.ReasonQuotaExhausted:
		return "⛔ Analysis failed: the model quota is exhausted. An operator has to top it up before retrying."
	default:
		return "⚠️ Analysis failed: the model service did not answer in time. Retry later."
	}
}

func formatStatus(s sample.Sample) string {
	out := pipeline.Outcome{SampleID: s.ID, Status: s.Status, Diagnosis: s.Diagnosis, Reason: s.FailureReason}
	text := formatOutcome(out)
	return text + "\n\nCreated: " + s.CreatedAt.UTC().Format("2006-01-02 15:04 MST")
}
