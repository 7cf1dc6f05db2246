package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"parascope/api/internal/app"
	"parascope/api/internal/config"
	"parascope/api/internal/httpserver"
	"parascope/api/internal/logger"
	"parascope/api/internal/observability"
	"parascope/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		log.Fatal("missing required env TELEGRAM_BOT_TOKEN")
	}
	if err := cfg.ValidateVision(); err != nil {
		log.Fatal("invalid config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName:    "parascope-bot",
		Environment:    cfg.LogMode,
		VisionProvider: cfg.Provider,
		VisionModel:    cfg.VisionModel(),
		Store:          cfg.Store,
	})
	defer func() { _ = shutdownOTel(context.Background()) }()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("init app", "err", err)
	}
	defer a.Close()
	if err := a.Migrate(ctx); err != nil {
		log.Fatal("migrate", "err", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal("telegram login", "err", err)
	}
	bot.Debug = false
	a.Images.Register(telegram.FileScheme, telegram.FileResolver(bot))

	r := &telegram.Router{
		Bot:      bot,
		Pipeline: a.Pipeline,
		Samples:  a.Samples,
		Reports:  a.Reports,
		Renderer: a.Renderer,
		Health:   a.Health,
		Log:      log,
	}

	// ListenForWebhook registers on DefaultServeMux, so healthz goes there too.
	http.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := a.Health(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	addr := "0.0.0.0:" + cfg.Port
	handle := func(upd tgbotapi.Update) { go r.HandleUpdate(ctx, upd) }

	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		startWebhookMode(ctx, addr, bot, webhookURL, handle, log)
	} else {
		startPollingMode(ctx, addr, bot, handle, log)
	}
}

func startWebhookMode(ctx context.Context, addr string, bot *tgbotapi.BotAPI, baseURL string, handle func(tgbotapi.Update), log *logger.Logger) {
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		log.Fatal("webhook", "err", err)
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		log.Fatal("set webhook", "err", err)
	}

	updates := bot.ListenForWebhook(path)
	go func() {
		for upd := range updates {
			handle(upd)
		}
	}()

	log.Info("webhook mode", "addr", addr, "path", path)
	if err := httpserver.Serve(ctx, addr, http.DefaultServeMux, log); err != nil {
		log.Error("http server", "err", err)
	}
}

func startPollingMode(ctx context.Context, addr string, bot *tgbotapi.BotAPI, handle func(tgbotapi.Update), log *logger.Logger) {
	go func() {
		if err := httpserver.Serve(ctx, addr, http.DefaultServeMux, log); err != nil {
			log.Error("health server", "err", err)
		}
	}()
	log.Info("polling mode", "addr", addr)
	runPolling(ctx, bot, handle, log)
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return time.Second
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, handle func(tgbotapi.Update), log *logger.Logger) {
	offset := 0
	baseDelay := time.Second
	maxDelay := 15 * time.Second

	for {
		if ctx.Err() != nil {
			log.Info("polling stopped")
			return
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			log.Warn("polling error", "err", err, "retry_in", d)
			sleep(ctx, d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}
		if len(updates) == 0 {
			sleep(ctx, 200*time.Millisecond)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// shortHash is FNV-1a over the token, used as the secret webhook path.
func shortHash(s string) string {
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}
