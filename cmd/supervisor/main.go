// Command supervisor runs the autobank supervisor: it loads bank
// credentials, starts/stops per-alias scraping workers on command, watches
// their balances, and reports everything to chat.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/adapter/observability"
	"github.com/fairyhunter13/autobank-supervisor/internal/adapter/telegram"
	"github.com/fairyhunter13/autobank-supervisor/internal/balancemonitor"
	"github.com/fairyhunter13/autobank-supervisor/internal/captcha"
	"github.com/fairyhunter13/autobank-supervisor/internal/command"
	"github.com/fairyhunter13/autobank-supervisor/internal/config"
	"github.com/fairyhunter13/autobank-supervisor/internal/credstore"
	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
	"github.com/fairyhunter13/autobank-supervisor/internal/messenger"
	"github.com/fairyhunter13/autobank-supervisor/internal/registry"
)

const (
	captchaTimeout      = 180 * time.Second
	httpShutdownTimeout = 10 * time.Second
	registryJoinTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	credStore := credstore.NewCSVStore(cfg.CredentialsCsv)

	var solver domain.CaptchaSolver
	if cfg.CaptchaAutoSolveEnabled() {
		solver = captcha.NewSolver(cfg.TwoCaptchaAPIKey, captchaTimeout)
		slog.Info("captcha: auto-solve enabled")
	} else {
		slog.Info("captcha: auto-solve disabled, manual flow required")
	}

	transport, err := telegram.NewTransport(cfg.TelegramToken, cfg.TelegramChatID, cfg.AlertGroupIDs)
	if err != nil {
		slog.Error("telegram transport init failed", slog.Any("error", err))
		os.Exit(1)
	}

	msgr := messenger.New(transport, cfg.IsDev())
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	msgr.Start(ctx)

	reg := registry.New(registry.Deps{
		CredStore:   credStore,
		Messenger:   msgr,
		Solver:      solver,
		UploadURL:   cfg.AutobankUploadURL,
		ProfileRoot: cfg.ProfileRoot,
	}, nil)

	ladder, err := config.LoadThresholdLadder(cfg.ThresholdLadderFile)
	if err != nil {
		slog.Error("threshold ladder load failed, falling back to default", slog.Any("error", err))
		ladder = domain.DefaultThresholdLadder()
	}

	monitor := balancemonitor.New(reg, msgr, cfg.BalanceCheckInterval())
	monitor.SetLadder(ladder)
	monitor.Start(ctx)

	cmdDeps := command.Deps{Registry: reg, Monitor: monitor}
	go runCommandLoop(ctx, transport, reg, cmdDeps, msgr)

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           observability.NewMetricsRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server starting", slog.String("addr", cfg.MetricsAddr))
		errCh <- metricsSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}

	monitor.Stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), registryJoinTimeout)
	defer cancel()
	if err := reg.StopAll(stopCtx); err != nil {
		slog.Error("registry shutdown error", slog.Any("error", err))
	}

	msgr.Stop()

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel2()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// runCommandLoop reads every incoming chat message, routes OTP/CAPTCHA codes
// to the broadcast rule (spec.md §6.3) and everything else to the command
// surface, replying with whatever Dispatch returns.
func runCommandLoop(ctx context.Context, transport *telegram.Transport, reg *registry.Registry, deps command.Deps, msgr *messenger.Messenger) {
	for text := range transport.Listen(ctx) {
		if isOTP, isCaptcha := command.ClassifyBroadcast(text); isOTP || isCaptcha {
			reg.BroadcastCode(isCaptcha, text)
			continue
		}

		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		res, err := command.Dispatch(ctx, deps, fields[0], fields[1:])
		if err != nil {
			msgr.Send(ctx, domain.Message{Kind: domain.KindInfo, Text: err.Error(), CreatedAt: time.Now()})
			continue
		}
		msgr.Send(ctx, domain.Message{Kind: domain.KindInfo, Text: res.Text, Photos: res.Photos, CreatedAt: time.Now()})
	}
}
