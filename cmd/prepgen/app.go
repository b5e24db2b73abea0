package main

import (
	"log/slog"

	"github.com/kalambet/prepgen/internal/availability"
	"github.com/kalambet/prepgen/internal/config"
	"github.com/kalambet/prepgen/internal/gateway"
	"github.com/kalambet/prepgen/internal/notify"
	"github.com/kalambet/prepgen/internal/render"
	"github.com/kalambet/prepgen/internal/workflow"
)

// app bundles everything a command needs.
type app struct {
	cfg      config.Config
	gate     *availability.Gate
	orch     *workflow.Orchestrator
	renderer *render.Renderer
}

var newApp = func(n notify.Notifier) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	keychain := config.NewKeychain()
	client := gateway.New(cfg.API.BaseURL, keychain, cfg.API.RequestTimeout())
	gate := availability.NewGate(cfg.API.BaseURL, cfg.Health.ProbeTimeout())

	renderer, err := render.New(cfg.Render.Style, cfg.Render.Width)
	if err != nil {
		return nil, err
	}
	orch := workflow.New(client, keychain, gate, workflow.Options{
		Notifier:      n,
		ReportTimeout: cfg.Report.SubmitTimeout(),
		Logger:        slog.Default(),
	})
	orch.OnStateChange(showProgress)

	return &app{cfg: cfg, gate: gate, orch: orch, renderer: renderer}, nil
}

var progressText = map[workflow.Action]string{
	workflow.ActionSummarize:      "Generating summary...",
	workflow.ActionGenerateQuiz:   "Generating quiz...",
	workflow.ActionChat:           "Thinking...",
	workflow.ActionSummarizeVideo: "Summarizing video...",
	workflow.ActionUpload:         "Uploading...",
}

func showProgress(a workflow.Action, s workflow.RequestState) {
	if s != workflow.InFlight {
		return
	}
	if msg, ok := progressText[a]; ok {
		printStep("%s", msg)
	}
}

// cliNotifier prints notifications. Foreground errors are skipped because
// the failing command returns them and main prints them once.
var cliNotifier = notify.Func(func(n notify.Notification) {
	switch {
	case n.Level == notify.Success:
		printSuccess("%s", n.Message)
	case n.Level == notify.Warning:
		printWarning("%s", n.Message)
	case n.Level == notify.Error && n.Background:
		printError("%s", n.Message)
	}
})
