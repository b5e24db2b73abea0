// Package workflow owns the chat and quiz sessions and exposes every study
// operation as an entry point. AI-dependent entry points are gated on the
// backend's health probe.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/prepgen/internal/availability"
	"github.com/kalambet/prepgen/internal/chat"
	"github.com/kalambet/prepgen/internal/docinfo"
	app_errors "github.com/kalambet/prepgen/internal/errors"
	"github.com/kalambet/prepgen/internal/gateway"
	"github.com/kalambet/prepgen/internal/notify"
	"github.com/kalambet/prepgen/internal/quiz"
	"github.com/kalambet/prepgen/internal/report"
)

// YouTubeDisplayName labels the chat context opened by SummarizeVideo.
const YouTubeDisplayName = "YouTube Video"

// Credentials is the credential store Logout clears.
type Credentials interface {
	ClearToken() error
}

// Options configures an Orchestrator. Zero values are usable.
type Options struct {
	Notifier      notify.Notifier
	ReportTimeout time.Duration
	Logger        *slog.Logger
}

// Dashboard is the signed-in landing view.
type Dashboard struct {
	Profile   Profile
	Materials []Material
	Results   []QuizRecord
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	api      *Backend
	gate     availability.Prober
	creds    Credentials
	chat     *chat.Session
	quiz     *quiz.Session
	reporter *report.Reporter
	notifier notify.Notifier
	states   *stateTracker
	logger   *slog.Logger
	handlers map[Action]handler
}

// New wires an Orchestrator around client. A forced logout signalled by the
// client clears both sessions.
func New(client *gateway.Client, creds Credentials, gate availability.Prober, opts Options) *Orchestrator {
	o := newOrchestrator(client, creds, gate, opts)
	client.OnSessionEnd(func(err error) {
		o.logger.Info("session ended", "reason", err)
		o.resetSessions()
	})
	return o
}

func newOrchestrator(caller Caller, creds Credentials, gate availability.Prober, opts Options) *Orchestrator {
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	api := NewBackend(caller)
	o := &Orchestrator{
		api:      api,
		gate:     gate,
		creds:    creds,
		chat:     chat.NewSession(),
		quiz:     quiz.NewSession(),
		reporter: report.New(api, opts.Notifier, opts.ReportTimeout),
		notifier: opts.Notifier,
		states:   newStateTracker(),
		logger:   opts.Logger,
	}
	o.handlers = o.dispatchTable()
	return o
}

func (o *Orchestrator) Chat() *chat.Session { return o.chat }
func (o *Orchestrator) Quiz() *quiz.Session { return o.quiz }

// State returns the request state of the latest call to action.
func (o *Orchestrator) State(action Action) RequestState { return o.states.get(action) }

// OnStateChange registers fn for request state transitions.
func (o *Orchestrator) OnStateChange(fn StateListener) { o.states.subscribe(fn) }

// Wait blocks until pending quiz result submissions finish.
func (o *Orchestrator) Wait() { o.reporter.Wait() }

func (o *Orchestrator) resetSessions() {
	o.chat.Close()
	if err := o.quiz.Quit(); err != nil && !errors.Is(err, app_errors.ErrInvalidPhase) {
		o.logger.Warn("resetting quiz", "error", err)
	}
}

// run executes fn under action's request state, gating it on the health
// probe when gated is set. Failures and successes become notifications.
func run[T any](ctx context.Context, o *Orchestrator, action Action, gated bool, success func(T) string, fn func(context.Context) (T, error)) (T, error) {
	if gated {
		fn = availability.Gated(o.gate, action.String(), fn)
	}
	o.states.set(action, InFlight)
	v, err := fn(ctx)
	if err != nil {
		var zero T
		o.fail(action, err)
		return zero, err
	}
	o.states.set(action, Succeeded)
	if success != nil {
		if msg := success(v); msg != "" {
			o.notifier.Notify(notify.Notification{Level: notify.Success, Message: msg})
		}
	}
	return v, nil
}

// fail marks action as failed and tells the user why.
func (o *Orchestrator) fail(action Action, err error) {
	o.states.set(action, Failed)
	o.logger.Debug("action failed", "action", action, "error", err)
	o.notifier.Notify(notify.Notification{Level: notify.Error, Message: UserMessage(err)})
}

// UserMessage turns err into the text shown to the user.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, app_errors.ErrSessionExpired):
		return "Session expired. Please log in again."
	case errors.Is(err, app_errors.ErrUnauthenticated):
		return "You are not logged in. Run 'prepgen login' first."
	case errors.Is(err, app_errors.ErrServiceUnavailable):
		return "AI service is currently offline. Please try again later."
	case errors.Is(err, app_errors.ErrNetwork):
		return "Could not reach the server. Check your connection and try again."
	}
	if apiErr, ok := gateway.IsAPIError(err); ok {
		return apiErr.Message
	}
	return err.Error()
}

func emptyAIResponse(what string) error {
	return &app_errors.APIError{Status: http.StatusOK, Message: fmt.Sprintf("The AI service returned an empty %s. Please try again.", what)}
}

// Summarize summarizes a material and opens a chat about it, replacing any
// current chat.
func (o *Orchestrator) Summarize(ctx context.Context, contentID string) (chat.ChatTurn, error) {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		err := app_errors.Validationf("no material selected")
		o.fail(ActionSummarize, err)
		return chat.ChatTurn{}, err
	}
	return run(ctx, o, ActionSummarize, true,
		func(chat.ChatTurn) string { return "Summary ready" },
		func(ctx context.Context) (chat.ChatTurn, error) {
			materials, err := o.api.Materials(ctx)
			if err != nil {
				return chat.ChatTurn{}, err
			}
			name := contentID
			for _, m := range materials {
				if m.ID == contentID {
					name = m.Filename
					break
				}
			}

			summary, err := o.api.Summarize(ctx, contentID)
			if err != nil {
				return chat.ChatTurn{}, err
			}
			if strings.TrimSpace(summary) == "" {
				return chat.ChatTurn{}, emptyAIResponse("summary")
			}
			first := chat.AssistantTurn(summary)
			o.chat.Open(chat.DocumentContext{ID: contentID, DisplayName: name}, first)
			return first, nil
		})
}

// GenerateQuiz starts a new quiz on a material, replacing any quiz in
// progress. name labels the quiz; the id is used when it is empty.
func (o *Orchestrator) GenerateQuiz(ctx context.Context, contentID, name string) (quiz.Snapshot, error) {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		err := app_errors.Validationf("no material selected")
		o.fail(ActionGenerateQuiz, err)
		return quiz.Snapshot{}, err
	}
	if name == "" {
		name = contentID
	}
	return run(ctx, o, ActionGenerateQuiz, true,
		func(s quiz.Snapshot) string { return fmt.Sprintf("Quiz ready: %d questions", s.Total) },
		func(ctx context.Context) (quiz.Snapshot, error) {
			questions, err := o.api.Quiz(ctx, contentID)
			if err != nil {
				return quiz.Snapshot{}, err
			}
			if _, err := o.quiz.Start(questions, contentID, name); err != nil {
				return quiz.Snapshot{}, err
			}
			return o.quiz.Snapshot(), nil
		})
}

// SendChatMessage asks a follow-up question about the active context.
func (o *Orchestrator) SendChatMessage(ctx context.Context, question string) (chat.ChatTurn, error) {
	var err error
	switch {
	case !o.chat.Active():
		err = app_errors.ErrNoActiveContext
	case strings.TrimSpace(question) == "":
		err = app_errors.Validationf("question is empty")
	}
	if err != nil {
		o.fail(ActionChat, err)
		return chat.ChatTurn{}, err
	}
	return run(ctx, o, ActionChat, true, nil, func(ctx context.Context) (chat.ChatTurn, error) {
		return o.chat.Send(ctx, o.api, question)
	})
}

// ValidateVideoURL trims rawURL and checks it points at YouTube.
func ValidateVideoURL(rawURL string) (string, error) {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return "", app_errors.Validationf("please enter a YouTube URL")
	}
	if !strings.Contains(u, "youtube.com") && !strings.Contains(u, "youtu.be") {
		return "", app_errors.Validationf("please enter a valid YouTube URL")
	}
	return u, nil
}

// SummarizeVideo summarizes a YouTube video and opens a chat about it.
func (o *Orchestrator) SummarizeVideo(ctx context.Context, rawURL string) (chat.ChatTurn, error) {
	videoURL, err := ValidateVideoURL(rawURL)
	if err != nil {
		o.fail(ActionSummarizeVideo, err)
		return chat.ChatTurn{}, err
	}
	return run(ctx, o, ActionSummarizeVideo, true,
		func(chat.ChatTurn) string { return "Video summary ready" },
		func(ctx context.Context) (chat.ChatTurn, error) {
			summary, err := o.api.SummarizeVideo(ctx, videoURL)
			if err != nil {
				return chat.ChatTurn{}, err
			}
			if strings.TrimSpace(summary) == "" {
				return chat.ChatTurn{}, emptyAIResponse("summary")
			}
			first := chat.AssistantTurn(summary)
			o.chat.Open(chat.DocumentContext{ID: chat.YouTubeContextID, DisplayName: YouTubeDisplayName}, first)
			return first, nil
		})
}

// UploadDocument uploads a local PDF, DOCX or PPTX file.
func (o *Orchestrator) UploadDocument(ctx context.Context, path string) (Material, error) {
	info, err := docinfo.Inspect(path)
	if err != nil {
		o.fail(ActionUpload, err)
		return Material{}, err
	}
	o.logger.Debug("uploading document", "name", info.Name, "size", info.Size, "pages", info.Pages)
	return run(ctx, o, ActionUpload, true,
		func(m Material) string { return fmt.Sprintf("Uploaded %s", m.Filename) },
		func(ctx context.Context) (Material, error) {
			return o.api.Upload(ctx, info.Path, info.Name)
		})
}

func (o *Orchestrator) ListMaterials(ctx context.Context) ([]Material, error) {
	return run(ctx, o, ActionListMaterials, false, nil, o.api.Materials)
}

func (o *Orchestrator) DeleteMaterial(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		err := app_errors.Validationf("no material selected")
		o.fail(ActionDeleteMaterial, err)
		return err
	}
	_, err := run(ctx, o, ActionDeleteMaterial, false,
		func(struct{}) string { return "Material deleted" },
		func(ctx context.Context) (struct{}, error) {
			if err := o.api.Delete(ctx, id); err != nil {
				return struct{}{}, err
			}
			if o.chat.Context().ID == id {
				o.chat.Close()
			}
			return struct{}{}, nil
		})
	return err
}

func (o *Orchestrator) QuizHistory(ctx context.Context) ([]QuizRecord, error) {
	return run(ctx, o, ActionQuizHistory, false, nil, o.api.Results)
}

func (o *Orchestrator) Profile(ctx context.Context) (Profile, error) {
	return run(ctx, o, ActionProfile, false, nil, o.api.Profile)
}

// Dashboard loads profile, materials and quiz history concurrently. Any
// failure fails the whole load.
func (o *Orchestrator) Dashboard(ctx context.Context) (Dashboard, error) {
	return run(ctx, o, ActionDashboard, false, nil, func(ctx context.Context) (Dashboard, error) {
		var d Dashboard
		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			p, err := o.api.Profile(gCtx)
			d.Profile = p
			return err
		})
		g.Go(func() error {
			m, err := o.api.Materials(gCtx)
			d.Materials = m
			return err
		})
		g.Go(func() error {
			r, err := o.api.Results(gCtx)
			d.Results = r
			return err
		})
		if err := g.Wait(); err != nil {
			return Dashboard{}, err
		}
		return d, nil
	})
}

// Logout clears the stored credential and both sessions.
func (o *Orchestrator) Logout() error {
	o.resetSessions()
	if err := o.creds.ClearToken(); err != nil {
		err = fmt.Errorf("clearing credential: %w", err)
		o.fail(ActionLogout, err)
		return err
	}
	o.states.set(ActionLogout, Succeeded)
	o.notifier.Notify(notify.Notification{Level: notify.Success, Message: "Logged out"})
	return nil
}

// SubmitAnswer grades the selected option of the current question.
func (o *Orchestrator) SubmitAnswer(selected int) (quiz.Feedback, error) {
	fb, err := o.quiz.SubmitAnswer(selected)
	if err != nil {
		o.fail(ActionSubmitAnswer, err)
		return quiz.Feedback{}, err
	}
	o.states.set(ActionSubmitAnswer, Succeeded)
	return fb, nil
}

// NextQuestion advances the quiz. When the quiz is exhausted the result is
// returned and submitted in the background, once.
func (o *Orchestrator) NextQuestion(ctx context.Context) (*quiz.Result, error) {
	res, err := o.quiz.Advance()
	if err != nil {
		o.fail(ActionNextQuestion, err)
		return nil, err
	}
	o.states.set(ActionNextQuestion, Succeeded)
	if res != nil {
		o.reporter.Report(ctx, report.Submission{
			SessionID: res.SessionID,
			SourceID:  res.SourceID,
			Score:     res.Score,
			Total:     res.Total,
		})
	}
	return res, nil
}

// QuitQuiz abandons the quiz. Nothing is reported.
func (o *Orchestrator) QuitQuiz() error {
	if err := o.quiz.Quit(); err != nil {
		o.fail(ActionQuitQuiz, err)
		return err
	}
	o.states.set(ActionQuitQuiz, Succeeded)
	return nil
}
