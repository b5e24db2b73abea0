package workflow

import (
	"context"
	"slices"

	"github.com/kalambet/prepgen/internal/chat"
	app_errors "github.com/kalambet/prepgen/internal/errors"
	"github.com/kalambet/prepgen/internal/quiz"
)

// Action names a user intent.
type Action string

const (
	ActionSummarize      Action = "summarize"
	ActionGenerateQuiz   Action = "generate_quiz"
	ActionChat           Action = "chat"
	ActionSummarizeVideo Action = "summarize_video"
	ActionUpload         Action = "upload"
	ActionListMaterials  Action = "list_materials"
	ActionDeleteMaterial Action = "delete_material"
	ActionQuizHistory    Action = "quiz_history"
	ActionProfile        Action = "profile"
	ActionDashboard      Action = "dashboard"
	ActionSubmitAnswer   Action = "submit_answer"
	ActionNextQuestion   Action = "next_question"
	ActionQuitQuiz       Action = "quit_quiz"
	ActionLogout         Action = "logout"
)

func (a Action) String() string { return string(a) }

// Intent is a request from any surface (CLI, MCP). Only the fields the
// action uses are read.
type Intent struct {
	Action    Action
	ContentID string
	Name      string
	Text      string // question, URL or file path
	Selection int
}

// Outcome carries whatever the action produced.
type Outcome struct {
	Turn      *chat.ChatTurn
	Quiz      *quiz.Snapshot
	Feedback  *quiz.Feedback
	Result    *quiz.Result
	Material  *Material
	Materials []Material
	Results   []QuizRecord
	Profile   *Profile
	Dashboard *Dashboard
}

type handler func(ctx context.Context, in Intent) (Outcome, error)

func (o *Orchestrator) dispatchTable() map[Action]handler {
	turn := func(fn func(context.Context, string) (chat.ChatTurn, error), arg func(Intent) string) handler {
		return func(ctx context.Context, in Intent) (Outcome, error) {
			t, err := fn(ctx, arg(in))
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Turn: &t}, nil
		}
	}
	contentID := func(in Intent) string { return in.ContentID }
	text := func(in Intent) string { return in.Text }

	return map[Action]handler{
		ActionSummarize:      turn(o.Summarize, contentID),
		ActionChat:           turn(o.SendChatMessage, text),
		ActionSummarizeVideo: turn(o.SummarizeVideo, text),
		ActionGenerateQuiz: func(ctx context.Context, in Intent) (Outcome, error) {
			s, err := o.GenerateQuiz(ctx, in.ContentID, in.Name)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Quiz: &s}, nil
		},
		ActionUpload: func(ctx context.Context, in Intent) (Outcome, error) {
			m, err := o.UploadDocument(ctx, in.Text)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Material: &m}, nil
		},
		ActionListMaterials: func(ctx context.Context, in Intent) (Outcome, error) {
			m, err := o.ListMaterials(ctx)
			return Outcome{Materials: m}, err
		},
		ActionDeleteMaterial: func(ctx context.Context, in Intent) (Outcome, error) {
			return Outcome{}, o.DeleteMaterial(ctx, in.ContentID)
		},
		ActionQuizHistory: func(ctx context.Context, in Intent) (Outcome, error) {
			r, err := o.QuizHistory(ctx)
			return Outcome{Results: r}, err
		},
		ActionProfile: func(ctx context.Context, in Intent) (Outcome, error) {
			p, err := o.Profile(ctx)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Profile: &p}, nil
		},
		ActionDashboard: func(ctx context.Context, in Intent) (Outcome, error) {
			d, err := o.Dashboard(ctx)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Dashboard: &d}, nil
		},
		ActionSubmitAnswer: func(ctx context.Context, in Intent) (Outcome, error) {
			fb, err := o.SubmitAnswer(in.Selection)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Feedback: &fb}, nil
		},
		ActionNextQuestion: func(ctx context.Context, in Intent) (Outcome, error) {
			res, err := o.NextQuestion(ctx)
			if err != nil {
				return Outcome{}, err
			}
			out := Outcome{Result: res}
			if res == nil {
				s := o.quiz.Snapshot()
				out.Quiz = &s
			}
			return out, nil
		},
		ActionQuitQuiz: func(ctx context.Context, in Intent) (Outcome, error) {
			return Outcome{}, o.QuitQuiz()
		},
		ActionLogout: func(ctx context.Context, in Intent) (Outcome, error) {
			return Outcome{}, o.Logout()
		},
	}
}

// Dispatch routes in to its entry point.
func (o *Orchestrator) Dispatch(ctx context.Context, in Intent) (Outcome, error) {
	h, ok := o.handlers[in.Action]
	if !ok {
		return Outcome{}, app_errors.Validationf("unknown action %q", in.Action)
	}
	return h(ctx, in)
}

// Actions lists every dispatchable action, sorted.
func (o *Orchestrator) Actions() []Action {
	out := make([]Action, 0, len(o.handlers))
	for a := range o.handlers {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}
