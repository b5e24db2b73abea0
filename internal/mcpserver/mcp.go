// Package mcpserver exposes study intents as MCP tools so an assistant can
// drive summaries, chats and quizzes on the user's behalf.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/prepgen/internal/chat"
	"github.com/kalambet/prepgen/internal/quiz"
	"github.com/kalambet/prepgen/internal/workflow"
)

// Study is what the MCP layer needs from the orchestrator.
type Study interface {
	Dispatch(ctx context.Context, in workflow.Intent) (workflow.Outcome, error)
	Chat() *chat.Session
	Quiz() *quiz.Session
}

// New creates an MCP server with all prepgen tools and resources registered.
func New(study Study, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"prepgen",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("prepgen: summarize study materials, chat about them and take quizzes."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_materials",
			mcp.WithDescription("List the user's uploaded study materials."),
		),
		toolListMaterials(study),
	)

	s.AddTool(
		mcp.NewTool("summarize",
			mcp.WithDescription("Summarize an uploaded material and start a chat about it."),
			mcp.WithString("content_id", mcp.Description("Material id from list_materials"), mcp.Required()),
		),
		toolSummarize(study),
	)

	s.AddTool(
		mcp.NewTool("summarize_video",
			mcp.WithDescription("Summarize a YouTube video and start a chat about it."),
			mcp.WithString("url", mcp.Description("youtube.com or youtu.be URL"), mcp.Required()),
		),
		toolSummarizeVideo(study),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a follow-up question about the material currently being discussed."),
			mcp.WithString("question", mcp.Description("The question"), mcp.Required()),
		),
		toolAsk(study),
	)

	s.AddTool(
		mcp.NewTool("upload",
			mcp.WithDescription("Upload a local PDF, DOCX or PPTX file."),
			mcp.WithString("path", mcp.Description("Path to the file"), mcp.Required()),
		),
		toolUpload(study),
	)

	s.AddTool(
		mcp.NewTool("delete_material",
			mcp.WithDescription("Delete an uploaded material."),
			mcp.WithString("content_id", mcp.Description("Material id"), mcp.Required()),
		),
		toolDeleteMaterial(study),
	)

	s.AddTool(
		mcp.NewTool("generate_quiz",
			mcp.WithDescription("Generate a multiple-choice quiz from a material. Replaces any quiz in progress."),
			mcp.WithString("content_id", mcp.Description("Material id"), mcp.Required()),
			mcp.WithString("name", mcp.Description("Label for the quiz")),
		),
		toolGenerateQuiz(study),
	)

	s.AddTool(
		mcp.NewTool("submit_answer",
			mcp.WithDescription("Answer the current quiz question."),
			mcp.WithNumber("option", mcp.Description("1-based option number"), mcp.Required()),
		),
		toolSubmitAnswer(study),
	)

	s.AddTool(
		mcp.NewTool("next_question",
			mcp.WithDescription("Move to the next quiz question, or finish the quiz after the last one."),
		),
		toolNextQuestion(study),
	)

	s.AddTool(
		mcp.NewTool("quit_quiz",
			mcp.WithDescription("Abandon the quiz in progress without saving a score."),
		),
		toolQuitQuiz(study),
	)

	s.AddTool(
		mcp.NewTool("quiz_history",
			mcp.WithDescription("List saved quiz scores."),
		),
		toolQuizHistory(study),
	)

	s.AddResource(
		mcp.NewResource(
			"study://chat",
			"Current Chat",
			mcp.WithResourceDescription("The active document and its chat transcript"),
			mcp.WithMIMEType("application/json"),
		),
		resourceChat(study),
	)

	s.AddResource(
		mcp.NewResource(
			"study://quiz",
			"Current Quiz",
			mcp.WithResourceDescription("Progress and current question of the quiz in progress"),
			mcp.WithMIMEType("application/json"),
		),
		resourceQuiz(study),
	)

	return s
}

func dispatch(ctx context.Context, study Study, in workflow.Intent) (workflow.Outcome, *mcp.CallToolResult) {
	out, err := study.Dispatch(ctx, in)
	if err != nil {
		return out, mcpError(workflow.UserMessage(err))
	}
	return out, nil
}

func toolListMaterials(study Study) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, fail := dispatch(ctx, study, workflow.Intent{Action: workflow.ActionListMaterials})
		if fail != nil {
			return fail, nil
		}
		if len(out.Materials) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(out.Materials), nil
	}
}

func toolSummarize(study Study) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("content_id")
		if err != nil {
			return mcpError("content_id is required"), nil
		}
		out, fail := dispatch(ctx, study, workflow.Intent{Action: workflow.ActionSummarize, ContentID: id})
		if fail != nil {
			return fail, nil
		}
		return mcpText(out.Turn.Text), nil
	}
}

func toolSummarizeVideo(study Study) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		u, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		out, fail := dispatch(ctx, study, workflow.Intent{Action: workflow.ActionSummarizeVideo, Text: u})
		if fail != nil {
			return fail, nil
		}
		return mcpText(out.Turn.Text), nil
	}
}

func toolAsk(study Study) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		out, fail := dispatch(ctx, study, workflow.Intent{Action: workflow.ActionChat, Text: q})
		if fail != nil {
			return fail, nil
		}
		return mcpText(out.Turn.Text), nil
	}
}

func toolUpload(study Study) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcpError("path is required"), nil
		}
		out, fail := dispatch(ctx, study, workflow.Intent{Action: workflow.ActionUpload, Text: path})
		if fail != nil {
			return fail, nil
		}
		return mcpJSON(out.Material), nil
	}
}

func toolDeleteMaterial(study Study) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("content_id")
		if err != nil {
			return mcpError("content_id is required"), nil
		}
		if _, fail := dispatch(ctx, study, workflow.Intent{Action: workflow.ActionDeleteMaterial, ContentID: id}); fail != nil {
			return fail, nil
		}
		return mcpText(fmt.Sprintf("Deleted %s", id)), nil
	}
}

// quizQuestion is a question as shown to the quiz taker; the correct answer
// is withheld until submit_answer.
type quizQuestion struct {
	Number   int      `json:"number"`
	Of       int      `json:"of"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

func currentQuestion(s *quiz.Session) (quizQuestion, bool) {
	q, ok := s.Current()
	if !ok {
		return quizQuestion{}, false
	}
	idx, total := s.Progress()
	return quizQuestion{Number: idx + 1, Of: total, Question: q.Prompt, Options: q.Options}, true
}

func toolGenerateQuiz(study Study) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("content_id")
		if err != nil {
			return mcpError("content_id is required"), nil
		}
		name := req.GetString("name", "")
		if _, fail := dispatch(ctx, study, workflow.Intent{Action: workflow.ActionGenerateQuiz, ContentID: id, Name: name}); fail != nil {
			return fail, nil
		}
		q, _ := currentQuestion(study.Quiz())
		return mcpJSON(q), nil
	}
}

func toolSubmitAnswer(study Study) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		option := req.GetInt("option", 0)
		selection := quiz.NoSelection
		if option > 0 {
			selection = option - 1
		}
		out, fail := dispatch(ctx, study, workflow.Intent{Action: workflow.ActionSubmitAnswer, Selection: selection})
		if fail != nil {
			return fail, nil
		}
		fb := out.Feedback
		return mcpJSON(map[string]any{
			"correct":        fb.IsCorrect,
			"correct_answer": fb.CorrectOptionText,
			"explanation":    fb.Explanation,
		}), nil
	}
}

func toolNextQuestion(study Study) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, fail := dispatch(ctx, study, workflow.Intent{Action: workflow.ActionNextQuestion})
		if fail != nil {
			return fail, nil
		}
		if r := out.Result; r != nil {
			return mcpJSON(map[string]any{
				"finished":   true,
				"score":      r.Score,
				"total":      r.Total,
				"percentage": r.Percentage,
			}), nil
		}
		q, _ := currentQuestion(study.Quiz())
		return mcpJSON(q), nil
	}
}

func toolQuitQuiz(study Study) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if _, fail := dispatch(ctx, study, workflow.Intent{Action: workflow.ActionQuitQuiz}); fail != nil {
			return fail, nil
		}
		return mcpText("Quiz abandoned"), nil
	}
}

func toolQuizHistory(study Study) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, fail := dispatch(ctx, study, workflow.Intent{Action: workflow.ActionQuizHistory})
		if fail != nil {
			return fail, nil
		}
		if len(out.Results) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(out.Results), nil
	}
}

func resourceChat(study Study) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type turn struct {
			Speaker string `json:"speaker"`
			Text    string `json:"text"`
		}
		doc := study.Chat().Context()
		turns := study.Chat().Transcript()
		view := struct {
			ContextID   string `json:"context_id,omitempty"`
			DisplayName string `json:"display_name,omitempty"`
			Transcript  []turn `json:"transcript"`
		}{ContextID: doc.ID, DisplayName: doc.DisplayName, Transcript: make([]turn, len(turns))}
		for i, t := range turns {
			view.Transcript[i] = turn{Speaker: string(t.Speaker), Text: t.Text}
		}
		return jsonResource(req.Params.URI, view)
	}
}

func resourceQuiz(study Study) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		snap := study.Quiz().Snapshot()
		view := struct {
			Phase    string        `json:"phase"`
			Source   string        `json:"source,omitempty"`
			Score    int           `json:"score"`
			Question *quizQuestion `json:"question,omitempty"`
		}{Phase: snap.Phase.String(), Source: snap.SourceName, Score: snap.Score}
		if q, ok := currentQuestion(study.Quiz()); ok {
			view.Question = &q
		}
		return jsonResource(req.Params.URI, view)
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
