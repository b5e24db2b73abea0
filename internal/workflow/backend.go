package workflow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/kalambet/prepgen/internal/gateway"
	"github.com/kalambet/prepgen/internal/quiz"
)

// Caller is the subset of gateway.Client the backend adapter needs.
type Caller interface {
	Call(ctx context.Context, method, path string, body any) (gateway.Payload, error)
	CallJSON(ctx context.Context, method, path string, body, out any) error
}

// Material is an uploaded study document.
type Material struct {
	ID          string `json:"_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// QuizRecord is a saved quiz score.
type QuizRecord struct {
	ContentID      string `json:"content_id,omitempty"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"total_questions"`
	CreatedAt      string `json:"created_at"`
}

// Percentage is the record's score as a rounded percentage.
func (r QuizRecord) Percentage() int {
	return quiz.Percentage(r.Score, r.TotalQuestions)
}

// Profile is the signed-in user.
type Profile struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Picture  string `json:"picture,omitempty"`
}

// Backend maps study operations onto REST calls.
type Backend struct {
	caller Caller
}

func NewBackend(caller Caller) *Backend {
	return &Backend{caller: caller}
}

func contentPath(id string, suffix string) string {
	return "/content/" + url.PathEscape(id) + suffix
}

func (b *Backend) Materials(ctx context.Context) ([]Material, error) {
	var resp struct {
		Content []Material `json:"content"`
	}
	if err := b.caller.CallJSON(ctx, http.MethodGet, "/content", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing materials: %w", err)
	}
	return resp.Content, nil
}

// Upload sends the file at path as multipart field "file".
func (b *Backend) Upload(ctx context.Context, path, name string) (Material, error) {
	f, err := os.Open(path)
	if err != nil {
		return Material{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var m Material
	body := gateway.File{Field: "file", Name: name, Content: f}
	if err := b.caller.CallJSON(ctx, http.MethodPost, "/content/upload", body, &m); err != nil {
		return Material{}, fmt.Errorf("uploading %s: %w", name, err)
	}
	if m.Filename == "" {
		m.Filename = name
	}
	return m, nil
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	if _, err := b.caller.Call(ctx, http.MethodDelete, contentPath(id, ""), nil); err != nil {
		return fmt.Errorf("deleting material %s: %w", id, err)
	}
	return nil
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

func (b *Backend) Summarize(ctx context.Context, id string) (string, error) {
	var resp summaryResponse
	if err := b.caller.CallJSON(ctx, http.MethodPost, contentPath(id, "/summarize"), nil, &resp); err != nil {
		return "", fmt.Errorf("summarizing %s: %w", id, err)
	}
	return resp.Summary, nil
}

func (b *Backend) SummarizeVideo(ctx context.Context, videoURL string) (string, error) {
	var resp summaryResponse
	req := map[string]string{"url": videoURL}
	if err := b.caller.CallJSON(ctx, http.MethodPost, "/api/youtube/summarize", req, &resp); err != nil {
		return "", fmt.Errorf("summarizing video: %w", err)
	}
	return resp.Summary, nil
}

func (b *Backend) Quiz(ctx context.Context, id string) ([]quiz.Question, error) {
	var resp struct {
		Questions []quiz.Question `json:"questions"`
	}
	if err := b.caller.CallJSON(ctx, http.MethodPost, contentPath(id, "/quiz"), nil, &resp); err != nil {
		return nil, fmt.Errorf("generating quiz for %s: %w", id, err)
	}
	return resp.Questions, nil
}

// Ask implements chat.Asker.
func (b *Backend) Ask(ctx context.Context, id, question string) (string, error) {
	var resp struct {
		Answer string `json:"answer"`
	}
	req := map[string]string{"question": question}
	if err := b.caller.CallJSON(ctx, http.MethodPost, contentPath(id, "/ask"), req, &resp); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// SaveResult implements report.Saver.
func (b *Backend) SaveResult(ctx context.Context, contentID string, score, total int) error {
	req := map[string]any{
		"content_id":      contentID,
		"score":           score,
		"total_questions": total,
	}
	if _, err := b.caller.Call(ctx, http.MethodPost, "/quiz/save", req); err != nil {
		return fmt.Errorf("saving quiz result: %w", err)
	}
	return nil
}

func (b *Backend) Results(ctx context.Context) ([]QuizRecord, error) {
	var resp struct {
		Results []QuizRecord `json:"results"`
	}
	if err := b.caller.CallJSON(ctx, http.MethodGet, "/quiz/results", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching quiz results: %w", err)
	}
	return resp.Results, nil
}

func (b *Backend) Profile(ctx context.Context) (Profile, error) {
	var p Profile
	if err := b.caller.CallJSON(ctx, http.MethodGet, "/users/me", nil, &p); err != nil {
		return Profile{}, fmt.Errorf("fetching profile: %w", err)
	}
	return p, nil
}
