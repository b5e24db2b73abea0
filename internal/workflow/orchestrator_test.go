package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/prepgen/internal/availability"
	"github.com/kalambet/prepgen/internal/chat"
	app_errors "github.com/kalambet/prepgen/internal/errors"
	"github.com/kalambet/prepgen/internal/gateway"
	"github.com/kalambet/prepgen/internal/notify"
	"github.com/kalambet/prepgen/internal/quiz"
)

type memTokens struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (m *memTokens) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", errors.New("no token")
	}
	return m.token, nil
}

func (m *memTokens) ClearToken() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.cleared++
	return nil
}

type fakeBackend struct {
	online      atomic.Bool
	failResults atomic.Bool
	failSave    atomic.Bool
	expireAsk   atomic.Bool

	mu          sync.Mutex
	hits        map[string]int
	saves       []map[string]any
	asked       []string
	uploadName  string
	uploadCType string
}

func (f *fakeBackend) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.hits {
		n += v
	}
	return n
}

func (f *fakeBackend) resetHits() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = map[string]int{}
}

func (f *fakeBackend) savedBodies() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.saves...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

const quizJSON = `{"questions":[
 {"question":"Q1","options":["a","b","c"],"correct_answer":0,"explanation":"a is right"},
 {"question":"Q2","options":["a","b"],"correct_answer":1},
 {"question":"Q3","options":["a","b","c","d"],"correct_answer":3}
]}`

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	f := &fakeBackend{hits: map[string]int{}}
	f.online.Store(true)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.hits[req.Method+" "+req.URL.Path]++
			f.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status := "offline"
		if f.online.Load() {
			status = "online"
		}
		writeJSON(w, map[string]string{"ai_service_status": status})
	})
	r.Get("/content", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{"content": []map[string]string{
			{"_id": "abc", "filename": "Bio.pdf", "created_at": "2024-03-01T10:00:00"},
			{"_id": "def", "filename": "Chem.docx", "created_at": "2024-03-02T10:00:00"},
		}})
	})
	r.Post("/content/upload", func(w http.ResponseWriter, req *http.Request) {
		_, hdr, err := req.FormFile("file")
		if err != nil {
			http.Error(w, `{"detail":"missing file"}`, http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.uploadName = hdr.Filename
		f.uploadCType = req.Header.Get("Content-Type")
		f.mu.Unlock()
		writeJSON(w, map[string]string{"_id": "new", "filename": hdr.Filename})
	})
	r.Delete("/content/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/content/{id}/summarize", func(w http.ResponseWriter, req *http.Request) {
		switch chi.URLParam(req, "id") {
		case "expired":
			w.WriteHeader(http.StatusUnauthorized)
		case "blank":
			writeJSON(w, map[string]string{"summary": "  "})
		default:
			writeJSON(w, map[string]string{"summary": "# Biology\nCells are **small**."})
		}
	})
	r.Post("/content/{id}/quiz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if chi.URLParam(req, "id") == "empty" {
			w.Write([]byte(`{"questions":[]}`))
			return
		}
		w.Write([]byte(quizJSON))
	})
	r.Post("/content/{id}/ask", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Question string `json:"question"`
		}
		json.NewDecoder(req.Body).Decode(&body)
		if f.expireAsk.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		f.asked = append(f.asked, chi.URLParam(req, "id")+":"+body.Question)
		f.mu.Unlock()
		writeJSON(w, map[string]string{"answer": "ATP stores energy."})
	})
	r.Post("/api/youtube/summarize", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]string{"summary": "A video about cells."})
	})
	r.Post("/quiz/save", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		json.NewDecoder(req.Body).Decode(&body)
		f.mu.Lock()
		f.saves = append(f.saves, body)
		f.mu.Unlock()
		if f.failSave.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	})
	r.Get("/quiz/results", func(w http.ResponseWriter, req *http.Request) {
		if f.failResults.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"detail":"database unavailable"}`))
			return
		}
		writeJSON(w, map[string]any{"results": []map[string]any{
			{"content_id": "abc", "score": 2, "total_questions": 3, "created_at": "2024-03-03T10:00:00"},
		}})
	})
	r.Get("/users/me", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]string{"email": "ada@example.com", "full_name": "Ada Lovelace"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

type harness struct {
	fake   *fakeBackend
	tokens *memTokens
	rec    *notify.Recorder
	o      *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake, srv := newFakeBackend(t)
	tokens := &memTokens{token: "tok"}
	rec := &notify.Recorder{}
	client := gateway.New(srv.URL, tokens, 5*time.Second)
	gate := availability.NewGate(srv.URL, time.Second)
	o := New(client, tokens, gate, Options{Notifier: rec, ReportTimeout: time.Second})
	return &harness{fake: fake, tokens: tokens, rec: rec, o: o}
}

func tempFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4 not much else"), 0o644))
	return p
}

func TestGatedActionsOfflineIssueNoPrimaryCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.o.Summarize(ctx, "abc")
	require.NoError(t, err)
	transcript := h.o.Chat().Transcript()

	h.fake.online.Store(false)
	h.fake.resetHits()
	pdf := tempFile(t, "notes.pdf")

	calls := map[Action]func() error{
		ActionSummarize:      func() error { _, err := h.o.Summarize(ctx, "abc"); return err },
		ActionGenerateQuiz:   func() error { _, err := h.o.GenerateQuiz(ctx, "abc", "Bio.pdf"); return err },
		ActionChat:           func() error { _, err := h.o.SendChatMessage(ctx, "what is ATP?"); return err },
		ActionSummarizeVideo: func() error { _, err := h.o.SummarizeVideo(ctx, "https://youtu.be/abc"); return err },
		ActionUpload:         func() error { _, err := h.o.UploadDocument(ctx, pdf); return err },
	}
	for action, call := range calls {
		err := call()
		assert.ErrorIs(t, err, app_errors.ErrServiceUnavailable, action)
		assert.Equal(t, Failed, h.o.State(action), action)
	}

	assert.Equal(t, 5, h.fake.count("GET /health"))
	assert.Equal(t, 5, h.fake.total())
	assert.Equal(t, transcript, h.o.Chat().Transcript())
	assert.Equal(t, quiz.Inactive, h.o.Quiz().Phase())

	last, ok := h.rec.Last()
	require.True(t, ok)
	assert.Equal(t, notify.Error, last.Level)
	assert.Contains(t, last.Message, "offline")
}

func TestUploadValidatesBeforeAnyRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.o.UploadDocument(ctx, tempFile(t, "notes.txt"))
	assert.ErrorIs(t, err, app_errors.ErrValidation)
	assert.Zero(t, h.fake.total())
	assert.Equal(t, Failed, h.o.State(ActionUpload))

	m, err := h.o.UploadDocument(ctx, tempFile(t, "notes.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "notes.pdf", m.Filename)
	assert.Equal(t, 1, h.fake.count("GET /health"))
	assert.Equal(t, 1, h.fake.count("POST /content/upload"))
	assert.Equal(t, "notes.pdf", h.fake.uploadName)
	assert.True(t, strings.HasPrefix(h.fake.uploadCType, "multipart/form-data; boundary="))
	assert.Equal(t, Succeeded, h.o.State(ActionUpload))
}

func TestSummarizeOpensChatAndAnswers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.o.Summarize(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, first.IsMarkdown)
	assert.Equal(t, chat.DocumentContext{ID: "abc", DisplayName: "Bio.pdf"}, h.o.Chat().Context())

	reply, err := h.o.SendChatMessage(ctx, "What is ATP?")
	require.NoError(t, err)
	assert.Equal(t, "ATP stores energy.", reply.Text)
	assert.Equal(t, []string{"abc:What is ATP?"}, h.fake.asked)

	tr := h.o.Chat().Transcript()
	require.Len(t, tr, 3)
	assert.Equal(t, chat.User, tr[1].Speaker)
	assert.False(t, tr[1].IsMarkdown)

	n := h.rec.All()[0]
	assert.Equal(t, notify.Success, n.Level)
	assert.Equal(t, "Summary ready", n.Message)
}

func TestChatSessionExpiredDuringAsk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.o.Summarize(ctx, "abc")
	require.NoError(t, err)
	h.fake.expireAsk.Store(true)

	_, err = h.o.SendChatMessage(ctx, "What is ATP?")
	assert.ErrorIs(t, err, app_errors.ErrSessionExpired)
	assert.Equal(t, "Session expired. Please log in again.", UserMessage(err))
	assert.Equal(t, 1, h.tokens.cleared)
	assert.False(t, h.o.Chat().Active())
	assert.Equal(t, Failed, h.o.State(ActionChat))

	last, ok := h.rec.Last()
	require.True(t, ok)
	assert.Equal(t, "Session expired. Please log in again.", last.Message)
}

func TestSummarizeEmptyKeepsPriorChat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.o.Summarize(ctx, "abc")
	require.NoError(t, err)

	_, err = h.o.Summarize(ctx, "blank")
	var apiErr *app_errors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "abc", h.o.Chat().Context().ID)
}

func TestChatWithoutContext(t *testing.T) {
	h := newHarness(t)

	_, err := h.o.SendChatMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, app_errors.ErrNoActiveContext)
	assert.Zero(t, h.fake.total())
	assert.Empty(t, h.o.Chat().Transcript())
}

func TestSummarizeVideo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, u := range []string{"", "   ", "https://vimeo.com/123"} {
		_, err := h.o.SummarizeVideo(ctx, u)
		assert.ErrorIs(t, err, app_errors.ErrValidation, u)
	}
	assert.Zero(t, h.fake.total())

	_, err := h.o.SummarizeVideo(ctx, "  https://www.youtube.com/watch?v=x  ")
	require.NoError(t, err)
	assert.Equal(t, chat.DocumentContext{ID: chat.YouTubeContextID, DisplayName: YouTubeDisplayName}, h.o.Chat().Context())
}

func TestQuizReportsExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snap, err := h.o.GenerateQuiz(ctx, "abc", "Bio.pdf")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Total)

	var res *quiz.Result
	for _, answer := range []int{0, 0, 3} {
		_, err := h.o.SubmitAnswer(answer)
		require.NoError(t, err)
		res, err = h.o.NextQuestion(ctx)
		require.NoError(t, err)
	}
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Score)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 67, res.Percentage)

	_, err = h.o.NextQuestion(ctx)
	assert.ErrorIs(t, err, app_errors.ErrInvalidPhase)

	h.o.Wait()
	saves := h.fake.savedBodies()
	require.Len(t, saves, 1)
	assert.Equal(t, map[string]any{"content_id": "abc", "score": float64(2), "total_questions": float64(3)}, saves[0])
}

func TestQuitNeverReports(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.o.GenerateQuiz(ctx, "abc", "Bio.pdf")
	require.NoError(t, err)
	_, err = h.o.SubmitAnswer(0)
	require.NoError(t, err)
	require.NoError(t, h.o.QuitQuiz())

	h.o.Wait()
	assert.Zero(t, h.fake.count("POST /quiz/save"))
	assert.Equal(t, quiz.Finished, h.o.Quiz().Phase())
}

func TestEmptyQuizKeepsPrevious(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.o.GenerateQuiz(ctx, "abc", "Bio.pdf")
	require.NoError(t, err)
	_, err = h.o.GenerateQuiz(ctx, "empty", "Empty.pdf")
	assert.ErrorIs(t, err, app_errors.ErrEmptyQuiz)
	assert.Equal(t, "abc", h.o.Quiz().Snapshot().SourceID)
}

func TestSaveFailureIsBackgroundNotification(t *testing.T) {
	h := newHarness(t)
	h.fake.failSave.Store(true)
	ctx := context.Background()

	_, err := h.o.GenerateQuiz(ctx, "abc", "Bio.pdf")
	require.NoError(t, err)
	var res *quiz.Result
	for range 3 {
		_, err := h.o.SubmitAnswer(0)
		require.NoError(t, err)
		res, err = h.o.NextQuestion(ctx)
		require.NoError(t, err)
	}
	require.NotNil(t, res)
	h.o.Wait()

	last, ok := h.rec.Last()
	require.True(t, ok)
	assert.True(t, last.Background)
	assert.Equal(t, notify.Error, last.Level)
	assert.Equal(t, 1, res.Score)
}

func TestSessionExpiryResetsSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.o.Summarize(ctx, "abc")
	require.NoError(t, err)
	_, err = h.o.GenerateQuiz(ctx, "abc", "Bio.pdf")
	require.NoError(t, err)

	_, err = h.o.Summarize(ctx, "expired")
	assert.ErrorIs(t, err, app_errors.ErrSessionExpired)
	assert.Equal(t, 1, h.tokens.cleared)
	assert.False(t, h.o.Chat().Active())
	assert.Equal(t, quiz.Finished, h.o.Quiz().Phase())
	_, ok := h.o.Quiz().Current()
	assert.False(t, ok)

	last, _ := h.rec.Last()
	assert.Equal(t, "Session expired. Please log in again.", last.Message)

	_, err = h.o.ListMaterials(ctx)
	assert.ErrorIs(t, err, app_errors.ErrUnauthenticated)
}

func TestDashboard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d, err := h.o.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", d.Profile.FullName)
	assert.Len(t, d.Materials, 2)
	require.Len(t, d.Results, 1)
	assert.Equal(t, 67, d.Results[0].Percentage())

	h.fake.failResults.Store(true)
	_, err = h.o.Dashboard(ctx)
	var apiErr *app_errors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "database unavailable", apiErr.Message)
	assert.Equal(t, Failed, h.o.State(ActionDashboard))
}

func TestDeleteMaterialClosesItsChat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.o.Summarize(ctx, "abc")
	require.NoError(t, err)

	require.NoError(t, h.o.DeleteMaterial(ctx, "abc"))
	assert.Equal(t, 1, h.fake.count("DELETE /content/abc"))
	assert.False(t, h.o.Chat().Active())

	assert.ErrorIs(t, h.o.DeleteMaterial(ctx, " "), app_errors.ErrValidation)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.o.Summarize(ctx, "abc")
	require.NoError(t, err)

	require.NoError(t, h.o.Logout())
	assert.False(t, h.o.Chat().Active())
	assert.Equal(t, 1, h.tokens.cleared)
}

func TestDispatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.o.Dispatch(ctx, Intent{Action: "teleport"})
	assert.ErrorIs(t, err, app_errors.ErrValidation)

	out, err := h.o.Dispatch(ctx, Intent{Action: ActionListMaterials})
	require.NoError(t, err)
	assert.Len(t, out.Materials, 2)

	out, err = h.o.Dispatch(ctx, Intent{Action: ActionGenerateQuiz, ContentID: "abc"})
	require.NoError(t, err)
	require.NotNil(t, out.Quiz)
	assert.Equal(t, "abc", out.Quiz.SourceName)

	out, err = h.o.Dispatch(ctx, Intent{Action: ActionSubmitAnswer, Selection: 0})
	require.NoError(t, err)
	require.NotNil(t, out.Feedback)
	assert.True(t, out.Feedback.IsCorrect)

	out, err = h.o.Dispatch(ctx, Intent{Action: ActionNextQuestion})
	require.NoError(t, err)
	assert.Nil(t, out.Result)
	require.NotNil(t, out.Quiz)
	assert.Equal(t, 1, out.Quiz.Index)

	assert.Len(t, h.o.Actions(), 14)
}

func TestRequestStateTransitions(t *testing.T) {
	h := newHarness(t)
	var (
		mu   sync.Mutex
		seen []RequestState
	)
	h.o.OnStateChange(func(a Action, s RequestState) {
		if a != ActionListMaterials {
			return
		}
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	assert.Equal(t, Idle, h.o.State(ActionListMaterials))
	_, err := h.o.ListMaterials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []RequestState{InFlight, Succeeded}, seen)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Session expired. Please log in again.", UserMessage(app_errors.ErrSessionExpired))
	assert.Contains(t, UserMessage(app_errors.ErrUnauthenticated), "not logged in")
	assert.Equal(t, "Not found", UserMessage(&app_errors.APIError{Status: 404, Message: "Not found"}))
	assert.Contains(t, UserMessage(app_errors.Validationf("bad")), "bad")
}
