// Package report submits finished quiz scores in the background.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/prepgen/internal/notify"
)

// Submission is a finished quiz's score, keyed by the quiz session id.
type Submission struct {
	SessionID string
	SourceID  string
	Score     int
	Total     int
}

// Saver persists a score; in production it posts to /quiz/save.
type Saver interface {
	SaveResult(ctx context.Context, contentID string, score, total int) error
}

// Reporter submits each session's score at most once. Submissions run on
// their own goroutine and outlive the caller's context.
type Reporter struct {
	saver    Saver
	notifier notify.Notifier
	timeout  time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
	wg   sync.WaitGroup
}

func New(saver Saver, notifier notify.Notifier, timeout time.Duration) *Reporter {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Reporter{
		saver:    saver,
		notifier: notifier,
		timeout:  timeout,
		logger:   slog.Default(),
		seen:     make(map[string]struct{}),
	}
}

// Report schedules sub for submission and returns immediately. It returns
// false if this session was already reported.
func (r *Reporter) Report(ctx context.Context, sub Submission) bool {
	r.mu.Lock()
	if _, dup := r.seen[sub.SessionID]; dup {
		r.mu.Unlock()
		r.logger.Debug("quiz result already reported", "session", sub.SessionID)
		return false
	}
	r.seen[sub.SessionID] = struct{}{}
	r.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.submit(ctx, sub)
	}()
	return true
}

func (r *Reporter) submit(ctx context.Context, sub Submission) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.saver.SaveResult(ctx, sub.SourceID, sub.Score, sub.Total); err != nil {
		r.logger.Warn("saving quiz result failed", "session", sub.SessionID, "content", sub.SourceID, "error", err)
		r.notifier.Notify(notify.Notification{
			Level:      notify.Error,
			Message:    fmt.Sprintf("Could not save quiz result: %v", err),
			Background: true,
		})
		return
	}
	r.logger.Debug("quiz result saved", "session", sub.SessionID, "score", sub.Score, "total", sub.Total)
}

// Wait blocks until every scheduled submission has finished.
func (r *Reporter) Wait() {
	r.wg.Wait()
}
