// Package chat holds the single active document context and its transcript.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	app_errors "github.com/kalambet/prepgen/internal/errors"
)

// FallbackReply is shown when the assistant produced nothing usable.
const FallbackReply = "Sorry, I could not generate a response. Please try again."

// YouTubeContextID is the context id used for video summaries.
const YouTubeContextID = "youtube"

// Speaker tells who produced a chat turn.
type Speaker string

const (
	User      Speaker = "user"
	Assistant Speaker = "assistant"
)

// DocumentContext identifies what the conversation is about. The zero value
// means no active context.
type DocumentContext struct {
	ID          string
	DisplayName string
}

// IsZero reports whether d is the empty context.
func (d DocumentContext) IsZero() bool { return d.ID == "" }

// ChatTurn is one transcript entry. Assistant turns are rendered as markdown;
// user turns are always literal.
type ChatTurn struct {
	Speaker    Speaker
	Text       string
	IsMarkdown bool
}

// UserTurn returns a literal user turn.
func UserTurn(text string) ChatTurn {
	return ChatTurn{Speaker: User, Text: text}
}

// AssistantTurn returns a markdown assistant turn.
func AssistantTurn(text string) ChatTurn {
	return ChatTurn{Speaker: Assistant, Text: text, IsMarkdown: true}
}

// Asker sends a question about a document to the backend.
type Asker interface {
	Ask(ctx context.Context, contentID, question string) (string, error)
}

// Session is safe for concurrent use. Its mutex is never held across an Ask.
type Session struct {
	mu         sync.Mutex
	current    DocumentContext
	generation string
	transcript []ChatTurn
}

// NewSession returns a session with no active context.
func NewSession() *Session {
	return &Session{}
}

// Open replaces the active context and its transcript with a new one seeded
// by first. The last Open wins.
func (s *Session) Open(doc DocumentContext, first ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = doc
	s.generation = uuid.NewString()
	s.transcript = []ChatTurn{first}
}

// Close drops the context and transcript.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = DocumentContext{}
	s.generation = ""
	s.transcript = nil
}

// Context returns the active document context, or the zero value.
func (s *Session) Context() DocumentContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Active reports whether a document context is open.
func (s *Session) Active() bool {
	return !s.Context().IsZero()
}

// Transcript returns a copy of the turns in order.
func (s *Session) Transcript() []ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatTurn(nil), s.transcript...)
}

// Send appends question as a user turn, asks the backend and appends the
// reply. On failure the fallback assistant turn is appended and the error is
// still returned. The user turn is never rolled back. If the context was
// replaced while waiting, nothing is appended and ErrStaleResponse is
// returned, joined with the request error if there was one.
func (s *Session) Send(ctx context.Context, asker Asker, question string) (ChatTurn, error) {
	question = strings.TrimSpace(question)

	s.mu.Lock()
	if s.current.IsZero() {
		s.mu.Unlock()
		return ChatTurn{}, app_errors.ErrNoActiveContext
	}
	if question == "" {
		s.mu.Unlock()
		return ChatTurn{}, app_errors.Validationf("question is empty")
	}
	doc, gen := s.current, s.generation
	s.transcript = append(s.transcript, UserTurn(question))
	s.mu.Unlock()

	reply, err := asker.Ask(ctx, doc.ID, question)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		if err != nil {
			return ChatTurn{}, fmt.Errorf("asking about %q: %w: %w", doc.DisplayName, err, app_errors.ErrStaleResponse)
		}
		return ChatTurn{}, fmt.Errorf("chat about %q: %w", doc.DisplayName, app_errors.ErrStaleResponse)
	}

	turn := AssistantTurn(reply)
	if err != nil || strings.TrimSpace(reply) == "" {
		turn = AssistantTurn(FallbackReply)
	}
	s.transcript = append(s.transcript, turn)
	if err != nil {
		return turn, fmt.Errorf("asking about %q: %w", doc.DisplayName, err)
	}
	return turn, nil
}
