package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kalambet/prepgen/internal/chat"
	app_errors "github.com/kalambet/prepgen/internal/errors"
	"github.com/kalambet/prepgen/internal/quiz"
	"github.com/kalambet/prepgen/internal/render"
	"github.com/kalambet/prepgen/internal/workflow"
)

func readLine(sc *bufio.Scanner) (string, bool) {
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

// runChatLoop reads questions from in until EOF or "exit".
func runChatLoop(ctx context.Context, orch *workflow.Orchestrator, r *render.Renderer, in io.Reader, out io.Writer) error {
	doc := orch.Chat().Context()
	if doc.IsZero() {
		return app_errors.ErrNoActiveContext
	}
	fmt.Fprintf(out, "Chatting about %s. Ask a question, or type 'exit' to leave.\n", doc.DisplayName)

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		line, ok := readLine(sc)
		if !ok || line == "exit" || line == "quit" {
			return nil
		}
		if line == "" {
			continue
		}

		turn, err := orch.SendChatMessage(ctx, line)
		if err == nil {
			fmt.Fprint(out, r.Turn(turn))
			continue
		}
		if errors.Is(err, app_errors.ErrUnauthenticated) || errors.Is(err, app_errors.ErrNoActiveContext) {
			return err
		}
		fmt.Fprintln(out, workflow.UserMessage(err))
		if tr := orch.Chat().Transcript(); len(tr) > 0 && tr[len(tr)-1].Text == chat.FallbackReply {
			fmt.Fprint(out, r.Turn(tr[len(tr)-1]))
		}
	}
}

func printQuestion(out io.Writer, q quiz.Question, idx, total int) {
	fmt.Fprintf(out, "\n%s\n%s\n", colorize(colorBold, fmt.Sprintf("Question %d of %d", idx+1, total)), q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(out, "  %d) %s\n", i+1, opt)
	}
	fmt.Fprintf(out, "Answer (1-%d, q to quit): ", len(q.Options))
}

// runQuizLoop drives the quiz in progress. It returns the result when the
// last question is answered, or nil if the user quit.
func runQuizLoop(ctx context.Context, orch *workflow.Orchestrator, in io.Reader, out io.Writer) (*quiz.Result, error) {
	sc := bufio.NewScanner(in)
	for {
		q, ok := orch.Quiz().Current()
		if !ok {
			return nil, nil
		}
		idx, total := orch.Quiz().Progress()
		printQuestion(out, q, idx, total)

		line, ok := readLine(sc)
		if !ok || strings.EqualFold(line, "q") {
			if err := orch.QuitQuiz(); err != nil {
				return nil, err
			}
			fmt.Fprintln(out, "\nQuiz abandoned. Your score was not saved.")
			return nil, nil
		}

		selection := quiz.NoSelection
		if n, err := strconv.Atoi(line); err == nil && n > 0 {
			selection = n - 1
		}
		fb, err := orch.SubmitAnswer(selection)
		if err != nil {
			if errors.Is(err, app_errors.ErrValidation) {
				fmt.Fprintln(out, workflow.UserMessage(err))
				continue
			}
			return nil, err
		}

		if fb.IsCorrect {
			fmt.Fprintln(out, colorize(colorGreen, "Correct!"))
		} else {
			fmt.Fprintln(out, colorize(colorRed, "Incorrect. The correct answer is: "+fb.CorrectOptionText))
		}
		if fb.Explanation != "" {
			fmt.Fprintf(out, "Explanation: %s\n", fb.Explanation)
		}

		res, err := orch.NextQuestion(ctx)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
}

func printResult(out io.Writer, res *quiz.Result) {
	fmt.Fprintf(out, "\n%s\nYou scored %d out of %d (%d%%)\n",
		colorize(colorBold, "Quiz complete: "+res.SourceName), res.Score, res.Total, res.Percentage)
}
