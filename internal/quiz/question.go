package quiz

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	app_errors "github.com/kalambet/prepgen/internal/errors"
)

// Question is one multiple-choice item as returned by the quiz endpoint.
// It is not modified after Start.
type Question struct {
	Prompt             string   `json:"question" validate:"required"`
	Options            []string `json:"options" validate:"min=2,dive,required"`
	CorrectOptionIndex int      `json:"correct_answer" validate:"gte=0"`
	Explanation        *string  `json:"explanation,omitempty"`
}

// CorrectOption returns the text of the correct option.
func (q Question) CorrectOption() string {
	return q.Options[q.CorrectOptionIndex]
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the struct tags and that the correct index points at an
// existing option.
func (q Question) Validate() error {
	if err := validatorInstance().Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", app_errors.ErrValidation, err.Error())
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", app_errors.ErrValidation, strings.Join(msgs, "; "))
	}
	if q.CorrectOptionIndex >= len(q.Options) {
		return app_errors.Validationf("correct answer %d is out of range for %d options", q.CorrectOptionIndex, len(q.Options))
	}
	return nil
}
