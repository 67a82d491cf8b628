package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	validateOnce sync.Once
	structs      *validator.Validate
)

func quizValidator() *validator.Validate {
	validateOnce.Do(func() {
		structs = validator.New()
		_ = structs.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
			return QuestionType(fl.Field().String()).Known()
		})
	})
	return structs
}

// ValidateQuiz checks a quiz definition before it is accepted: a non-empty title,
// a questions list, and per-question fields a live session depends on.
func ValidateQuiz(q Quiz) error {
	if err := quizValidator().Struct(q); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidQuiz, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}
	if strings.TrimSpace(q.Title) == "" {
		return fmt.Errorf("%w: title is blank", ErrInvalidQuiz)
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidQuiz, question.ID)
		}
		seen[question.ID] = struct{}{}
		if err := validateQuestion(question); err != nil {
			return fmt.Errorf("%w: question %d (%s): %v", ErrInvalidQuiz, i, question.ID, err)
		}
	}
	return nil
}

func validateQuestion(q Question) error {
	switch q.Type {
	case TypeSingleChoice, TypeMultiSelect, TypeRanking:
		if len(q.Options) < 2 {
			return errors.New("needs at least 2 options")
		}
	}
	n := len(q.Options)
	if q.CorrectAnswer != nil && (*q.CorrectAnswer < 0 || *q.CorrectAnswer >= n) {
		return fmt.Errorf("correctAnswer %d out of range", *q.CorrectAnswer)
	}
	for _, idx := range q.CorrectAnswers {
		if idx < 0 || idx >= n {
			return fmt.Errorf("correctAnswers index %d out of range", idx)
		}
	}
	if q.Type == TypeRanking && len(q.CorrectOrder) > 0 && !isPermutation(q.CorrectOrder, n) {
		return errors.New("correctOrder is not a permutation of the options")
	}
	if q.ScaleMin != nil && q.ScaleMax != nil && *q.ScaleMin >= *q.ScaleMax {
		return errors.New("scaleMin must be below scaleMax")
	}
	return nil
}

func isPermutation(p []int, n int) bool {
	if len(p) != n {
		return false
	}
	seen := make([]bool, n)
	for _, v := range p {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// Normalize fills defaults and clamps time limits into the supported range.
func Normalize(q Quiz) Quiz {
	out := q.Clone()
	for i := range out.Questions {
		limit := out.Questions[i].TimeLimit
		if limit <= 0 {
			limit = DefaultTimeLimit
		}
		out.Questions[i].TimeLimit = min(max(limit, MinTimeLimit), MaxTimeLimit)
	}
	return out
}

// ParseQuiz decodes a quiz definition. YAML is used for .yaml/.yml names, JSON otherwise.
func ParseQuiz(name string, data []byte) (Quiz, error) {
	var q Quiz
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &q); err != nil {
			return Quiz{}, fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
		}
	default:
		if err := json.Unmarshal(data, &q); err != nil {
			return Quiz{}, fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
		}
	}
	if err := ValidateQuiz(q); err != nil {
		return Quiz{}, err
	}
	return q, nil
}
