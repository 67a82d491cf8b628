package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizroom/internal/domain"
	"quizroom/internal/scoring"
)

func floatPtr(v float64) *float64 { return &v }

func answer(name string, value domain.AnswerValue) domain.Answer {
	return domain.Answer{ParticipantID: name, ParticipantName: name, QuestionID: "q", Value: value}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		question domain.Question
		answers  []domain.Answer
		check    func(t *testing.T, s scoring.QuestionSummary)
	}{
		{
			name:     "single choice counts votes per option",
			question: domain.Question{ID: "q", Type: domain.TypeSingleChoice, Options: []string{"a", "b", "c"}},
			answers: []domain.Answer{
				answer("ana", domain.IndexValue(1)),
				answer("ben", domain.IndexValue(1)),
				answer("cy", domain.IndexValue(0)),
				answer("dee", domain.IndexValue(7)),
			},
			check: func(t *testing.T, s scoring.QuestionSummary) {
				assert.Equal(t, 4, s.Responses)
				assert.Equal(t, []int{1, 2, 0}, s.OptionCounts)
			},
		},
		{
			name:     "multi select counts each picked option once",
			question: domain.Question{ID: "q", Type: domain.TypeMultiSelect, Options: []string{"a", "b", "c"}},
			answers: []domain.Answer{
				answer("ana", domain.IndicesValue(0, 2)),
				answer("ben", domain.IndicesValue(2, 2)),
			},
			check: func(t *testing.T, s scoring.QuestionSummary) {
				assert.Equal(t, []int{1, 0, 2}, s.OptionCounts)
			},
		},
		{
			name:     "ranking awards positional points",
			question: domain.Question{ID: "q", Type: domain.TypeRanking, Options: []string{"a", "b", "c"}},
			answers: []domain.Answer{
				answer("ana", domain.IndicesValue(2, 0, 1)),
				answer("ben", domain.IndicesValue(2, 1, 0)),
			},
			check: func(t *testing.T, s scoring.QuestionSummary) {
				assert.Equal(t, []scoring.OptionPoints{
					{Option: 2, Points: 6},
					{Option: 0, Points: 3},
					{Option: 1, Points: 3},
				}, s.Ranking)
			},
		},
		{
			name:     "scale reports mean and spread",
			question: domain.Question{ID: "q", Type: domain.TypeScale, ScaleMin: floatPtr(0), ScaleMax: floatPtr(10)},
			answers: []domain.Answer{
				answer("ana", domain.NumberValue(2)),
				answer("ben", domain.NumberValue(9)),
				answer("cy", domain.NumberValue(7)),
			},
			check: func(t *testing.T, s scoring.QuestionSummary) {
				require.NotNil(t, s.Scale)
				assert.InDelta(t, 6.0, s.Scale.Mean, 1e-9)
				assert.Equal(t, 2.0, s.Scale.Lowest)
				assert.Equal(t, 9.0, s.Scale.Highest)
				assert.InDelta(t, 0.6, s.Scale.Position, 1e-9)
			},
		},
		{
			name:     "scale without answers uses default bounds",
			question: domain.Question{ID: "q", Type: domain.TypeScale},
			check: func(t *testing.T, s scoring.QuestionSummary) {
				require.NotNil(t, s.Scale)
				assert.Equal(t, 0, s.Responses)
				assert.Equal(t, 1.0, s.Scale.Min)
				assert.Equal(t, 10.0, s.Scale.Max)
				assert.Zero(t, s.Scale.Mean)
			},
		},
		{
			name:     "word cloud groups case-insensitively",
			question: domain.Question{ID: "q", Type: domain.TypePhraseCloud},
			answers: []domain.Answer{
				answer("ana", domain.TextValue("Go")),
				answer("ben", domain.TextValue("rust")),
				answer("cy", domain.TextValue(" go ")),
			},
			check: func(t *testing.T, s scoring.QuestionSummary) {
				assert.Equal(t, []scoring.WordCount{{Text: "Go", Count: 2}, {Text: "rust", Count: 1}}, s.Words)
			},
		},
		{
			name:     "q and a lists entries in arrival order",
			question: domain.Question{ID: "q", Type: domain.TypeQA},
			answers: []domain.Answer{
				answer("ana", domain.TextValue("When is lunch?")),
				answer("ben", domain.TextValue("Slides?")),
			},
			check: func(t *testing.T, s scoring.QuestionSummary) {
				assert.Equal(t, []scoring.TextEntry{
					{ParticipantName: "ana", Text: "When is lunch?"},
					{ParticipantName: "ben", Text: "Slides?"},
				}, s.Texts)
			},
		},
		{
			name:     "other questions and wrong shapes are skipped",
			question: domain.Question{ID: "q", Type: domain.TypeOpenText},
			answers: []domain.Answer{
				answer("ana", domain.TextValue("fine")),
				answer("ben", domain.IndexValue(1)),
				{ParticipantName: "cy", QuestionID: "other", Value: domain.TextValue("elsewhere")},
			},
			check: func(t *testing.T, s scoring.QuestionSummary) {
				assert.Equal(t, 1, s.Responses)
				assert.Equal(t, []scoring.TextEntry{{ParticipantName: "ana", Text: "fine"}}, s.Texts)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := scoring.Summarize(tt.question, tt.answers)
			assert.Equal(t, tt.question.Type, s.Type)
			tt.check(t, s)
		})
	}
}

func TestResponseRate(t *testing.T) {
	assert.Equal(t, 0, scoring.ResponseRate(3, 0))
	assert.Equal(t, 66, scoring.ResponseRate(2, 3))
	assert.Equal(t, 100, scoring.ResponseRate(4, 3))
}
