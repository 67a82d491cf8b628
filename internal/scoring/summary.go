package scoring

import (
	"cmp"
	"slices"
	"strings"

	"quizroom/internal/domain"
)

// OptionPoints is the positional score of one ranking option: an option placed
// first by a participant earns len(options) points, the last one earns 1.
type OptionPoints struct {
	Option int
	Points int
}

// WordCount is how often a word-cloud entry was submitted, compared case-insensitively.
type WordCount struct {
	Text  string
	Count int
}

// TextEntry is a free-text answer with its author.
type TextEntry struct {
	ParticipantName string
	Text            string
}

// ScaleSummary describes the answers to a numeric scale.
type ScaleSummary struct {
	Mean     float64
	Lowest   float64
	Highest  float64
	Min      float64
	Max      float64
	Position float64 // mean relative to [Min, Max], 0..1
}

// QuestionSummary aggregates the answers to one question for the presenter.
// Only the field matching the question type is filled.
type QuestionSummary struct {
	QuestionID   string
	Type         domain.QuestionType
	Responses    int
	OptionCounts []int
	Ranking      []OptionPoints
	Scale        *ScaleSummary
	Words        []WordCount
	Texts        []TextEntry
}

// Summarize aggregates the answers recorded for q. Answers to other questions and
// values of the wrong shape are skipped.
func Summarize(q domain.Question, answers []domain.Answer) QuestionSummary {
	s := QuestionSummary{QuestionID: q.ID, Type: q.Type}
	kind := q.Type.ExpectedKind()
	var relevant []domain.Answer
	for _, a := range answers {
		if a.QuestionID == q.ID && a.Value.Kind == kind {
			relevant = append(relevant, a)
		}
	}
	s.Responses = len(relevant)

	switch q.Type {
	case domain.TypeSingleChoice, domain.TypeMultiSelect:
		s.OptionCounts = make([]int, len(q.Options))
		for _, a := range relevant {
			picked := a.Value.Indices
			if a.Value.Kind == domain.KindIndex {
				picked = []int{a.Value.Index}
			}
			seen := make(map[int]bool, len(picked))
			for _, i := range picked {
				if i >= 0 && i < len(q.Options) && !seen[i] {
					seen[i] = true
					s.OptionCounts[i]++
				}
			}
		}
	case domain.TypeRanking:
		s.Ranking = rankingPoints(len(q.Options), relevant)
	case domain.TypeScale:
		s.Scale = scaleSummary(q, relevant)
	case domain.TypePhraseCloud:
		s.Words = wordCounts(relevant)
	case domain.TypeOpenText, domain.TypeQA:
		for _, a := range relevant {
			s.Texts = append(s.Texts, TextEntry{ParticipantName: a.ParticipantName, Text: a.Value.Text})
		}
	}
	return s
}

// ResponseRate is the share of participants who answered, as a whole percentage
// capped at 100.
func ResponseRate(responses, participants int) int {
	if participants <= 0 {
		return 0
	}
	return min(responses*100/participants, 100)
}

func rankingPoints(n int, answers []domain.Answer) []OptionPoints {
	points := make([]OptionPoints, n)
	for i := range points {
		points[i].Option = i
	}
	for _, a := range answers {
		for pos, opt := range a.Value.Indices {
			if opt >= 0 && opt < n {
				points[opt].Points += n - pos
			}
		}
	}
	slices.SortStableFunc(points, func(a, b OptionPoints) int { return cmp.Compare(b.Points, a.Points) })
	return points
}

func scaleSummary(q domain.Question, answers []domain.Answer) *ScaleSummary {
	lo, hi := q.ScaleBounds()
	s := &ScaleSummary{Min: lo, Max: hi}
	if len(answers) == 0 {
		return s
	}
	s.Lowest, s.Highest = answers[0].Value.Number, answers[0].Value.Number
	total := 0.0
	for _, a := range answers {
		v := a.Value.Number
		total += v
		s.Lowest = min(s.Lowest, v)
		s.Highest = max(s.Highest, v)
	}
	s.Mean = total / float64(len(answers))
	if hi > lo {
		s.Position = min(max((s.Mean-lo)/(hi-lo), 0), 1)
	}
	return s
}

func wordCounts(answers []domain.Answer) []WordCount {
	var words []WordCount
	index := make(map[string]int)
	for _, a := range answers {
		text := strings.TrimSpace(a.Value.Text)
		if text == "" {
			continue
		}
		key := strings.ToLower(text)
		if i, ok := index[key]; ok {
			words[i].Count++
			continue
		}
		index[key] = len(words)
		words = append(words, WordCount{Text: text, Count: 1})
	}
	slices.SortStableFunc(words, func(a, b WordCount) int { return cmp.Compare(b.Count, a.Count) })
	return words
}
