// Package scoring awards points for answers and ranks participants.
// Everything here is pure: no clocks, no I/O, no shared state.
package scoring

import (
	"slices"
	"sort"

	"quizroom/internal/domain"
)

// MaxPoints is awarded for a correct answer submitted with the full time limit left.
const MaxPoints = 1000

// Correct reports whether value is the right answer for q. Unscored question
// types are never correct.
func Correct(q domain.Question, value domain.AnswerValue) bool {
	switch q.Type {
	case domain.TypeSingleChoice:
		return value.Kind == domain.KindIndex && q.CorrectAnswer != nil && value.Index == *q.CorrectAnswer
	case domain.TypeMultiSelect:
		return value.Kind == domain.KindIndices && sameSet(value.Indices, q.CorrectAnswers)
	case domain.TypeRanking:
		return value.Kind == domain.KindIndices && len(q.CorrectOrder) > 0 && slices.Equal(value.Indices, q.CorrectOrder)
	}
	return false
}

// Score returns the points in [0, MaxPoints] for value submitted with timeRemaining
// seconds left. Answering with no time left earns nothing even when correct.
func Score(q domain.Question, value domain.AnswerValue, timeRemaining int) int {
	if !q.Type.Scored() || !Correct(q, value) {
		return 0
	}
	points := timeRemaining * MaxPoints / q.Limit()
	return min(max(points, 0), MaxPoints)
}

// ScoreAnswer scores a recorded answer. Unknown remaining time counts as zero.
func ScoreAnswer(q domain.Question, a domain.Answer) int {
	remaining := 0
	if a.TimeRemaining != nil {
		remaining = *a.TimeRemaining
	}
	return Score(q, a.Value, remaining)
}

// CorrectAnswer is the key broadcast when results are revealed, nil for unscored types.
func CorrectAnswer(q domain.Question) any {
	switch q.Type {
	case domain.TypeSingleChoice:
		if q.CorrectAnswer != nil {
			return *q.CorrectAnswer
		}
	case domain.TypeMultiSelect:
		return q.CorrectAnswers
	case domain.TypeRanking:
		return q.CorrectOrder
	}
	return nil
}

func sameSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	sa := slices.Clone(a)
	sb := slices.Clone(b)
	slices.Sort(sa)
	slices.Sort(sb)
	return slices.Equal(sa, sb)
}

// Leaderboard ranks roster members (in join order) by the points earned on revealed
// questions. PointsEarned and Correct describe currentQuestionID. Ties keep join order.
func Leaderboard(quiz domain.Quiz, roster []domain.Participant, answers []domain.Answer, revealed map[string]bool, currentQuestionID string) []domain.LeaderboardEntry {
	questions := make(map[string]domain.Question, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions[q.ID] = q
	}

	type tally struct {
		total   int
		current int
		correct bool
	}
	tallies := make(map[string]*tally, len(roster))
	for _, p := range roster {
		tallies[p.ID] = &tally{}
	}

	for _, a := range answers {
		t, ok := tallies[a.ParticipantID]
		if !ok || !revealed[a.QuestionID] {
			continue
		}
		q, ok := questions[a.QuestionID]
		if !ok {
			continue
		}
		points := ScoreAnswer(q, a)
		t.total += points
		if a.QuestionID == currentQuestionID {
			t.current = points
			t.correct = Correct(q, a.Value)
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(roster))
	for _, p := range roster {
		t := tallies[p.ID]
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			Name:          p.Name,
			Avatar:        p.Avatar,
			Score:         t.total,
			PointsEarned:  t.current,
			Correct:       t.correct,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}
