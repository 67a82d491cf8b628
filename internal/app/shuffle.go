package app

import (
	"math/rand"

	"quizroom/internal/domain"
)

// ShuffleRanking permutes the options of a ranking question and rewrites its answer
// key in shuffled positions: CorrectOrder[i] is where the rank-i item now sits.
// The authored rank order is the identity unless CorrectOrder was authored.
// Non-ranking questions are returned unchanged.
func ShuffleRanking(q domain.Question, rnd *rand.Rand) domain.Question {
	if q.Type != domain.TypeRanking || len(q.Options) == 0 {
		return q
	}
	n := len(q.Options)

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}

	options := make([]string, n)
	position := make([]int, n)
	for shuffled, original := range perm {
		options[shuffled] = q.Options[original]
		position[original] = shuffled
	}

	authored := q.CorrectOrder
	if len(authored) != n {
		authored = make([]int, n)
		for i := range authored {
			authored[i] = i
		}
	}
	correct := make([]int, n)
	for rank, original := range authored {
		correct[rank] = position[original]
	}

	out := q
	out.Options = options
	out.CorrectOrder = correct
	return out
}

// PrepareQuiz returns the session copy of a quiz: defaults applied and every ranking
// question shuffled exactly once. The input is not modified.
func PrepareQuiz(quiz domain.Quiz, rnd *rand.Rand) domain.Quiz {
	prepared := domain.Normalize(quiz)
	for i, q := range prepared.Questions {
		prepared.Questions[i] = ShuffleRanking(q, rnd)
	}
	return prepared
}
