package cli

import "quizroom/internal/domain"

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// templateQuiz is the starter file printed by the template command.
func templateQuiz() domain.Quiz {
	return domain.Quiz{
		Title:       "Sample Quiz",
		Description: "A sample quiz to get you started",
		Questions: []domain.Question{
			{
				ID:            "1",
				Type:          domain.TypeSingleChoice,
				Prompt:        "What is the capital of France?",
				Options:       []string{"London", "Berlin", "Paris", "Madrid"},
				CorrectAnswer: intPtr(2),
				TimeLimit:     30,
			},
			{
				ID:        "2",
				Type:      domain.TypePhraseCloud,
				Prompt:    "Describe this session in one word",
				TimeLimit: 20,
			},
		},
	}
}

// grammarSample exercises every question type.
func grammarSample() domain.Quiz {
	return domain.Quiz{
		Title:       "English Grammar Masterclass",
		Description: "A comprehensive test of your English grammar skills across all formats.",
		Questions: []domain.Question{
			{
				ID:            "q1",
				Type:          domain.TypeSingleChoice,
				Prompt:        "Which sentence uses the correct form of 'their/there/they're'?",
				Options:       []string{"There going to the park.", "Look over they're!", "Their house is very big.", "I hope there happy."},
				CorrectAnswer: intPtr(2),
				TimeLimit:     20,
			},
			{
				ID:             "q2",
				Type:           domain.TypeMultiSelect,
				Prompt:         "Select all the irregular verbs from the list below:",
				Options:        []string{"Walk", "Run", "Eat", "Talk", "Go", "Sleep"},
				CorrectAnswers: []int{1, 2, 4, 5},
				TimeLimit:      30,
			},
			{
				ID:        "q3",
				Type:      domain.TypePhraseCloud,
				Prompt:    "What are some common English adjectives you use daily?",
				TimeLimit: 30,
			},
			{
				ID:          "q4",
				Type:        domain.TypeScale,
				Prompt:      "How comfortable do you feel using conditionals (if-clauses)?",
				ScaleLabels: &domain.ScaleLabels{Min: "Confused", Max: "Expert"},
				ScaleMin:    floatPtr(1),
				ScaleMax:    floatPtr(10),
				TimeLimit:   20,
			},
			{
				ID:        "q5",
				Type:      domain.TypeRanking,
				Prompt:    "Rank these tenses by their typical order of learning (earliest to latest):",
				Options:   []string{"Present Simple", "Past Continuous", "Present Perfect", "Future Perfect Continuous"},
				TimeLimit: 40,
			},
			{
				ID:        "q6",
				Type:      domain.TypeOpenText,
				Prompt:    "Explain the difference between 'since' and 'for' in one short sentence.",
				TimeLimit: 60,
			},
			{
				ID:        "q7",
				Type:      domain.TypeQA,
				Prompt:    "Any burning questions about English idioms? Ask them here!",
				TimeLimit: 120,
			},
		},
	}
}
