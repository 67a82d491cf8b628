package domain

import "time"

// QuestionType identifies how a question is answered and whether it is scored.
type QuestionType string

const (
	TypeSingleChoice QuestionType = "multiple-choice"
	TypeMultiSelect  QuestionType = "multiple-select"
	TypePhraseCloud  QuestionType = "word-cloud"
	TypeOpenText     QuestionType = "open-ended"
	TypeScale        QuestionType = "scales"
	TypeRanking      QuestionType = "ranking"
	TypeQA           QuestionType = "q-and-a"
)

const (
	DefaultTimeLimit = 30
	MinTimeLimit     = 5
	MaxTimeLimit     = 300

	MaxNameLength = 30
)

// MaxTextLength is the longest free-text answer accepted for t.
func (t QuestionType) MaxTextLength() int {
	if t == TypePhraseCloud {
		return 50
	}
	return 500
}

// Scored reports whether answers to this type earn points.
func (t QuestionType) Scored() bool {
	switch t {
	case TypeSingleChoice, TypeMultiSelect, TypeRanking:
		return true
	}
	return false
}

// Known reports whether t is one of the supported question types.
func (t QuestionType) Known() bool {
	switch t {
	case TypeSingleChoice, TypeMultiSelect, TypePhraseCloud, TypeOpenText, TypeScale, TypeRanking, TypeQA:
		return true
	}
	return false
}

// ScaleLabels are optional captions for the ends of a numeric scale.
type ScaleLabels struct {
	Min string `json:"min" yaml:"min"`
	Max string `json:"max" yaml:"max"`
}

// Question is one step of a quiz. Type-specific fields are left empty when unused.
type Question struct {
	ID             string       `json:"id" yaml:"id" validate:"required"`
	Type           QuestionType `json:"type" yaml:"type" validate:"required,question_type"`
	Prompt         string       `json:"question" yaml:"question"`
	Options        []string     `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectAnswer  *int         `json:"correctAnswer,omitempty" yaml:"correctAnswer,omitempty"`
	CorrectAnswers []int        `json:"correctAnswers,omitempty" yaml:"correctAnswers,omitempty"`
	CorrectOrder   []int        `json:"correctOrder,omitempty" yaml:"correctOrder,omitempty"`
	TimeLimit      int          `json:"timeLimit,omitempty" yaml:"timeLimit,omitempty"`
	ScaleLabels    *ScaleLabels `json:"scaleLabels,omitempty" yaml:"scaleLabels,omitempty"`
	ScaleMin       *float64     `json:"scaleMin,omitempty" yaml:"scaleMin,omitempty"`
	ScaleMax       *float64     `json:"scaleMax,omitempty" yaml:"scaleMax,omitempty"`
}

// Limit returns the effective time limit in seconds.
func (q Question) Limit() int {
	if q.TimeLimit <= 0 {
		return DefaultTimeLimit
	}
	return q.TimeLimit
}

// ScaleBounds returns the numeric range of a scale question, 1 to 10 unless set.
func (q Question) ScaleBounds() (lo, hi float64) {
	lo, hi = 1, 10
	if q.ScaleMin != nil {
		lo = *q.ScaleMin
	}
	if q.ScaleMax != nil {
		hi = *q.ScaleMax
	}
	return lo, hi
}

// Quiz is an ordered collection of questions. Order is significant for a session.
type Quiz struct {
	ID          string     `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string     `json:"title" yaml:"title" validate:"required"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Questions   []Question `json:"questions" yaml:"questions" validate:"required,dive"`
}

// Clone returns a deep copy so session-level shuffles never leak into shared caches.
func (q Quiz) Clone() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		c := question
		c.Options = append([]string(nil), question.Options...)
		c.CorrectAnswers = append([]int(nil), question.CorrectAnswers...)
		c.CorrectOrder = append([]int(nil), question.CorrectOrder...)
		if question.CorrectAnswer != nil {
			v := *question.CorrectAnswer
			c.CorrectAnswer = &v
		}
		if question.ScaleLabels != nil {
			l := *question.ScaleLabels
			c.ScaleLabels = &l
		}
		if question.ScaleMin != nil {
			v := *question.ScaleMin
			c.ScaleMin = &v
		}
		if question.ScaleMax != nil {
			v := *question.ScaleMax
			c.ScaleMax = &v
		}
		out.Questions[i] = c
	}
	return out
}

// Participant is a connected follower of a session.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	Connected bool   `json:"connected"`
}

// Answer is one recorded submission. TimeRemaining is nil when unknown.
type Answer struct {
	ParticipantID   string      `json:"participantId"`
	ParticipantName string      `json:"participantName"`
	QuestionID      string      `json:"questionId"`
	Value           AnswerValue `json:"answer"`
	Timestamp       time.Time   `json:"timestamp"`
	TimeRemaining   *int        `json:"timeLeftAtAnswer,omitempty"`
}

// LeaderboardEntry is a participant's standing at a point in time.
type LeaderboardEntry struct {
	ParticipantID string `json:"id"`
	Name          string `json:"name"`
	Avatar        string `json:"avatar,omitempty"`
	Score         int    `json:"score"`
	PointsEarned  int    `json:"pointsEarned"`
	Correct       bool   `json:"correct"`
}

// SessionRecord is the session part of an exported results file.
type SessionRecord struct {
	RoomCode     string        `json:"roomCode"`
	Participants []Participant `json:"participants"`
	Answers      []Answer      `json:"answers"`
	CompletedAt  time.Time     `json:"completedAt"`
}

// SessionResults is the layout of an exported results file.
type SessionResults struct {
	Quiz    Quiz          `json:"quiz"`
	Session SessionRecord `json:"session"`
}
