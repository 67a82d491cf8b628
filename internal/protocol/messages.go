// Package protocol defines the {type, payload} envelopes exchanged between a host
// and its participants.
package protocol

import (
	"encoding/json"
	"fmt"

	"quizroom/internal/domain"
)

// MessageType names an envelope.
type MessageType string

const (
	// participant -> host
	TypeJoin   MessageType = "JOIN"
	TypeAnswer MessageType = "ANSWER"

	// host -> participant
	TypeQuizData     MessageType = "QUIZ_DATA"
	TypeQuizStarting MessageType = "QUIZ_STARTING"
	TypeQuizStarted  MessageType = "QUIZ_STARTED"
	TypeNextQuestion MessageType = "NEXT_QUESTION"
	TypeShowResults  MessageType = "SHOW_RESULTS"
	TypeShowRanking  MessageType = "SHOW_RANKING"
	TypeQuizEnded    MessageType = "QUIZ_ENDED"
)

// Envelope is the wire frame. Payload is kept raw until the receiver knows the type.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps payload in an envelope of type t.
func Encode(t MessageType, payload any) (Envelope, error) {
	if payload == nil {
		payload = struct{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", t, err)
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("decode %s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return nil
}

type JoinPayload struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// AnswerPayload carries the raw answer; its shape depends on the question type.
type AnswerPayload struct {
	Name       string          `json:"name"`
	QuestionID string          `json:"questionId"`
	Answer     json.RawMessage `json:"answer"`
}

// QuizDataPayload is the full-state snapshot sent to a newly admitted participant.
type QuizDataPayload struct {
	Quiz                 domain.Quiz `json:"quiz"`
	CurrentQuestionIndex int         `json:"currentQuestionIndex"`
	HasStarted           bool        `json:"hasStarted"`
	TimeLeft             *int        `json:"timeLeft"`
	Countdown            *int        `json:"countdown,omitempty"`
	ParticipantID        string      `json:"participantId,omitempty"`
	Phase                string      `json:"phase,omitempty"`
}

type QuizStartingPayload struct {
	CountdownSeconds int `json:"countdownSeconds"`
}

type QuizStartedPayload struct {
	TimeLeft int `json:"timeLeft"`
}

type NextQuestionPayload struct {
	QuestionIndex int `json:"questionIndex"`
	TimeLeft      int `json:"timeLeft"`
}

// ShowResultsPayload reveals the answer key and standings for one question.
type ShowResultsPayload struct {
	QuestionID    string                    `json:"questionId"`
	CorrectAnswer any                       `json:"correctAnswer"`
	Leaderboard   []domain.LeaderboardEntry `json:"leaderboard"`
}

type ShowRankingPayload struct {
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}
