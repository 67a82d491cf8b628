// Package events publishes session lifecycle events to a watermill topic so that
// dashboards and archivers can follow a room without joining it.
package events

import (
	"time"
)

// EventType identifies a session event.
type EventType string

const (
	EventPhaseChanged   EventType = "session.phase_changed"
	EventResultsShown   EventType = "session.results_shown"
	EventParticipantIn  EventType = "session.participant_joined"
	EventParticipantOut EventType = "session.participant_left"
	EventSessionEnded   EventType = "session.ended"
)

const (
	DefaultTopic = "quizroom.sessions"
	sourceName   = "quizroom-host"
	eventVersion = "1"
)

// SessionEvent is the body of every published message.
type SessionEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	RoomCode      string    `json:"roomCode"`
	Phase         string    `json:"phase,omitempty"`
	QuestionIndex int       `json:"questionIndex"`
	QuestionID    string    `json:"questionId,omitempty"`
	ParticipantID string    `json:"participantId,omitempty"`
	Participants  int       `json:"participants"`
	Timestamp     time.Time `json:"timestamp"`
}
