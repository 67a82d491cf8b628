package domain

import "errors"

var (
	// ErrParticipantNotFound is returned when a channel acts before joining or after leaving.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidQuiz is returned when a quiz definition fails validation.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
	// ErrInvalidPhase is returned when an operation is not allowed in the current phase.
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	// ErrWrongQuestion is returned for answers that do not target the active question.
	ErrWrongQuestion = errors.New("answer does not target the active question")
	// ErrDuplicateAnswer is returned when a participant answers the same question twice.
	ErrDuplicateAnswer = errors.New("answer already recorded")
	// ErrAnswerTypeMismatch is returned when the answer shape does not fit the question type.
	ErrAnswerTypeMismatch = errors.New("answer does not match question type")
	// ErrInvalidRoomCode is returned for room codes that are not 6 base-36 characters.
	ErrInvalidRoomCode = errors.New("room code must be exactly 6 letters or digits")
	// ErrRoomNotFound is returned when no host is bound to a room code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidName is returned for blank or overlong display names.
	ErrInvalidName = errors.New("display name must be 1 to 30 characters")
	// ErrAnswerTooLong is returned for free-text answers above the per-type limit.
	ErrAnswerTooLong = errors.New("answer text too long")
	// ErrSessionEnded is returned for operations on a terminated session.
	ErrSessionEnded = errors.New("session ended")
)
