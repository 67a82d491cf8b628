// Package participant follows a hosted session from one participant's side. The
// Mirror is driven by host broadcasts and never decides outcomes on its own.
package participant

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"quizroom/internal/domain"
	"quizroom/internal/protocol"
)

// Phase is the participant's local view of the session.
type Phase string

const (
	PhaseAwaitingName Phase = "AWAITING_NAME"
	PhaseConnecting   Phase = "CONNECTING"
	PhaseLobby        Phase = "LOBBY"
	PhaseCountdown    Phase = "COUNTDOWN"
	PhaseAnswering    Phase = "ANSWERING"
	PhaseLocked       Phase = "LOCKED"
	PhaseResults      Phase = "RESULTS"
	PhaseFinalRanking Phase = "FINAL_RANKING"
	PhaseEnded        Phase = "ENDED"
	PhaseDisconnected Phase = "DISCONNECTED"
)

// LockReason says why answering is closed while the host has not revealed yet.
type LockReason string

const (
	LockSubmitted LockReason = "submitted"
	LockTimeUp    LockReason = "time-up, awaiting host"
)

// Result is the host's verdict for this participant on the last revealed question.
type Result struct {
	QuestionID    string
	CorrectAnswer any
	Correct       bool
	PointsEarned  int
	Score         int
	Rank          int
}

// Mirror is the follower state machine. It is not safe for concurrent use.
type Mirror struct {
	phase         Phase
	name          string
	avatar        string
	roomCode      string
	participantID string

	quiz       domain.Quiz
	index      int
	hasStarted bool
	countdown  int
	timeLeft   int
	lockReason LockReason

	submitted   map[string]domain.AnswerValue
	result      *Result
	leaderboard []domain.LeaderboardEntry
}

func NewMirror() *Mirror {
	return &Mirror{phase: PhaseAwaitingName, submitted: make(map[string]domain.AnswerValue)}
}

func (m *Mirror) Phase() Phase { return m.phase }
func (m *Mirror) RoomCode() string { return m.roomCode }
func (m *Mirror) ParticipantID() string { return m.participantID }
func (m *Mirror) QuestionIndex() int { return m.index }
func (m *Mirror) TimeLeft() int { return m.timeLeft }
func (m *Mirror) Countdown() int { return m.countdown }
func (m *Mirror) LockReason() LockReason { return m.lockReason }

// Result returns the verdict of the last SHOW_RESULTS, if any.
func (m *Mirror) Result() (Result, bool) {
	if m.result == nil {
		return Result{}, false
	}
	return *m.result, true
}

// CurrentQuestion returns the question the host has open, once the quiz is known.
func (m *Mirror) CurrentQuestion() (domain.Question, bool) {
	if m.index < 0 || m.index >= len(m.quiz.Questions) {
		return domain.Question{}, false
	}
	return m.quiz.Questions[m.index], true
}

// SetIdentity records the display name and avatar used to join.
func (m *Mirror) SetIdentity(name, avatar string) error {
	if m.phase != PhaseAwaitingName {
		return fmt.Errorf("set identity in %s: %w", m.phase, domain.ErrInvalidPhase)
	}
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > domain.MaxNameLength {
		return domain.ErrInvalidName
	}
	m.name = name
	m.avatar = strings.TrimSpace(avatar)
	return nil
}

// Connect validates roomCode and returns the JOIN envelope to send once the
// channel is open. An invalid code leaves the mirror untouched.
func (m *Mirror) Connect(roomCode string) (protocol.Envelope, error) {
	if m.phase != PhaseAwaitingName {
		return protocol.Envelope{}, fmt.Errorf("connect in %s: %w", m.phase, domain.ErrInvalidPhase)
	}
	if m.name == "" {
		return protocol.Envelope{}, domain.ErrInvalidName
	}
	code, err := domain.NormalizeRoomCode(roomCode)
	if err != nil {
		return protocol.Envelope{}, err
	}
	env, err := protocol.Encode(protocol.TypeJoin, protocol.JoinPayload{Name: m.name, Avatar: m.avatar})
	if err != nil {
		return protocol.Envelope{}, err
	}
	m.roomCode = code
	m.phase = PhaseConnecting
	return env, nil
}

// Handle applies one host message and reports whether local state changed.
// Malformed and unknown messages are ignored.
func (m *Mirror) Handle(env protocol.Envelope) bool {
	switch m.phase {
	case PhaseAwaitingName, PhaseEnded, PhaseDisconnected:
		return false
	}

	switch env.Type {
	case protocol.TypeQuizData:
		var p protocol.QuizDataPayload
		if env.Decode(&p) != nil {
			return false
		}
		m.applySnapshot(p)
	case protocol.TypeQuizStarting:
		var p protocol.QuizStartingPayload
		if env.Decode(&p) != nil {
			return false
		}
		m.phase = PhaseCountdown
		m.countdown = p.CountdownSeconds
	case protocol.TypeQuizStarted:
		var p protocol.QuizStartedPayload
		if env.Decode(&p) != nil {
			return false
		}
		m.hasStarted = true
		m.countdown = 0
		m.enterQuestion(0, p.TimeLeft)
	case protocol.TypeNextQuestion:
		var p protocol.NextQuestionPayload
		if env.Decode(&p) != nil || p.QuestionIndex < 0 || p.QuestionIndex >= len(m.quiz.Questions) {
			return false
		}
		m.enterQuestion(p.QuestionIndex, p.TimeLeft)
	case protocol.TypeShowResults:
		var p protocol.ShowResultsPayload
		if env.Decode(&p) != nil {
			return false
		}
		m.phase = PhaseResults
		m.timeLeft = 0
		m.lockReason = ""
		m.leaderboard = p.Leaderboard
		m.result = m.verdict(p)
	case protocol.TypeShowRanking:
		var p protocol.ShowRankingPayload
		_ = env.Decode(&p)
		if len(p.Leaderboard) > 0 {
			m.leaderboard = p.Leaderboard
		}
		m.phase = PhaseFinalRanking
		m.timeLeft = 0
		m.lockReason = ""
	case protocol.TypeQuizEnded:
		m.phase = PhaseEnded
		m.timeLeft = 0
		m.countdown = 0
	default:
		return false
	}
	return true
}

func (m *Mirror) applySnapshot(p protocol.QuizDataPayload) {
	m.quiz = p.Quiz
	m.participantID = p.ParticipantID
	m.hasStarted = p.HasStarted
	m.index = p.CurrentQuestionIndex
	left := 0
	if p.TimeLeft != nil {
		left = *p.TimeLeft
	}

	switch p.Phase {
	case "COUNTDOWN":
		m.phase = PhaseCountdown
		if p.Countdown != nil {
			m.countdown = *p.Countdown
		}
	case "QUESTION_ACTIVE":
		m.enterQuestion(p.CurrentQuestionIndex, left)
	case "QUESTION_RESULTS":
		m.phase = PhaseResults
	case "FINAL_RANKING":
		m.phase = PhaseFinalRanking
	case "ENDED":
		m.phase = PhaseEnded
	case "LOBBY":
		m.phase = PhaseLobby
	default:
		switch {
		case p.HasStarted && p.TimeLeft != nil:
			m.enterQuestion(p.CurrentQuestionIndex, left)
		case p.HasStarted:
			m.phase = PhaseResults
		default:
			m.phase = PhaseLobby
		}
	}
}

func (m *Mirror) enterQuestion(index, timeLeft int) {
	m.index = index
	m.timeLeft = timeLeft
	m.result = nil
	m.lockReason = ""
	m.phase = PhaseAnswering
	if q, ok := m.CurrentQuestion(); ok {
		if _, done := m.submitted[q.ID]; done {
			m.phase = PhaseLocked
			m.lockReason = LockSubmitted
		}
	}
	if m.phase == PhaseAnswering && m.timeLeft <= 0 {
		m.phase = PhaseLocked
		m.lockReason = LockTimeUp
	}
}

func (m *Mirror) verdict(p protocol.ShowResultsPayload) *Result {
	r := &Result{QuestionID: p.QuestionID, CorrectAnswer: p.CorrectAnswer}
	for i, e := range p.Leaderboard {
		if e.ParticipantID == m.participantID {
			r.Correct = e.Correct
			r.PointsEarned = e.PointsEarned
			r.Score = e.Score
			r.Rank = i + 1
			break
		}
	}
	return r
}

// SubmitAnswer returns the ANSWER envelope for the open question and locks the
// mirror. It fails without side effects when answering is closed, the question
// was already answered, or the value does not fit the question.
func (m *Mirror) SubmitAnswer(value domain.AnswerValue) (protocol.Envelope, error) {
	if m.phase != PhaseAnswering || m.timeLeft <= 0 {
		return protocol.Envelope{}, fmt.Errorf("submit in %s: %w", m.phase, domain.ErrInvalidPhase)
	}
	q, ok := m.CurrentQuestion()
	if !ok {
		return protocol.Envelope{}, domain.ErrQuestionNotFound
	}
	if _, done := m.submitted[q.ID]; done {
		return protocol.Envelope{}, domain.ErrDuplicateAnswer
	}
	if q.Type == domain.TypeScale && value.Kind == domain.KindIndex {
		value = domain.NumberValue(float64(value.Index))
	}
	if value.Kind != q.Type.ExpectedKind() {
		return protocol.Envelope{}, domain.ErrAnswerTypeMismatch
	}
	if value.Kind == domain.KindText {
		value.Text = strings.TrimSpace(value.Text)
		if value.Text == "" {
			return protocol.Envelope{}, domain.ErrAnswerTypeMismatch
		}
		if utf8.RuneCountInString(value.Text) > q.Type.MaxTextLength() {
			return protocol.Envelope{}, domain.ErrAnswerTooLong
		}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return protocol.Envelope{}, err
	}
	env, err := protocol.Encode(protocol.TypeAnswer, protocol.AnswerPayload{
		Name:       m.name,
		QuestionID: q.ID,
		Answer:     raw,
	})
	if err != nil {
		return protocol.Envelope{}, err
	}
	m.submitted[q.ID] = value
	m.phase = PhaseLocked
	m.lockReason = LockSubmitted
	return env, nil
}

// Tick runs the advisory local clock for one second and reports whether state
// changed. Reaching zero while answering locks the mirror until the host reveals.
func (m *Mirror) Tick() bool {
	switch m.phase {
	case PhaseCountdown:
		if m.countdown > 0 {
			m.countdown--
			return true
		}
	case PhaseAnswering:
		if m.timeLeft > 0 {
			m.timeLeft--
		}
		if m.timeLeft == 0 {
			m.phase = PhaseLocked
			m.lockReason = LockTimeUp
		}
		return true
	case PhaseLocked:
		if m.timeLeft > 0 {
			m.timeLeft--
			return true
		}
	}
	return false
}

// ConnectionLost marks the channel as gone. A session that already ended stays
// ENDED; otherwise the mirror stops reacting to anything.
func (m *Mirror) ConnectionLost() bool {
	if m.phase == PhaseEnded || m.phase == PhaseDisconnected {
		return false
	}
	m.phase = PhaseDisconnected
	return true
}

// View is an immutable snapshot for rendering.
type View struct {
	Phase         Phase
	Name          string
	Avatar        string
	RoomCode      string
	ParticipantID string
	QuizTitle     string
	QuestionIndex int
	QuestionCount int
	Question      *domain.Question
	TimeLeft      int
	Countdown     int
	LockReason    LockReason
	Submitted     *domain.AnswerValue
	Result        *Result
	Leaderboard   []domain.LeaderboardEntry
}

func (m *Mirror) View() View {
	v := View{
		Phase:         m.phase,
		Name:          m.name,
		Avatar:        m.avatar,
		RoomCode:      m.roomCode,
		ParticipantID: m.participantID,
		QuizTitle:     m.quiz.Title,
		QuestionIndex: m.index,
		QuestionCount: len(m.quiz.Questions),
		TimeLeft:      m.timeLeft,
		Countdown:     m.countdown,
		LockReason:    m.lockReason,
		Leaderboard:   append([]domain.LeaderboardEntry(nil), m.leaderboard...),
	}
	if q, ok := m.CurrentQuestion(); ok && m.hasStarted {
		v.Question = &q
		if a, done := m.submitted[q.ID]; done {
			v.Submitted = &a
		}
	}
	if m.result != nil {
		r := *m.result
		v.Result = &r
	}
	return v
}
