package app

import (
	"fmt"
	"math/rand"
	"slices"
	"time"

	"quizroom/internal/domain"
	"quizroom/internal/protocol"
	"quizroom/internal/scoring"
)

// Phase is a step of the host session.
type Phase string

const (
	PhaseLobby           Phase = "LOBBY"
	PhaseCountdown       Phase = "COUNTDOWN"
	PhaseQuestionActive  Phase = "QUESTION_ACTIVE"
	PhaseQuestionResults Phase = "QUESTION_RESULTS"
	PhaseFinalRanking    Phase = "FINAL_RANKING"
	PhaseEnded           Phase = "ENDED"
)

// DefaultCountdown is the lobby-to-first-question countdown in seconds.
const DefaultCountdown = 7

// Outbox delivers envelopes to a single participant. Delivery failures are the
// outbox's problem; the machine never waits on a participant.
type Outbox interface {
	Send(participantID string, env protocol.Envelope)
}

// OutboxFunc adapts a function to Outbox.
type OutboxFunc func(participantID string, env protocol.Envelope)

func (f OutboxFunc) Send(participantID string, env protocol.Envelope) { f(participantID, env) }

type answerKey struct {
	participantID string
	questionID    string
}

// Machine is the authoritative session state. It is not safe for concurrent use;
// Host serializes every call through its event loop.
type Machine struct {
	quiz       domain.Quiz
	roomCode   string
	phase      Phase
	index      int
	timeLeft   int
	countdown  int
	hasStarted bool

	roster   []domain.Participant
	everyone []domain.Participant
	answers  []domain.Answer
	answered map[answerKey]struct{}
	revealed map[string]bool

	out Outbox
	now func() time.Time
}

type machineConfig struct {
	rnd      *rand.Rand
	now      func() time.Time
	roomCode string
}

// Option customizes a Machine.
type Option func(*machineConfig)

// WithRand fixes the source used for the ranking shuffle.
func WithRand(rnd *rand.Rand) Option {
	return func(c *machineConfig) { c.rnd = rnd }
}

// WithClock sets the timestamp source for recorded answers.
func WithClock(now func() time.Time) Option {
	return func(c *machineConfig) { c.now = now }
}

// WithRoomCode overrides the generated room code.
func WithRoomCode(code string) Option {
	return func(c *machineConfig) { c.roomCode = code }
}

// NewMachine initializes a session for quiz: the quiz is validated, normalized and
// its ranking questions shuffled once, a room code is generated and the session
// enters LOBBY.
func NewMachine(quiz domain.Quiz, out Outbox, opts ...Option) (*Machine, error) {
	if err := domain.ValidateQuiz(quiz); err != nil {
		return nil, err
	}
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz has no questions", domain.ErrInvalidQuiz)
	}
	cfg := machineConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rnd == nil {
		cfg.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.roomCode == "" {
		cfg.roomCode = domain.NewRoomCode()
	}
	if out == nil {
		out = OutboxFunc(func(string, protocol.Envelope) {})
	}
	return &Machine{
		quiz:     PrepareQuiz(quiz, cfg.rnd),
		roomCode: cfg.roomCode,
		phase:    PhaseLobby,
		answered: make(map[answerKey]struct{}),
		revealed: make(map[string]bool),
		out:      out,
		now:      cfg.now,
	}, nil
}

func (m *Machine) RoomCode() string { return m.roomCode }
func (m *Machine) Phase() Phase { return m.phase }
func (m *Machine) QuestionIndex() int { return m.index }
func (m *Machine) Countdown() int { return m.countdown }

// Quiz returns the session copy of the quiz, with ranking options shuffled.
func (m *Machine) Quiz() domain.Quiz { return m.quiz.Clone() }

// TimeLeft returns the remaining seconds while a question is active.
func (m *Machine) TimeLeft() (int, bool) {
	if m.phase != PhaseQuestionActive {
		return 0, false
	}
	return m.timeLeft, true
}

// CurrentQuestion returns the question at the current index.
func (m *Machine) CurrentQuestion() domain.Question { return m.quiz.Questions[m.index] }

// Question looks up a question by id.
func (m *Machine) Question(id string) (domain.Question, bool) {
	for _, q := range m.quiz.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}

// Roster returns connected participants in join order.
func (m *Machine) Roster() []domain.Participant { return slices.Clone(m.roster) }

// Answers returns the answer log in arrival order.
func (m *Machine) Answers() []domain.Answer { return slices.Clone(m.answers) }

// Summary aggregates the answers to the current question.
func (m *Machine) Summary() scoring.QuestionSummary {
	return scoring.Summarize(m.CurrentQuestion(), m.answers)
}

// Leaderboard ranks the roster on revealed questions; PointsEarned refers to the
// current question.
func (m *Machine) Leaderboard() []domain.LeaderboardEntry {
	return scoring.Leaderboard(m.quiz, m.roster, m.answers, m.revealed, m.CurrentQuestion().ID)
}

// Results assembles the exportable record of the session.
func (m *Machine) Results(completedAt time.Time) domain.SessionResults {
	return domain.SessionResults{
		Quiz: m.Quiz(),
		Session: domain.SessionRecord{
			RoomCode:     m.roomCode,
			Participants: slices.Clone(m.everyone),
			Answers:      m.Answers(),
			CompletedAt:  completedAt,
		},
	}
}

// Admit adds a participant to the roster and sends them a full-state snapshot.
// Admitting a known id refreshes its profile and resends the snapshot. While
// results or the final ranking are on screen they are resent after the snapshot.
func (m *Machine) Admit(p domain.Participant) error {
	if m.phase == PhaseEnded {
		return domain.ErrSessionEnded
	}
	p.Connected = true
	if i := m.rosterIndex(p.ID); i >= 0 {
		m.roster[i] = p
	} else {
		m.roster = append(m.roster, p)
	}
	if i := slices.IndexFunc(m.everyone, func(e domain.Participant) bool { return e.ID == p.ID }); i >= 0 {
		m.everyone[i] = p
	} else {
		m.everyone = append(m.everyone, p)
	}

	snapshot := protocol.QuizDataPayload{
		Quiz:                 m.quiz,
		CurrentQuestionIndex: m.index,
		HasStarted:           m.hasStarted,
		ParticipantID:        p.ID,
		Phase:                string(m.phase),
	}
	if left, ok := m.TimeLeft(); ok {
		snapshot.TimeLeft = &left
	}
	if m.phase == PhaseCountdown {
		countdown := m.countdown
		snapshot.Countdown = &countdown
	}
	if err := m.send(p.ID, protocol.TypeQuizData, snapshot); err != nil {
		return err
	}

	switch m.phase {
	case PhaseQuestionResults:
		return m.send(p.ID, protocol.TypeShowResults, m.resultsPayload())
	case PhaseFinalRanking:
		return m.send(p.ID, protocol.TypeShowRanking, protocol.ShowRankingPayload{Leaderboard: m.Leaderboard()})
	}
	return nil
}

// Remove drops a participant from the roster. Recorded answers are kept.
func (m *Machine) Remove(participantID string) error {
	i := m.rosterIndex(participantID)
	if i < 0 {
		return domain.ErrParticipantNotFound
	}
	m.roster = slices.Delete(m.roster, i, i+1)
	for j := range m.everyone {
		if m.everyone[j].ID == participantID {
			m.everyone[j].Connected = false
		}
	}
	return nil
}

// BeginCountdown moves LOBBY to COUNTDOWN. A negative value selects the default;
// zero starts the first question immediately.
func (m *Machine) BeginCountdown(seconds int) error {
	if m.phase != PhaseLobby {
		return fmt.Errorf("begin countdown in %s: %w", m.phase, domain.ErrInvalidPhase)
	}
	if seconds < 0 {
		seconds = DefaultCountdown
	}
	m.phase = PhaseCountdown
	m.countdown = seconds
	if err := m.broadcast(protocol.TypeQuizStarting, protocol.QuizStartingPayload{CountdownSeconds: seconds}); err != nil {
		return err
	}
	if seconds == 0 {
		return m.startFirstQuestion()
	}
	return nil
}

// Tick advances the clock of the current phase by one second. The countdown
// starts question 0 when it expires; an active question reveals its results.
func (m *Machine) Tick() error {
	switch m.phase {
	case PhaseCountdown:
		m.countdown--
		if m.countdown <= 0 {
			m.countdown = 0
			return m.startFirstQuestion()
		}
	case PhaseQuestionActive:
		m.timeLeft--
		if m.timeLeft <= 0 {
			m.timeLeft = 0
			return m.RevealResults()
		}
	}
	return nil
}

// RevealResults closes the active question and broadcasts its key and the leaderboard.
func (m *Machine) RevealResults() error {
	if m.phase != PhaseQuestionActive {
		return fmt.Errorf("reveal results in %s: %w", m.phase, domain.ErrInvalidPhase)
	}
	m.phase = PhaseQuestionResults
	m.timeLeft = 0
	m.revealed[m.CurrentQuestion().ID] = true
	return m.broadcast(protocol.TypeShowResults, m.resultsPayload())
}

func (m *Machine) resultsPayload() protocol.ShowResultsPayload {
	q := m.CurrentQuestion()
	return protocol.ShowResultsPayload{
		QuestionID:    q.ID,
		CorrectAnswer: scoring.CorrectAnswer(q),
		Leaderboard:   m.Leaderboard(),
	}
}

// Advance moves past the current question: to the next one, or to the final
// ranking after the last. From an active question the results are revealed first.
// LOBBY and COUNTDOWN are rejected, so a session reaches FINAL_RANKING after one
// Advance per question counted from BeginCountdown(0).
func (m *Machine) Advance() error {
	switch m.phase {
	case PhaseQuestionActive:
		if err := m.RevealResults(); err != nil {
			return err
		}
	case PhaseQuestionResults:
	default:
		return fmt.Errorf("advance in %s: %w", m.phase, domain.ErrInvalidPhase)
	}

	if m.index+1 >= len(m.quiz.Questions) {
		m.phase = PhaseFinalRanking
		return m.broadcast(protocol.TypeShowRanking, protocol.ShowRankingPayload{Leaderboard: m.Leaderboard()})
	}
	m.index++
	m.enterQuestion()
	return m.broadcast(protocol.TypeNextQuestion, protocol.NextQuestionPayload{QuestionIndex: m.index, TimeLeft: m.timeLeft})
}

// Retreat re-opens the previous question with a fresh clock. Answers already
// recorded for it stay, so those participants cannot answer again.
func (m *Machine) Retreat() error {
	if m.phase != PhaseQuestionActive && m.phase != PhaseQuestionResults {
		return fmt.Errorf("retreat in %s: %w", m.phase, domain.ErrInvalidPhase)
	}
	if m.index == 0 {
		return fmt.Errorf("retreat from first question: %w", domain.ErrInvalidPhase)
	}
	m.index--
	m.enterQuestion()
	return m.broadcast(protocol.TypeNextQuestion, protocol.NextQuestionPayload{QuestionIndex: m.index, TimeLeft: m.timeLeft})
}

// Finish ends a session that reached the final ranking.
func (m *Machine) Finish() error {
	if m.phase != PhaseFinalRanking {
		return fmt.Errorf("finish in %s: %w", m.phase, domain.ErrInvalidPhase)
	}
	return m.end()
}

// Abort ends the session from any phase.
func (m *Machine) Abort() error {
	if m.phase == PhaseEnded {
		return domain.ErrSessionEnded
	}
	return m.end()
}

// RecordAnswer accepts one answer per participant per question, only for the
// active question and only before its results are revealed.
func (m *Machine) RecordAnswer(participantID, questionID string, value domain.AnswerValue) (domain.Answer, error) {
	if m.phase != PhaseQuestionActive {
		return domain.Answer{}, fmt.Errorf("answer in %s: %w", m.phase, domain.ErrInvalidPhase)
	}
	q := m.CurrentQuestion()
	if q.ID != questionID {
		return domain.Answer{}, fmt.Errorf("answer for %q while %q is active: %w", questionID, q.ID, domain.ErrWrongQuestion)
	}
	i := m.rosterIndex(participantID)
	if i < 0 {
		return domain.Answer{}, domain.ErrParticipantNotFound
	}
	if value.Kind != q.Type.ExpectedKind() {
		return domain.Answer{}, domain.ErrAnswerTypeMismatch
	}
	key := answerKey{participantID: participantID, questionID: questionID}
	if _, dup := m.answered[key]; dup {
		return domain.Answer{}, domain.ErrDuplicateAnswer
	}

	remaining := m.timeLeft
	answer := domain.Answer{
		ParticipantID:   participantID,
		ParticipantName: m.roster[i].Name,
		QuestionID:      questionID,
		Value:           value,
		Timestamp:       m.now(),
		TimeRemaining:   &remaining,
	}
	m.answered[key] = struct{}{}
	m.answers = append(m.answers, answer)
	return answer, nil
}

func (m *Machine) end() error {
	m.phase = PhaseEnded
	m.countdown = 0
	m.timeLeft = 0
	return m.broadcast(protocol.TypeQuizEnded, nil)
}

func (m *Machine) startFirstQuestion() error {
	m.index = 0
	m.hasStarted = true
	m.enterQuestion()
	return m.broadcast(protocol.TypeQuizStarted, protocol.QuizStartedPayload{TimeLeft: m.timeLeft})
}

func (m *Machine) enterQuestion() {
	m.phase = PhaseQuestionActive
	m.timeLeft = m.CurrentQuestion().Limit()
}

func (m *Machine) rosterIndex(id string) int {
	return slices.IndexFunc(m.roster, func(p domain.Participant) bool { return p.ID == id })
}

func (m *Machine) send(participantID string, t protocol.MessageType, payload any) error {
	env, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	m.out.Send(participantID, env)
	return nil
}

func (m *Machine) broadcast(t protocol.MessageType, payload any) error {
	env, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	for _, p := range m.roster {
		m.out.Send(p.ID, env)
	}
	return nil
}
