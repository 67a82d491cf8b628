package app_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"quizroom/internal/app"
	"quizroom/internal/domain"
	"quizroom/internal/protocol"
)

type sent struct {
	to  string
	env protocol.Envelope
}

type recorder struct {
	msgs []sent
}

func (r *recorder) Send(participantID string, env protocol.Envelope) {
	r.msgs = append(r.msgs, sent{to: participantID, env: env})
}

func (r *recorder) types() []protocol.MessageType {
	out := make([]protocol.MessageType, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.env.Type)
	}
	return out
}

func (r *recorder) last(t *testing.T, typ protocol.MessageType) protocol.Envelope {
	t.Helper()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].env.Type == typ {
			return r.msgs[i].env
		}
	}
	t.Fatalf("no %s message sent; got %v", typ, r.types())
	return protocol.Envelope{}
}

func (r *recorder) reset() { r.msgs = nil }

func intPtr(v int) *int { return &v }

func scenarioQuiz() domain.Quiz {
	return domain.Quiz{
		Title: "Scenario",
		Questions: []domain.Question{
			{ID: "q1", Type: domain.TypeSingleChoice, Prompt: "Pick", Options: []string{"a", "b", "c"}, CorrectAnswer: intPtr(2), TimeLimit: 20},
		},
	}
}

func threeQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		Title: "Three",
		Questions: []domain.Question{
			{ID: "q1", Type: domain.TypeSingleChoice, Options: []string{"a", "b"}, CorrectAnswer: intPtr(0), TimeLimit: 10},
			{ID: "q2", Type: domain.TypePhraseCloud, TimeLimit: 10},
			{ID: "q3", Type: domain.TypeRanking, Options: []string{"first", "second", "third", "fourth"}, TimeLimit: 10},
		},
	}
}

func newMachine(t *testing.T, quiz domain.Quiz, out app.Outbox) *app.Machine {
	t.Helper()
	m, err := app.NewMachine(quiz, out,
		app.WithRand(rand.New(rand.NewSource(7))),
		app.WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return m
}

func startedMachine(t *testing.T, quiz domain.Quiz, out app.Outbox, ids ...string) *app.Machine {
	t.Helper()
	m := newMachine(t, quiz, out)
	for _, id := range ids {
		if err := m.Admit(domain.Participant{ID: id, Name: "name-" + id}); err != nil {
			t.Fatalf("admit %s: %v", id, err)
		}
	}
	if err := m.BeginCountdown(0); err != nil {
		t.Fatalf("begin countdown: %v", err)
	}
	return m
}

func tickN(t *testing.T, m *app.Machine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := m.Tick(); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
}

func TestInitializeEntersLobbyWithRoomCode(t *testing.T) {
	m := newMachine(t, threeQuestionQuiz(), nil)
	if m.Phase() != app.PhaseLobby {
		t.Fatalf("expected LOBBY, got %s", m.Phase())
	}
	if code, err := domain.NormalizeRoomCode(m.RoomCode()); err != nil || code != m.RoomCode() {
		t.Fatalf("invalid room code %q: %v", m.RoomCode(), err)
	}
}

func TestInitializeRejectsEmptyQuiz(t *testing.T) {
	_, err := app.NewMachine(domain.Quiz{Title: "empty", Questions: []domain.Question{}}, nil)
	if !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected ErrInvalidQuiz, got %v", err)
	}
}

func TestAdvanceNTimesReachesFinalRanking(t *testing.T) {
	for n := 1; n <= 5; n++ {
		quiz := domain.Quiz{Title: "n"}
		for i := 0; i < n; i++ {
			quiz.Questions = append(quiz.Questions, domain.Question{ID: string(rune('a' + i)), Type: domain.TypeOpenText})
		}
		m := startedMachine(t, quiz, nil)
		for i := 0; i < n; i++ {
			if m.Phase() == app.PhaseFinalRanking {
				t.Fatalf("n=%d: reached final ranking after %d advances", n, i)
			}
			if err := m.Advance(); err != nil {
				t.Fatalf("n=%d advance %d: %v", n, i, err)
			}
		}
		if m.Phase() != app.PhaseFinalRanking {
			t.Fatalf("n=%d: expected FINAL_RANKING, got %s", n, m.Phase())
		}
		if m.QuestionIndex() != n-1 {
			t.Fatalf("n=%d: index %d exceeds last question", n, m.QuestionIndex())
		}
	}
}

func TestCountdownTicksIntoFirstQuestion(t *testing.T) {
	out := &recorder{}
	m := newMachine(t, scenarioQuiz(), out)
	_ = m.Admit(domain.Participant{ID: "p1", Name: "P1"})
	out.reset()

	if err := m.BeginCountdown(-1); err != nil {
		t.Fatalf("begin countdown: %v", err)
	}
	var starting protocol.QuizStartingPayload
	if err := out.last(t, protocol.TypeQuizStarting).Decode(&starting); err != nil || starting.CountdownSeconds != app.DefaultCountdown {
		t.Fatalf("unexpected QUIZ_STARTING %+v %v", starting, err)
	}

	tickN(t, m, app.DefaultCountdown-1)
	if m.Phase() != app.PhaseCountdown {
		t.Fatalf("expected COUNTDOWN, got %s", m.Phase())
	}
	tickN(t, m, 1)
	if m.Phase() != app.PhaseQuestionActive || m.QuestionIndex() != 0 {
		t.Fatalf("expected question 0 active, got %s/%d", m.Phase(), m.QuestionIndex())
	}
	var started protocol.QuizStartedPayload
	if err := out.last(t, protocol.TypeQuizStarted).Decode(&started); err != nil || started.TimeLeft != 20 {
		t.Fatalf("unexpected QUIZ_STARTED %+v %v", started, err)
	}
}

func TestTimerExpiryRevealsResults(t *testing.T) {
	out := &recorder{}
	m := startedMachine(t, scenarioQuiz(), out, "p1")

	tickN(t, m, 19)
	if left, ok := m.TimeLeft(); !ok || left != 1 {
		t.Fatalf("expected 1s left, got %d %v", left, ok)
	}
	tickN(t, m, 1)
	if m.Phase() != app.PhaseQuestionResults {
		t.Fatalf("expected QUESTION_RESULTS, got %s", m.Phase())
	}
	out.last(t, protocol.TypeShowResults)

	// further ticks are inert
	before := len(out.msgs)
	tickN(t, m, 5)
	if len(out.msgs) != before || m.Phase() != app.PhaseQuestionResults {
		t.Fatalf("tick after reveal changed state")
	}
}

func TestScenarioSingleChoiceLeaderboard(t *testing.T) {
	out := &recorder{}
	m := startedMachine(t, scenarioQuiz(), out, "p1", "p2")

	tickN(t, m, 5) // 15s left
	if _, err := m.RecordAnswer("p1", "q1", domain.IndexValue(2)); err != nil {
		t.Fatalf("record p1: %v", err)
	}
	if _, err := m.RecordAnswer("p2", "q1", domain.IndexValue(0)); err != nil {
		t.Fatalf("record p2: %v", err)
	}
	if err := m.RevealResults(); err != nil {
		t.Fatalf("reveal: %v", err)
	}

	var results protocol.ShowResultsPayload
	if err := out.last(t, protocol.TypeShowResults).Decode(&results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if results.QuestionID != "q1" {
		t.Fatalf("unexpected question %s", results.QuestionID)
	}
	if key, ok := results.CorrectAnswer.(float64); !ok || key != 2 {
		t.Fatalf("unexpected key %v", results.CorrectAnswer)
	}
	lb := results.Leaderboard
	if len(lb) != 2 || lb[0].ParticipantID != "p1" || lb[0].Score != 750 || lb[1].ParticipantID != "p2" || lb[1].Score != 0 {
		t.Fatalf("unexpected leaderboard %+v", lb)
	}
	if !lb[0].Correct || lb[1].Correct {
		t.Fatalf("unexpected verdicts %+v", lb)
	}
}

func TestDuplicateAnswerKeepsFirst(t *testing.T) {
	m := startedMachine(t, scenarioQuiz(), nil, "p1")

	if _, err := m.RecordAnswer("p1", "q1", domain.IndexValue(0)); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if _, err := m.RecordAnswer("p1", "q1", domain.IndexValue(2)); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	answers := m.Answers()
	if len(answers) != 1 || answers[0].Value.Index != 0 {
		t.Fatalf("expected first value retained, got %+v", answers)
	}
}

func TestRecordAnswerGating(t *testing.T) {
	m := newMachine(t, threeQuestionQuiz(), nil)
	_ = m.Admit(domain.Participant{ID: "p1"})

	if _, err := m.RecordAnswer("p1", "q1", domain.IndexValue(0)); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("lobby answer: expected ErrInvalidPhase, got %v", err)
	}
	_ = m.BeginCountdown(0)

	if _, err := m.RecordAnswer("p1", "q2", domain.TextValue("x")); !errors.Is(err, domain.ErrWrongQuestion) {
		t.Fatalf("expected ErrWrongQuestion, got %v", err)
	}
	if _, err := m.RecordAnswer("ghost", "q1", domain.IndexValue(0)); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	if _, err := m.RecordAnswer("p1", "q1", domain.TextValue("a")); !errors.Is(err, domain.ErrAnswerTypeMismatch) {
		t.Fatalf("expected ErrAnswerTypeMismatch, got %v", err)
	}

	_ = m.RevealResults()
	if _, err := m.RecordAnswer("p1", "q1", domain.IndexValue(0)); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("late answer: expected ErrInvalidPhase, got %v", err)
	}
	if len(m.Answers()) != 0 {
		t.Fatalf("rejected answers were recorded")
	}
}

func TestAnswerStampsTimeRemaining(t *testing.T) {
	m := startedMachine(t, scenarioQuiz(), nil, "p1")
	tickN(t, m, 3)
	a, err := m.RecordAnswer("p1", "q1", domain.IndexValue(2))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if a.TimeRemaining == nil || *a.TimeRemaining != 17 {
		t.Fatalf("expected 17s remaining, got %v", a.TimeRemaining)
	}
	if a.ParticipantName != "name-p1" || !a.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected answer stamp %+v", a)
	}
}

func TestUnrevealedAnswersDoNotCount(t *testing.T) {
	m := startedMachine(t, threeQuestionQuiz(), nil, "p1")
	if _, err := m.RecordAnswer("p1", "q1", domain.IndexValue(0)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if lb := m.Leaderboard(); lb[0].Score != 0 {
		t.Fatalf("score counted before reveal: %+v", lb)
	}
	_ = m.RevealResults()
	if lb := m.Leaderboard(); lb[0].Score != 1000 {
		t.Fatalf("expected 1000 after reveal, got %+v", lb)
	}
}

func TestRetreatKeepsAnswersAndRejectsReanswer(t *testing.T) {
	out := &recorder{}
	m := startedMachine(t, threeQuestionQuiz(), out, "p1")

	if _, err := m.RecordAnswer("p1", "q1", domain.IndexValue(1)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := m.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	tickN(t, m, 4)
	out.reset()

	if err := m.Retreat(); err != nil {
		t.Fatalf("retreat: %v", err)
	}
	if m.Phase() != app.PhaseQuestionActive || m.QuestionIndex() != 0 {
		t.Fatalf("expected question 0 active, got %s/%d", m.Phase(), m.QuestionIndex())
	}
	if left, _ := m.TimeLeft(); left != 10 {
		t.Fatalf("expected clock reset to 10, got %d", left)
	}
	var next protocol.NextQuestionPayload
	if err := out.last(t, protocol.TypeNextQuestion).Decode(&next); err != nil || next.QuestionIndex != 0 || next.TimeLeft != 10 {
		t.Fatalf("unexpected NEXT_QUESTION %+v %v", next, err)
	}
	if _, err := m.RecordAnswer("p1", "q1", domain.IndexValue(0)); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate rejection after retreat, got %v", err)
	}
	if len(m.Answers()) != 1 {
		t.Fatalf("retreat lost answers")
	}
}

func TestRetreatFromFirstQuestionFails(t *testing.T) {
	m := startedMachine(t, threeQuestionQuiz(), nil)
	if err := m.Retreat(); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
	if m.QuestionIndex() != 0 {
		t.Fatalf("index moved below zero")
	}
}

func TestAdmitSendsSnapshot(t *testing.T) {
	out := &recorder{}
	m := startedMachine(t, threeQuestionQuiz(), out, "p1")
	tickN(t, m, 2)
	out.reset()

	if err := m.Admit(domain.Participant{ID: "late", Name: "Late"}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if len(out.msgs) != 1 || out.msgs[0].to != "late" {
		t.Fatalf("expected one snapshot to the newcomer, got %+v", out.msgs)
	}
	var snap protocol.QuizDataPayload
	if err := out.msgs[0].env.Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !snap.HasStarted || snap.CurrentQuestionIndex != 0 || snap.TimeLeft == nil || *snap.TimeLeft != 8 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.ParticipantID != "late" || snap.Phase != string(app.PhaseQuestionActive) {
		t.Fatalf("unexpected snapshot identity %+v", snap)
	}
	if got, want := snap.Quiz.Questions[2].Options, m.Quiz().Questions[2].Options; len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("snapshot did not carry shuffled options: %v vs %v", got, want)
	}
}

func TestAdmitRejectedAfterEnd(t *testing.T) {
	m := newMachine(t, scenarioQuiz(), nil)
	_ = m.Abort()
	if err := m.Admit(domain.Participant{ID: "p"}); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestRemoveKeepsAnswersAndTimer(t *testing.T) {
	m := startedMachine(t, scenarioQuiz(), nil, "p1", "p2")
	tickN(t, m, 2)
	_, _ = m.RecordAnswer("p1", "q1", domain.IndexValue(2))

	if err := m.Remove("p1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if left, _ := m.TimeLeft(); left != 18 {
		t.Fatalf("remove touched the clock: %d", left)
	}
	if len(m.Roster()) != 1 || len(m.Answers()) != 1 {
		t.Fatalf("unexpected roster/answers after remove")
	}
	if err := m.Remove("p1"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected not found on second remove, got %v", err)
	}

	res := m.Results(time.Unix(0, 0))
	if len(res.Session.Participants) != 2 || res.Session.Participants[0].Connected {
		t.Fatalf("results should keep departed participants disconnected: %+v", res.Session.Participants)
	}
}

func TestFinishBroadcastsEnd(t *testing.T) {
	out := &recorder{}
	m := startedMachine(t, scenarioQuiz(), out, "p1")

	if err := m.Finish(); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("finish before ranking: expected ErrInvalidPhase, got %v", err)
	}
	_ = m.Advance()
	out.last(t, protocol.TypeShowRanking)
	if err := m.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if m.Phase() != app.PhaseEnded {
		t.Fatalf("expected ENDED, got %s", m.Phase())
	}
	out.last(t, protocol.TypeQuizEnded)
	if err := m.Advance(); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("ENDED must be terminal, got %v", err)
	}
}

func TestBeginCountdownOnlyFromLobby(t *testing.T) {
	m := startedMachine(t, scenarioQuiz(), nil)
	if err := m.BeginCountdown(3); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
}

func TestBroadcastReachesWholeRoster(t *testing.T) {
	out := &recorder{}
	m := newMachine(t, scenarioQuiz(), out)
	for _, id := range []string{"a", "b", "c"} {
		_ = m.Admit(domain.Participant{ID: id})
	}
	out.reset()
	_ = m.BeginCountdown(5)
	if len(out.msgs) != 3 {
		t.Fatalf("expected QUIZ_STARTING to 3 participants, got %d", len(out.msgs))
	}
}

func TestAdmitDuringCountdownCarriesRemainingSeconds(t *testing.T) {
	out := &recorder{}
	m := newMachine(t, scenarioQuiz(), out)
	if err := m.BeginCountdown(7); err != nil {
		t.Fatalf("begin countdown: %v", err)
	}
	tickN(t, m, 1)

	if err := m.Admit(domain.Participant{ID: "late", Name: "Late"}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	var snap protocol.QuizDataPayload
	if err := out.last(t, protocol.TypeQuizData).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Phase != string(app.PhaseCountdown) || snap.Countdown == nil || *snap.Countdown != 6 {
		t.Fatalf("expected COUNTDOWN with 6 seconds left, got %+v", snap)
	}
}

func TestAdmitDuringResultsResendsResults(t *testing.T) {
	out := &recorder{}
	m := startedMachine(t, scenarioQuiz(), out, "p1")
	tickN(t, m, 5)
	if _, err := m.RecordAnswer("p1", "q1", domain.IndexValue(2)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := m.RevealResults(); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	out.reset()

	if err := m.Admit(domain.Participant{ID: "late", Name: "Late"}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if got := out.types(); len(got) != 2 || got[0] != protocol.TypeQuizData || got[1] != protocol.TypeShowResults {
		t.Fatalf("expected snapshot then results, got %v", got)
	}
	for _, msg := range out.msgs {
		if msg.to != "late" {
			t.Fatalf("results resent to %q", msg.to)
		}
	}
	var res protocol.ShowResultsPayload
	if err := out.last(t, protocol.TypeShowResults).Decode(&res); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if res.QuestionID != "q1" || len(res.Leaderboard) != 2 || res.Leaderboard[0].Score != 750 {
		t.Fatalf("unexpected resent results %+v", res)
	}

	if err := m.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	out.reset()
	if err := m.Admit(domain.Participant{ID: "later", Name: "Later"}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if got := out.types(); len(got) != 2 || got[1] != protocol.TypeShowRanking {
		t.Fatalf("expected snapshot then ranking, got %v", got)
	}
}
