package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quizroom/internal/domain"
	"quizroom/internal/events"
	"quizroom/internal/protocol"
	"quizroom/internal/scoring"
	"quizroom/internal/transport"
)

// Binder opens a listener on a room code.
type Binder interface {
	Listen(address string) (transport.Listener, error)
}

// RoomRegistry advertises where a room is hosted.
type RoomRegistry interface {
	Register(ctx context.Context, roomCode, hostURL string) error
	Release(ctx context.Context, roomCode string) error
}

// ResultsSink receives the session record once the session has ended.
type ResultsSink interface {
	SaveResults(ctx context.Context, results domain.SessionResults) error
}

// Ticker is the part of time.Ticker the host needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop() { s.t.Stop() }

// NewSystemTicker wraps time.NewTicker.
func NewSystemTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

// Event is anything the host loop handles.
type Event interface{ hostEvent() }

// ChannelOpened reports a newly accepted participant channel.
type ChannelOpened struct{ Channel transport.Channel }

// MessageReceived carries an envelope read from a participant channel.
type MessageReceived struct {
	ParticipantID string
	Envelope      protocol.Envelope
}

// ChannelClosed reports that a participant channel went away.
type ChannelClosed struct{ ParticipantID string }

// Tick is one second of the phase clock. Ticks from a replaced ticker carry an
// old generation and are ignored.
type Tick struct{ Generation uint64 }

// Command runs fn against the machine inside the host loop.
type Command struct {
	Name  string
	fn    func(*Machine) error
	reply chan error
}

func (ChannelOpened) hostEvent() {}
func (MessageReceived) hostEvent() {}
func (ChannelClosed) hostEvent() {}
func (Tick) hostEvent() {}
func (Command) hostEvent() {}

// Status is a point-in-time view of the session for the presenter.
type Status struct {
	RoomCode      string
	Phase         Phase
	QuestionIndex int
	QuestionCount int
	Question      domain.Question
	TimeLeft      int
	Countdown     int
	Participants  []domain.Participant
	Answers       int
	ResponseRate  int
	Summary       scoring.QuestionSummary
	Leaderboard   []domain.LeaderboardEntry
}

// Host owns a Machine and serializes transport events, ticks and presenter
// commands through one queue.
type Host struct {
	machine   *Machine
	binder    Binder
	listener  transport.Listener
	logger    *slog.Logger
	publisher events.Publisher
	registry  RoomRegistry
	hostURL   string
	sinks     []ResultsSink
	newTicker func(time.Duration) Ticker
	interval  time.Duration

	channels map[string]transport.Channel
	failed   []string

	queue chan Event
	ready chan struct{}
	ended chan struct{}
	done  chan struct{}

	ticker    Ticker
	tickStop  chan struct{}
	gen       uint64
	lastPhase Phase
	lastIndex int
	finished  bool
}

type hostConfig struct {
	machineOpts []Option
	logger      *slog.Logger
	publisher   events.Publisher
	registry    RoomRegistry
	hostURL     string
	sinks       []ResultsSink
	newTicker   func(time.Duration) Ticker
	interval    time.Duration
}

// HostOption customizes a Host.
type HostOption func(*hostConfig)

func WithMachineOptions(opts ...Option) HostOption {
	return func(c *hostConfig) { c.machineOpts = append(c.machineOpts, opts...) }
}

func WithLogger(logger *slog.Logger) HostOption {
	return func(c *hostConfig) { c.logger = logger }
}

func WithPublisher(p events.Publisher) HostOption {
	return func(c *hostConfig) { c.publisher = p }
}

// WithRegistry registers the room under hostURL while the host runs.
func WithRegistry(r RoomRegistry, hostURL string) HostOption {
	return func(c *hostConfig) {
		c.registry = r
		c.hostURL = hostURL
	}
}

// WithResultsSink adds a destination for the final session record.
func WithResultsSink(s ResultsSink) HostOption {
	return func(c *hostConfig) { c.sinks = append(c.sinks, s) }
}

// WithTicker replaces the clock source; interval is the length of one tick.
func WithTicker(newTicker func(time.Duration) Ticker, interval time.Duration) HostOption {
	return func(c *hostConfig) {
		c.newTicker = newTicker
		c.interval = interval
	}
}

// NewHost prepares a session for quiz. Nothing is bound until Run.
func NewHost(quiz domain.Quiz, binder Binder, opts ...HostOption) (*Host, error) {
	cfg := hostConfig{
		logger:    slog.Default(),
		publisher: events.Nop{},
		newTicker: NewSystemTicker,
		interval:  time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Host{
		binder:    binder,
		logger:    cfg.logger,
		publisher: cfg.publisher,
		registry:  cfg.registry,
		hostURL:   cfg.hostURL,
		sinks:     cfg.sinks,
		newTicker: cfg.newTicker,
		interval:  cfg.interval,
		channels:  make(map[string]transport.Channel),
		queue:     make(chan Event, 64),
		ready:     make(chan struct{}),
		ended:     make(chan struct{}),
		done:      make(chan struct{}),
		lastPhase: PhaseLobby,
	}
	m, err := NewMachine(quiz, OutboxFunc(h.deliver), cfg.machineOpts...)
	if err != nil {
		return nil, err
	}
	h.machine = m
	h.logger = h.logger.With("room", m.RoomCode())
	return h, nil
}

func (h *Host) RoomCode() string { return h.machine.RoomCode() }

// Ready is closed once the host is listening.
func (h *Host) Ready() <-chan struct{} { return h.ready }

// Ended is closed once the session reached ENDED and its resources were released.
func (h *Host) Ended() <-chan struct{} { return h.ended }

// Run listens on the room code and processes events until the session ends or
// ctx is cancelled. Cancelling aborts the session.
func (h *Host) Run(ctx context.Context) error {
	defer close(h.done)

	ln, err := h.binder.Listen(h.machine.RoomCode())
	if err != nil {
		return fmt.Errorf("listen on room %s: %w", h.machine.RoomCode(), err)
	}
	h.listener = ln
	if h.registry != nil {
		if err := h.registry.Register(ctx, h.machine.RoomCode(), h.hostURL); err != nil {
			ln.Close()
			return fmt.Errorf("register room %s: %w", h.machine.RoomCode(), err)
		}
	}
	go h.accept(ln)
	close(h.ready)
	h.logger.Info("session open", "questions", len(h.machine.quiz.Questions))

	for {
		select {
		case ev := <-h.queue:
			h.Handle(ev)
			if h.finished {
				return nil
			}
		case <-ctx.Done():
			if err := h.machine.Abort(); err == nil {
				h.afterEvent()
			}
			return ctx.Err()
		}
	}
}

func (h *Host) accept(ln transport.Listener) {
	for ch := range ln.Incoming() {
		select {
		case h.queue <- ChannelOpened{Channel: ch}:
		case <-h.done:
			ch.Close()
			return
		}
	}
}

func (h *Host) pump(ch transport.Channel) {
	id := ch.ID()
	for env := range ch.Inbound() {
		select {
		case h.queue <- MessageReceived{ParticipantID: id, Envelope: env}:
		case <-h.done:
			return
		}
	}
	select {
	case h.queue <- ChannelClosed{ParticipantID: id}:
	case <-h.done:
	}
}

// Handle applies one event. It must only be called from the goroutine running
// the host loop, or before Run when driving the host directly.
func (h *Host) Handle(ev Event) {
	if h.finished {
		if c, ok := ev.(Command); ok {
			c.reply <- domain.ErrSessionEnded
		}
		return
	}
	switch e := ev.(type) {
	case ChannelOpened:
		id := e.Channel.ID()
		h.channels[id] = e.Channel
		h.logger.Debug("channel opened", "participant", id)
		go h.pump(e.Channel)
	case MessageReceived:
		h.onMessage(e.ParticipantID, e.Envelope)
	case ChannelClosed:
		h.disconnect(e.ParticipantID)
	case Tick:
		if e.Generation != h.gen {
			return
		}
		if err := h.machine.Tick(); err != nil {
			h.logger.Warn("tick failed", "error", err)
		}
	case Command:
		err := e.fn(h.machine)
		if err != nil {
			h.logger.Debug("command rejected", "command", e.Name, "error", err)
		}
		e.reply <- err
	}
	h.afterEvent()
}

func (h *Host) onMessage(id string, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoin:
		var p protocol.JoinPayload
		if err := env.Decode(&p); err != nil {
			h.logger.Debug("bad join payload", "participant", id, "error", err)
			return
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return
		}
		if err := h.machine.Admit(domain.Participant{ID: id, Name: name, Avatar: p.Avatar}); err != nil {
			h.logger.Debug("admit rejected", "participant", id, "error", err)
			return
		}
		h.logger.Info("participant joined", "participant", id, "name", name)
		h.publish(events.EventParticipantIn, id)
	case protocol.TypeAnswer:
		var p protocol.AnswerPayload
		if err := env.Decode(&p); err != nil {
			h.logger.Debug("bad answer payload", "participant", id, "error", err)
			return
		}
		q, ok := h.machine.Question(p.QuestionID)
		if !ok {
			h.logger.Debug("answer for unknown question", "participant", id, "question", p.QuestionID)
			return
		}
		value, err := domain.DecodeAnswer(q.Type, p.Answer)
		if err == nil {
			_, err = h.machine.RecordAnswer(id, p.QuestionID, value)
		}
		if err != nil {
			h.logger.Debug("answer dropped", "participant", id, "question", p.QuestionID, "error", err)
		}
	default:
		h.logger.Debug("ignoring message", "participant", id, "type", env.Type)
	}
}

func (h *Host) disconnect(id string) {
	if ch, ok := h.channels[id]; ok {
		delete(h.channels, id)
		ch.Close()
	}
	if err := h.machine.Remove(id); err == nil {
		h.logger.Info("participant left", "participant", id)
		h.publish(events.EventParticipantOut, id)
	}
}

func (h *Host) deliver(participantID string, env protocol.Envelope) {
	ch, ok := h.channels[participantID]
	if !ok {
		return
	}
	if err := ch.Send(context.Background(), env); err != nil {
		h.logger.Warn("send failed", "participant", participantID, "type", env.Type, "error", err)
		h.failed = append(h.failed, participantID)
	}
}

func (h *Host) afterEvent() {
	for len(h.failed) > 0 {
		failed := h.failed
		h.failed = nil
		for _, id := range failed {
			h.disconnect(id)
		}
	}
	h.syncTimer()
	if h.machine.Phase() == PhaseEnded && !h.finished {
		h.shutdown()
	}
}

// syncTimer replaces the phase clock whenever the phase or question changes.
func (h *Host) syncTimer() {
	phase, index := h.machine.Phase(), h.machine.QuestionIndex()
	if phase == h.lastPhase && index == h.lastIndex {
		return
	}
	from := h.lastPhase
	h.lastPhase, h.lastIndex = phase, index

	h.stopTicker()
	h.gen++
	if phase == PhaseCountdown || phase == PhaseQuestionActive {
		h.startTicker(h.gen)
	}

	h.logger.Info("phase changed", "from", from, "to", phase, "question", index)
	switch phase {
	case PhaseQuestionResults:
		h.publish(events.EventResultsShown, "")
	case PhaseEnded:
	default:
		h.publish(events.EventPhaseChanged, "")
	}
}

func (h *Host) startTicker(gen uint64) {
	t := h.newTicker(h.interval)
	stop := make(chan struct{})
	h.ticker, h.tickStop = t, stop
	go func() {
		for {
			select {
			case <-t.C():
				select {
				case h.queue <- Tick{Generation: gen}:
				case <-stop:
					return
				case <-h.done:
					return
				}
			case <-stop:
				return
			case <-h.done:
				return
			}
		}
	}()
}

func (h *Host) stopTicker() {
	if h.ticker == nil {
		return
	}
	h.ticker.Stop()
	close(h.tickStop)
	h.ticker, h.tickStop = nil, nil
}

func (h *Host) shutdown() {
	h.finished = true
	h.stopTicker()
	for id, ch := range h.channels {
		ch.Close()
		delete(h.channels, id)
	}
	if h.listener != nil {
		h.listener.Close()
	}

	ctx := context.Background()
	if h.registry != nil {
		if err := h.registry.Release(ctx, h.machine.RoomCode()); err != nil {
			h.logger.Warn("release room failed", "error", err)
		}
	}
	results := h.machine.Results(time.Now().UTC())
	for _, sink := range h.sinks {
		if err := sink.SaveResults(ctx, results); err != nil {
			h.logger.Error("save results failed", "error", err)
		}
	}
	h.publish(events.EventSessionEnded, "")
	h.logger.Info("session ended", "participants", len(results.Session.Participants), "answers", len(results.Session.Answers))
	close(h.ended)
}

func (h *Host) publish(t events.EventType, participantID string) {
	ev := events.SessionEvent{
		Type:          t,
		RoomCode:      h.machine.RoomCode(),
		Phase:         string(h.machine.Phase()),
		QuestionIndex: h.machine.QuestionIndex(),
		QuestionID:    h.machine.CurrentQuestion().ID,
		ParticipantID: participantID,
		Participants:  len(h.machine.roster),
	}
	if err := h.publisher.Publish(context.Background(), ev); err != nil {
		h.logger.Warn("publish event failed", "event", t, "error", err)
	}
}

// do runs fn inside the host loop and waits for its result.
func (h *Host) do(ctx context.Context, name string, fn func(*Machine) error) error {
	cmd := Command{Name: name, fn: fn, reply: make(chan error, 1)}
	select {
	case h.queue <- cmd:
	case <-h.done:
		return domain.ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-h.done:
		// The loop may have answered just before exiting.
		select {
		case err := <-cmd.reply:
			return err
		default:
			return domain.ErrSessionEnded
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins the countdown. A negative value selects DefaultCountdown.
func (h *Host) Start(ctx context.Context, countdown int) error {
	return h.do(ctx, "start", func(m *Machine) error { return m.BeginCountdown(countdown) })
}

// Reveal shows the results of the active question.
func (h *Host) Reveal(ctx context.Context) error {
	return h.do(ctx, "reveal", (*Machine).RevealResults)
}

// Next moves to the next question or the final ranking.
func (h *Host) Next(ctx context.Context) error {
	return h.do(ctx, "next", (*Machine).Advance)
}

// Previous re-opens the previous question.
func (h *Host) Previous(ctx context.Context) error {
	return h.do(ctx, "previous", (*Machine).Retreat)
}

// Finish ends a session that is showing the final ranking.
func (h *Host) Finish(ctx context.Context) error {
	return h.do(ctx, "finish", (*Machine).Finish)
}

// Abort ends the session from any phase.
func (h *Host) Abort(ctx context.Context) error {
	return h.do(ctx, "abort", (*Machine).Abort)
}

// Status returns a snapshot of the session.
func (h *Host) Status(ctx context.Context) (Status, error) {
	var st Status
	err := h.do(ctx, "status", func(m *Machine) error {
		q := m.CurrentQuestion()
		left, _ := m.TimeLeft()
		summary := m.Summary()
		st = Status{
			RoomCode:      m.RoomCode(),
			Phase:         m.Phase(),
			QuestionIndex: m.QuestionIndex(),
			QuestionCount: len(m.quiz.Questions),
			Question:      q,
			TimeLeft:      left,
			Countdown:     m.Countdown(),
			Participants:  m.Roster(),
			Answers:       summary.Responses,
			ResponseRate:  scoring.ResponseRate(summary.Responses, len(m.roster)),
			Summary:       summary,
			Leaderboard:   m.Leaderboard(),
		}
		return nil
	})
	return st, err
}

// Results returns the exportable session record as of now.
func (h *Host) Results(ctx context.Context) (domain.SessionResults, error) {
	var res domain.SessionResults
	err := h.do(ctx, "results", func(m *Machine) error {
		res = m.Results(time.Now().UTC())
		return nil
	})
	return res, err
}

// IsProtocolError reports whether err is a rejected operation rather than a
// failure of the host itself.
func IsProtocolError(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidPhase,
		domain.ErrWrongQuestion,
		domain.ErrDuplicateAnswer,
		domain.ErrAnswerTypeMismatch,
		domain.ErrParticipantNotFound,
		domain.ErrSessionEnded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
