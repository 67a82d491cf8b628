package participant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quizroom/internal/app"
	"quizroom/internal/domain"
	"quizroom/internal/protocol"
	"quizroom/internal/transport"
)

// Client runs a Mirror over a transport channel in its own goroutine and
// publishes a View after every change.
type Client struct {
	dialer    transport.Dialer
	logger    *slog.Logger
	newTicker func(time.Duration) app.Ticker
	interval  time.Duration

	mirror  *Mirror
	channel transport.Channel
	cmds    chan func()
	views   chan View
	done    chan struct{}
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithClientTicker replaces the local clock source.
func WithClientTicker(newTicker func(time.Duration) app.Ticker, interval time.Duration) ClientOption {
	return func(c *Client) {
		c.newTicker = newTicker
		c.interval = interval
	}
}

func NewClient(dialer transport.Dialer, opts ...ClientOption) *Client {
	c := &Client{
		dialer:    dialer,
		logger:    slog.Default(),
		newTicker: app.NewSystemTicker,
		interval:  time.Second,
		mirror:    NewMirror(),
		cmds:      make(chan func()),
		views:     make(chan View, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Join validates the identity and room code, dials the room and sends JOIN.
// Nothing is dialed when validation fails.
func (c *Client) Join(ctx context.Context, roomCode, name, avatar string) error {
	if err := c.mirror.SetIdentity(name, avatar); err != nil {
		return err
	}
	join, err := c.mirror.Connect(roomCode)
	if err != nil {
		return err
	}
	ch, err := c.dialer.Dial(ctx, c.mirror.RoomCode())
	if err != nil {
		c.mirror.ConnectionLost()
		return fmt.Errorf("dial room %s: %w", c.mirror.RoomCode(), err)
	}
	if err := ch.Send(ctx, join); err != nil {
		ch.Close()
		c.mirror.ConnectionLost()
		return fmt.Errorf("send join: %w", err)
	}
	c.channel = ch
	c.logger = c.logger.With("room", c.mirror.RoomCode())
	c.publish()
	go c.run()
	return nil
}

// Views yields the latest View after each change. Intermediate views may be
// skipped by a slow reader. The channel is closed when the client stops.
func (c *Client) Views() <-chan View { return c.views }

// Done is closed once the client stopped following the session.
func (c *Client) Done() <-chan struct{} { return c.done }

// Wait returns the first published view that satisfies pred.
func (c *Client) Wait(ctx context.Context, pred func(View) bool) (View, error) {
	for {
		select {
		case v, ok := <-c.views:
			if !ok {
				return View{}, domain.ErrSessionEnded
			}
			if pred(v) {
				return v, nil
			}
		case <-ctx.Done():
			return View{}, ctx.Err()
		}
	}
}

// Submit sends an answer for the open question.
func (c *Client) Submit(ctx context.Context, value domain.AnswerValue) error {
	var err error
	if cerr := c.call(ctx, func() {
		var env protocol.Envelope
		env, err = c.mirror.SubmitAnswer(value)
		if err != nil {
			return
		}
		if serr := c.channel.Send(ctx, env); serr != nil {
			err = fmt.Errorf("send answer: %w", serr)
			return
		}
		c.publish()
	}); cerr != nil {
		return cerr
	}
	return err
}

// Snapshot returns the current view.
func (c *Client) Snapshot(ctx context.Context) (View, error) {
	var v View
	err := c.call(ctx, func() { v = c.mirror.View() })
	return v, err
}

// Leave closes the channel; the client stops once the close is observed.
func (c *Client) Leave() error {
	if c.channel == nil {
		return nil
	}
	return c.channel.Close()
}

func (c *Client) call(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(reply) }:
	case <-c.done:
		return domain.ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}
	<-reply
	return nil
}

func (c *Client) run() {
	defer close(c.done)
	defer close(c.views)

	var (
		ticker    app.Ticker
		tickC     <-chan time.Time
		lastClock clockKind
		lastIndex = -1
	)
	resetClock := func() {
		kind, index := clockFor(c.mirror.Phase()), c.mirror.QuestionIndex()
		if kind == lastClock && index == lastIndex {
			return
		}
		lastClock, lastIndex = kind, index
		if ticker != nil {
			ticker.Stop()
			ticker, tickC = nil, nil
		}
		if kind != clockNone {
			ticker = c.newTicker(c.interval)
			tickC = ticker.C()
		}
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	inbound := c.channel.Inbound()
	for {
		select {
		case env, ok := <-inbound:
			if !ok {
				if c.mirror.ConnectionLost() {
					c.logger.Warn("connection to host lost")
				}
				c.publish()
				return
			}
			if c.mirror.Handle(env) {
				resetClock()
				c.publish()
			}
			if c.mirror.Phase() == PhaseEnded {
				c.channel.Close()
			}
		case <-tickC:
			if c.mirror.Tick() {
				c.publish()
			}
		case fn := <-c.cmds:
			fn()
			resetClock()
		}
	}
}

type clockKind uint8

const (
	clockNone clockKind = iota
	clockCountdown
	clockQuestion
)

// clockFor groups phases that share one local countdown; a submitted answer
// keeps the question clock running.
func clockFor(p Phase) clockKind {
	switch p {
	case PhaseCountdown:
		return clockCountdown
	case PhaseAnswering, PhaseLocked:
		return clockQuestion
	}
	return clockNone
}

// publish replaces any unread view with the current one.
func (c *Client) publish() {
	v := c.mirror.View()
	select {
	case c.views <- v:
		return
	default:
	}
	select {
	case <-c.views:
	default:
	}
	select {
	case c.views <- v:
	default:
	}
}
