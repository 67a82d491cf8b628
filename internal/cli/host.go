package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"quizroom/internal/app"
	"quizroom/internal/domain"
	"quizroom/internal/events"
	pgstore "quizroom/internal/infra/postgres"
	"quizroom/internal/results"
	"quizroom/internal/transport/ws"
)

type hostOptions struct {
	port       string
	publicURL  string
	countdown  int
	resultsDir string
	xlsx       bool
	room       string
}

func newHostCmd(opts *globalOptions) *cobra.Command {
	ho := &hostOptions{}
	cmd := &cobra.Command{
		Use:   "host <quiz-file-or-id>",
		Short: "Host a live session for a quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd, opts, ho, args[0])
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&ho.port, "port", "p", "", "port to listen on (env: QUIZROOM_PORT)")
	fs.StringVar(&ho.publicURL, "public-url", "", "base URL participants use to reach this host (env: QUIZROOM_PUBLIC_URL)")
	fs.IntVar(&ho.countdown, "countdown", -1, "seconds before the first question (env: QUIZROOM_COUNTDOWN)")
	fs.StringVar(&ho.resultsDir, "results-dir", "", "directory for results files (env: QUIZROOM_RESULTS_DIR)")
	fs.BoolVar(&ho.xlsx, "xlsx", false, "also write results as XLSX (env: QUIZROOM_XLSX)")
	fs.StringVar(&ho.room, "room", "", "use this room code instead of a random one")
	return cmd
}

func runHost(cmd *cobra.Command, opts *globalOptions, ho *hostOptions, quizRef string) error {
	ctx := cmd.Context()
	cfg, logger, err := opts.load(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if ho.port == "" {
		ho.port = cfg.Server.Port
	}
	if ho.publicURL == "" {
		ho.publicURL = cfg.Server.PublicURL
	}
	if ho.publicURL == "" {
		ho.publicURL = "http://localhost:" + ho.port
	}
	if ho.countdown < 0 {
		ho.countdown = cfg.Session.Countdown
	}
	if ho.resultsDir == "" {
		ho.resultsDir = cfg.Session.ResultsDir
	}
	ho.xlsx = ho.xlsx || cfg.Session.XLSX

	svc, err := openServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	quiz, err := svc.loadQuiz(ctx, quizRef)
	if err != nil {
		return err
	}

	publisher, err := events.NewPublisher(events.PublisherConfig{
		KafkaBrokers: cfg.Events.KafkaBrokers,
		TopicName:    cfg.Events.Topic,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer publisher.Close()

	server := ws.NewServer(ws.Options{PublicURL: ho.publicURL, Version: Version, Logger: logger})
	serveErr := make(chan error, 1)
	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	go func() { serveErr <- server.Serve(serveCtx, ":"+ho.port) }()

	sink := &results.FileSink{Dir: ho.resultsDir, XLSX: ho.xlsx, Logger: logger}
	hostOpts := []app.HostOption{
		app.WithLogger(logger),
		app.WithPublisher(publisher),
		app.WithRegistry(svc.registry(), ho.publicURL),
		app.WithResultsSink(sink),
	}
	if svc.db != nil {
		hostOpts = append(hostOpts, app.WithResultsSink(pgstore.NewResultsArchive(svc.db)))
	}
	if ho.room != "" {
		code, err := domain.NormalizeRoomCode(ho.room)
		if err != nil {
			return err
		}
		hostOpts = append(hostOpts, app.WithMachineOptions(app.WithRoomCode(code)))
	}

	host, err := app.NewHost(quiz, server, hostOpts...)
	if err != nil {
		return err
	}
	runErr := make(chan error, 1)
	go func() { runErr <- host.Run(ctx) }()

	select {
	case <-host.Ready():
	case err := <-runErr:
		return err
	case err := <-serveErr:
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Hosting %q (%d questions)\n", quiz.Title, len(quiz.Questions))
	fmt.Fprintf(out, "Room code: %s\n", host.RoomCode())
	fmt.Fprintf(out, "Join:      %s/join/%s\n", ho.publicURL, host.RoomCode())
	fmt.Fprintf(out, "QR code:   %s/rooms/%s/qr\n", ho.publicURL, host.RoomCode())
	fmt.Fprintln(out, `Type "help" for commands.`)

	console := &hostConsole{host: host, out: out, countdown: ho.countdown, sink: sink, logger: logger}
	lines := readLines(cmd.InOrStdin())
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// stdin closed: keep serving until the session ends.
				lines = nil
				continue
			}
			if quit := console.exec(ctx, line); quit {
				_ = host.Abort(ctx)
			}
		case <-host.Ended():
			fmt.Fprintln(out, "Session ended.")
			err := <-runErr
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case err := <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				_ = host.Abort(context.Background())
				return err
			}
		}
	}
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// hostConsole maps typed commands onto Host operations.
type hostConsole struct {
	host      *app.Host
	out       io.Writer
	countdown int
	sink      *results.FileSink
	logger    *slog.Logger
}

const hostHelp = `Commands:
  start        begin the countdown to the first question
  reveal       show the results of the current question
  next         advance (reveals first if the question is still open)
  prev         re-open the previous question
  status       show phase, timer, answers and standings
  export       write the results collected so far
  end          finish the session (aborts if not on the final ranking)
  quit         abort the session`

// exec runs one command line and reports whether the user asked to quit.
func (c *hostConsole) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false
	}
	var err error
	switch fields[0] {
	case "help", "?":
		fmt.Fprintln(c.out, hostHelp)
	case "start":
		err = c.host.Start(ctx, c.countdown)
	case "reveal":
		if err = c.host.Reveal(ctx); err == nil {
			var st app.Status
			if st, err = c.host.Status(ctx); err == nil {
				printSummary(c.out, st)
			}
		}
	case "next", "n":
		err = c.host.Next(ctx)
	case "prev", "previous", "p":
		err = c.host.Previous(ctx)
	case "status", "s":
		var st app.Status
		if st, err = c.host.Status(ctx); err == nil {
			printStatus(c.out, st)
		}
	case "export":
		var res domain.SessionResults
		if res, err = c.host.Results(ctx); err == nil {
			var paths []string
			if paths, err = c.sink.Write(res); err == nil {
				fmt.Fprintf(c.out, "Wrote %s\n", strings.Join(paths, ", "))
			}
		}
	case "end", "finish":
		err = c.host.Finish(ctx)
		if errors.Is(err, domain.ErrInvalidPhase) {
			err = c.host.Abort(ctx)
		}
	case "quit", "exit", "abort":
		return true
	default:
		fmt.Fprintf(c.out, "unknown command %q, type help\n", fields[0])
		return false
	}
	if err != nil {
		if app.IsProtocolError(err) {
			fmt.Fprintf(c.out, "%s: %v\n", fields[0], err)
		} else {
			c.logger.Error("command failed", "command", fields[0], "error", err)
		}
	}
	return false
}

func printStatus(w io.Writer, st app.Status) {
	fmt.Fprintf(w, "Room %s  phase %s", st.RoomCode, st.Phase)
	switch st.Phase {
	case app.PhaseCountdown:
		fmt.Fprintf(w, "  starting in %ds", st.Countdown)
	case app.PhaseQuestionActive:
		fmt.Fprintf(w, "  %ds left", st.TimeLeft)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Question %d/%d: %s\n", st.QuestionIndex+1, st.QuestionCount, st.Question.Prompt)
	printSummary(w, st)
	fmt.Fprintf(w, "Participants: %d\n", len(st.Participants))
	for i, e := range st.Leaderboard {
		fmt.Fprintf(w, "  %2d. %-30s %6d\n", i+1, e.Name, e.Score)
	}
}

// printSummary shows the answers to the current question the way the
// question type is read: votes, an average, a ranking or the texts.
func printSummary(w io.Writer, st app.Status) {
	s, q := st.Summary, st.Question
	fmt.Fprintf(w, "Answers: %d (%d%% of participants)\n", s.Responses, st.ResponseRate)
	switch {
	case s.OptionCounts != nil:
		for i, n := range s.OptionCounts {
			fmt.Fprintf(w, "  %d) %-30s %4d\n", i+1, q.Options[i], n)
		}
	case s.Ranking != nil:
		for i, r := range s.Ranking {
			fmt.Fprintf(w, "  %2d. %-30s %4d points\n", i+1, q.Options[r.Option], r.Points)
		}
	case s.Scale != nil:
		if s.Responses > 0 {
			fmt.Fprintf(w, "  average %.1f on %g..%g (lowest %g, highest %g)\n",
				s.Scale.Mean, s.Scale.Min, s.Scale.Max, s.Scale.Lowest, s.Scale.Highest)
		}
	case s.Words != nil:
		for _, wc := range s.Words {
			fmt.Fprintf(w, "  %-30s x%d\n", wc.Text, wc.Count)
		}
	default:
		for _, t := range s.Texts {
			fmt.Fprintf(w, "  %s: %s\n", t.ParticipantName, t.Text)
		}
	}
}
