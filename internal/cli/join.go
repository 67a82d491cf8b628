package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quizroom/internal/domain"
	"quizroom/internal/participant"
	"quizroom/internal/transport/ws"
)

type joinOptions struct {
	server string
	avatar string
}

func newJoinCmd(opts *globalOptions) *cobra.Command {
	jo := &joinOptions{}
	cmd := &cobra.Command{
		Use:   "join <room-code> <name>",
		Short: "Join a live session as a participant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, opts, jo, args[0], args[1])
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&jo.server, "server", "s", "", "base URL of the host; resolved through Redis when empty (env: QUIZROOM_SERVER)")
	fs.StringVar(&jo.avatar, "avatar", "", "avatar shown next to your name (env: QUIZROOM_AVATAR)")
	return cmd
}

func runJoin(cmd *cobra.Command, opts *globalOptions, jo *joinOptions, room, name string) error {
	ctx := cmd.Context()
	cfg, logger, err := opts.load(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	dialer := &ws.Dialer{BaseURL: jo.server, Logger: logger}
	if jo.server == "" {
		if cfg.Redis.Addr == "" {
			return errors.New("either --server or a redis address is required to find the room")
		}
		svc, err := openServices(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()
		dialer.Resolver = svc.registry()
	}

	client := participant.NewClient(dialer, participant.WithClientLogger(logger))
	if err := client.Join(ctx, room, name, jo.avatar); err != nil {
		return err
	}
	defer client.Leave()

	out := cmd.OutOrStdout()
	lines := readLines(cmd.InOrStdin())
	views := client.Views()
	var last participant.View
	for {
		select {
		case v, ok := <-views:
			if !ok {
				return nil
			}
			renderView(out, last, v)
			last = v
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if last.Phase != participant.PhaseAnswering || last.Question == nil {
				fmt.Fprintln(out, "No question is open.")
				continue
			}
			value, err := parseAnswer(*last.Question, line)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			if err := client.Submit(ctx, value); err != nil {
				fmt.Fprintf(out, "Answer not sent: %v\n", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// parseAnswer reads a typed answer. Options are numbered from 1.
func parseAnswer(q domain.Question, line string) (domain.AnswerValue, error) {
	line = strings.TrimSpace(line)
	switch q.Type.ExpectedKind() {
	case domain.KindIndex:
		idx, err := optionNumber(q, line)
		if err != nil {
			return domain.AnswerValue{}, err
		}
		return domain.IndexValue(idx), nil
	case domain.KindIndices:
		parts := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' })
		indices := make([]int, 0, len(parts))
		for _, p := range parts {
			idx, err := optionNumber(q, p)
			if err != nil {
				return domain.AnswerValue{}, err
			}
			indices = append(indices, idx)
		}
		if len(indices) == 0 {
			return domain.AnswerValue{}, errors.New("enter option numbers separated by commas")
		}
		if q.Type == domain.TypeRanking && len(indices) != len(q.Options) {
			return domain.AnswerValue{}, fmt.Errorf("rank all %d options", len(q.Options))
		}
		return domain.IndicesValue(indices...), nil
	case domain.KindNumber:
		n, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return domain.AnswerValue{}, fmt.Errorf("%q is not a number", line)
		}
		return domain.NumberValue(n), nil
	}
	return domain.TextValue(line), nil
}

func optionNumber(q domain.Question, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > len(q.Options) {
		return 0, fmt.Errorf("choose an option between 1 and %d", len(q.Options))
	}
	return n - 1, nil
}

// renderView prints what changed between two views.
func renderView(w io.Writer, prev, v participant.View) {
	if v.Phase == prev.Phase && v.QuestionIndex == prev.QuestionIndex {
		if v.Phase == participant.PhaseCountdown && v.Countdown != prev.Countdown && v.Countdown > 0 {
			fmt.Fprintf(w, "%d...\n", v.Countdown)
		}
		return
	}
	switch v.Phase {
	case participant.PhaseLobby:
		fmt.Fprintf(w, "Joined %q in room %s as %s. Waiting for the host...\n", v.QuizTitle, v.RoomCode, v.Name)
	case participant.PhaseCountdown:
		fmt.Fprintf(w, "Starting in %d...\n", v.Countdown)
	case participant.PhaseAnswering:
		printQuestion(w, v)
	case participant.PhaseLocked:
		if v.LockReason == participant.LockTimeUp {
			fmt.Fprintln(w, "Time is up, waiting for the host.")
		} else {
			fmt.Fprintln(w, "Answer sent, waiting for the host.")
		}
	case participant.PhaseResults:
		if v.Result == nil {
			fmt.Fprintln(w, "Results are in. You did not answer.")
			return
		}
		verdict := "Wrong"
		if v.Result.Correct {
			verdict = "Correct"
		}
		fmt.Fprintf(w, "%s! +%d points, total %d, rank %d\n", verdict, v.Result.PointsEarned, v.Result.Score, v.Result.Rank)
	case participant.PhaseFinalRanking:
		fmt.Fprintln(w, "Final ranking:")
		for i, e := range v.Leaderboard {
			marker := " "
			if e.ParticipantID == v.ParticipantID {
				marker = "*"
			}
			fmt.Fprintf(w, "%s%2d. %-30s %6d\n", marker, i+1, e.Name, e.Score)
		}
	case participant.PhaseEnded:
		fmt.Fprintln(w, "The session has ended.")
	case participant.PhaseDisconnected:
		fmt.Fprintln(w, "Connection to the host was lost.")
	}
}

func printQuestion(w io.Writer, v participant.View) {
	q := v.Question
	if q == nil {
		return
	}
	fmt.Fprintf(w, "\nQuestion %d/%d (%ds): %s\n", v.QuestionIndex+1, v.QuestionCount, v.TimeLeft, q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(w, "  %d) %s\n", i+1, opt)
	}
	switch q.Type {
	case domain.TypeSingleChoice:
		fmt.Fprintln(w, "Type the option number.")
	case domain.TypeMultiSelect:
		fmt.Fprintln(w, "Type all correct option numbers, e.g. 1,3.")
	case domain.TypeRanking:
		fmt.Fprintln(w, "Type the option numbers in order, e.g. 2,1,3.")
	case domain.TypeScale:
		lo, hi := q.ScaleBounds()
		fmt.Fprintf(w, "Type a number from %g to %g.\n", lo, hi)
	default:
		fmt.Fprintf(w, "Type your answer (up to %d characters).\n", q.Type.MaxTextLength())
	}
}

