package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"quizroom/internal/domain"
	pgstore "quizroom/internal/infra/postgres"
	"quizroom/internal/results"
)

func newValidateCmd(opts *globalOptions) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "validate <quiz-file>...",
		Short: "Check quiz files, optionally saving them to the Postgres library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var loader *pgstore.QuizLoader
			if save {
				cfg, logger, err := opts.load(cmd, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				if cfg.Postgres.URL == "" {
					return errors.New("--save needs postgres.url in the config")
				}
				svc, err := openServices(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer svc.Close()
				loader = pgstore.NewQuizLoader(svc.pool)
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				quiz, err := readQuizFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "ok   %s: %q, %d questions\n", path, quiz.Title, len(quiz.Questions))
				if loader == nil {
					continue
				}
				if quiz.ID == "" {
					quiz.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				}
				if err := loader.SaveQuiz(cmd.Context(), quiz); err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "     saved as %s\n", quiz.ID)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "store valid quizzes in Postgres, keyed by file name")
	return cmd
}

func readQuizFile(path string) (domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Quiz{}, err
	}
	return domain.ParseQuiz(path, data)
}

func newTemplateCmd() *cobra.Command {
	var (
		format string
		sample string
	)
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print a quiz file to start from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			quiz := templateQuiz()
			switch sample {
			case "", "template":
			case "grammar":
				quiz = grammarSample()
			default:
				return fmt.Errorf("unknown sample %q (template, grammar)", sample)
			}
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(quiz)
			case "yaml", "yml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(quiz); err != nil {
					return err
				}
				return enc.Close()
			}
			return fmt.Errorf("unknown format %q (json, yaml)", format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or yaml")
	cmd.Flags().StringVar(&sample, "sample", "", "template or grammar")
	return cmd
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <results.json>",
		Short: "Convert a results file into an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			res, err := results.ReadJSON(in)
			if err != nil {
				return err
			}
			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".xlsx"
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := results.WriteXLSX(f, res); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "workbook path (default: input name with .xlsx)")
	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List sessions archived in Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return errors.New("postgres url not configured")
			}
			db := openBun(cfg.Postgres.URL)
			defer db.Close()

			rows, err := pgstore.NewResultsArchive(db).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROOM\tQUIZ\tPARTICIPANTS\tCOMPLETED")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.RoomCode, r.Title, r.Players, r.CompletedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to list")
	return cmd
}
