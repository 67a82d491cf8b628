package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"quizroom/internal/config"
	"quizroom/internal/logging"
)

// Version is set at build time.
var Version = "dev"

type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "quizroom",
		Short:         "Host and join live quiz sessions over WebSocket",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindEnv(cmd.Flags())
		},
	}

	fs := cmd.PersistentFlags()
	fs.StringVarP(&opts.configPath, "config", "c", "config/config.yaml", "path to YAML config (env: QUIZROOM_CONFIG)")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (env: QUIZROOM_LOG_LEVEL)")
	fs.StringVar(&opts.logFormat, "log-format", "", "text or json (env: QUIZROOM_LOG_FORMAT)")

	cmd.AddCommand(
		newHostCmd(opts),
		newJoinCmd(opts),
		newMigrateCmd(opts),
		newValidateCmd(opts),
		newTemplateCmd(),
		newExportCmd(),
		newHistoryCmd(opts),
	)
	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetVersionTemplate("quizroom {{.Version}}\n")
	return cmd
}

// bindEnv fills every flag the user did not set from QUIZROOM_<FLAG_NAME>.
func bindEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix("QUIZROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if serr := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); serr != nil && err == nil {
				err = fmt.Errorf("env for --%s: %w", f.Name, serr)
			}
		}
	})
	return err
}

// load reads the config file and builds the logger. The default config path
// may be absent; an explicit one must exist.
func (o *globalOptions) load(cmd *cobra.Command, logOut io.Writer) (config.Config, *slog.Logger, error) {
	optional := !cmd.Flags().Changed("config")
	cfg, err := config.Load(o.configPath, optional)
	if err != nil {
		return cfg, nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	logger, err := logging.New(logOut, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return cfg, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
