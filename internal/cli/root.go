package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ashgrove-sec/banbench/internal/config"
	"github.com/ashgrove-sec/banbench/internal/logging"
)

// options carries the configuration and logger resolved by the root
// command's PersistentPreRunE into every subcommand.
type options struct {
	configPath string
	logLevel   string
	logJSON    bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd creates the root banbench command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "banbench",
		Short: "Replay auth logs and score ban/unban decisions against ground truth",
		Long: `Banbench replays a captured SSH auth log into a live log pipeline at a
controllable speed, records the ban and unban actions an intrusion blocker
takes, and scores those actions against labeled ground truth.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.LogLevel = opts.logLevel
			}
			if cmd.Flags().Changed("log-json") {
				cfg.LogJSON = opts.logJSON
			}

			logger, err := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
			if err != nil {
				return err
			}

			opts.cfg = cfg
			opts.logger = logger.With(zap.String("session_id", uuid.NewString()))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file (default "+config.DefaultFile+" if present)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log verbosity: debug, info, warn, or error")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit diagnostics as JSON instead of console text")

	root.AddCommand(
		newReplayCmd(opts),
		newCollectCmd(opts),
		newLogActionCmd(opts),
		newGenerateCmd(),
	)

	return root
}
