package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ashgrove-sec/banbench/internal/actionlog"
	"github.com/ashgrove-sec/banbench/internal/config"
)

func newLogActionCmd(opts *options) *cobra.Command {
	defaults := config.Default().Hook

	var (
		logFile string
		action  string
		ip      string
		jail    string
		reason  string
		matchTS string
		logLine string
		extra   string
	)

	cmd := &cobra.Command{
		Use:   "log-action",
		Short: "Record one ban or unban action",
		Long: `Appends a single timestamped action to the JSON-lines action log. The
blocker's ban and unban hooks invoke this command, so it does the minimum:
one line, flushed, no reads.`,
		Example: `  banbench log-action --action ban --ip 203.0.113.7 --jail ssh-proxmox
  banbench log-action --action unban --ip 203.0.113.7 --jail ssh-proxmox --reason bantime-expired`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg.Hook
			if cmd.Flags().Changed("log-file") {
				cfg.LogFile = logFile
			}

			kind := actionlog.Kind(strings.ToLower(action))
			if kind != actionlog.KindBan && kind != actionlog.KindUnban {
				return fmt.Errorf("--action must be ban or unban, got %q", action)
			}

			event := actionlog.Event{
				Timestamp: time.Now().UTC(),
				Kind:      kind,
				IP:        ip,
				Jail:      jail,
				Reason:    reason,
				MatchTS:   matchTS,
				LogLine:   logLine,
				Extra:     extra,
			}
			if err := actionlog.Append(cfg.LogFile, event); err != nil {
				return err
			}

			opts.logger.Debug("action recorded",
				zap.String("action", string(kind)),
				zap.String("ip", ip),
				zap.String("jail", jail),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", defaults.LogFile, "JSON-lines action log to append to")
	cmd.Flags().StringVar(&action, "action", "", "ban or unban (required)")
	cmd.Flags().StringVar(&ip, "ip", "", "address the action applies to (required)")
	cmd.Flags().StringVar(&jail, "jail", "", "jail that triggered the action (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "matched rule or expiry that caused the action")
	cmd.Flags().StringVar(&matchTS, "match-ts", "", "timestamp of the log line that matched")
	cmd.Flags().StringVar(&logLine, "log-line", "", "raw log line that matched")
	cmd.Flags().StringVar(&extra, "extra", "", "free-form annotation")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("ip")
	_ = cmd.MarkFlagRequired("jail")

	return cmd
}
