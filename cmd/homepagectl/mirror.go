package main

import (
	"context"
	"strings"
	"time"

	"github.com/agentworkforce/homepage/internal/contentsync"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMirrorCmd(opts *rootOptions) *cobra.Command {
	var (
		dir       string
		stateFile string
		sections  []string
		interval  time.Duration
		jitter    float64
		once      bool
	)
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Mirror sections into a local directory of JSON files",
		Long: `mirror keeps <dir>/<section>.json in step with the store.

Remote changes are pulled into files that have no local edit. Edited files
are validated and saved; a rejected edit is left in place until the file
changes again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := opts.session()
			if err != nil {
				return err
			}
			mirror, err := contentsync.NewMirror(session, contentsync.MirrorOptions{
				Dir:         strings.TrimSpace(dir),
				StateFile:   strings.TrimSpace(stateFile),
				Sections:    sections,
				Interval:    interval,
				Jitter:      jitter,
				SyncTimeout: opts.timeout,
			})
			if err != nil {
				return err
			}
			if once {
				ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
				defer cancel()
				if err := mirror.SyncOnce(ctx); err != nil {
					return err
				}
				opts.logger.Info("mirror sync cycle completed", zap.String("dir", dir))
				return nil
			}
			return mirror.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&dir, "dir", envOrDefault("HOMEPAGE_MIRROR_DIR", ""), "local mirror directory")
	cmd.Flags().StringVar(&stateFile, "state-file", envOrDefault("HOMEPAGE_MIRROR_STATE_FILE", ""), "state file path (defaults inside --dir)")
	cmd.Flags().StringSliceVar(&sections, "sections", nil, "sections to mirror (defaults to every single-document section)")
	cmd.Flags().DurationVar(&interval, "interval", durationEnv("HOMEPAGE_MIRROR_INTERVAL", contentsync.DefaultMirrorInterval), "sync interval")
	cmd.Flags().Float64Var(&jitter, "interval-jitter", floatEnv("HOMEPAGE_MIRROR_INTERVAL_JITTER", 0.2), "sync interval jitter ratio (0.0-1.0)")
	cmd.Flags().BoolVar(&once, "once", false, "run one sync cycle and exit")
	return cmd
}
