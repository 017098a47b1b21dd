package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gifpipe/internal/ledger"
	"gifpipe/internal/storage"
	"gifpipe/internal/sweeper"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention pass over the blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			sp, err := storage.NewProvider(cmd.Context(), cfg.Storage, cfg.HTTP.PublicBaseURL, nil)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			if cl, ok := sp.(io.Closer); ok {
				defer cl.Close()
			}

			var hooks []sweeper.Hook
			if cfg.Ledger.Backend == "pebble" {
				l, err := ledger.OpenPebble(cfg.Ledger.Path, cfg.Ledger.TTL)
				if err != nil {
					return fmt.Errorf("open ledger: %w", err)
				}
				defer l.Close()
				hooks = append(hooks, sweeper.Hook{Name: "ledger", Run: l.Purge})
			}

			if ttl <= 0 {
				ttl = cfg.Retention.TTL
			}
			sw := sweeper.New(sp, sweeper.Config{
				TTL:      ttl,
				LockFile: cfg.Retention.LockFile,
			}, ctx.logger(), hooks...)

			rep, err := sw.RunOnce(cmd.Context())
			out := cmd.OutOrStdout()
			if rep.Skipped {
				fmt.Fprintln(out, "Another sweep holds the lock; nothing done.")
				return nil
			}
			fmt.Fprintln(out, renderReport(sp.Provider(), ttl, rep))
			return err
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Override RETENTION_TTL for this pass")
	return cmd
}

func renderReport(provider string, ttl time.Duration, rep sweeper.Report) string {
	pairs := [][2]string{
		{"Provider", provider},
		{"TTL", ttl.String()},
		{"Scanned", strconv.Itoa(rep.Scanned)},
		{"Deleted", strconv.Itoa(rep.Deleted)},
		{"Kept", strconv.Itoa(rep.Kept)},
		{"Failed", strconv.Itoa(rep.Failed)},
	}
	names := make([]string, 0, len(rep.Purged))
	for name := range rep.Purged {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pairs = append(pairs, [2]string{"Purged " + name, strconv.Itoa(rep.Purged[name])})
	}
	pairs = append(pairs, [2]string{"Duration", rep.Duration.Round(time.Millisecond).String()})
	return keyValueTable(pairs)
}
