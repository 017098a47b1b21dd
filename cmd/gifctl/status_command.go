package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gifpipe/internal/models"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the ledger status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			l, release, err := ctx.openLedger(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer release()

			st, err := l.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st))
			return nil
		},
	}
}

func renderStatus(st models.Status) string {
	pairs := [][2]string{
		{"Task", st.TaskID},
		{"State", string(st.State)},
		{"Status", st.Status},
		{"Artifact", st.ArtifactKey},
		{"Preview", st.PreviewKey},
	}
	if st.Width > 0 {
		pairs = append(pairs, [2]string{"Size", strconv.Itoa(st.Width) + "x" + strconv.Itoa(st.Height)})
	}
	pairs = append(pairs, [2]string{"Error", st.Error})
	if !st.UpdatedAt.IsZero() {
		pairs = append(pairs, [2]string{"Updated", st.UpdatedAt.Local().Format(stampLayout)})
	}
	return keyValueTable(pairs)
}
