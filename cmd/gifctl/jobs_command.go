package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"gifpipe/internal/models"
	"gifpipe/internal/repositories"
)

const stampLayout = "2006-01-02 15:04:05"

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var (
		state string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("DATABASE_URL is not set; job history is disabled")
			}

			pool, err := pgxpool.New(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			jobs, err := repositories.NewJobRepository(pool).List(cmd.Context(), repositories.ListFilter{
				State: models.State(strings.ToUpper(state)),
				Limit: limit,
			})
			if err != nil {
				return err
			}
			printJobs(cmd.OutOrStdout(), jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Only jobs in this state (PENDING, RUNNING, SUCCESS, FAILURE)")
	cmd.Flags().IntVarP(&limit, "limit", "n", repositories.DefaultListLimit, "Maximum number of jobs")
	return cmd
}

func printJobs(out io.Writer, jobs []models.JobRecord) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs.")
		return
	}
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		size := ""
		if j.Width > 0 {
			size = strconv.Itoa(j.Width) + "x" + strconv.Itoa(j.Height)
		}
		rows = append(rows, []string{
			j.ID,
			string(j.State),
			j.SourceName,
			size,
			strconv.Itoa(j.Attempts),
			j.CreatedAt.Local().Format(stampLayout),
			models.Truncate(j.Error, 48),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "State", "Source", "Size", "Attempts", "Created", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))
}
