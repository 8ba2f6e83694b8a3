package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sxledger/internal/calendar"
	"sxledger/internal/core"
	"sxledger/internal/formula"
	"sxledger/internal/seed"
	"sxledger/internal/services"
	"sxledger/internal/sx"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Load accounts and schedules from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}
			res, err := seed.Apply(cmd.Context(), a.repo, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accounts: %d, schedules created: %d, updated: %d\n",
				res.Accounts, res.Created, res.Updated)
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print every schedule definition as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := a.repo.ListSchedules(cmd.Context(), false)
			if err != nil {
				return err
			}
			var f seed.File
			for _, s := range schedules {
				f.Schedules = append(f.Schedules, seed.FromSchedule(s))
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(f); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules with their next occurrence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := a.repo.ListSchedules(cmd.Context(), !all)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tAUTO\tLAST\tNEXT\tREMAINING")
			for _, s := range schedules {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\n",
					s.ID, s.Name, s.AutoCreate, dateOrDash(s.LastOccurrence), nextOf(s), remainingOf(s))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include disabled schedules")
	return cmd
}

func newNeededCmd(a *app) *cobra.Command {
	var until string
	cmd := &cobra.Command{
		Use:   "needed",
		Short: "Show variables that need a value before creating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			end, err := dateFlag(until, core.DateOf(time.Now()))
			if err != nil {
				return err
			}
			m, err := a.generate(cmd, end)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCHEDULE\tDATE\tVARIABLE")
			for _, n := range m.CheckVariables() {
				name := n.Instance.ScheduleID
				if g, ok := m.Group(n.Instance.ScheduleID); ok {
					name = g.Schedule.Name
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, n.Instance.Date, n.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "end of the window (YYYY-MM-DD, default today)")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create the due transactions of auto-create schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			today, err := dateFlag(date, core.DateOf(time.Now()))
			if err != nil {
				return err
			}
			p := services.NewRecurringProcessor(a.repo, a.repo, formula.NewEvaluator(), services.NewEventPublisher(nil))
			report, err := p.ProcessDue(cmd.Context(), today)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created %d transaction(s) from %d schedule(s)\n", len(report.Created), report.Schedules)
			for _, id := range report.Skipped {
				fmt.Fprintf(out, "held back %s: unresolved variables\n", id)
			}
			for _, e := range report.Errors {
				fmt.Fprintf(out, "error: %v\n", e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "processing date (YYYY-MM-DD, default today)")
	return cmd
}

func newICSCmd(a *app) *cobra.Command {
	var (
		days   int
		output string
	)
	cmd := &cobra.Command{
		Use:   "ics",
		Short: "Export pending and upcoming occurrences as iCalendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			today := core.DateOf(time.Now())
			m, err := a.generate(cmd, today)
			if err != nil {
				return err
			}
			schedules, err := a.repo.ListSchedules(cmd.Context(), true)
			if err != nil {
				return err
			}
			forecast, errs := calendar.Forecast(schedules, today, today.AddDays(days), 0)
			for _, e := range errs {
				a.logger.Warn("Skipping schedule", "error", e)
			}
			occ := calendar.Merge(calendar.FromGroups(m.Groups()), forecast)

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return calendar.Write(w, "Scheduled transactions", occ, time.Now())
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "days to forecast past today")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file")
	return cmd
}

func newCashflowCmd(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "cashflow",
		Short: "Project per-account totals over a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := dateFlag(from, core.DateOf(time.Now()))
			if err != nil {
				return err
			}
			end, err := dateFlag(to, start.AddDays(30))
			if err != nil {
				return err
			}
			schedules, err := a.repo.ListSchedules(cmd.Context(), true)
			if err != nil {
				return err
			}
			totals, errs := sx.Cashflow(cmd.Context(), formula.NewEvaluator(), schedules, start, end)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "ACCOUNT\tAMOUNT\t")
			for _, acct := range sortedKeys(totals) {
				fmt.Fprintf(tw, "%s\t%s\t\n", acct, totals[acct].StringFixed(2))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD, default from+30)")
	return cmd
}

func (a *app) generate(cmd *cobra.Command, end core.Date) (*sx.Model, error) {
	schedules, err := a.repo.ListSchedules(cmd.Context(), true)
	if err != nil {
		return nil, err
	}
	return sx.Generate(cmd.Context(), schedules, end, sx.WithLedger(a.repo))
}
