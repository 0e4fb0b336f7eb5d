package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/hatch/internal/client"
	"github.com/okian/hatch/internal/domain/model"
)

const defaultURL = "http://localhost:9080"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globals struct {
	url     string
	timeout time.Duration
}

func (g *globals) client() (*client.Client, error) {
	return client.New(g.url, client.WithTimeout(g.timeout))
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "hatchctl",
		Short:         "Control a hatch progression server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	url := os.Getenv("HATCH_URL")
	if url == "" {
		url = defaultURL
	}
	root.PersistentFlags().StringVar(&g.url, "url", url, "server base URL (env HATCH_URL)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(newTalentsCmd(g))
	root.AddCommand(newStartCmd(g))
	root.AddCommand(newStopCmd(g))
	root.AddCommand(newStatusCmd(g))
	root.AddCommand(newSessionsCmd(g))
	root.AddCommand(newEvaluateCmd(g))
	return root
}

func newTalentsCmd(g *globals) *cobra.Command {
	talents := &cobra.Command{Use: "talents", Short: "Manage talents"}

	talents.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List talents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			list, err := c.ListTalents(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no talents")
				return nil
			}
			printTalents(cmd, list)
			return nil
		},
	})

	var target float64
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a talent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			t, err := c.CreateTalent(cmd.Context(), args[0], target)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created talent %d %q target=%gh\n", t.ID, t.Name, t.ProgressTarget)
			return nil
		},
	}
	add.Flags().Float64Var(&target, "target", 0, "hours to fill one level (server default when 0)")

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a talent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			if err := c.DeleteTalent(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted talent %d\n", id)
			return nil
		},
	}

	talents.AddCommand(add, rm)
	return talents
}

func newStartCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "start <talent-id>",
		Short: "Start practicing a talent; any running session is saved and stopped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			pair, err := c.StartSession(cmd.Context(), id)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session %d started for %q at %s\n",
				pair.Session.ID, pair.Talent.Name, pair.Session.Start.Format(time.RFC3339))
			return nil
		},
	}
}

func newStopCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			s, err := c.StopSession(cmd.Context())
			if client.IsCode(err, "inactive_incubation") {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "nothing is incubating")
				return nil
			}
			if err != nil {
				return err
			}
			d, _ := s.Duration()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session %d stopped after %s, progress +%.4f\n",
				s.ID, d.Round(time.Second), s.ProgressObtained)
			return nil
		},
	}
}

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			pair, err := c.Incubation(cmd.Context())
			if err != nil {
				return err
			}
			if pair == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "idle")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "incubating %q: progress %.4f/level, %s this session, %s total\n",
				pair.Talent.Name,
				pair.Talent.Progress,
				time.Duration(pair.Session.ProgressObtained*pair.Talent.ProgressTarget*float64(time.Hour)).Round(time.Second),
				(time.Duration(pair.Talent.TotalSeconds) * time.Second).Round(time.Second),
			)
			return nil
		},
	}
}

func newSessionsCmd(g *globals) *cobra.Command {
	var talent int64 = -1
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			var filter *int64
			if talent >= 0 {
				filter = &talent
			}
			list, err := c.ListSessions(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tTALENT\tSTART\tDURATION\tPROGRESS")
			for _, s := range list {
				dur := "open"
				if d, ok := s.Duration(); ok {
					dur = d.Round(time.Second).String()
				}
				_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%.4f\n", s.ID, s.TalentID, s.Start.Format(time.RFC3339), dur, s.ProgressObtained)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64Var(&talent, "talent", -1, "only sessions of this talent id")
	return cmd
}

func newEvaluateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Recompute streak and expiry flags now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			res, err := c.Evaluate(cmd.Context())
			if err != nil {
				return err
			}
			if res == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "nothing to evaluate")
				return nil
			}
			printTalents(cmd, res.Talents)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d sessions evaluated\n", len(res.Sessions))
			return nil
		},
	}
}

func printTalents(cmd *cobra.Command, list []model.Talent) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTARS\tPROGRESS\tTARGET\tSTREAK\tEXPIRING")
	for _, t := range list {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%.4f\t%gh\t%t\t%t\n",
			t.ID, t.Name, t.WhiteStars, t.Progress, t.ProgressTarget, t.StreakObtained, t.Expiring)
	}
	_ = w.Flush()
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
