package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/engine"
	"github.com/claude/freeflow/internal/generator"
	"github.com/claude/freeflow/internal/mcp"
	"github.com/claude/freeflow/internal/models"
)

func generateCmd(opts *options) *cobra.Command {
	var (
		minutes  int
		seconds  int
		tierName string
		focus    []string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a sequence for a timed session",
		Example: `  freeflow-cli generate --minutes 30 --tier beginner
  freeflow-cli generate --minutes 45 --tier 2 --focus core,back --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := models.ParseTier(tierName)
			if err != nil {
				return err
			}
			duration := seconds
			if duration == 0 {
				duration = minutes * 60
			}

			log := opts.logger()
			p, err := opts.planner(cmd.Context(), log)
			if err != nil {
				return err
			}
			res, err := p.Generate(cmd.Context(), generator.Request{
				DurationSeconds: duration,
				Tier:            tier,
				Focus:           focus,
			})
			var gf *generator.GenerationFailure
			if errors.As(err, &gf) {
				if opts.asJSON {
					_ = writeJSON(cmd.OutOrStdout(), map[string]any{"failure": gf})
				} else if gf.Partial.MovementCount() > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Partial sequence:")
					printSequence(cmd.OutOrStdout(), gf.Partial)
				}
				return err
			}
			if err != nil {
				return err
			}

			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printSequence(cmd.OutOrStdout(), res.Sequence)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d movements, %s total (target %s), balance %.2f\n",
				res.Sequence.MovementCount(), clock(res.DurationSeconds), clock(duration), res.Verdict.BalanceScore)
			if res.Overrun {
				fmt.Fprintln(cmd.OutOrStdout(), "note: a cool-down was added past the movement budget")
			}
			if res.Budget.Warning != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", res.Budget.Warning)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 30, "session length in minutes")
	cmd.Flags().IntVar(&seconds, "seconds", 0, "session length in seconds, overrides --minutes")
	cmd.Flags().StringVarP(&tierName, "tier", "t", "beginner", "difficulty tier (1-3 or beginner/intermediate/advanced)")
	cmd.Flags().StringSliceVarP(&focus, "focus", "f", nil, "muscle groups to prefer on ties")
	return cmd
}

func validateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "validate MOVEMENT_ID...",
		Short:   "Validate an ordered list of movements",
		Example: "  freeflow-cli validate breathing swan-prep clam",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.planner(cmd.Context(), opts.logger())
			if err != nil {
				return err
			}
			v, err := p.ValidateIDs(cmd.Context(), args)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), v)
			}
			printSequence(cmd.OutOrStdout(), v.Sequence)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", v.Verdict)
			if !v.Verdict.Valid {
				return errors.New("sequence is not valid")
			}
			return nil
		},
	}
}

func budgetCmd(opts *options) *cobra.Command {
	var (
		minutes  int
		tierName string
	)
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show how many movements fit a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := models.ParseTier(tierName)
			if err != nil {
				return err
			}
			p, err := opts.planner(cmd.Context(), opts.logger())
			if err != nil {
				return err
			}
			b, err := p.Budget(cmd.Context(), minutes*60, tier)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), b)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d movements of %s with %s transitions (%s planned)\n",
				b.Ceiling, clock(b.PerMovement), clock(b.TransitionSeconds), clock(b.Planned()))
			if b.Warning != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", b.Warning)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 30, "session length in minutes")
	cmd.Flags().StringVarP(&tierName, "tier", "t", "beginner", "difficulty tier")
	return cmd
}

func movementsCmd(opts *options) *cobra.Command {
	var (
		tierName string
		pattern  string
		muscles  []string
		asYAML   bool
	)
	cmd := &cobra.Command{
		Use:   "movements",
		Short: "List catalog movements",
		RunE: func(cmd *cobra.Command, args []string) error {
			var f catalog.Filter
			if tierName != "" {
				tier, err := models.ParseTier(tierName)
				if err != nil {
					return err
				}
				f.MaxTier = tier
			}
			if pattern != "" {
				pat, err := models.ParsePattern(pattern)
				if err != nil {
					return err
				}
				f.Pattern = pat
			}
			for _, tag := range muscles {
				c, known := models.NormalizeMuscle(tag)
				if !known {
					return fmt.Errorf("unknown muscle group %q", tag)
				}
				f.Muscles = append(f.Muscles, c)
			}

			p, err := opts.planner(cmd.Context(), opts.logger())
			if err != nil {
				return err
			}
			list, err := p.Movements(cmd.Context(), f)
			if err != nil {
				return err
			}
			switch {
			case asYAML:
				return catalog.Encode(cmd.OutOrStdout(), list.Movements)
			case opts.asJSON:
				return writeJSON(cmd.OutOrStdout(), list)
			}
			printMovements(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tierName, "tier", "t", "", "maximum tier")
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "pattern class")
	cmd.Flags().StringSliceVar(&muscles, "muscle", nil, "muscle groups (any match)")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print as a catalog file")
	return cmd
}

func mcpCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.logger()
			p, err := opts.planner(cmd.Context(), log)
			if err != nil {
				return err
			}
			return server.ServeStdio(mcp.New(p, Version, log))
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSequence(w io.Writer, seq models.Sequence) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	elapsed := 0
	for _, e := range seq.Entries {
		switch {
		case e.IsMovement():
			m := e.Movement
			fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n", clock(elapsed), m.Name, m.Tier, m.Pattern, strings.Join(m.Muscles, ","))
		case e.Transition != nil:
			fmt.Fprintf(tw, "%s\t  transition\t\t\t%s\n", clock(elapsed), clock(e.Seconds))
		}
		elapsed += e.Seconds
	}
	tw.Flush()
}

func printMovements(w io.Writer, list *engine.MovementList) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTIER\tPATTERN\tMUSCLES\tPREREQUISITES")
	for _, m := range list.Movements {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", m.ID, m.Name, m.Tier, m.Pattern,
			strings.Join(m.Muscles, ","), strings.Join(m.Prerequisites, ","))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d movements (catalog %s)\n", len(list.Movements), list.Version)
}

// clock formats seconds as m:ss.
func clock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
