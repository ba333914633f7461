package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/osinthq/inquest/internal/agent"
	"github.com/osinthq/inquest/internal/bridge"
	"github.com/osinthq/inquest/internal/config"
	"github.com/osinthq/inquest/internal/progress"
	"github.com/osinthq/inquest/internal/safety"
	"github.com/osinthq/inquest/internal/session"
)

func newInvestigateCommand(configPath *string) *cobra.Command {
	var (
		maxTurns    int
		enforce     bool
		dryRun      bool
		interactive bool
		savePath    string
		resumePath  string
	)

	cmd := &cobra.Command{
		Use:   "investigate [goal]",
		Short: "Run an investigation and print the scrubbed report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}

			loopCfg := loopConfigFrom(cfg)
			if maxTurns > 0 {
				loopCfg.MaxTurns = maxTurns
			}
			if enforce {
				loopCfg.EnforceSafety = true
			}

			if resumePath != "" {
				return runResume(cmd, cfg, loopCfg, resumePath, savePath)
			}

			goal := strings.TrimSpace(strings.Join(args, " "))
			if goal == "" {
				return fmt.Errorf("a goal is required (or --resume <path>)")
			}

			if dryRun {
				printPlan(cmd, goal, loopCfg)
				return nil
			}

			b := buildBridge(cfg)
			emit := func(ev progress.Event) {
				if ev.Terminal() {
					return
				}
				fmt.Fprintln(cmd.OutOrStdout(), ev.Text())
			}

			result := b.RunInvestigation(ctx, goal, loopCfg, emit)
			if err := interrupted(ctx); err != nil {
				return err
			}
			if result.Err != "" {
				return fmt.Errorf("investigation failed: %s", result.Err)
			}

			printResult(cmd, result)

			if interactive && result.Session != nil {
				if err := interactiveContinue(cmd, cfg, loopCfg, result.Session); err != nil {
					return err
				}
			}

			if savePath != "" && result.Session != nil {
				if err := session.SaveFile(result.Session, savePath); err != nil {
					return fmt.Errorf("saving session: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session saved to %s\n", savePath)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "override the turn budget")
	cmd.Flags().BoolVar(&enforce, "enforce", false, "block unsafe tool calls instead of observing")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the run plan without executing")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "offer to continue with more turns while leads remain open")
	cmd.Flags().StringVar(&savePath, "save", "", "write the finished session to this path")
	cmd.Flags().StringVar(&resumePath, "resume", "", "continue a saved session instead of starting fresh")
	return cmd
}

// runResume loads a saved session and continues it under the current
// budget.
func runResume(cmd *cobra.Command, cfg *config.Config, loopCfg agent.LoopConfig, resumePath, savePath string) error {
	ctx := cmd.Context()

	loaded, err := session.LoadFile(resumePath)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Resuming investigation %s: %s (%d turns used)\n",
		loaded.ID, loaded.Goal, loaded.TurnCount)

	s, err := resumeSession(cmd, cfg, loopCfg, loaded)
	if err != nil {
		return err
	}
	if err := interrupted(ctx); err != nil {
		return err
	}

	printSession(cmd, s)

	if savePath != "" {
		if err := session.SaveFile(s, savePath); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session saved to %s\n", savePath)
	}
	return nil
}

func resumeSession(cmd *cobra.Command, cfg *config.Config, loopCfg agent.LoopConfig, s *session.Session) (*session.Session, error) {
	var harness *safety.Harness
	if loopCfg.EnableSafety {
		harness = safety.NewDefaultHarness(loopCfg.EnforceSafety, safety.GateConfig{
			Capsule:       &safety.Capsule{MaxBudget: cfg.Safety.MaxBudget},
			RatePerMinute: cfg.Safety.RatePerMinute,
		})
	}

	a, err := agent.New(loopCfg, agent.Deps{
		Registry: buildRegistry(),
		Policy:   buildPolicy(cfg),
		Harness:  harness,
		Emit: func(ev progress.Event) {
			if ev.Terminal() {
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), ev.Text())
		},
	})
	if err != nil {
		return nil, err
	}
	return a.Resume(cmd.Context(), s)
}

// interactiveContinue offers further turns while open leads remain.
func interactiveContinue(cmd *cobra.Command, cfg *config.Config, loopCfg agent.LoopConfig, s *session.Session) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	for len(s.OpenLeads()) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d lead(s) still open. Continue investigating? [y/N] ", len(s.OpenLeads()))
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		if strings.ToLower(strings.TrimSpace(line)) != "y" {
			return nil
		}
		// Each continuation gets a fresh turn budget.
		s.TurnCount = 0
		next, err := resumeSession(cmd, cfg, loopCfg, s)
		if err != nil {
			return err
		}
		s = next
		printSession(cmd, s)
	}
	return nil
}

func printPlan(cmd *cobra.Command, goal string, loopCfg agent.LoopConfig) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Dry run, nothing executed.")
	fmt.Fprintf(out, "  goal:        %s\n", goal)
	fmt.Fprintf(out, "  policy:      %s\n", loopCfg.LLMProvider)
	fmt.Fprintf(out, "  max turns:   %d\n", loopCfg.MaxTurns)
	fmt.Fprintf(out, "  tool budget: %s per call\n", loopCfg.ToolTimeout)
	mode := "observe"
	if !loopCfg.EnableSafety {
		mode = "disabled"
	} else if loopCfg.EnforceSafety {
		mode = "enforce"
	}
	fmt.Fprintf(out, "  safety:      %s\n", mode)
	fmt.Fprintf(out, "  tools:       %s\n", strings.Join(buildRegistry().Names(), ", "))
}

func printResult(cmd *cobra.Command, result *bridge.InvestigationResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, result.ScrubbedReportText)
	if result.PIIScrubbed > 0 {
		fmt.Fprintf(out, "Note: %d item(s) of personally identifiable information were redacted.\n", result.PIIScrubbed)
	}
}

// printSession renders a session through the publication boundary.
func printSession(cmd *cobra.Command, s *session.Session) {
	report := agent.BuildReport(s)
	scrubbed, piiFound, _ := safety.NewRedactor().Scrub(report)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, scrubbed)
	if piiFound > 0 {
		fmt.Fprintf(out, "Note: %d item(s) of personally identifiable information were redacted.\n", piiFound)
	}
}
