package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osinthq/inquest/internal/progress"
	"github.com/osinthq/inquest/internal/workflow"
)

func newWorkflowCommand(configPath *string) *cobra.Command {
	var (
		target string
		file   string
		list   bool
	)

	cmd := &cobra.Command{
		Use:   "workflow [name]",
		Short: "Run a named investigation workflow template",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			lib := workflow.Builtin()
			if file != "" {
				var err error
				if lib, err = workflow.LoadFile(file); err != nil {
					return err
				}
			}

			if list || len(args) == 0 {
				for _, name := range lib.Names() {
					tpl, _ := lib.Get(name)
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", name, tpl.Description)
				}
				return nil
			}

			tpl, err := lib.Get(args[0])
			if err != nil {
				return err
			}
			goal, err := tpl.ExpandGoal(target)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}
			loopCfg := tpl.Apply(loopConfigFrom(cfg))

			fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s: %s\n", tpl.Name, goal)

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
				return fmt.Errorf("workflow failed: %s", result.Err)
			}
			printResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "target entity substituted into the goal pattern")
	cmd.Flags().StringVar(&file, "file", "", "load workflows from this YAML file instead of the built-ins")
	cmd.Flags().BoolVar(&list, "list", false, "list available workflows")
	return cmd
}
