// Command inquest is the investigation runtime CLI.
//
// Subcommands:
//   - investigate <goal>  run one investigation and print the report
//   - search <query>      one-shot entity search against the registry
//   - workflow <name>     run a named workflow template
//   - status              show stored investigations
//   - serve               run the HTTP API and metrics listeners
//
// Exit codes: 0 success, 1 general error, 130 interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/osinthq/inquest/internal/agent"
	"github.com/osinthq/inquest/internal/bridge"
	"github.com/osinthq/inquest/internal/config"
	"github.com/osinthq/inquest/internal/llm"
	"github.com/osinthq/inquest/internal/policy"
	"github.com/osinthq/inquest/internal/safety"
	"github.com/osinthq/inquest/internal/tools"
)

const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

var errInterrupted = errors.New("interrupted")

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errInterrupted) || ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			return exitInterrupted
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitError
	}
	return exitOK
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "inquest",
		Short:         "Agentic OSINT investigation runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "inquest.yaml", "config file path")

	root.AddCommand(
		newInvestigateCommand(&configPath),
		newSearchCommand(&configPath),
		newWorkflowCommand(&configPath),
		newStatusCommand(&configPath),
		newServeCommand(&configPath),
	)
	return root
}

// loadConfig loads configuration; a missing file falls back to the
// defaults plus environment overrides.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	mgr, err := config.NewManager(path)
	if err != nil {
		return nil, err
	}
	if err := mgr.Load(ctx); err != nil {
		return nil, err
	}
	if err := mgr.Validate(ctx); err != nil {
		return nil, err
	}
	return mgr.Get(ctx), nil
}

// buildRegistry returns the tool registry. Only the fixture tools ship
// in-tree; deployments register real collectors here.
func buildRegistry() *tools.Registry {
	registry := tools.NewRegistry()
	tools.RegisterFixtureTools(registry)
	return registry
}

func llmConfigFrom(cfg *config.Config) llm.Config {
	return llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
}

func buildPolicy(cfg *config.Config) policy.Policy {
	switch cfg.LLM.Provider {
	case "openai", "custom":
		client := llm.NewClient(llmConfigFrom(cfg))
		return policy.NewLLMPolicy(llm.NewCachedClient(client, time.Hour))
	default:
		return policy.NewHeuristic()
	}
}

func buildBridge(cfg *config.Config) *bridge.Bridge {
	return bridge.New(bridge.Config{
		Registry: buildRegistry(),
		Loop:     loopConfigFrom(cfg),
		LLM:      llmConfigFrom(cfg),
		Gate: safety.GateConfig{
			Capsule:          &safety.Capsule{MaxBudget: cfg.Safety.MaxBudget},
			RatePerMinute:    cfg.Safety.RatePerMinute,
			BreakerThreshold: cfg.Safety.BreakerThreshold,
			BreakerCooldown:  time.Duration(cfg.Safety.BreakerCooldownSeconds) * time.Second,
		},
	})
}

func loopConfigFrom(cfg *config.Config) agent.LoopConfig {
	loopCfg := agent.DefaultLoopConfig()
	loopCfg.MaxTurns = cfg.Agent.MaxTurns
	if cfg.Agent.ToolTimeoutSeconds > 0 {
		loopCfg.ToolTimeout = time.Duration(cfg.Agent.ToolTimeoutSeconds) * time.Second
	}
	loopCfg.Deadline = time.Duration(cfg.Agent.DeadlineSeconds) * time.Second
	loopCfg.AutoSanctionsScreen = cfg.Agent.AutoSanctions
	loopCfg.AutoNewsCheck = cfg.Agent.AutoNews
	loopCfg.GenerateGraph = cfg.Agent.GenerateGraph
	loopCfg.DemoMode = cfg.Agent.DemoMode
	loopCfg.PersistPath = cfg.Agent.PersistPath
	loopCfg.EnableSafety = cfg.Safety.Enabled
	loopCfg.EnforceSafety = cfg.Safety.Enforce
	loopCfg.LLMProvider = cfg.LLM.Provider
	return loopCfg
}

// interrupted maps a cancelled command context onto the 130 exit path.
func interrupted(ctx context.Context) error {
	if ctx.Err() != nil {
		return errInterrupted
	}
	return nil
}
