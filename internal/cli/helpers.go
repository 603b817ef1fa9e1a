package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/taskloop/taskloop/internal/agent"
	"github.com/taskloop/taskloop/internal/condition"
	"github.com/taskloop/taskloop/internal/config"
	"github.com/taskloop/taskloop/internal/controller"
	"github.com/taskloop/taskloop/internal/display"
	"github.com/taskloop/taskloop/internal/improve"
	"github.com/taskloop/taskloop/internal/store"
)

// stack is the wired execution machinery shared by the run commands.
type stack struct {
	ctrl   *controller.Controller
	engine *improve.Engine
	close  func()
}

// buildStack assembles invokers, evaluator, and controller from config.
// In simulate mode every invoker is the no-op simulator and conditions pass
// synthetically, so nothing real ever runs.
func buildStack(cfg *config.Config, workDir string, simulate bool) (*stack, error) {
	waitFailure, waitCooldown, waitPartial, err := cfg.Waits.Durations()
	if err != nil {
		return nil, err
	}
	waits := controller.Waits{Failure: waitFailure, Cooldown: waitCooldown, Partial: waitPartial}
	reporter := display.NewConsole(os.Stdout)

	if simulate {
		sim := agent.NewSimInvoker()
		ctrl := controller.New(sim, condition.SimEvaluator{}, waits, reporter, logger)
		return &stack{ctrl: ctrl, close: func() {}}, nil
	}

	agentInvoker, err := agent.New(cfg.Agent.Name)
	if err != nil {
		return nil, err
	}
	if err := agent.ValidateCredentials(cfg.Agent.Name); err != nil {
		return nil, err
	}

	var commandInvoker agent.Invoker
	cleanup := func() {}
	if cfg.Agent.Sandbox == "docker" {
		memory, err := agent.ParseMemory(cfg.Docker.Resources.Memory)
		if err != nil {
			return nil, err
		}
		cpus, err := agent.ParseCPUs(cfg.Docker.Resources.CPUs)
		if err != nil {
			return nil, err
		}
		docker, err := agent.NewDockerInvoker(agent.SandboxConfig{
			Image:   cfg.Docker.Image,
			WorkDir: workDir,
			Network: cfg.Docker.Network,
			Memory:  memory,
			CPUs:    cpus,
		})
		if err != nil {
			return nil, fmt.Errorf("creating docker sandbox: %w", err)
		}
		commandInvoker = docker
		cleanup = func() { _ = docker.Close() }
	} else {
		commandInvoker = agent.NewShellInvoker(workDir)
	}

	evaluator := condition.NewEvaluator(workDir, agentInvoker, agent.NewShellInvoker(workDir), logger)
	ctrl := controller.New(commandInvoker, evaluator, waits, reporter, logger)
	engine := improve.New(agentInvoker, logger)

	return &stack{ctrl: ctrl, engine: engine, close: cleanup}, nil
}

// openStore opens the run history database, creating its directory.
func openStore(cfg *config.Config) (*store.Store, error) {
	path := cfg.Store.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	return store.Open(path)
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
