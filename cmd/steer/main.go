package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/application"
	"github.com/steerdev/steer/internal/domain/repository"
	"github.com/steerdev/steer/internal/domain/service"
	"github.com/steerdev/steer/internal/domain/tool"
	"github.com/steerdev/steer/internal/infrastructure/auth"
	"github.com/steerdev/steer/internal/infrastructure/config"
	"github.com/steerdev/steer/internal/infrastructure/llm"
	"github.com/steerdev/steer/internal/infrastructure/logger"
	"github.com/steerdev/steer/internal/infrastructure/persistence"
	"github.com/steerdev/steer/internal/interfaces/cli"
	srv "github.com/steerdev/steer/internal/interfaces/http"

	// Adapter factories register themselves via init().
	_ "github.com/steerdev/steer/internal/infrastructure/llm/anthropic"
	_ "github.com/steerdev/steer/internal/infrastructure/llm/gemini"
	_ "github.com/steerdev/steer/internal/infrastructure/llm/openai"
	_ "github.com/steerdev/steer/internal/infrastructure/llm/xai"
)

const (
	appName    = "steer"
	appVersion = "0.4.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "steer — AI coding agent",
		Long:  "steer drives a conversation with a language model and orchestrates tool use on your machine.",
		RunE:  runInteractive,
	}

	rootCmd.PersistentFlags().StringP("model", "m", "", "model override")
	rootCmd.Flags().BoolP("no-approve", "y", false, "skip tool approval")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE:  runInit,
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing config")
	rootCmd.AddCommand(initCmd)

	headlessCmd := &cobra.Command{
		Use:   "headless [prompt]",
		Short: "Run one prompt non-interactively",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runHeadless,
	}
	headlessCmd.Flags().String("messages-json", "", "seed messages file")
	headlessCmd.Flags().String("session", "", "session id to resume")
	headlessCmd.Flags().String("system-prompt", "", "system prompt override")
	rootCmd.AddCommand(headlessCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the engine over HTTP",
		RunE:  runServe,
	}
	serveCmd.Flags().Int("port", 4499, "listen port")
	serveCmd.Flags().String("bind", "127.0.0.1", "bind address")
	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(sessionCommand())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads config and assembles the shared pieces: logger, auth
// manager, provider, session repository.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	manager  *auth.Manager
	provider service.Provider
	sessions repository.SessionRepository
	registry *tool.Registry
	modelID  string
}

func bootstrap(cmd *cobra.Command, quiet bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logCfg := logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if quiet {
		logCfg = logger.Config{Level: "error", Format: "console", OutputPath: "stderr"}
	}
	log, err := logger.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}

	model := cfg.Model
	if m, _ := cmd.Flags().GetString("model"); m != "" {
		model = m
	}
	providerType, modelID := llm.ResolveType(model)

	credPath, err := config.CredentialPath()
	if err != nil {
		return nil, err
	}
	store, err := auth.NewFileStore(credPath)
	if err != nil {
		return nil, err
	}
	manager := auth.NewManager(store, log)

	providerCfg := llm.ProviderConfig{Type: providerType}
	if p, ok := cfg.Providers[providerType]; ok {
		providerCfg.BaseURL = p.BaseURL
		providerCfg.APIKey = p.APIKey
	}

	// Environment keys seed the credential store so the auth manager is
	// the single source for request headers.
	var headers llm.HeaderSource
	if manager.HasCredential(providerType) {
		headers = manager.HeaderSource(providerType)
	} else if providerCfg.APIKey != "" && providerType != "gemini" {
		_ = store.Set(providerType, auth.Credential{Kind: auth.KindAPIKey, APIKey: providerCfg.APIKey})
		headers = manager.HeaderSource(providerType)
	}

	provider, err := llm.CreateProvider(providerCfg, headers, log)
	if err != nil {
		return nil, err
	}

	var sessions repository.SessionRepository
	if cfg.Database.Type == "memory" {
		sessions = persistence.NewMemorySessionRepository()
	} else {
		dir, dirErr := config.Dir()
		if dirErr != nil {
			return nil, dirErr
		}
		db, dbErr := persistence.Open(cfg.Database.Type, cfg.Database.DSN, dir)
		if dbErr != nil {
			return nil, dbErr
		}
		sessions = persistence.NewGormSessionRepository(db, log)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		manager:  manager,
		provider: provider,
		sessions: sessions,
		registry: tool.NewRegistry(log),
		modelID:  modelID,
	}, nil
}

func (a *app) newEngine(sessionID, systemPrompt string) *application.Engine {
	workspace, _ := os.Getwd()
	if systemPrompt == "" {
		systemPrompt = a.cfg.SystemPrompt
	}
	return application.NewEngine(application.EngineConfig{
		Model:        a.modelID,
		SystemPrompt: systemPrompt,
		Workspace:    workspace,
		SessionID:    sessionID,
		Retry:        service.DefaultRetryPolicy(),
	}, a.provider, a.registry, a.sessions, a.log)
}

func runInteractive(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd, true)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	noApprove, _ := cmd.Flags().GetBool("no-approve")
	engine := a.newEngine("", "")

	return cli.RunInteractive(engine, cli.InteractiveOptions{
		Input:       os.Stdin,
		Output:      os.Stdout,
		AutoApprove: noApprove,
	}, a.log)
}

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	path, err := config.Write(config.Default(), force)
	if err != nil {
		return err
	}
	fmt.Printf("Config written to %s\n", path)
	return nil
}

func runHeadless(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd, true)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	sessionID, _ := cmd.Flags().GetString("session")
	systemPrompt, _ := cmd.Flags().GetString("system-prompt")
	engine := a.newEngine(sessionID, systemPrompt)

	if sessionID != "" {
		if session, findErr := a.sessions.FindByID(sessionID); findErr == nil {
			engine.RestoreSession(session)
		}
	}
	if path, _ := cmd.Flags().GetString("messages-json"); path != "" {
		messages, loadErr := cli.LoadSeedMessages(path)
		if loadErr != nil {
			return loadErr
		}
		engine.RestoreSession(&repository.Session{Messages: messages})
	}

	return cli.RunHeadless(engine, cli.HeadlessOptions{
		Prompt:      args[0],
		AutoApprove: true,
	}, a.log)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd, false)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	port, _ := cmd.Flags().GetInt("port")
	bind, _ := cmd.Flags().GetString("bind")

	engine := a.newEngine("", "")
	server := srv.NewServer(engine, a.log)
	return server.Start(bind, port)
}

func sessionCommand() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage stored sessions",
	}

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, true)
			if err != nil {
				return err
			}
			summaries, err := a.sessions.List()
			if err != nil {
				return err
			}
			for _, s := range summaries {
				fmt.Printf("%s  %3d messages  %s  %s\n",
					s.ID, s.Messages, s.UpdatedAt.Format("2006-01-02 15:04"), s.Workspace)
			}
			return nil
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create an empty session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, true)
			if err != nil {
				return err
			}
			engine := a.newEngine("", "")
			workspace, _ := os.Getwd()
			session := &repository.Session{ID: engine.SessionID(), Workspace: workspace}
			if err := a.sessions.Save(session); err != nil {
				return err
			}
			fmt.Println(session.ID)
			return nil
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a session interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, true)
			if err != nil {
				return err
			}
			session, err := a.sessions.FindByID(args[0])
			if err != nil {
				return err
			}
			engine := a.newEngine(session.ID, session.SystemPrompt)
			engine.RestoreSession(session)
			return cli.RunInteractive(engine, cli.InteractiveOptions{
				Input:  os.Stdin,
				Output: os.Stdout,
			}, a.log)
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "latest",
		Short: "Print the most recent session id",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, true)
			if err != nil {
				return err
			}
			session, err := a.sessions.Latest()
			if err != nil {
				return err
			}
			fmt.Println(session.ID)
			return nil
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, true)
			if err != nil {
				return err
			}
			return a.sessions.Delete(args[0])
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Dump a session's messages as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, true)
			if err != nil {
				return err
			}
			session, err := a.sessions.FindByID(args[0])
			if err != nil {
				return err
			}
			return cli.DumpMessages(os.Stdout, session.Messages)
		},
	})

	return sessionCmd
}
