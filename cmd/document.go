package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/internal/guide"
	"github.com/xkilldash9x/guidecap-cli/internal/observability"
	"github.com/xkilldash9x/guidecap-cli/internal/registry"
	"github.com/xkilldash9x/guidecap-cli/internal/runstore"
	"github.com/xkilldash9x/guidecap-cli/pkg/action"
	"github.com/xkilldash9x/guidecap-cli/pkg/auth"
	"github.com/xkilldash9x/guidecap-cli/pkg/browser"
	"github.com/xkilldash9x/guidecap-cli/pkg/index"
	"github.com/xkilldash9x/guidecap-cli/pkg/oracle"
	"github.com/xkilldash9x/guidecap-cli/pkg/stability"
	"github.com/xkilldash9x/guidecap-cli/pkg/task"
)

// newDocumentCmd creates and configures the `document` command.
func newDocumentCmd() *cobra.Command {
	documentCmd := &cobra.Command{
		Use:   "document [goal]",
		Short: "Performs a goal in the browser and writes a step-by-step guide",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("guide.output_dir", cmd.Flags().Lookup("output")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if err := viper.Unmarshal(cfg); err != nil {
				return fmt.Errorf("failed to re-unmarshal config with flag overrides: %w", err)
			}

			goal := strings.Join(args, " ")
			startURL := viper.GetString("url")
			appName := viper.GetString("app")
			skipLogin := viper.GetBool("skip-login")

			reg := registry.New(cfg.Registry, logger)
			app, appKnown := resolveApp(reg, appName, startURL, goal)
			if startURL == "" {
				if !appKnown {
					return fmt.Errorf("either --url or a known --app is required")
				}
				startURL = app.BaseURL
			}

			runID := uuid.New().String()
			logger.Info("Starting documentation run",
				zap.String("runID", runID),
				zap.String("goal", goal),
				zap.String("url", startURL),
				zap.Bool("app_known", appKnown),
			)

			components, err := initializeComponents(ctx, logger)
			if err != nil {
				if components != nil {
					components.Shutdown(ctx)
				}
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown(ctx)

			session, err := components.Browser.NewSession(ctx)
			if err != nil {
				return fmt.Errorf("failed to open browser session: %w", err)
			}
			defer func() {
				if err := session.Close(context.Background()); err != nil {
					logger.Warn("Error closing browser session", zap.Error(err))
				}
			}()

			indexer := index.New(session, logger)
			executor := action.NewExecutor(session, logger, cfg.Network)
			waiter := stability.NewWaiter(session, logger, cfg.Stability)

			if err := session.Navigate(ctx, startURL); err != nil {
				return fmt.Errorf("failed to open %s: %w", startURL, err)
			}
			waiter.Wait(ctx)

			// Authenticate when the app is known and credentials exist.
			if appKnown && !skipLogin {
				if err := login(ctx, reg, app, session, components.Oracle, executor, waiter, indexer, logger); err != nil {
					return err
				}
			}

			log := guide.NewLog(goal)
			runner := task.NewRunner(session, components.Oracle, indexer, executor, waiter, log, cfg.Task, logger)

			started := time.Now()
			outcome, runErr := runner.Run(ctx, goal)
			if runErr != nil {
				if errors.Is(runErr, context.Canceled) {
					logger.Warn("Run aborted by user signal", zap.String("runID", runID))
					return fmt.Errorf("run aborted by user signal")
				}
				return fmt.Errorf("run failed: %w", runErr)
			}
			if !outcome.Completed {
				logger.Warn("Goal was not fully reached; writing a partial guide.",
					zap.Int("steps", outcome.Steps))
			}

			generator := guide.NewGenerator(cfg.Guide, logger)
			written, err := generator.Generate(runID, log)
			if err != nil {
				return fmt.Errorf("failed to write guide: %w", err)
			}

			if components.Store != nil {
				run := runstore.Run{
					ID:         runID,
					App:        app.Name,
					Goal:       goal,
					StartURL:   startURL,
					Completed:  outcome.Completed,
					Steps:      outcome.Steps,
					StartedAt:  started,
					FinishedAt: time.Now(),
				}
				if err := components.Store.PersistRun(ctx, run, log.Records()); err != nil {
					logger.Warn("Failed to persist run", zap.Error(err))
				}
			}

			fmt.Printf("\nRun complete. Run ID: %s (%d steps, completed=%t)\n", runID, outcome.Steps, outcome.Completed)
			for _, path := range written {
				fmt.Printf("  wrote %s\n", path)
			}
			return nil
		},
	}

	documentCmd.Flags().StringP("url", "u", "", "Start URL. Inferred from --app when omitted.")
	documentCmd.Flags().StringP("app", "a", "", "Known application name (see 'guidecap apps').")
	documentCmd.Flags().StringP("output", "o", "", "Guide output directory. (Overrides config/env)")
	documentCmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	documentCmd.Flags().Bool("skip-login", false, "Skip the authentication flow.")

	return documentCmd
}

// resolveApp prefers the explicit app name, then URL detection, then a scan
// of the goal text itself.
func resolveApp(reg *registry.Registry, appName, startURL, goal string) (registry.App, bool) {
	if appName != "" {
		if app, ok := reg.Lookup(appName); ok {
			return app, true
		}
		return registry.App{}, false
	}
	if startURL != "" {
		return reg.DetectApp(startURL)
	}
	return reg.DetectFromText(goal)
}

func login(
	ctx context.Context,
	reg *registry.Registry,
	app registry.App,
	session browser.Page,
	o oracle.Oracle,
	executor *action.Executor,
	waiter *stability.Waiter,
	indexer *index.Indexer,
	logger *zap.Logger,
) error {
	creds, err := reg.Credentials(app)
	if err != nil {
		logger.Warn("Proceeding without authentication.", zap.Error(err))
		return nil
	}

	flow := auth.NewFlow(session, o, executor, waiter, indexer, creds, cfg.Auth, logger)
	result, err := flow.Run(ctx, app.LoginURL)
	if err != nil {
		return fmt.Errorf("login to %s failed after %d steps: %w", app.DisplayName, result.Steps, err)
	}
	logger.Info("Authenticated", zap.String("app", app.Name), zap.Int("steps", result.Steps))
	return nil
}

// components holds initialized services.
type components struct {
	Browser *browser.Manager
	Oracle  oracle.Oracle
	Store   *runstore.Store
	DBPool  *pgxpool.Pool
}

// Shutdown gracefully closes all components.
func (c *components) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if c.Browser != nil {
		if err := c.Browser.Shutdown(shutdownCtx); err != nil {
			observability.GetLogger().Warn("Error during browser shutdown", zap.Error(err))
		}
	}
	if c.DBPool != nil {
		c.DBPool.Close()
	}
}

// initializeComponents handles dependency injection for a run.
func initializeComponents(ctx context.Context, logger *zap.Logger) (*components, error) {
	out := &components{}

	model, err := oracle.NewGemini(ctx, cfg.Oracle, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model client: %w", err)
	}
	out.Oracle = model

	manager, err := browser.NewManager(ctx, logger, cfg.Browser, cfg.Network)
	if err != nil {
		return out, fmt.Errorf("failed to launch browser: %w", err)
	}
	out.Browser = manager

	if cfg.Store.Enabled {
		pool, err := pgxpool.New(ctx, cfg.Store.Postgres.DSN())
		if err != nil {
			return out, fmt.Errorf("failed to connect to database: %w", err)
		}
		out.DBPool = pool

		store, err := runstore.New(ctx, pool, logger)
		if err != nil {
			return out, fmt.Errorf("failed to initialize run store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return out, err
		}
		out.Store = store
	}

	return out, nil
}
