// Package cli is the command line of the order batch application.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/example/order/internal/app"
	"github.com/tigerroll/chunkbatch/example/order/internal/job"
	usecase "github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// BuildCLI returns the root command. base carries the embedded configuration and resources.
func BuildCLI(base app.Options) *cobra.Command {
	opts := base
	rootCmd := &cobra.Command{
		Use:           "order",
		Short:         "Order batch jobs on the chunkbatch engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.EnvFilePath, "env-file", envOr("ENV_FILE_PATH", ""), ".env file loaded before the configuration")

	rootCmd.AddCommand(
		buildServeCommand(&opts),
		buildRunCommand(&opts),
		buildMigrateCommand(&opts),
		buildJobsCommand(&opts),
	)
	return rootCmd
}

func buildServeCommand(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger API and run the scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(*opts)
			if err != nil {
				return err
			}
			a := app.New(*opts, cfg, app.TriggerModules())
			// Run blocks until SIGINT/SIGTERM or a Shutdowner call and stops the app afterwards.
			a.Run()
			return a.Err()
		},
	}
}

func buildRunCommand(opts *app.Options) *cobra.Command {
	var noTimestamp bool
	cmd := &cobra.Command{
		Use:   "run JOB [key(TYPE)=value ...]",
		Short: "Run one job synchronously and print its execution report",
		Long: "Run one job synchronously. Parameters use the key(TYPE)=value form with TYPE one of\n" +
			"STRING, LONG, DATE or DOUBLE, e.g. startDate(DATE)=2024-01-01 minAmount(LONG)=7000.\n" +
			"A timestamp parameter is added unless --no-timestamp is given.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := model.ParseJobParameterArgs(args[1:])
			if err != nil {
				return err
			}
			if !noTimestamp {
				if _, ok := params.Get("timestamp"); !ok {
					params = model.NewJobParametersBuilderFrom(params).AddLong("timestamp", time.Now().UnixMilli()).ToJobParameters()
				}
			}
			return withApp(cmd.Context(), *opts, func(ctx context.Context, d deps) error {
				return launch(ctx, cmd.OutOrStdout(), d.Launcher, args[0], params)
			})
		},
	}
	cmd.Flags().BoolVar(&noTimestamp, "no-timestamp", false, "do not add a timestamp parameter (re-runs the same instance)")
	return cmd
}

func buildMigrateCommand(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the application schema through migrateJob",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			params := model.NewJobParametersBuilder().
				AddString("command", command).
				AddLong("timestamp", time.Now().UnixMilli()).
				ToJobParameters()
			return withApp(cmd.Context(), *opts, func(ctx context.Context, d deps) error {
				return launch(ctx, cmd.OutOrStdout(), d.Launcher, job.MigrateJob, params)
			})
		},
	}
}

func buildJobsCommand(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the registered jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *opts, func(ctx context.Context, d deps) error {
				for _, name := range d.Registry.JobNames() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

type deps struct {
	Launcher usecase.JobLauncher
	Registry *usecase.JobRegistry
}

// withApp starts the application without triggers, calls fn and stops the application again.
func withApp(ctx context.Context, opts app.Options, fn func(ctx context.Context, d deps) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := app.LoadConfig(opts)
	if err != nil {
		return err
	}
	var d deps
	a := app.New(opts, cfg, fx.Populate(&d.Launcher, &d.Registry))
	if err := a.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.StopTimeout())
		defer cancel()
		if err := a.Stop(stopCtx); err != nil {
			logger.Warnf("Application stop failed: %v", err)
		}
	}()
	return fn(ctx, d)
}

// launch runs jobName, prints the report and fails unless the execution COMPLETED.
func launch(ctx context.Context, out io.Writer, launcher usecase.JobLauncher, jobName string, params model.JobParameters) error {
	je, err := launcher.Run(ctx, jobName, params)
	if je == nil {
		return err
	}
	report := model.NewExecutionReport(je)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil {
		return encErr
	}
	if err != nil {
		return err
	}
	if report.Status != model.BatchStatusCompleted {
		return fmt.Errorf("job '%s' finished with status %s", jobName, report.Status)
	}
	return nil
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
