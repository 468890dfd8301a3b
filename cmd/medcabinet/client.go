package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/medcabinet/medcabinet/internal/client/app"
	"github.com/medcabinet/medcabinet/internal/client/gate"
	"github.com/medcabinet/medcabinet/internal/client/session"
	"github.com/medcabinet/medcabinet/internal/config"
)

// withClient loads the client config, builds the app and runs fn.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		cfg.ServerURL = server
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Views own stdout, so the client always logs to stderr.
	logger := newLogger("development", cfg.LogLevel, os.Stderr)
	a := app.New(cfg, cmd.OutOrStdout(), logger)
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}

func clientCmd(use, short string, args cobra.PositionalArgs, run func(ctx context.Context, a *app.App, args []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			return withClient(cmd, func(ctx context.Context, a *app.App) error {
				return run(ctx, a, argv)
			})
		},
	}
	cmd.Flags().String("server", "", "Server URL (default: SERVER_URL)")
	return cmd
}

func loginCmd() *cobra.Command {
	return clientCmd("login", "Sign in and store the credential", cobra.NoArgs,
		func(ctx context.Context, a *app.App, _ []string) error {
			a.Start(ctx, gate.PathLogin)
			res, err := a.Login(ctx)
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("login failed")
			}
			return nil
		})
}

func signupCmd() *cobra.Command {
	return clientCmd("signup", "Create an account and sign in", cobra.NoArgs,
		func(ctx context.Context, a *app.App, _ []string) error {
			a.Start(ctx, gate.PathSignup)
			res, err := a.Signup(ctx)
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("signup failed")
			}
			return nil
		})
}

func logoutCmd() *cobra.Command {
	return clientCmd("logout", "Discard the stored credential", cobra.NoArgs,
		func(_ context.Context, a *app.App, _ []string) error {
			a.Logout()
			return nil
		})
}

func whoamiCmd() *cobra.Command {
	return clientCmd("whoami", "Show the signed-in user", cobra.NoArgs,
		func(ctx context.Context, a *app.App, _ []string) error {
			if r := a.Query.Trigger(ctx, session.TriggerMount); r.Error != nil {
				fmt.Fprintf(os.Stderr, "server unreachable: %v\n", r.Error)
			}
			fmt.Println(a.WhoAmI())
			return nil
		})
}

func openCmd() *cobra.Command {
	return clientCmd("open <path>", "Open one page of the application", cobra.ExactArgs(1),
		func(ctx context.Context, a *app.App, args []string) error {
			a.Start(ctx, args[0])
			return nil
		})
}

func shellCmd() *cobra.Command {
	return clientCmd("shell [path]", "Run the interactive client", cobra.MaximumNArgs(1),
		func(ctx context.Context, a *app.App, args []string) error {
			path := gate.PathDashboard
			if len(args) == 1 {
				path = args[0]
			}
			fmt.Print(app.Banner(a.API.BaseURL()))
			return a.Shell(ctx, os.Stdin, path)
		})
}
