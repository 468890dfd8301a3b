package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/medcabinet/medcabinet/internal/client/gate"
	"github.com/medcabinet/medcabinet/internal/client/session"
)

const shellHelp = `Commands:
  open <path>    navigate (/, /patients, /consultations, /appointments,
                 /certificates, /prescriptions, /assistant-ia, /login, /signup)
  reload [path]  reload the application on path (default: current)
  login          sign in
  signup         create an account
  logout         sign out
  whoami         show the signed-in user
  help           show this help
  quit           exit
`

// Shell runs the interactive navigator until in is exhausted, ctx is done
// or the user quits. Every input line counts as the window regaining focus.
func (a *App) Shell(ctx context.Context, in io.Reader, path string) error {
	wctx, stop := context.WithCancel(ctx)
	defer stop()
	go a.Watcher.Run(wctx)

	a.Start(ctx, path)

	scanner := bufio.NewScanner(in)
	for {
		a.printf("medcabinet> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}

		a.Query.Trigger(ctx, session.TriggerFocus)
		if err := a.exec(ctx, fields[0], fields[1:]); err != nil {
			if IsAborted(err) {
				a.printf("cancelled\n")
				continue
			}
			return err
		}
	}
}

func (a *App) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "open":
		if len(args) != 1 {
			a.printf("usage: open <path>\n")
			return nil
		}
		a.Router.Navigate(args[0])
	case "reload":
		path := gate.PathDashboard
		if cur, _, _ := a.Router.Current(); cur != "" {
			path = cur
		}
		if len(args) == 1 {
			path = args[0]
		}
		a.Router.Reload(ctx, path)
	case "login":
		_, err := a.Login(ctx)
		return err
	case "signup":
		_, err := a.Signup(ctx)
		return err
	case "logout":
		a.Logout()
	case "whoami":
		a.printf("%s\n", a.WhoAmI())
	case "help":
		a.printf("%s", shellHelp)
	default:
		a.printf("unknown command %q, type help\n", cmd)
	}
	return nil
}

// Banner describes the client's target server.
func Banner(serverURL string) string {
	return fmt.Sprintf("medcabinet client, server %s. Type help for commands.\n", serverURL)
}
