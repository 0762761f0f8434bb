package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/stockpanel/pkg/authsdk"
	"github.com/aussiebroadwan/stockpanel/pkg/jwtx"
)

type command struct {
	usage     string
	protected bool // needs a live session
	run       func(ctx context.Context, args []string) error
}

func (app *Application) commands() map[string]command {
	return map[string]command{
		"login":  {usage: "login -u <username> [-p <password>]", run: app.cmdLogin},
		"logout": {usage: "logout", run: app.cmdLogout},
		"status": {usage: "status", run: app.cmdStatus},
		"watch":  {usage: "watch                       (follow session changes until interrupted)", run: app.cmdWatch},
		"whoami": {usage: "whoami                      (validate with the server)", protected: true, run: app.cmdWhoami},
		"token":  {usage: "token                       (print a fresh access token)", protected: true, run: app.cmdToken},
		"api":    {usage: "api [-X METHOD] [-d JSON] <path>", protected: true, run: app.cmdAPI},
	}
}

func (app *Application) usage() {
	names := []string{"login", "logout", "status", "whoami", "token", "api", "watch"}
	cmds := app.commands()

	var b strings.Builder
	b.WriteString("stockctl " + BuildVersion + "\nUsage:\n  stockctl <cmd> [args]\n\nCommands:\n")
	for _, n := range names {
		b.WriteString("  " + cmds[n].usage + "\n")
	}
	_, _ = io.WriteString(app.errOut, b.String())
}

func (app *Application) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(app.errOut)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (read from stdin when omitted)")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if *username == "" {
		fs.Usage()
		return ErrUsage
	}

	if *password == "" {
		_, _ = fmt.Fprint(app.errOut, "Password: ")
		line, err := bufio.NewReader(app.in).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		*password = strings.TrimRight(line, "\r\n")
	}

	p, err := app.manager.Login(ctx, *username, *password)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(app.out, "Logged in as %s (%s)\n", p.Username, p.Role)
	return nil
}

func (app *Application) cmdLogout(ctx context.Context, _ []string) error {
	if err := app.manager.Logout(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(app.out, "Logged out")
	return nil
}

func (app *Application) cmdStatus(ctx context.Context, _ []string) error {
	now := time.Now()

	_, _ = fmt.Fprintf(app.out, "state:         %s\n", app.manager.State())

	u := app.manager.User()
	if u == nil {
		return nil
	}
	_, _ = fmt.Fprintf(app.out, "user:          %s (%s)\n", u.Username, u.Role)

	if exp, ok := jwtx.ExpiresAt(app.manager.AccessToken()); ok {
		_, _ = fmt.Fprintf(app.out, "token expires: %s (%s)\n",
			exp.Local().Format(time.RFC3339), relative(exp.Sub(now)))
	}

	b, err := app.store.Load(ctx)
	if err != nil {
		return err
	}
	if !b.LastActivity.IsZero() {
		_, _ = fmt.Fprintf(app.out, "last activity: %s (%s)\n",
			b.LastActivity.Local().Format(time.RFC3339), relative(b.LastActivity.Sub(now)))
	}
	if app.manager.IsSessionTimedOut(ctx) {
		_, _ = fmt.Fprintln(app.out, "inactive:      yes, the next command will expire the session")
	}
	return nil
}

func (app *Application) cmdWhoami(ctx context.Context, _ []string) error {
	if !app.manager.ValidateWithServer(ctx) {
		return ErrLoginRequired
	}
	return printJSON(app.out, app.manager.User())
}

func (app *Application) cmdToken(_ context.Context, _ []string) error {
	tok, err := app.manager.TokenSource().Token()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(app.out, tok.AccessToken)
	return nil
}

func (app *Application) cmdAPI(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("api", flag.ContinueOnError)
	fs.SetOutput(app.errOut)
	method := fs.String("X", http.MethodGet, "HTTP method")
	data := fs.String("d", "", "JSON request body")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return ErrUsage
	}
	path := fs.Arg(0)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body any
	if *data != "" {
		if !json.Valid([]byte(*data)) {
			return fmt.Errorf("%w: -d is not valid JSON", ErrUsage)
		}
		body = json.RawMessage(*data)
	}

	resp, err := app.client.Do(ctx, strings.ToUpper(*method), path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return authsdk.ParseErrorResponse(*method+" "+path, resp.StatusCode, raw)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		pretty.WriteByte('\n')
		_, err = pretty.WriteTo(app.out)
		return err
	}
	_, err = app.out.Write(raw)
	return err
}

func (app *Application) cmdWatch(ctx context.Context, _ []string) error {
	offIn := app.manager.OnLoggedIn(func(p authsdk.Profile) {
		_, _ = fmt.Fprintf(app.out, "%s logged in as %s\n", time.Now().Format(time.TimeOnly), p.Username)
	})
	defer offIn()

	offOut := app.manager.OnLoggedOut(func() {
		_, _ = fmt.Fprintf(app.out, "%s logged out\n", time.Now().Format(time.TimeOnly))
	})
	defer offOut()

	_, _ = fmt.Fprintf(app.out, "watching session (%s), Ctrl-C to stop\n", app.manager.State())
	<-ctx.Done()
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func relative(d time.Duration) string {
	d = d.Round(time.Second)
	if d < 0 {
		return (-d).String() + " ago"
	}
	return "in " + d.String()
}
