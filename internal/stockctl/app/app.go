package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/stockpanel/internal/credstore"
	"github.com/aussiebroadwan/stockpanel/internal/notify"
	"github.com/aussiebroadwan/stockpanel/internal/session"
	"github.com/aussiebroadwan/stockpanel/pkg/authsdk"
	"github.com/aussiebroadwan/stockpanel/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

var (
	ErrUsage         = errors.New("usage")
	ErrLoginRequired = errors.New("not logged in")
)

// Application wires the credential store, the session manager and the API
// client behind the stockctl commands.
type Application struct {
	cfg    Config
	logger *slog.Logger

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	store    *credstore.Store
	manager  *session.Manager
	client   *session.Client
	notifier session.Notifier
	nav      *navigator
}

// New creates an Application attached to the process's standard streams.
func New(cfg Config) (*Application, error) {
	return newApplication(cfg, os.Stdin, os.Stdout, os.Stderr)
}

func newApplication(cfg Config, in io.Reader, out, errOut io.Writer) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "stockctl",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  errOut,
		}),
		in:     in,
		out:    out,
		errOut: errOut,
		nav:    &navigator{w: errOut},
	}

	if err := app.initNotifier(); err != nil {
		return nil, err
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	app.initSession()
	return app, nil
}

// Run executes one command and shuts the application down afterwards.
func (app *Application) Run(args []string) error {
	defer func() {
		if err := app.Shutdown(); err != nil {
			app.logger.Error("shutdown failed", "error", err)
		}
	}()

	if len(args) == 0 {
		app.usage()
		return ErrUsage
	}

	cmd, ok := app.commands()[args[0]]
	if !ok {
		app.usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}

	// Stop on interrupt; watch relies on this to exit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.nav.protected = cmd.protected
	if err := app.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	if cmd.protected {
		if err := app.requireSession(ctx); err != nil {
			return err
		}
	}

	return cmd.run(ctx, args[1:])
}

// Shutdown stops background session work and closes the credential store.
func (app *Application) Shutdown() error {
	app.manager.Close()
	notify.FlushSentry()

	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing credential store", "error", err)
		return err
	}
	return nil
}

// requireSession runs the periodic check once, so an idle session expires
// and a token close to expiry is refreshed, then counts the command as
// activity.
func (app *Application) requireSession(ctx context.Context) error {
	app.manager.CheckSession(ctx)
	if !app.manager.IsAuthenticated() {
		// The delayed redirect won't outlive this process.
		if app.manager.State() == session.Expired {
			app.nav.ToLogin()
		}
		return ErrLoginRequired
	}
	return app.manager.RecordActivity(ctx)
}

func (app *Application) initNotifier() error {
	term := notify.NewTerminal(app.errOut, notify.DefaultBannerTTL)
	app.notifier = term

	if app.cfg.SentryDSN == "" {
		return nil
	}
	if err := notify.InitSentry(app.cfg.SentryDSN, app.cfg.Env, BuildVersion); err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	app.notifier = notify.NewSentry(term, nil)
	return nil
}

func (app *Application) initStore() error {
	backend, err := openBackend(context.Background(), app.cfg, app.logger)
	if err != nil {
		return err
	}
	app.store = credstore.New(backend, app.logger)
	return nil
}

func (app *Application) initSession() {
	logged := &http.Client{
		Timeout:   app.cfg.HTTPTimeout,
		Transport: &slogx.Transport{Base: http.DefaultTransport, Logger: app.logger},
	}
	auth := authsdk.NewSDKClient(app.cfg.BaseURL).WithHTTPClient(logged)
	if app.cfg.AuthPath != "" {
		auth.AuthPath = app.cfg.AuthPath
	}

	app.manager = session.NewManager(auth, app.store, app.logger, session.Config{
		InactivityTimeout: app.cfg.SessionTimeout,
		RefreshThreshold:  app.cfg.RefreshThreshold,
		Notifier:          app.notifier,
		Navigator:         app.nav,
	})

	app.client = session.NewClient(app.manager, session.ClientConfig{
		BaseURL:   app.cfg.BaseURL,
		Timeout:   app.cfg.HTTPTimeout,
		RateLimit: app.cfg.RateLimit,
		Logger:    app.logger,
	})
}

// navigator sends the user to the login command. Commands that need a
// session mark the current view as protected.
type navigator struct {
	w         io.Writer
	protected bool
}

func (n *navigator) RequiresSession() bool { return n.protected }

func (n *navigator) ToLogin() {
	_, _ = fmt.Fprintln(n.w, "Run `stockctl login` to sign in.")
}
