// Command gestorctl is a terminal client for the expense manager backend.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/boddenberg/gestor-gastos-bfa/internal/config"
	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/cache"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/client"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/credstore"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/observability"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/resilience"
	"github.com/boddenberg/gestor-gastos-bfa/internal/ledger"
	"github.com/boddenberg/gestor-gastos-bfa/internal/service"
	"github.com/boddenberg/gestor-gastos-bfa/internal/session"

	"golang.org/x/term"
)

const usage = `Usage: gestorctl [-api <url>] [-db <path>] <command> [flags]

Commands:
  register   create an account and log in
  login      log in
  logout     end the session
  whoami     show the logged in user
  ledger     list movements with totals
  add        record an income or an expense
  contact    send a message to the team
`

var errNoSession = errors.New("no hay sesión iniciada: ejecutá gestorctl login")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("reading .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("gestorctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	apiURL := fs.String("api", cfg.GestorAPIURL, "Backend base URL")
	dbPath := fs.String("db", cfg.CredentialDBPath, "Path to the credential database")
	logLevel := fs.String("log-level", "error", "Log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() == 0 {
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("missing command")
	}
	cfg.GestorAPIURL = *apiURL
	cfg.CredentialDBPath = *dbPath
	cfg.LogLevel = *logLevel

	ctx := context.Background()
	a, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "register":
		return a.register(ctx, rest, stdin, stdout, stderr)
	case "login":
		return a.login(ctx, rest, stdin, stdout, stderr)
	case "logout":
		a.manager.Logout()
		fmt.Fprintln(stdout, "Sesión cerrada")
		return nil
	case "whoami":
		return a.whoami(ctx, stdout)
	case "ledger":
		return a.ledger(ctx, rest, stdout, stderr)
	case "add":
		return a.add(ctx, rest, stdout, stderr)
	case "contact":
		return a.contact(ctx, rest, stdout, stderr)
	}
	fmt.Fprint(stdout, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

// ============================================================
// Wiring
// ============================================================

type app struct {
	manager   *session.Manager
	store     *service.LedgerStore
	board     *service.Dashboard
	movements *service.MovementPipeline
	contacts  *service.ContactService
	close     func()
}

func wire(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := observability.NewLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	creds, err := credstore.OpenSQLite(ctx, cfg.CredentialDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	sess := session.New(creds, metrics, logger)
	cb := resilience.NewCircuitBreaker("gestor-api", cfg.Breaker.Resilience())
	public := &http.Client{Transport: client.NewAuthTransport(nil, nil), Timeout: cfg.HTTPTimeout}
	authed := &http.Client{Transport: client.NewAuthTransport(nil, sess), Timeout: cfg.HTTPTimeout}
	gestor := client.New(cfg.GestorAPIURL, public, authed, cb, metrics, logger)

	categories := cache.New[int64, []domain.Category](cfg.CategoryCacheTTL)
	store := service.NewLedgerStore(gestor, sess, categories, metrics, logger)
	sess.OnTeardown(store.Reset)

	return &app{
		manager:   session.NewManager(sess, gestor, logger),
		store:     store,
		board:     service.NewDashboard(store, metrics, logger).WithBalanceMemory(creds),
		movements: service.NewMovementPipeline(gestor, sess, store, metrics, logger),
		contacts:  service.NewContactService(gestor, logger),
		close: func() {
			categories.Close()
			creds.Close()
			logger.Sync()
		},
	}, nil
}

// restore brings back the persisted session and loads the ledger.
func (a *app) restore(ctx context.Context) error {
	if err := a.manager.Restore(ctx); err != nil {
		var unauthorized *domain.ErrUnauthorized
		if errors.As(err, &unauthorized) {
			return errors.New("la sesión expiró: ejecutá gestorctl login")
		}
		return err
	}
	if a.manager.Current().State != session.Authenticated {
		return errNoSession
	}
	return a.store.Load(ctx)
}

// ============================================================
// Commands
// ============================================================

func (a *app) register(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "Email")
	name := fs.String("name", "", "Display name (defaults to the email's local part)")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := passwordOrPrompt(*passwordFlag, stdin, stdout)
	if err != nil {
		return err
	}

	user, err := a.manager.Register(ctx, *email, password, *name)
	if err != nil {
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			return fmt.Errorf("%s: probá con gestorctl login", conflict.Error())
		}
		return err
	}
	fmt.Fprintf(stdout, "Cuenta creada. Hola, %s\n", user.Name)
	return nil
}

func (a *app) login(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "Email")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := passwordOrPrompt(*passwordFlag, stdin, stdout)
	if err != nil {
		return err
	}

	user, err := a.manager.Login(ctx, *email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Hola, %s\n", user.Name)
	return nil
}

func (a *app) whoami(ctx context.Context, stdout io.Writer) error {
	if err := a.manager.Restore(ctx); err != nil {
		return err
	}
	cur := a.manager.Current()
	if cur.State != session.Authenticated {
		fmt.Fprintln(stdout, "No hay sesión iniciada")
		return nil
	}
	fmt.Fprintf(stdout, "%s <%s>\n", cur.User.Name, cur.User.Email)
	return nil
}

func (a *app) ledger(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	from := fs.String("from", "", "First day (YYYY-MM-DD)")
	to := fs.String("to", "", "Last day (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var rng ledger.Range
	if *from != "" {
		d, err := domain.ParseDate(*from)
		if err != nil {
			return fmt.Errorf("invalid -from: %w", err)
		}
		rng.From = d
	}
	if *to != "" {
		d, err := domain.ParseDate(*to)
		if err != nil {
			return fmt.Errorf("invalid -to: %w", err)
		}
		rng.To = d
	}

	if err := a.restore(ctx); err != nil {
		return err
	}
	printView(stdout, a.board.View(rng))
	return nil
}

func (a *app) add(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(stderr)
	kind := fs.String("tipo", "", "ingreso or egreso")
	description := fs.String("concepto", "", "Description")
	category := fs.String("categoria", "", "Expense category name")
	amount := fs.String("monto", "", "Positive amount")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.restore(ctx); err != nil {
		return err
	}

	entry, err := a.movements.Submit(ctx, domain.MovementInput{
		Kind:         domain.Kind(strings.ToLower(strings.TrimSpace(*kind))),
		Description:  *description,
		CategoryName: *category,
		Amount:       *amount,
	})
	if err != nil {
		var validation *domain.ErrValidation
		if errors.As(err, &validation) && validation.Field == "categoria" {
			return fmt.Errorf("%s (disponibles: %s)", validation.Message, categoryNames(a.store.ExpenseCategories()))
		}
		return err
	}
	fmt.Fprintf(stdout, "Movimiento #%d registrado: %s %s %s\n", entry.ID, entry.Date, entry.Kind, entry.Amount.StringFixed(2))
	return nil
}

func (a *app) contact(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("contact", flag.ContinueOnError)
	fs.SetOutput(stderr)
	name := fs.String("nombre", "", "Your name")
	email := fs.String("email", "", "Your email")
	message := fs.String("mensaje", "", "Message")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.contacts.Submit(ctx, domain.ContactMessage{Name: *name, Email: *email, Message: *message}); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Mensaje enviado")
	return nil
}

// ============================================================
// Output
// ============================================================

func printView(w io.Writer, view service.LedgerView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FECHA\tCONCEPTO\tCATEGORÍA\tTIPO\tMONTO")
	for _, e := range view.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Date, e.Description, e.Category, e.Kind, e.Amount.StringFixed(2))
	}
	tw.Flush()

	fmt.Fprintf(w, "\nIngresos:   %s\n", view.Totals.Income.StringFixed(2))
	fmt.Fprintf(w, "Egresos:    %s\n", view.Totals.Expense.StringFixed(2))
	fmt.Fprintf(w, "Disponible: %s\n", view.Totals.Available.StringFixed(2))

	if len(view.Breakdown) > 0 {
		fmt.Fprintln(w, "\nEgresos por categoría:")
		for _, c := range view.Breakdown {
			fmt.Fprintf(w, "  %s: %s\n", c.Name, c.Amount.StringFixed(2))
		}
	}
	if view.OverdraftAlert {
		fmt.Fprintln(w, "\n¡Atención! El saldo disponible es negativo")
	}
}

func categoryNames(cats []domain.Category) string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// ============================================================
// Password input
// ============================================================

func passwordOrPrompt(flagValue string, stdin io.Reader, stdout io.Writer) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprint(stdout, "Password: ")
	password, err := readPassword(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(stdout)
	return password, nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// non-terminal input (pipes, tests)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
