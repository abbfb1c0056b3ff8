package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"fintrack/internal/analytics"
	"fintrack/internal/cli"
	"fintrack/internal/client"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

const usage = `usage: fintrack-client <command> [flags]

commands:
  register   -name -email -password
  login      -email -password
  list       -user [-frequency N|all] [-type all|income|expense]
  analytics  -user [-frequency N|all] [-type all|income|expense]
  add        -user -amount -type -category -date [-description]
  edit       -user -id -amount -type -category -date [-description]
  delete     -user -id
  history    -user -id

FINTRACK_API_URL selects the server; FINTRACK_USER_ID is the default -user.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	cfg := config.Load()
	logger := log.New(log.Config{Level: cfg.Level(), Component: log.ComponentClient, Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewAPIClient(cfg.APIURL, client.WithTimeout(15*time.Second))
	app := &app{api: api, logger: logger, out: os.Stdout}

	if err := app.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		var ve *core.ValidationError
		switch {
		case errors.As(err, &ve):
			fmt.Fprintf(os.Stderr, "invalid %s: %s\n", ve.Field, ve.Reason)
		case errors.Is(err, core.ErrUnauthenticated):
			fmt.Fprintln(os.Stderr, "not logged in: pass -user or set FINTRACK_USER_ID (see `fintrack-client login`)")
		case errors.Is(err, core.ErrStoreUnavailable):
			fmt.Fprintln(os.Stderr, "server unavailable, try again later")
		default:
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

type app struct {
	api    *client.APIClient
	logger *log.Logger
	out    io.Writer
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	var (
		user        = fs.String("user", os.Getenv("FINTRACK_USER_ID"), "user id")
		name        = fs.String("name", "", "display name")
		email       = fs.String("email", "", "email address")
		password    = fs.String("password", "", "password")
		frequency   = fs.String("frequency", fmt.Sprint(client.DefaultFrequency), "days to look back, or all")
		typ         = fs.String("type", string(core.TypeAll), "all, income or expense")
		id          = fs.String("id", "", "transaction id")
		amount      = fs.String("amount", "", "amount, e.g. 12.50")
		category    = fs.String("category", "", "one of "+categoryList())
		date        = fs.String("date", time.Now().Format(core.DateLayout), "date as YYYY-MM-DD")
		description = fs.String("description", "", "optional note")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess := core.Session{UserID: strings.TrimSpace(*user)}

	switch cmd {
	case "register":
		u, err := a.api.Register(ctx, core.Registration{Name: *name, Email: *email, Password: *password})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "registered %s <%s>\nexport FINTRACK_USER_ID=%s\n", u.Name, u.Email, u.ID)
		return nil

	case "login":
		u, err := a.api.Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "welcome back %s\nexport FINTRACK_USER_ID=%s\n", u.Name, u.ID)
		return nil

	case "list", "analytics":
		f, err := core.ParseFilter(*frequency, *typ)
		if err != nil {
			return err
		}
		view := client.ViewTable
		if cmd == "analytics" {
			view = client.ViewAnalytics
		}
		c := client.NewController(a.api, sess, client.WithLogger(a.logger), client.WithInitialState(f, view))
		if err := c.Refresh(ctx); err != nil {
			return err
		}
		a.render(c.Snapshot())
		return nil

	case "add", "edit":
		in, err := client.ParseInput(*amount, *typ, *category, *date, *description)
		if err != nil {
			return err
		}
		c := client.NewController(a.api, sess, client.WithLogger(a.logger))
		if cmd == "add" {
			c.OpenAdd()
		} else {
			if strings.TrimSpace(*id) == "" {
				return &core.ValidationError{Field: "id", Reason: "is required"}
			}
			c.OpenEdit(core.Transaction{ID: *id, UserID: sess.UserID})
		}
		savedID, err := c.Submit(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "saved %s\n", savedID)
		a.render(c.Snapshot())
		return nil

	case "history":
		if strings.TrimSpace(*id) == "" {
			return &core.ValidationError{Field: "id", Reason: "is required"}
		}
		events, err := a.api.History(ctx, sess, *id)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintf(a.out, "no recorded changes for %s\n", *id)
			return nil
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tKIND\tEVENT")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.OccurredAt.Local().Format(time.DateTime), e.Kind, e.ID)
		}
		return tw.Flush()

	case "delete":
		if strings.TrimSpace(*id) == "" {
			return &core.ValidationError{Field: "id", Reason: "is required"}
		}
		c := client.NewController(a.api, sess, client.WithLogger(a.logger))
		err := c.Delete(ctx, *id)
		if errors.Is(err, core.ErrNotFound) {
			fmt.Fprintf(a.out, "%s was already gone\n", *id)
			err = nil
		}
		if err != nil {
			return err
		}
		a.render(c.Snapshot())
		return nil
	}

	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) render(s client.Snapshot) {
	fmt.Fprintf(a.out, "frequency=%s type=%s view=%s\n", s.Filter.Frequency, s.Filter.Type, s.View)
	if s.View == client.ViewAnalytics && s.Report != nil {
		renderReport(a.out, *s.Report)
		return
	}
	if len(s.Rows) == 0 {
		fmt.Fprintln(a.out, "no transactions")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tAMOUNT\tTYPE\tCATEGORY\tDESCRIPTION\tID")
	for _, tx := range s.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.Date, core.FormatAmount(tx.Amount), tx.Type, tx.Category, tx.Description, tx.ID)
	}
	_ = tw.Flush()
}

func renderReport(w io.Writer, r analytics.Report) {
	if r.Empty {
		fmt.Fprintln(w, "no transactions in this window")
		return
	}
	fmt.Fprintf(w, "transactions: %d (income %d, %.0f%% / expense %d, %.0f%%)\n",
		r.TotalCount, r.IncomeCount, r.IncomePercent, r.ExpenseCount, r.ExpensePercent)
	fmt.Fprintf(w, "turnover: %s (income %s, %.0f%% / expense %s, %.0f%%)\n",
		core.FormatAmount(r.TotalTurnover),
		core.FormatAmount(r.IncomeTurnover), r.IncomeTurnoverPercent,
		core.FormatAmount(r.ExpenseTurnover), r.ExpenseTurnoverPercent)

	section := func(title string, shares []analytics.CategoryShare) {
		if len(shares) == 0 {
			return
		}
		fmt.Fprintln(w, title)
		for _, s := range shares {
			fmt.Fprintf(w, "  %-12s %10s  %5.1f%%\n", s.Category, core.FormatAmount(s.Turnover), s.Percent)
		}
	}
	section("income by category:", r.IncomeByCategory)
	section("expense by category:", r.ExpenseByCategory)
}

func categoryList() string {
	names := make([]string, len(core.Categories))
	for i, c := range core.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
