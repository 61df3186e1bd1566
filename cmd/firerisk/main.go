package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/lox/firerisk/internal/alerts"
	"github.com/lox/firerisk/internal/api"
	"github.com/lox/firerisk/internal/chat"
	"github.com/lox/firerisk/internal/dashboard"
	"github.com/lox/firerisk/internal/logging"
	"github.com/lox/firerisk/internal/models"
	"github.com/lox/firerisk/internal/risk"
	"github.com/lox/firerisk/internal/selection"
	"github.com/lox/firerisk/internal/store"
	"github.com/lox/firerisk/internal/upstream"
	"github.com/lox/firerisk/internal/views"
)

// Globals are shared by every command.
type Globals struct {
	UpstreamURL string `name:"upstream-url" env:"UPSTREAM_URL" default:"${default_upstream_url}" help:"Base URL of the fire data API."`
	Timezone    string `name:"tz" env:"TZ" default:"America/Los_Angeles" help:"Timezone for timestamps and alert days."`
	BoundaryKey string `env:"BOUNDARY_KEY" default:"name" help:"GeoJSON property holding the county name."`
	ColorPolicy string `env:"COLOR_POLICY" default:"level" enum:"level,score" help:"Which signal colours a county when both exist."`
	LogLevel    string `env:"LOG_LEVEL" default:"info" help:"Log level."`
	LogFormat   string `env:"LOG_FORMAT" default:"text" enum:"text,json" help:"Log format."`
}

func (g *Globals) location() *time.Location {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		logrus.WithError(err).Warnf("could not load %s timezone, using UTC", g.Timezone)
		return time.UTC
	}
	return loc
}

func (g *Globals) policy() risk.Policy {
	p, _ := risk.ParsePolicy(g.ColorPolicy)
	return p
}

type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" default:"withargs" help:"Run the dashboard server (default)."`
	Snapshot SnapshotCmd `cmd:"" help:"Fetch once and print the ranked county list."`
	Classify ClassifyCmd `cmd:"" help:"Classify a risk score or danger level."`
}

type ServeCmd struct {
	Addr         string        `env:"LISTEN_ADDR" default:":8080" help:"HTTP listen address."`
	HoverPolicy  string        `env:"HOVER_POLICY" default:"hover" enum:"hover,click" help:"Whether hover or click decides the active county."`
	TickInterval time.Duration `env:"TICK_INTERVAL" default:"1m" help:"How often staleness text is re-rendered."`
	DBPath       string        `name:"db" env:"DB_PATH" default:"data/firerisk.db" help:"SQLite database for alert subscriptions. Empty disables alerts."`

	SMTPHost     string `name:"smtp-host" env:"SMTP_HOST" help:"SMTP relay host. Alerts are logged instead of mailed when unset."`
	SMTPPort     int    `name:"smtp-port" env:"SMTP_PORT" default:"587"`
	SMTPUsername string `name:"smtp-username" env:"SMTP_USERNAME"`
	SMTPPassword string `name:"smtp-password" env:"SMTP_PASSWORD"`
	SMTPFrom     string `name:"smtp-from" env:"SMTP_FROM"`

	OpenAIKey   string `name:"openai-api-key" env:"OPENAI_API_KEY" help:"Enables the assistant chat backend."`
	OpenAIModel string `name:"openai-model" env:"OPENAI_MODEL" default:"gpt-4o-mini"`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc := g.location()
	policy := g.policy()
	hover, _ := selection.ParseHoverPolicy(c.HoverPolicy)
	client := upstream.NewClient(g.UpstreamURL, loc)

	session := dashboard.New(client, dashboard.Options{
		BoundaryKey:  g.BoundaryKey,
		HoverPolicy:  hover,
		ColorPolicy:  policy,
		TickInterval: c.TickInterval,
		Location:     loc,
	})
	defer session.Close()
	session.OnSelectionChange(func(ch selection.Change) {
		logrus.WithFields(logrus.Fields{"from": ch.From, "to": ch.To, "source": ch.Source}).Debug("active county changed")
	})
	logrus.WithField("upstream", client.BaseURL()).Info("using fire data API")

	cfg := api.Config{Addr: c.Addr}

	if c.DBPath != "" {
		st, closeDB, err := openStore(c.DBPath, loc)
		if err != nil {
			return err
		}
		defer closeDB()
		cfg.Subscriptions = st

		notifier := alerts.NewNotifier(st, c.mailer(), nil, policy)
		session.OnFireData(func(ctx context.Context, records []models.CountyRiskRecord) {
			if _, err := notifier.Evaluate(ctx, records); err != nil {
				logrus.WithError(err).Warn("alert evaluation failed")
			}
		})
	} else {
		logrus.Info("no database configured, alerts disabled")
	}

	if c.OpenAIKey != "" {
		assistant, err := chat.NewAssistant(c.OpenAIKey, c.OpenAIModel, session.Records, policy)
		if err != nil {
			return err
		}
		cfg.Chat = assistant
	} else {
		cfg.Chat = chat.NewPassthrough(client)
	}
	logrus.WithField("backend", cfg.Chat.Name()).Info("chat configured")

	if err := session.Start(); err != nil {
		return err
	}
	return api.NewServer(session, cfg).Run(ctx)
}

func (c *ServeCmd) mailer() alerts.Mailer {
	smtpCfg := alerts.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
	}
	if !smtpCfg.Enabled() {
		logrus.Warn("SMTP not configured, alerts will only be logged")
		return alerts.NewLogMailer()
	}
	return alerts.NewSMTPMailer(smtpCfg)
}

func openStore(path string, loc *time.Location) (*store.Store, func(), error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	logrus.WithField("path", path).Info("database migrated")
	return st, func() { db.Close() }, nil
}

type SnapshotCmd struct {
	Timeout time.Duration `default:"30s" help:"Give up after this long."`
	Refresh bool          `help:"Ask the upstream to recompute before fetching."`
}

func (c *SnapshotCmd) Run(g *Globals) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	client := upstream.NewClient(g.UpstreamURL, g.location())
	session := dashboard.New(client, dashboard.Options{
		BoundaryKey: g.BoundaryKey,
		ColorPolicy: g.policy(),
		Location:    g.location(),
	})
	defer session.Close()

	var err error
	if c.Refresh {
		_, err = session.Refresh(ctx)
	} else {
		err = session.Load(ctx)
	}
	in := session.Input()
	if !in.Fire.Loaded {
		return fmt.Errorf("fetch fire data: %w", err)
	}
	if err != nil {
		logrus.WithError(err).Warn("snapshot incomplete")
	}

	status := views.Status(in, session.Epoch())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RANK\tCOUNTY\tLEVEL\tSCORE\tON MAP\n")
	for _, e := range views.Ranked(in).Entries {
		score := "-"
		if e.Score.Valid {
			score = strconv.FormatFloat(e.Score.Float64, 'f', 1, 64)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", e.Rank, e.County, e.Level, score, e.OnMap)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d counties, updated %s\n", status.Counties, status.Updated)
	if status.Notice != "" {
		fmt.Println(status.Notice)
	}
	return nil
}

type ClassifyCmd struct {
	Values []string `arg:"" help:"Risk scores (0-10) or qualitative levels such as \"Very High\"."`
}

func (c *ClassifyCmd) Run(g *Globals) error {
	for _, v := range c.Values {
		var band risk.Band
		if score, err := strconv.ParseFloat(v, 64); err == nil {
			band = risk.Resolve("", models.Float(score), g.policy())
		} else if _, ok := risk.ParseLevel(v); ok {
			band = risk.Resolve(v, models.OptionalFloat{}, g.policy())
		} else {
			return fmt.Errorf("%q is neither a score nor a known level", v)
		}
		fmt.Printf("%s\t%s\t%s\n", v, band.Label, band.Color)
	}
	return nil
}

func cliOptions() []kong.Option {
	return []kong.Option{
		kong.Name("firerisk"),
		kong.Description("California county fire risk dashboard."),
		kong.UsageOnError(),
		kong.Vars{"default_upstream_url": upstream.DefaultBaseURL},
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli, cliOptions()...)
	if err := logging.Setup(cli.LogLevel, cli.LogFormat); err != nil {
		ctx.FatalIfErrorf(err)
	}
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
