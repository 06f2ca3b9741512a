package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/MarkLark86/superdesk-planning/internal/application"
	"github.com/MarkLark86/superdesk-planning/internal/config"
	"github.com/MarkLark86/superdesk-planning/internal/logging"
	"github.com/MarkLark86/superdesk-planning/internal/persistence"
	"github.com/MarkLark86/superdesk-planning/internal/persistence/sqlite"
	"github.com/MarkLark86/superdesk-planning/internal/recurrence"
	"github.com/MarkLark86/superdesk-planning/internal/telemetry"
)

const serviceName = "planner"

const usage = `usage: planner <command> [flags]

commands:
  create   -file events.json            create events, expanding recurring templates
  update   -id ID -scope S -file c.json apply changes with scope single, future or all
  show     -id ID                       print one event
  series   -recurrence-id RID           print every event of a recurrence group
  history  -id ID                       print the audit trail of an event
  dates    -start T -freq F ...         preview the dates a rule generates
  outbox   [-limit N] [-ack]            list pending notifications`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "planner:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run loads configuration, opens storage and dispatches one command.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)

	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	shutdown, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := shutdown(shutdownCtx); serr != nil {
			logger.Error("failed to shut down tracing", "error", serr)
		}
	}()

	storage, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN), logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	app := newApp(cfg, storage, logger, uuid.NewString, time.Now)
	app.stdin = stdin
	app.stdout = stdout
	return app.dispatch(ctx, args)
}

type app struct {
	storage  *sqlite.Storage
	service  *application.EventService
	expander *application.SeriesExpander
	now      func() time.Time
	logger   *slog.Logger
	stdin    io.Reader
	stdout   io.Writer
}

func newApp(cfg config.Config, storage *sqlite.Storage, logger *slog.Logger, idGenerator func() string, now func() time.Time) *app {
	expander := application.NewSeriesExpander(recurrence.NewEngine(cfg.MaxRecurrentEvents), idGenerator, cfg.Location)
	service := application.NewEventService(application.EventServiceDeps{
		Store:       newEventStoreAdapter(storage.Events, storage.Series, now),
		Expander:    expander,
		Notifier:    newOutboxNotifier(storage.Notifications, now, logger),
		History:     newHistoryRecorderAdapter(storage.History, now),
		IDGenerator: idGenerator,
		Now:         now,
		Location:    cfg.Location,
		Logger:      logger,
	})
	return &app{
		storage:  storage,
		service:  service,
		expander: expander,
		now:      now,
		logger:   logger,
		stdin:    os.Stdin,
		stdout:   os.Stdout,
	}
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	command, rest := args[0], args[1:]
	ctx = logging.ContextWithLogger(ctx, a.logger.With("command", command))
	switch command {
	case "create":
		return a.create(ctx, rest)
	case "update":
		return a.update(ctx, rest)
	case "show":
		return a.show(ctx, rest)
	case "series":
		return a.series(ctx, rest)
	case "history":
		return a.history(ctx, rest)
	case "dates":
		return a.dates(rest)
	case "outbox":
		return a.outbox(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

type principalFlags struct {
	user  string
	admin bool
}

func (p *principalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.user, "user", "planner-cli", "acting user id")
	fs.BoolVar(&p.admin, "admin", false, "act with administrator rights")
}

func (p principalFlags) principal() application.Principal {
	return application.Principal{
		UserID:     p.user,
		IsAdmin:    p.admin,
		Privileges: []string{application.PrivilegeEventManagement},
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := newFlagSet("create")
	var who principalFlags
	who.register(fs)
	file := fs.String("file", "-", "JSON event or array of events, - for stdin")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	raw, err := a.readInput(*file)
	if err != nil {
		return err
	}
	var events []application.Event
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var event application.Event
		if err := json.Unmarshal(trimmed, &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		events = append(events, event)
	} else if err := json.Unmarshal(raw, &events); err != nil {
		return fmt.Errorf("decode events: %w", err)
	}

	created, err := a.service.CreateEvents(ctx, application.CreateEventsParams{
		Principal: who.principal(),
		Events:    events,
	})
	if err != nil {
		return describeError(err)
	}
	return a.writeJSON(created)
}

type updateOutput struct {
	Affected     []string `json:"affected"`
	RecurrenceID string   `json:"recurrence_id,omitempty"`
}

func (a *app) update(ctx context.Context, args []string) error {
	fs := newFlagSet("update")
	var who principalFlags
	who.register(fs)
	id := fs.String("id", "", "event id")
	scopeFlag := fs.String("scope", "single", "single, future or all")
	file := fs.String("file", "-", "JSON changes document, - for stdin")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: update: -id is required", errUsage)
	}
	scope, err := application.ParseUpdateScope(*scopeFlag)
	if err != nil {
		return describeError(err)
	}

	raw, err := a.readInput(*file)
	if err != nil {
		return err
	}
	var changes application.EventChanges
	if err := json.Unmarshal(raw, &changes); err != nil {
		return fmt.Errorf("decode changes: %w", err)
	}

	result, err := a.service.UpdateEvent(ctx, application.UpdateEventParams{
		Principal: who.principal(),
		EventID:   *id,
		Changes:   changes,
		Scope:     scope,
	})
	var partial *application.PartialUpdateError
	if errors.As(err, &partial) {
		a.logger.Warn("update applied partially", "updated", partial.Updated, "pending", partial.Pending)
	}
	if err != nil {
		return describeError(err)
	}
	return a.writeJSON(updateOutput{Affected: result.Affected, RecurrenceID: result.RecurrenceID})
}

func (a *app) show(ctx context.Context, args []string) error {
	fs := newFlagSet("show")
	id := fs.String("id", "", "event id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: show: -id is required", errUsage)
	}
	model, err := a.storage.Events.GetEvent(ctx, *id)
	if err != nil {
		return describeError(err)
	}
	return a.writeJSON(toApplicationEvent(model))
}

type seriesOutput struct {
	RecurrenceID string              `json:"recurrence_id"`
	Rule         *recurrence.Rule    `json:"recurring_rule,omitempty"`
	Events       []application.Event `json:"events"`
}

func (a *app) series(ctx context.Context, args []string) error {
	fs := newFlagSet("series")
	recurrenceID := fs.String("recurrence-id", "", "recurrence group id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *recurrenceID == "" {
		return fmt.Errorf("%w: series: -recurrence-id is required", errUsage)
	}

	models, err := a.storage.Events.ListEventsByField(ctx, string(application.FieldRecurrenceID), *recurrenceID)
	if err != nil {
		return describeError(err)
	}
	out := seriesOutput{RecurrenceID: *recurrenceID, Events: make([]application.Event, 0, len(models))}
	for _, model := range models {
		out.Events = append(out.Events, toApplicationEvent(model))
	}

	stored, err := a.storage.Recurrences.GetRecurrence(ctx, *recurrenceID)
	switch {
	case err == nil:
		rule := toRecurrenceRule(stored)
		out.Rule = &rule
	case !errors.Is(err, persistence.ErrNotFound):
		return describeError(err)
	}
	return a.writeJSON(out)
}

type historyOutput struct {
	Operation string          `json:"operation"`
	UserID    string          `json:"user_id,omitempty"`
	Update    json.RawMessage `json:"update"`
	CreatedAt time.Time       `json:"_created"`
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := newFlagSet("history")
	id := fs.String("id", "", "event id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: history: -id is required", errUsage)
	}
	entries, err := a.storage.History.ListHistory(ctx, *id)
	if err != nil {
		return describeError(err)
	}
	out := make([]historyOutput, 0, len(entries))
	for _, entry := range entries {
		out = append(out, historyOutput{
			Operation: entry.Operation,
			UserID:    entry.UserID,
			Update:    json.RawMessage(entry.Update),
			CreatedAt: entry.CreatedAt,
		})
	}
	return a.writeJSON(out)
}

type occurrenceOutput struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// dates previews a rule through the same expander used on create.
func (a *app) dates(args []string) error {
	fs := newFlagSet("dates")
	start := fs.String("start", "", "first occurrence, RFC 3339")
	duration := fs.Duration("duration", time.Hour, "length of each occurrence")
	tz := fs.String("tz", "", "IANA timezone the rule is evaluated in")
	freq := fs.String("freq", "DAILY", "DAILY, WEEKLY, MONTHLY or YEARLY")
	interval := fs.Int("interval", 1, "repeat every N periods")
	byDay := fs.String("byday", "", "weekday tokens such as MO WE or 2TU")
	count := fs.Int("count", 0, "stop after N occurrences")
	until := fs.String("until", "", "stop at this instant, RFC 3339")
	strict := fs.Bool("strict", false, "fail instead of truncating at the occurrence limit")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	startTime, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return fmt.Errorf("%w: dates: -start: %v", errUsage, err)
	}
	rule := recurrence.Rule{
		Frequency: recurrence.Frequency(strings.ToUpper(*freq)),
		Interval:  recurrence.Every(*interval),
		ByDay:     *byDay,
		Count:     *count,
	}
	if *until != "" {
		untilTime, err := time.Parse(time.RFC3339, *until)
		if err != nil {
			return fmt.Errorf("%w: dates: -until: %v", errUsage, err)
		}
		rule.Until = &untilTime
	}

	template := application.Event{Dates: application.EventDates{
		Start:         startTime,
		End:           startTime.Add(*duration),
		Timezone:      *tz,
		RecurringRule: &rule,
	}}
	expand := a.expander.Expand
	if *strict {
		expand = a.expander.ExpandStrict
	}
	instances, err := expand(template)
	if err != nil {
		return describeError(err)
	}
	out := make([]occurrenceOutput, 0, len(instances))
	for _, instance := range instances {
		out = append(out, occurrenceOutput{Start: instance.Dates.Start, End: instance.Dates.End})
	}
	return a.writeJSON(out)
}

type notificationOutput struct {
	ID        int64             `json:"id"`
	EventType string            `json:"event"`
	SubjectID string            `json:"item,omitempty"`
	ActorID   string            `json:"user,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
	CreatedAt time.Time         `json:"_created"`
}

// outbox lists queued notifications and optionally marks them delivered.
func (a *app) outbox(ctx context.Context, args []string) error {
	fs := newFlagSet("outbox")
	limit := fs.Int("limit", 100, "maximum notifications to list")
	ack := fs.Bool("ack", false, "mark the listed notifications delivered")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	pending, err := a.storage.Notifications.ListPendingNotifications(ctx, *limit)
	if err != nil {
		return describeError(err)
	}
	out := make([]notificationOutput, 0, len(pending))
	ids := make([]int64, 0, len(pending))
	for _, n := range pending {
		out = append(out, notificationOutput{
			ID:        n.ID,
			EventType: n.EventType,
			SubjectID: n.SubjectID,
			ActorID:   n.ActorID,
			Extra:     n.Extra,
			CreatedAt: n.CreatedAt,
		})
		ids = append(ids, n.ID)
	}
	if *ack && len(ids) > 0 {
		if err := a.storage.Notifications.MarkNotificationsDelivered(ctx, ids, a.now().UTC()); err != nil {
			return describeError(err)
		}
		a.logger.Info("notifications delivered", "count", len(ids))
	}
	return a.writeJSON(out)
}

func (a *app) readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (a *app) writeJSON(value any) error {
	encoder := json.NewEncoder(a.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// describeError expands validation failures so the operator sees each field.
func describeError(err error) error {
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) || !vErr.HasErrors() {
		return err
	}
	fields := make([]string, 0, len(vErr.FieldErrors))
	for field, message := range vErr.FieldErrors {
		fields = append(fields, field+": "+message)
	}
	sort.Strings(fields)
	return fmt.Errorf("%w: %s", err, strings.Join(fields, "; "))
}

func toRecurrenceRule(model persistence.RecurrenceRule) recurrence.Rule {
	return recurrence.Rule{
		Frequency:     recurrence.Frequency(model.Frequency),
		Interval:      recurrence.Every(model.Interval),
		ByDay:         model.ByDay,
		EndRepeatMode: recurrence.EndRepeatMode(model.EndRepeatMode),
		Count:         model.Count,
		Until:         cloneTime(model.Until),
	}
}
