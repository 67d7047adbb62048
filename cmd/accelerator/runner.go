package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/cache"
	"github.com/kuhlman-labs/migration-accelerator/internal/client"
	"github.com/kuhlman-labs/migration-accelerator/internal/config"
	"github.com/kuhlman-labs/migration-accelerator/internal/lifecycle"
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/worker"
	"github.com/urfave/cli/v3"
)

const defaultSyncInterval = 30 * time.Second

var errNotLoggedIn = errors.New("not logged in; run 'accelerator login' first")

// Runner holds the dependencies shared by the command actions
type Runner struct {
	config    *config.Config
	logger    *slog.Logger
	output    io.Writer
	openCache func(config.CacheConfig) (cache.Store, error)
}

// RunnerOpts configures a Runner
type RunnerOpts struct {
	Config *config.Config
	Logger *slog.Logger
	Output io.Writer
	// OpenCache defaults to cache.Open
	OpenCache func(config.CacheConfig) (cache.Store, error)
}

// NewRunner creates a Runner
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.OpenCache == nil {
		opts.OpenCache = cache.Open
	}
	return &Runner{
		config:    opts.Config,
		logger:    opts.Logger,
		output:    &lockedWriter{w: opts.Output},
		openCache: opts.OpenCache,
	}
}

// session is a logged-in user with a recovered controller
type session struct {
	store      cache.Store
	local      *lifecycle.LocalCache
	api        *client.API
	user       models.SessionUser
	controller *lifecycle.Controller
}

func (s *session) close() {
	s.controller.Wait()
	_ = s.store.Close()
}

func (r *Runner) openLocal() (cache.Store, *lifecycle.LocalCache, error) {
	store, err := r.openCache(r.config.Cache)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session cache: %w", err)
	}
	return store, lifecycle.NewLocalCache(store), nil
}

// openSession restores the saved login and the controller state
func (r *Runner) openSession(ctx context.Context, onTick func(models.MigrationRecord, time.Time)) (*session, error) {
	store, local, err := r.openLocal()
	if err != nil {
		return nil, err
	}

	user, token, err := local.Session(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if user == nil {
		_ = store.Close()
		return nil, errNotLoggedIn
	}

	api := client.NewAPI(r.config.Client.APIURL, r.logger)
	api.SetToken(token)

	controller, err := lifecycle.New(lifecycle.Options{
		Cache: local,
		Store: &lifecycle.FallbackStore{
			Primary:  client.NewRemoteStore(api, *user),
			Fallback: local,
			Logger:   r.logger,
		},
		Uploader:      client.NewUploader(r.config.Client.RelayURL, r.logger),
		User:          *user,
		Notifier:      client.NewEmailNotifier(api, user.Email),
		Logger:        r.logger,
		PollInterval:  r.config.Relay.PollInterval(),
		PollTimeout:   r.config.Relay.PollTimeout(),
		UploadTimeout: r.config.Relay.Timeout(),
		TickInterval:  time.Duration(r.config.Client.TickIntervalSeconds) * time.Second,
		OnTick:        onTick,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if _, err := controller.Recover(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to recover session: %w", err)
	}

	return &session{store: store, local: local, api: api, user: *user, controller: controller}, nil
}

// Login authenticates against the management API and saves the session
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	store, local, err := r.openLocal()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	api := client.NewAPI(r.config.Client.APIURL, r.logger)
	resp, err := api.Login(ctx, strings.TrimSpace(cmd.String("email")), cmd.String("password"))
	if err != nil {
		return err
	}
	if err := local.SetSession(ctx, resp.User, resp.Token); err != nil {
		return err
	}

	fmt.Fprintf(r.output, "Logged in as %s (%s)\n", resp.User.Name, resp.User.Email)
	return nil
}

// Logout forgets the saved session
func (r *Runner) Logout(ctx context.Context, _ *cli.Command) error {
	store, local, err := r.openLocal()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := local.ClearSession(ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.output, "Logged out")
	return nil
}

// Start uploads a package and blocks until the migration ends. An interrupt
// cancels the migration.
func (r *Runner) Start(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return lifecycle.ErrNoFile
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open package: %w", err)
	}
	defer func() { _ = file.Close() }()

	s, err := r.openSession(ctx, func(rec models.MigrationRecord, now time.Time) {
		fmt.Fprintf(r.output, "\r%s", lifecycle.ProgressLabel(rec, now))
	})
	if err != nil {
		return err
	}
	defer s.close()

	project := cmd.String("project")
	if project == "" && len(s.user.Projects) == 1 {
		project = s.user.Projects[0].Name
	}

	rec, err := s.controller.Start(ctx, lifecycle.StartRequest{
		File:     file,
		FileName: filepath.Base(path),
		Project:  project,
		Options: models.UploadOptions{
			TargetEnvironment: cmd.String("target-env"),
			NamingConvention:  cmd.String("naming"),
			GenerateReport:    cmd.Bool("report"),
			SendToClient:      cmd.Bool("send-to-client"),
		},
	})
	if lifecycle.IsPermissionError(err) {
		return fmt.Errorf("%w; ask an administrator for access", err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(r.output, "Started migration %s (%s)\n", rec.ExecutionID, rec.FileName)

	interrupted, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		s.controller.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-interrupted.Done():
		s.controller.Cancel(ctx)
		<-done
	}
	fmt.Fprintln(r.output)

	final := findRecord(s.controller.History(), rec.ExecutionID)
	r.printRecord(final)
	if final.Status == models.StatusFailed {
		return fmt.Errorf("migration failed: %s", final.Message)
	}
	return nil
}

// Cancel cancels the migration left in progress by another invocation
func (r *Runner) Cancel(ctx context.Context, _ *cli.Command) error {
	s, err := r.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer s.close()

	final, ok := s.controller.Cancel(ctx)
	if !ok {
		fmt.Fprintln(r.output, "No migration in progress")
		return nil
	}
	r.printRecord(final)
	return nil
}

// Watch follows a migration started by another invocation. It ends when a
// sync finds the record finished or on interrupt, which leaves the
// migration running.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, func(rec models.MigrationRecord, now time.Time) {
		fmt.Fprintf(r.output, "\r%s", lifecycle.ProgressLabel(rec, now))
	})
	if err != nil {
		return err
	}
	defer s.close()

	rec, ok := s.controller.Current()
	if !ok {
		fmt.Fprintln(r.output, "No migration in progress")
		return nil
	}

	interrupted, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	watchCtx, cancel := context.WithCancel(interrupted)
	defer cancel()

	interval := cmd.Duration("interval")
	go worker.NewSyncWorker(s.controller, interval, r.logger).Start(watchCtx)

	check := time.NewTicker(time.Second)
	defer check.Stop()
	for {
		select {
		case <-watchCtx.Done():
			fmt.Fprintln(r.output)
			return nil
		case <-check.C:
			if _, running := s.controller.Current(); running {
				continue
			}
			cancel()
			fmt.Fprintln(r.output)
			r.printRecord(findRecord(s.controller.History(), rec.ExecutionID))
			return nil
		}
	}
}

// Status prints the migration in progress
func (r *Runner) Status(ctx context.Context, _ *cli.Command) error {
	s, err := r.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer s.close()

	rec, ok := s.controller.Current()
	if !ok {
		fmt.Fprintln(r.output, "No migration in progress")
		return nil
	}
	r.printRecord(rec)
	return nil
}

// History prints the local history, newest first
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer s.close()

	var filter models.MigrationStatus
	if value := cmd.String("status"); value != "" {
		if filter, err = models.ParseStatus(value); err != nil {
			return err
		}
	}

	records := make([]models.MigrationRecord, 0)
	for _, rec := range s.controller.History() {
		if filter != "" && rec.Status != filter {
			continue
		}
		records = append(records, rec)
		if limit := cmd.Int("limit"); limit > 0 && len(records) >= limit {
			break
		}
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(r.output)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(r.output, "No migrations yet")
		return nil
	}

	now := time.Now()
	tw := tabwriter.NewWriter(r.output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tFILE\tPROJECT\tSTATUS\tDURATION\tMESSAGE")
	for _, rec := range records {
		duration := rec.Duration
		if rec.Status == models.StatusInProgress {
			live := rec.Elapsed(now).Milliseconds()
			duration = &live
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Started().Local().Format("2006-01-02 15:04"),
			rec.FileName,
			rec.ProjectName(),
			lifecycle.StatusBadge(rec.Status).Label,
			lifecycle.FormattedDuration(duration),
			rec.Message)
	}
	return tw.Flush()
}

// Preferences applies the flags that were given and prints the result
func (r *Runner) Preferences(ctx context.Context, cmd *cli.Command) error {
	store, local, err := r.openLocal()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	prefs, err := local.Preferences(ctx)
	if err != nil {
		return err
	}

	changed := false
	for name, field := range map[string]**bool{
		"email-notifications":   &prefs.EmailNotifications,
		"browser-notifications": &prefs.BrowserNotifications,
		"auto-navigate":         &prefs.AutoNavigate,
	} {
		if cmd.IsSet(name) {
			value := cmd.Bool(name)
			*field = &value
			changed = true
		}
	}
	if changed {
		if err := local.SetPreferences(ctx, prefs); err != nil {
			return err
		}
	}

	fmt.Fprintf(r.output, "Email notifications:   %s\n", onOff(prefs.WantsEmail()))
	fmt.Fprintf(r.output, "Browser notifications: %s\n", onOff(prefs.WantsBrowser()))
	fmt.Fprintf(r.output, "Auto navigate:         %s\n", onOff(prefs.WantsAutoNavigate()))
	return nil
}

// Sync pulls the server history once, or until interrupted with --watch
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer s.close()

	if !cmd.Bool("watch") {
		if err := s.controller.SyncHistory(ctx); err != nil {
			return err
		}
		fmt.Fprintf(r.output, "Synced %d migrations\n", len(s.controller.History()))
		return nil
	}

	interrupted, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	worker.NewSyncWorker(s.controller, cmd.Duration("interval"), r.logger).Start(interrupted)
	return nil
}

// Report downloads the report of an upstream job through the relay. It
// needs no login; the relay holds the credentials.
func (r *Runner) Report(ctx context.Context, cmd *cli.Command) error {
	jobID := strings.TrimSpace(cmd.Args().First())
	if jobID == "" {
		return errors.New("a job id is required")
	}
	format := strings.ToLower(cmd.String("format"))
	if format != "json" && format != "csv" {
		return fmt.Errorf("unsupported report format %q: use json or csv", format)
	}

	uploader := client.NewUploader(r.config.Client.RelayURL, r.logger)
	report, err := uploader.Report(ctx, jobID, format)
	if client.IsNotFound(err) {
		return fmt.Errorf("no report found for job %s", jobID)
	}
	if err != nil {
		return err
	}

	path := cmd.String("out")
	if path == "" {
		_, err := r.output.Write(report)
		return err
	}
	if err := os.WriteFile(path, report, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(r.output, "Saved %s report for job %s to %s\n", format, jobID, path)
	return nil
}

func (r *Runner) printRecord(rec models.MigrationRecord) {
	badge := lifecycle.StatusBadge(rec.Status)
	fmt.Fprintf(r.output, "%s  %s  [%s]\n", rec.ExecutionID, rec.FileName, badge.Label)
	fmt.Fprintf(r.output, "  Project:  %s\n", rec.ProjectName())
	if rec.Status == models.StatusInProgress {
		fmt.Fprintf(r.output, "  %s\n", lifecycle.ProgressLabel(rec, time.Now()))
		return
	}
	fmt.Fprintf(r.output, "  Duration: %s\n", lifecycle.FormattedDuration(rec.Duration))
	fmt.Fprintf(r.output, "  %s\n", rec.Message)
}

func findRecord(records []models.MigrationRecord, executionID string) models.MigrationRecord {
	for _, rec := range records {
		if rec.ExecutionID == executionID {
			return rec
		}
	}
	return models.MigrationRecord{ExecutionID: executionID, Status: models.StatusPending}
}

// lockedWriter serializes writes from the progress ticker and the command
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
