// Package lifecycle owns the single in-flight migration of a client session:
// starting it through the upload relay, polling upstream jobs, cancellation,
// and reconciling the outcome into the local and remote history.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/relay"
	"github.com/kuhlman-labs/migration-accelerator/internal/worker"
)

// Phase is the controller state.
type Phase string

// Controller phases. COMPLETING, CANCELLING and FAILING are held only while
// a terminal transition is written.
const (
	PhaseIdle       Phase = "IDLE"
	PhaseStarting   Phase = "STARTING"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseCompleting Phase = "COMPLETING"
	PhaseCancelling Phase = "CANCELLING"
	PhaseFailing    Phase = "FAILING"
	PhaseSuccess    Phase = "SUCCESS"
	PhaseCancelled  Phase = "CANCELLED"
	PhaseFailed     Phase = "FAILED"
)

// IsTerminal reports whether p is SUCCESS, CANCELLED or FAILED
func (p Phase) IsTerminal() bool {
	return p == PhaseSuccess || p == PhaseCancelled || p == PhaseFailed
}

func terminalPhase(status models.MigrationStatus) Phase {
	switch status {
	case models.StatusSuccess:
		return PhaseSuccess
	case models.StatusCancelled:
		return PhaseCancelled
	default:
		return PhaseFailed
	}
}

// Default timings.
const (
	DefaultPollInterval  = 2 * time.Second
	DefaultPollTimeout   = 600 * time.Second
	DefaultUploadTimeout = 300 * time.Second
	DefaultTickInterval  = time.Second

	defaultMirrorTimeout = 30 * time.Second
)

// Options configures a Controller
type Options struct {
	Cache    *LocalCache
	Store    RecordStore // mirror of the history; optional
	Uploader Uploader
	User     models.SessionUser
	Notifier Notifier // optional
	Logger   *slog.Logger

	// Clock defaults to time.Now
	Clock func() time.Time
	// NewID defaults to random UUIDs
	NewID func() string

	PollInterval  time.Duration
	PollTimeout   time.Duration
	UploadTimeout time.Duration
	TickInterval  time.Duration
	MirrorTimeout time.Duration

	// OnTick receives the current record about once per TickInterval while
	// a migration is in progress. It runs on the ticker goroutine and must
	// not call back into the Controller.
	OnTick func(rec models.MigrationRecord, now time.Time)
}

// StartRequest describes a migration to start
type StartRequest struct {
	File     io.Reader
	FileName string
	Options  models.UploadOptions
	Project  string
}

// Controller tracks one migration at a time for a session.
type Controller struct {
	cache         *LocalCache
	store         RecordStore
	uploader      Uploader
	user          models.SessionUser
	notifier      Notifier
	logger        *slog.Logger
	clock         func() time.Time
	newID         func() string
	pollInterval  time.Duration
	pollTimeout   time.Duration
	uploadTimeout time.Duration
	onTick        func(rec models.MigrationRecord, now time.Time)

	ticker *worker.Ticker
	outbox *outbox
	wg     sync.WaitGroup

	// live is read by the ticker without taking mu
	live atomic.Pointer[models.MigrationRecord]

	mu          sync.Mutex
	phase       Phase
	current     *models.MigrationRecord
	history     []models.MigrationRecord
	cancelRelay context.CancelFunc
	cancelled   bool
}

// New creates a controller. Call Recover before the first Start to load the
// cached state.
func New(opts Options) (*Controller, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("local cache is required")
	}
	if opts.Uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = DefaultUploadTimeout
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.MirrorTimeout <= 0 {
		opts.MirrorTimeout = defaultMirrorTimeout
	}

	c := &Controller{
		cache:         opts.Cache,
		store:         opts.Store,
		uploader:      opts.Uploader,
		user:          opts.User,
		notifier:      opts.Notifier,
		logger:        opts.Logger,
		clock:         opts.Clock,
		newID:         opts.NewID,
		pollInterval:  opts.PollInterval,
		pollTimeout:   opts.PollTimeout,
		uploadTimeout: opts.UploadTimeout,
		onTick:        opts.OnTick,
		outbox:        newOutbox(opts.MirrorTimeout),
		phase:         PhaseIdle,
		history:       []models.MigrationRecord{},
	}

	ticker, err := worker.NewTicker(worker.TickerConfig{
		Name:     "progress ticker",
		Func:     c.tick,
		Logger:   opts.Logger,
		Interval: opts.TickInterval,
		Clock:    opts.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create progress ticker: %w", err)
	}
	c.ticker = ticker

	return c, nil
}

// Recover loads the cached history and surfaces an in-progress migration
// left by a previous session. The relay is not called again; the record
// stays in progress until it is cancelled or SyncHistory sees it finish.
func (c *Controller) Recover(ctx context.Context) (*models.MigrationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	history, err := c.cache.History(ctx)
	if err != nil {
		return nil, err
	}
	c.history = history

	current, err := c.cache.Current(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	if current.Status != models.StatusInProgress {
		if err := c.cache.ClearCurrent(ctx); err != nil {
			c.logger.Warn("Failed to clear stale current migration", "error", err)
		}
		return nil, nil
	}

	c.logger.Info("Recovered in-progress migration", "execution_id", current.ExecutionID, "file", current.FileName)
	c.current = current
	c.cancelled = false
	c.phase = PhaseInProgress
	c.live.Store(current)
	c.upsertLocked(*current)
	c.persistHistoryLocked(ctx)
	c.startTickerLocked()

	rec := *current
	return &rec, nil
}

// Start begins a migration. It returns ErrBusy while another one is in
// progress, ErrProjectRequired without a project, a *PermissionError when
// the user may not upload or migrate and ErrProjectNotAccessible for a
// project the user is not assigned to. The project name is stored as the
// user's project list spells it. The relay call runs in the
// background; the returned record is the in-progress one.
func (c *Controller) Start(ctx context.Context, req StartRequest) (models.MigrationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseInProgress || c.phase == PhaseStarting || c.current != nil {
		return models.MigrationRecord{}, ErrBusy
	}
	project := strings.TrimSpace(req.Project)
	if project == "" {
		return models.MigrationRecord{}, ErrProjectRequired
	}
	for _, permission := range []string{models.PermissionUpload, models.PermissionMigrate} {
		if !c.user.HasPermission(permission) {
			return models.MigrationRecord{}, &PermissionError{Permission: permission}
		}
	}
	assigned, ok := c.user.Project(project)
	if !ok {
		return models.MigrationRecord{}, fmt.Errorf("%w: %s", ErrProjectNotAccessible, project)
	}
	project = assigned.Name
	if req.File == nil {
		return models.MigrationRecord{}, ErrNoFile
	}

	previous := c.phase
	c.phase = PhaseStarting

	now := c.clock()
	rec := models.MigrationRecord{
		ExecutionID: c.newID(),
		FileName:    filepath.Base(req.FileName),
		Status:      models.StatusInProgress,
		Project:     project,
		User:        c.user.Email,
		UserName:    c.user.Name,
		Timestamp:   now.UTC(),
		StartTime:   now.UnixMilli(),
		Message:     models.MessageInProgress,
	}
	if err := c.cache.SetCurrent(ctx, rec); err != nil {
		c.phase = previous
		return models.MigrationRecord{}, err
	}

	c.current = &rec
	c.cancelled = false
	c.live.Store(&rec)
	c.reconcileLocked(ctx, rec)

	// The relay call outlives the caller's request
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelRelay = cancel
	c.phase = PhaseInProgress
	c.startTickerLocked()

	c.logger.Info("Migration started",
		"execution_id", rec.ExecutionID,
		"file", rec.FileName,
		"project", rec.Project,
		"user", rec.User)

	c.wg.Add(1)
	go c.run(runCtx, cancel, rec.ExecutionID, req)

	return rec, nil
}

// Cancel aborts the in-progress migration. The cancelled record is written
// to the cache and history before the relay call unwinds. Calls while
// nothing is in progress, or after the first cancel, do nothing and report
// false.
func (c *Controller) Cancel(ctx context.Context) (models.MigrationRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseInProgress || c.current == nil || c.cancelled {
		return models.MigrationRecord{}, false
	}
	c.cancelled = true
	c.phase = PhaseCancelling

	final := c.current.Finalize(models.StatusCancelled, models.MessageCancelled, c.clock())
	c.finishLocked(ctx, final, true)

	c.logger.Info("Migration cancelled", "execution_id", final.ExecutionID)
	return final, true
}

// Current returns the in-progress record, if any
func (c *Controller) Current() (models.MigrationRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return models.MigrationRecord{}, false
	}
	return *c.current, true
}

// History returns a copy of the history, newest first
func (c *Controller) History() []models.MigrationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.MigrationRecord(nil), c.history...)
}

// Phase returns the controller state. After a migration ends it reports the
// terminal phase until the next Start.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Wait blocks until background relay calls and queued mirror writes are done
func (c *Controller) Wait() {
	c.wg.Wait()
	c.outbox.wait()
}

// SyncHistory pulls the record store and adopts every record that differs
// from the local copy. A terminal remote record for the current migration
// ends it. Local terminal records are never downgraded; they are written
// back instead.
func (c *Controller) SyncHistory(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	records, err := c.store.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync history: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	for _, remote := range records {
		if remote.ExecutionID == "" {
			continue
		}

		if c.current != nil && c.current.ExecutionID == remote.ExecutionID {
			if remote.Status.IsTerminal() {
				c.logger.Info("Current migration finished remotely",
					"execution_id", remote.ExecutionID,
					"status", remote.Status)
				c.cancelled = true
				c.finishLocked(ctx, remote, false)
			}
			continue
		}

		local, ok := c.findLocked(remote.ExecutionID)
		switch {
		case ok && local.Status.IsTerminal() && !remote.Status.IsTerminal():
			c.mirrorLocked(local)
		case ok && sameOutcome(local, remote):
		default:
			c.upsertLocked(remote)
			changed = true
		}
	}

	if changed {
		c.persistHistoryLocked(ctx)
	}
	return nil
}

func sameOutcome(a, b models.MigrationRecord) bool {
	return a.Status == b.Status &&
		a.Message == b.Message &&
		a.ProjectName() == b.ProjectName() &&
		a.FileName == b.FileName &&
		(a.EndTime == nil) == (b.EndTime == nil)
}

// run performs the relay call and hands its outcome to the controller
func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, executionID string, req StartRequest) {
	defer c.wg.Done()
	defer cancel()

	uploadCtx, cancelUpload := context.WithTimeout(ctx, c.uploadTimeout)
	payload, err := c.uploader.Upload(uploadCtx, req.File, req.FileName, req.Options)
	cancelUpload()

	if err != nil {
		c.onRelayError(ctx, executionID, err)
		return
	}
	c.onRelayResult(ctx, executionID, payload)
}

// onRelayResult interprets a successful relay answer
func (c *Controller) onRelayResult(ctx context.Context, executionID string, payload json.RawMessage) {
	result, err := relay.ParseResult(payload)
	if err != nil {
		var unexpected *relay.UnexpectedResponseError
		message := err.Error()
		if errors.As(err, &unexpected) {
			message = "Unexpected response from server: " + unexpected.Payload
		}
		c.settle(executionID, models.StatusFailed, message, nil)
		return
	}

	switch r := result.(type) {
	case relay.ImmediateResult:
		c.settle(executionID, models.StatusSuccess, models.MessageSucceeded, r.Payload)
	case relay.JobHandle:
		c.logger.Info("Polling upstream job", "execution_id", executionID, "job_id", r.ID)
		c.pollJob(ctx, executionID, r.ID)
	}
}

// onRelayError folds a relay failure into FAILED. Cancellation is not a
// failure: Cancel already wrote the terminal record.
func (c *Controller) onRelayError(ctx context.Context, executionID string, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil || c.isCancelled(executionID) {
		c.logger.Debug("Relay call aborted", "execution_id", executionID)
		return
	}

	message := err.Error()
	if relay.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		message = models.MessageUploadTimeout
	}
	c.logger.Warn("Migration failed", "execution_id", executionID, "error", err)
	c.settle(executionID, models.StatusFailed, message, nil)
}

func (c *Controller) isCancelled(executionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled || c.current == nil || c.current.ExecutionID != executionID
}

// settle moves the current record to a terminal status. Outcomes for a
// record that is no longer current are dropped.
func (c *Controller) settle(executionID string, status models.MigrationStatus, message string, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelled || c.current == nil || c.current.ExecutionID != executionID {
		c.logger.Debug("Dropping late relay outcome", "execution_id", executionID, "status", status)
		return
	}

	if status == models.StatusSuccess {
		c.phase = PhaseCompleting
	} else {
		c.phase = PhaseFailing
	}

	final := c.current.Finalize(status, message, c.clock())
	if len(data) > 0 {
		final.ResultData = data
	}
	c.finishLocked(context.Background(), final, true)

	c.logger.Info("Migration finished",
		"execution_id", final.ExecutionID,
		"status", final.Status,
		"duration_ms", *final.Duration)
}

// finishLocked clears the current slot and records final in history
func (c *Controller) finishLocked(ctx context.Context, final models.MigrationRecord, notify bool) {
	if c.cancelRelay != nil {
		c.cancelRelay()
		c.cancelRelay = nil
	}
	c.current = nil
	c.live.Store(nil)
	c.stopTickerLocked()

	if err := c.cache.ClearCurrent(ctx); err != nil {
		c.logger.Warn("Failed to clear current migration", "execution_id", final.ExecutionID, "error", err)
	}
	c.reconcileLocked(ctx, final)
	c.phase = terminalPhase(final.Status)

	if notify {
		c.notifyLocked(ctx, final)
	}
}

// reconcileLocked upserts rec into history by execution id, persists the
// history and queues a best-effort mirror write.
func (c *Controller) reconcileLocked(ctx context.Context, rec models.MigrationRecord) {
	c.upsertLocked(rec)
	c.persistHistoryLocked(ctx)
	c.mirrorLocked(rec)
}

func (c *Controller) upsertLocked(rec models.MigrationRecord) {
	c.history = upsertRecord(c.history, rec)
}

func (c *Controller) persistHistoryLocked(ctx context.Context) {
	if err := c.cache.SaveHistory(ctx, c.history); err != nil {
		c.logger.Warn("Failed to persist migration history", "error", err)
	}
}

func (c *Controller) mirrorLocked(rec models.MigrationRecord) {
	if c.store == nil {
		return
	}
	c.outbox.add(func(ctx context.Context) {
		if err := c.store.SaveRecord(ctx, rec); err != nil {
			c.logger.Warn("Failed to mirror migration record",
				"execution_id", rec.ExecutionID,
				"status", rec.Status,
				"error", err)
		}
	})
}

func (c *Controller) notifyLocked(ctx context.Context, rec models.MigrationRecord) {
	if c.notifier == nil {
		return
	}
	prefs, err := c.cache.Preferences(ctx)
	if err != nil {
		c.logger.Warn("Failed to read preferences", "error", err)
	}
	if !prefs.WantsEmail() {
		return
	}
	c.outbox.add(func(ctx context.Context) {
		if err := c.notifier.NotifyMigration(ctx, rec); err != nil {
			c.logger.Warn("Failed to send migration notification", "execution_id", rec.ExecutionID, "error", err)
		}
	})
}

func (c *Controller) findLocked(executionID string) (models.MigrationRecord, bool) {
	for _, rec := range c.history {
		if rec.ExecutionID == executionID {
			return rec, true
		}
	}
	return models.MigrationRecord{}, false
}

func (c *Controller) startTickerLocked() {
	if c.onTick == nil || c.ticker.Running() {
		return
	}
	if err := c.ticker.Start(context.Background()); err != nil {
		c.logger.Warn("Failed to start progress ticker", "error", err)
	}
}

func (c *Controller) stopTickerLocked() {
	if c.ticker.Running() {
		_ = c.ticker.Stop()
	}
}

func (c *Controller) tick(_ context.Context, now time.Time) {
	rec := c.live.Load()
	if rec == nil || c.onTick == nil {
		return
	}
	c.onTick(*rec, now)
}

// upsertRecord replaces the record with rec's execution id or adds rec, and
// keeps the list ordered newest first.
func upsertRecord(records []models.MigrationRecord, rec models.MigrationRecord) []models.MigrationRecord {
	out := make([]models.MigrationRecord, 0, len(records)+1)
	replaced := false
	for _, existing := range records {
		if existing.ExecutionID == rec.ExecutionID {
			out = append(out, rec)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append([]models.MigrationRecord{rec}, out...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime > out[j].StartTime
	})
	return out
}
