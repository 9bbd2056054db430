// Package poller implements the background task-polling and
// credit-settlement loop: it scans due generation tasks, asks the provider
// for their status, advances each task through its state machine, refunds
// credits on failure or timeout, and hands completed work to delivery.
//
// Concurrency model: one scan at a time, process-wide, enforced by a
// try-lock so an overlapping tick is skipped rather than queued. Within a
// scan, tasks are processed sequentially in creation order. A task is
// claimed by committing last_polled_at (and the PENDING -> PROCESSING flip)
// before the remote call, so a second scan inside the same poll interval
// cannot pick it up again.
//
// Failure isolation: an error while handling one task is logged and the
// batch continues. Every mutation is its own commit; a crash mid-task leaves
// it wherever its last commit put it, and re-polling from there is safe
// because the remote status fetch is idempotent.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/cur1osus/sunobot/internal/config"
	"github.com/cur1osus/sunobot/internal/domain"
	"github.com/cur1osus/sunobot/internal/repo"
	"github.com/cur1osus/sunobot/internal/services"
	"github.com/cur1osus/sunobot/internal/suno"
)

// pollFailedMessage is the generic notice after the error ceiling is hit.
const pollFailedMessage = "Could not fetch the generation result. Please try again later."

// timeoutMessage is the notice for tasks that outlived their poll budget.
const timeoutMessage = "Generation exceeded the waiting limit."

// Deliverer is the slice of the delivery layer the poller needs.
// *delivery.Deliverer satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, tracks []suno.Track, chatID int64, filenameBase string) []string
	Notify(chatID int64, text string)
}

// Poller owns the scan loop. Construct with New; the zero value is not
// usable.
type Poller struct {
	db      *gorm.DB
	client  suno.Generator
	deliver Deliverer
	credits *services.CreditService
	cfg     config.PollerConfig
	log     zerolog.Logger
	metrics *Metrics

	// now is the clock; swapped for a fake in tests.
	now func() time.Time

	// mu is the single-flight guard: TryLock in Scan means an overlapping
	// tick is dropped, never queued behind a slow scan.
	mu sync.Mutex
}

// New assembles a Poller. A nil metrics set is replaced with an
// unregistered one.
func New(db *gorm.DB, client suno.Generator, deliver Deliverer, credits *services.CreditService, cfg config.PollerConfig, log zerolog.Logger, metrics *Metrics) *Poller {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Poller{
		db:      db,
		client:  client,
		deliver: deliver,
		credits: credits,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the poller's notion of now; test hook.
func (p *Poller) SetClock(now func() time.Time) { p.now = now }

// Run drives Scan on a ticker until the context is cancelled. The
// re-entrancy guard inside Scan makes it safe even if a tick fires while
// the previous scan is still running.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Scan(ctx)
		}
	}
}

// Scan performs one batch pass over due tasks. If another scan is already
// in flight it returns immediately.
func (p *Poller) Scan(ctx context.Context) {
	if !p.mu.TryLock() {
		return
	}
	defer p.mu.Unlock()

	now := p.now()
	tasks, err := repo.ListDueTasks(ctx, p.db, now, p.cfg.Interval, p.cfg.BatchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("due-task scan failed")
		return
	}
	for i := range tasks {
		if err := p.pollOne(ctx, &tasks[i], now); err != nil {
			// One task's trouble must not starve the rest of the batch.
			p.log.Error().Err(err).Str("task_id", tasks[i].TaskID).Msg("task poll failed")
		}
	}
	p.metrics.Scans.Inc()
}

// pollOne advances a single task one step through the state machine.
func (p *Poller) pollOne(ctx context.Context, task *domain.MusicTask, now time.Time) error {
	claimed, err := repo.ClaimTask(ctx, p.db, task.ID, now)
	if err != nil {
		return err
	}
	if !claimed {
		// Already terminal; the scan raced a previous transition.
		return nil
	}

	// Timeout has priority over whatever the provider would say, and costs
	// no API call.
	if p.timedOut(task, now) {
		return p.finish(ctx, task, domain.TaskStatusTimeout, timeoutMessage)
	}

	details, err := p.client.TaskDetails(ctx, task.TaskID)
	if err != nil {
		var apiErr *suno.APIError
		if !errors.As(err, &apiErr) {
			return err
		}
		p.metrics.TaskErrors.Inc()
		count, ierr := repo.IncrementTaskErrors(ctx, p.db, task.ID)
		if ierr != nil {
			return ierr
		}
		p.log.Warn().Err(err).Str("task_id", task.TaskID).Int("errors", count).Msg("task status fetch failed")
		if count >= p.cfg.MaxErrors {
			return p.finish(ctx, task, domain.TaskStatusError, pollFailedMessage)
		}
		// Transient by assumption; stays "processing" and retries next tick.
		return nil
	}

	switch {
	case details.Status == suno.StatusSuccess:
		return p.succeed(ctx, task, details)
	case details.Status.Terminal():
		return p.finish(ctx, task, domain.TaskStatusError, details.Status.FailureMessage())
	default:
		// Still running; the claim already advanced last_polled_at.
		return nil
	}
}

// succeed delivers the produced tracks, records artifacts and lyrics, and
// closes the task as SUCCESS. The cost stays charged: service was rendered.
func (p *Poller) succeed(ctx context.Context, task *domain.MusicTask, details *suno.TaskDetails) error {
	fileIDs := p.deliver.Deliver(ctx, details.Tracks, task.ChatID, task.FilenameBase)

	moved, err := repo.MarkTaskStatus(ctx, p.db, task.ID, domain.TaskStatusSuccess)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}
	p.metrics.Transitions.WithLabelValues(string(domain.TaskStatusSuccess)).Inc()

	var idsJSON *string
	if len(fileIDs) > 0 {
		if raw, err := json.Marshal(fileIDs); err == nil {
			s := string(raw)
			idsJSON = &s
		}
	}
	var lyrics *string
	if details.Lyrics != "" {
		lyrics = &details.Lyrics
	}
	if err := repo.SaveTaskResults(ctx, p.db, task.ID, idsJSON, lyrics); err != nil {
		p.log.Warn().Err(err).Str("task_id", task.TaskID).Msg("result persist failed")
	}

	if len(fileIDs) > 0 {
		p.metrics.Delivered.Add(float64(len(fileIDs)))
		if err := repo.CreateUsageEvent(ctx, p.db, task.UserID, usageType(task)); err != nil {
			p.log.Warn().Err(err).Int64("user", task.UserID).Msg("usage event write failed")
		}
	}
	return nil
}

// finish closes the task in a negative terminal state, refunds the captured
// cost, and notifies the chat. The status commit happens first; the guarded
// transition firing exactly once is what makes the refund fire at most once,
// no matter how many scans race. The refund is committed before the
// user-facing message so a user is never told "refunded" ahead of the
// database.
func (p *Poller) finish(ctx context.Context, task *domain.MusicTask, status domain.TaskStatus, message string) error {
	moved, err := repo.MarkTaskStatus(ctx, p.db, task.ID, status)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}
	p.metrics.Transitions.WithLabelValues(string(status)).Inc()

	owner, err := repo.GetUserByID(ctx, p.db, task.UserID)
	if err != nil {
		return err
	}
	if err := p.credits.Refund(ctx, owner.TelegramID, task.CreditsCost); err != nil {
		return err
	}
	p.metrics.Refunds.Inc()

	p.deliver.Notify(task.ChatID, message)
	return nil
}

func (p *Poller) timedOut(task *domain.MusicTask, now time.Time) bool {
	if task.CreatedAt.IsZero() {
		return false
	}
	budget := time.Duration(task.PollTimeout) * time.Second
	if budget < p.cfg.MinTimeout {
		budget = p.cfg.MinTimeout
	}
	return now.Sub(task.CreatedAt) > budget
}

// usageType maps a delivered task to its billable-action label.
func usageType(task *domain.MusicTask) domain.UsageEventType {
	switch {
	case task.Instrumental:
		return domain.UsageInstrumental
	case task.PromptSource != nil && *task.PromptSource == "ai":
		return domain.UsageAIText
	default:
		return domain.UsageManualText
	}
}
