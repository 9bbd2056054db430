package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/cur1osus/sunobot/internal/domain"
)

func newTaskDB(t *testing.T) *gorm.DB {
	t.Helper()
	return newRepoDB(t, &domain.User{}, &domain.MusicTask{})
}

func seedTask(t *testing.T, db *gorm.DB, userID int64, taskID string, status domain.TaskStatus, createdAt time.Time) *domain.MusicTask {
	t.Helper()
	task := &domain.MusicTask{
		UserID:       userID,
		TaskID:       taskID,
		ChatID:       42,
		FilenameBase: "song",
		Status:       status,
		CreditsCost:  2,
		PollTimeout:  600,
		CreatedAt:    createdAt,
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("seed task %s: %v", taskID, err)
	}
	return task
}

func TestCreateTask_DefaultsToPending(t *testing.T) {
	db := newTaskDB(t)
	u := seedUser(t, db, 1, 5, 0)

	task := &domain.MusicTask{UserID: u.ID, TaskID: "ext-1", ChatID: 9, FilenameBase: "x", CreditsCost: 2, PollTimeout: 600}
	if err := CreateTask(context.Background(), db, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != domain.TaskStatusPending {
		t.Fatalf("status = %q, want pending", task.Status)
	}
	if task.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}
}

func TestListDueTasks_SelectsStaleNonTerminalOldestFirst(t *testing.T) {
	db := newTaskDB(t)
	u := seedUser(t, db, 1, 5, 0)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	interval := 10 * time.Second

	// Never polled: due.
	a := seedTask(t, db, u.ID, "a", domain.TaskStatusPending, now.Add(-3*time.Minute))
	// Polled long ago: due.
	b := seedTask(t, db, u.ID, "b", domain.TaskStatusProcessing, now.Add(-2*time.Minute))
	stale := now.Add(-time.Minute)
	db.Model(b).Update("last_polled_at", stale)
	// Polled within the interval: not due.
	c := seedTask(t, db, u.ID, "c", domain.TaskStatusProcessing, now.Add(-time.Minute))
	fresh := now.Add(-2 * time.Second)
	db.Model(c).Update("last_polled_at", fresh)
	// Terminal: never due.
	seedTask(t, db, u.ID, "d", domain.TaskStatusSuccess, now.Add(-10*time.Minute))
	seedTask(t, db, u.ID, "e", domain.TaskStatusError, now.Add(-10*time.Minute))

	due, err := ListDueTasks(context.Background(), db, now, interval, 20)
	if err != nil {
		t.Fatalf("ListDueTasks: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due tasks, got %d", len(due))
	}
	if due[0].TaskID != a.TaskID || due[1].TaskID != b.TaskID {
		t.Fatalf("expected oldest-first [a b], got [%s %s]", due[0].TaskID, due[1].TaskID)
	}
}

func TestListDueTasks_RespectsBatchLimit(t *testing.T) {
	db := newTaskDB(t)
	u := seedUser(t, db, 1, 5, 0)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		seedTask(t, db, u.ID, fmt.Sprintf("t%d", i), domain.TaskStatusPending, now.Add(-time.Hour))
	}

	due, err := ListDueTasks(context.Background(), db, now, time.Second, 3)
	if err != nil {
		t.Fatalf("ListDueTasks: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("limit ignored: got %d tasks", len(due))
	}
}

func TestClaimTask_StampsAndFlipsPending(t *testing.T) {
	db := newTaskDB(t)
	u := seedUser(t, db, 1, 5, 0)
	task := seedTask(t, db, u.ID, "x", domain.TaskStatusPending, time.Now().UTC())
	now := time.Now().UTC().Truncate(time.Second)

	ok, err := ClaimTask(context.Background(), db, task.ID, now)
	if err != nil || !ok {
		t.Fatalf("ClaimTask: ok=%v err=%v", ok, err)
	}

	got, err := GetTask(context.Background(), db, task.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.TaskStatusProcessing {
		t.Fatalf("status = %q, want processing", got.Status)
	}
	if got.LastPolledAt == nil {
		t.Fatal("last_polled_at not stamped")
	}
}

func TestClaimTask_RefusesTerminal(t *testing.T) {
	db := newTaskDB(t)
	u := seedUser(t, db, 1, 5, 0)

	for _, status := range []domain.TaskStatus{domain.TaskStatusSuccess, domain.TaskStatusError, domain.TaskStatusTimeout} {
		task := seedTask(t, db, u.ID, "t-"+string(status), status, time.Now().UTC())
		ok, err := ClaimTask(context.Background(), db, task.ID, time.Now().UTC())
		if err != nil {
			t.Fatalf("ClaimTask(%s): %v", status, err)
		}
		if ok {
			t.Fatalf("terminal task %s must not be claimable", status)
		}
	}
}

func TestIncrementTaskErrors_ReturnsNewCount(t *testing.T) {
	db := newTaskDB(t)
	u := seedUser(t, db, 1, 5, 0)
	task := seedTask(t, db, u.ID, "x", domain.TaskStatusProcessing, time.Now().UTC())

	for want := 1; want <= 3; want++ {
		n, err := IncrementTaskErrors(context.Background(), db, task.ID)
		if err != nil {
			t.Fatalf("IncrementTaskErrors: %v", err)
		}
		if n != want {
			t.Fatalf("count = %d, want %d", n, want)
		}
	}
}

func TestMarkTaskStatus_TerminalTransitionFiresOnce(t *testing.T) {
	db := newTaskDB(t)
	u := seedUser(t, db, 1, 5, 0)
	task := seedTask(t, db, u.ID, "x", domain.TaskStatusProcessing, time.Now().UTC())
	ctx := context.Background()

	moved, err := MarkTaskStatus(ctx, db, task.ID, domain.TaskStatusError)
	if err != nil || !moved {
		t.Fatalf("first transition: moved=%v err=%v", moved, err)
	}
	// Second attempt races a finished task; it must be a no-op.
	moved, err = MarkTaskStatus(ctx, db, task.ID, domain.TaskStatusTimeout)
	if err != nil {
		t.Fatalf("MarkTaskStatus: %v", err)
	}
	if moved {
		t.Fatal("terminal task transitioned twice")
	}

	got, _ := GetTask(ctx, db, task.ID)
	if got.Status != domain.TaskStatusError {
		t.Fatalf("status = %q, want error (first transition wins)", got.Status)
	}
}

func TestSaveTaskResults_NeverOverwrites(t *testing.T) {
	db := newTaskDB(t)
	u := seedUser(t, db, 1, 5, 0)
	task := seedTask(t, db, u.ID, "x", domain.TaskStatusProcessing, time.Now().UTC())
	ctx := context.Background()

	first, lyrics := `["file-1"]`, "la la"
	if err := SaveTaskResults(ctx, db, task.ID, &first, &lyrics); err != nil {
		t.Fatalf("SaveTaskResults: %v", err)
	}
	second, other := `["file-2"]`, "other words"
	if err := SaveTaskResults(ctx, db, task.ID, &second, &other); err != nil {
		t.Fatalf("SaveTaskResults: %v", err)
	}

	got, _ := GetTask(ctx, db, task.ID)
	if got.AudioFileIDs == nil || *got.AudioFileIDs != first {
		t.Fatalf("audio ids overwritten: %v", got.AudioFileIDs)
	}
	if got.Lyrics == nil || *got.Lyrics != lyrics {
		t.Fatalf("lyrics overwritten: %v", got.Lyrics)
	}
}

func TestSaveTaskResults_EmptyIsNoop(t *testing.T) {
	db := newTaskDB(t)
	u := seedUser(t, db, 1, 5, 0)
	task := seedTask(t, db, u.ID, "x", domain.TaskStatusProcessing, time.Now().UTC())

	if err := SaveTaskResults(context.Background(), db, task.ID, nil, nil); err != nil {
		t.Fatalf("SaveTaskResults: %v", err)
	}
}

func TestGetUserTask_EnforcesOwnership(t *testing.T) {
	db := newTaskDB(t)
	owner := seedUser(t, db, 1, 5, 0)
	other := seedUser(t, db, 2, 5, 0)
	task := seedTask(t, db, owner.ID, "x", domain.TaskStatusSuccess, time.Now().UTC())
	ctx := context.Background()

	if _, err := GetUserTask(ctx, db, owner.ID, task.ID); err != nil {
		t.Fatalf("owner fetch: %v", err)
	}
	if _, err := GetUserTask(ctx, db, other.ID, task.ID); err != ErrNotFound {
		t.Fatalf("foreign fetch err = %v, want ErrNotFound", err)
	}
}

func TestListUserTasksPage_NewestFirst(t *testing.T) {
	db := newTaskDB(t)
	u := seedUser(t, db, 1, 5, 0)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		seedTask(t, db, u.ID, fmt.Sprintf("t%d", i), domain.TaskStatusSuccess, base.Add(time.Duration(i)*time.Hour))
	}
	ctx := context.Background()

	total, err := CountUserTasks(ctx, db, u.ID)
	if err != nil || total != 10 {
		t.Fatalf("CountUserTasks = %d, %v", total, err)
	}

	page, err := ListUserTasksPage(ctx, db, u.ID, 0, 4)
	if err != nil {
		t.Fatalf("ListUserTasksPage: %v", err)
	}
	if len(page) != 4 {
		t.Fatalf("page size = %d, want 4", len(page))
	}
	if page[0].TaskID != "t9" {
		t.Fatalf("newest first expected t9, got %s", page[0].TaskID)
	}

	last, err := ListUserTasksPage(ctx, db, u.ID, 8, 4)
	if err != nil {
		t.Fatalf("ListUserTasksPage: %v", err)
	}
	if len(last) != 2 {
		t.Fatalf("final partial page size = %d, want 2", len(last))
	}
}
