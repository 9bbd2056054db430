// Package services – TaskService
//
// This file implements the generation-task lifecycle seen from the bot's
// command layer: starting a generation (charge, submit, persist, with the
// compensation path when any of those steps fails), the paginated "my
// tracks" listing, task detail, and lyrics retrieval with a provider
// fallback to the cached copy.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/cur1osus/sunobot/internal/domain"
	"github.com/cur1osus/sunobot/internal/repo"
	"github.com/cur1osus/sunobot/internal/suno"
)

// TracksPageSize is the "my tracks" listing page size.
const TracksPageSize = 8

// TaskService owns MusicTask rows on behalf of the command layer. The poller
// mutates tasks; this service only creates them and reads them back.
type TaskService struct {
	DB      *gorm.DB
	Client  suno.Generator
	Credits *CreditService
	Log     zerolog.Logger

	// Cost is the credit price captured on each created task.
	Cost int
	// PollTimeout is the wall-clock budget stored on new tasks, in seconds.
	PollTimeout int
}

// GenerationRequest carries everything needed to start one generation.
type GenerationRequest struct {
	TelegramID   int64
	ChatID       int64
	Prompt       string
	Style        string
	Title        string
	TopicKey     string
	PromptSource string
	CustomMode   bool
	Instrumental bool
}

// StartGeneration charges the user, submits the job to the provider, and
// persists the PENDING task row that the poller will pick up.
//
// Compensation: if the submit fails the charge is refunded and
// ErrSubmitFailed is returned; if the row insert fails the charge is
// likewise refunded, since the money moved before the row existed. When the
// charge itself fails no submit call is made and no row is created.
func (s *TaskService) StartGeneration(ctx context.Context, req GenerationRequest) (*domain.MusicTask, error) {
	u, err := repo.GetUserByTelegramID(ctx, s.DB, req.TelegramID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	ok, err := s.Credits.Charge(ctx, req.TelegramID, s.Cost)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientCredits
	}

	style, title := req.Style, req.Title
	if !req.CustomMode {
		style, title = "", ""
	}
	taskID, err := s.Client.Generate(ctx, suno.GenerateRequest{
		Prompt:       req.Prompt,
		Style:        style,
		Title:        title,
		CustomMode:   req.CustomMode,
		Instrumental: req.Instrumental,
	})
	if err != nil {
		s.Log.Warn().Err(err).Int64("telegram_id", req.TelegramID).Msg("generation submit failed")
		if rerr := s.Credits.Refund(ctx, req.TelegramID, s.Cost); rerr != nil {
			s.Log.Error().Err(rerr).Int64("telegram_id", req.TelegramID).Msg("refund after failed submit failed")
		}
		return nil, ErrSubmitFailed
	}

	task := &domain.MusicTask{
		UserID:       u.ID,
		TaskID:       taskID,
		ChatID:       req.ChatID,
		FilenameBase: filenameBase(title, req.Prompt),
		Status:       domain.TaskStatusPending,
		CreditsCost:  s.Cost,
		PollTimeout:  s.PollTimeout,
		CustomMode:   req.CustomMode,
		Instrumental: req.Instrumental,
	}
	if req.Prompt != "" {
		task.Prompt = ptr(req.Prompt)
	}
	if style != "" {
		task.Style = ptr(style)
	}
	if req.TopicKey != "" {
		task.TopicKey = ptr(req.TopicKey)
	}
	if req.PromptSource != "" {
		task.PromptSource = ptr(req.PromptSource)
	}

	if err := repo.CreateTask(ctx, s.DB, task); err != nil {
		// The charge landed but the task row did not; give the credits back.
		if rerr := s.Credits.Refund(ctx, req.TelegramID, s.Cost); rerr != nil {
			s.Log.Error().Err(rerr).Int64("telegram_id", req.TelegramID).Msg("refund after failed insert failed")
		}
		return nil, err
	}
	return task, nil
}

// TracksPage is one page of the "my tracks" listing.
type TracksPage struct {
	Tasks      []domain.MusicTask
	Page       int
	TotalPages int
	Total      int64
}

// ListTracks returns the user's tasks newest first, paginated. Pages are
// 1-based; out-of-range pages clamp to the valid range.
func (s *TaskService) ListTracks(ctx context.Context, telegramID int64, page int) (*TracksPage, error) {
	u, err := repo.GetUserByTelegramID(ctx, s.DB, telegramID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	total, err := repo.CountUserTasks(ctx, s.DB, u.ID)
	if err != nil {
		return nil, err
	}
	totalPages := int((total + TracksPageSize - 1) / TracksPageSize)
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	tasks, err := repo.ListUserTasksPage(ctx, s.DB, u.ID, (page-1)*TracksPageSize, TracksPageSize)
	if err != nil {
		return nil, err
	}
	return &TracksPage{Tasks: tasks, Page: page, TotalPages: totalPages, Total: total}, nil
}

// TrackDetail fetches one of the user's tasks by internal id.
func (s *TaskService) TrackDetail(ctx context.Context, telegramID, taskID int64) (*domain.MusicTask, error) {
	u, err := repo.GetUserByTelegramID(ctx, s.DB, telegramID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	task, err := repo.GetUserTask(ctx, s.DB, u.ID, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// TrackLyrics returns the lyrics for a completed task. The cached copy wins;
// when it is absent the provider is asked once and the answer is persisted
// for the next call. A provider failure with no cached copy yields an empty
// string, not an error: the track itself remains served from the stored
// artifact ids.
func (s *TaskService) TrackLyrics(ctx context.Context, telegramID, taskID int64) (string, error) {
	task, err := s.TrackDetail(ctx, telegramID, taskID)
	if err != nil {
		return "", err
	}
	if task.Lyrics != nil && *task.Lyrics != "" {
		return *task.Lyrics, nil
	}
	if task.Status != domain.TaskStatusSuccess {
		return "", nil
	}

	details, err := s.Client.TaskDetails(ctx, task.TaskID)
	if err != nil {
		s.Log.Warn().Err(err).Str("task_id", task.TaskID).Msg("lyrics refetch failed")
		return "", nil
	}
	if details.Lyrics == "" {
		return "", nil
	}
	if err := repo.SaveTaskResults(ctx, s.DB, task.ID, nil, &details.Lyrics); err != nil {
		s.Log.Warn().Err(err).Int64("task", task.ID).Msg("lyrics cache write failed")
	}
	return details.Lyrics, nil
}

// CachedFileIDs decodes the task's stored Telegram file ids, if any.
func CachedFileIDs(task *domain.MusicTask) []string {
	if task.AudioFileIDs == nil || *task.AudioFileIDs == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(*task.AudioFileIDs), &ids); err != nil {
		return nil
	}
	return ids
}

// RecordUsage appends a usage event for analytics. Failures are logged and
// swallowed; analytics must never break a user-facing path.
func (s *TaskService) RecordUsage(ctx context.Context, userID int64, eventType domain.UsageEventType) {
	if err := repo.CreateUsageEvent(ctx, s.DB, userID, eventType); err != nil {
		s.Log.Warn().Err(err).Int64("user", userID).Str("event", string(eventType)).Msg("usage event write failed")
	}
}

// filenameBase picks the attachment base name: the custom title when set,
// otherwise the first non-empty line of the prompt, otherwise "Track".
func filenameBase(title, prompt string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	for _, line := range strings.Split(prompt, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return "Track"
}

func ptr[T any](v T) *T { return &v }
