package suno

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is the single error type callers of the client ever see: HTTP
// failures, malformed bodies, and application-level error codes are all
// folded into it. Transport errors never escape the client raw.
type APIError struct {
	Message string
	Code    int // embedded application code or HTTP status, 0 if unknown
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("suno: %s (code %d)", e.Message, e.Code)
	}
	return "suno: " + e.Message
}

// RemoteStatus is the closed set of provider statuses the poller acts on.
// Every raw provider string is mapped into this set at the client boundary.
type RemoteStatus string

const (
	StatusSuccess             RemoteStatus = "SUCCESS"
	StatusCreateTaskFailed    RemoteStatus = "CREATE_TASK_FAILED"
	StatusGenerateAudioFailed RemoteStatus = "GENERATE_AUDIO_FAILED"
	StatusCallbackException   RemoteStatus = "CALLBACK_EXCEPTION"
	StatusSensitiveWord       RemoteStatus = "SENSITIVE_WORD_ERROR"
	// StatusRunning stands in for every non-terminal provider status
	// (queued, generating, free-text variants); the poller treats them all
	// as "still in progress".
	StatusRunning RemoteStatus = "RUNNING"
)

// ParseRemoteStatus maps a raw provider status string into the closed enum.
// Unknown or empty statuses become StatusRunning.
func ParseRemoteStatus(raw string) RemoteStatus {
	switch RemoteStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusSuccess:
		return StatusSuccess
	case StatusCreateTaskFailed:
		return StatusCreateTaskFailed
	case StatusGenerateAudioFailed:
		return StatusGenerateAudioFailed
	case StatusCallbackException:
		return StatusCallbackException
	case StatusSensitiveWord:
		return StatusSensitiveWord
	default:
		return StatusRunning
	}
}

// Terminal reports whether the status ends the task's remote lifecycle.
func (s RemoteStatus) Terminal() bool {
	return s != StatusRunning
}

// FailureMessage returns the user-facing text for a terminal failure status,
// or the generic fallback for anything unmapped. StatusSuccess has no
// failure message.
func (s RemoteStatus) FailureMessage() string {
	switch s {
	case StatusCreateTaskFailed:
		return "The generation task could not be created."
	case StatusGenerateAudioFailed:
		return "Audio generation failed."
	case StatusCallbackException:
		return "An error occurred while processing the result."
	case StatusSensitiveWord:
		return "The text contains prohibited words."
	default:
		return "Generation finished with an error."
	}
}

// Track is one produced song within a completed generation.
type Track struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Tags           string `json:"tags"`
	AudioURL       string `json:"audioUrl"`
	StreamAudioURL string `json:"streamAudioUrl"`
	Lyrics         string `json:"-"`
}

// BestAudioURL prefers the downloadable URL over the stream URL; empty when
// the track carries neither.
func (t Track) BestAudioURL() string {
	if t.AudioURL != "" {
		return t.AudioURL
	}
	return t.StreamAudioURL
}

// TaskDetails is the mapped result of a record-info call.
type TaskDetails struct {
	TaskID string
	Status RemoteStatus
	Tracks []Track
	Lyrics string // first non-empty lyric text across tracks, if any
}

// GenerateRequest carries the submit parameters for a generation job.
type GenerateRequest struct {
	Prompt       string
	Style        string
	Title        string
	CustomMode   bool
	Instrumental bool
	Model        string // empty means the client default
}

// ---- wire payloads ----

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type generateData struct {
	TaskID string `json:"taskId"`
}

type recordInfoData struct {
	TaskID   string          `json:"taskId"`
	Status   string          `json:"status"`
	Response *recordResponse `json:"response"`
}

type recordResponse struct {
	SunoData []trackPayload `json:"sunoData"`
	Data     []trackPayload `json:"data"`
}

type trackPayload struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Tags           string         `json:"tags"`
	AudioURL       string         `json:"audioUrl"`
	StreamAudioURL string         `json:"streamAudioUrl"`
	Lyrics         string         `json:"lyrics"`
	Lyric          string         `json:"lyric"`
	Text           string         `json:"text"`
	Content        string         `json:"content"`
	Metadata       *trackMetadata `json:"metadata"`
}

type trackMetadata struct {
	Lyrics string `json:"lyrics"`
	Lyric  string `json:"lyric"`
}

// lyricText returns the first populated lyric-ish field, checking nested
// metadata last. The provider has shipped all of these spellings.
func (p trackPayload) lyricText() string {
	for _, v := range []string{p.Lyrics, p.Lyric, p.Text, p.Content} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	if p.Metadata != nil {
		for _, v := range []string{p.Metadata.Lyrics, p.Metadata.Lyric} {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}
