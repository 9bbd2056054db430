// Package delivery downloads generated audio from the provider and re-uploads
// it to the user's Telegram chat. It captures the platform-assigned file ids
// so completed tracks can later be resent without re-downloading.
//
// Partial failure is the normal case here: a track whose download or upload
// fails gets its own per-track notice and the rest of the batch continues.
package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/cur1osus/sunobot/internal/suno"
)

// Sender is the narrow slice of the Telegram bot API the deliverer uses.
// *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Deliverer sends generated tracks and poller notifications to chats.
type Deliverer struct {
	Bot      Sender
	HTTP     *http.Client // bounded-timeout client for audio downloads
	Log      zerolog.Logger
	MaxBytes int64 // per-track download cap; 0 means the default 50 MiB
}

// Deliver downloads and uploads every track that carries a usable audio URL,
// in order, and returns the Telegram file ids of the uploads that succeeded.
//
// A track that cannot be downloaded or sent produces a per-track notice in
// the chat and does not stop the remaining tracks. When no track was
// deliverable at all, the chat gets a single "ready but no audio" notice and
// the returned slice is empty; the caller still treats the task as
// successful.
func (d *Deliverer) Deliver(ctx context.Context, tracks []suno.Track, chatID int64, filenameBase string) []string {
	deliverable := 0
	for _, t := range tracks {
		if t.BestAudioURL() != "" {
			deliverable++
		}
	}
	if deliverable == 0 {
		d.Notify(chatID, "Done, but no audio links were returned.")
		return nil
	}

	var fileIDs []string
	sentAny := false
	idx := 0
	for _, track := range tracks {
		url := track.BestAudioURL()
		if url == "" {
			continue
		}
		idx++

		audio, err := d.download(ctx, url)
		if err != nil {
			d.Log.Warn().Err(err).Str("url", url).Msg("audio download failed")
			d.Notify(chatID, fmt.Sprintf("Could not download audio for track %d.", idx))
			continue
		}

		name := BuildFilename(filenameBase, idx, deliverable, url)
		msg, err := d.Bot.Send(tgbotapi.NewAudio(chatID, tgbotapi.FileBytes{Name: name, Bytes: audio}))
		if err != nil {
			d.Log.Warn().Err(err).Str("filename", name).Msg("audio upload failed")
			d.Notify(chatID, fmt.Sprintf("Could not send the file for track %d.", idx))
			continue
		}
		sentAny = true
		if msg.Audio != nil && msg.Audio.FileID != "" {
			fileIDs = append(fileIDs, msg.Audio.FileID)
		}
	}

	if !sentAny {
		d.Log.Warn().Str("filename_base", filenameBase).Msg("no audio files delivered")
		d.Notify(chatID, "Could not deliver any of the files.")
	}
	return fileIDs
}

// SendCached resends a previously delivered track by its Telegram file id,
// avoiding a re-download from the provider.
func (d *Deliverer) SendCached(chatID int64, fileID string) error {
	_, err := d.Bot.Send(tgbotapi.NewAudio(chatID, tgbotapi.FileID(fileID)))
	return err
}

// Notify sends a plain text message to the chat. Failures are logged and
// swallowed; a missed notification must never break the polling loop.
func (d *Deliverer) Notify(chatID int64, text string) {
	if _, err := d.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		d.Log.Warn().Err(err).Int64("chat_id", chatID).Msg("notify failed")
	}
}

func (d *Deliverer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}
	limit := d.MaxBytes
	if limit <= 0 {
		limit = 50 << 20
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}
