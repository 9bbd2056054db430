// Package suno wraps the music-generation provider's HTTP API: submitting
// jobs, fetching job status, and reading the remaining provider credit.
//
// The client is deliberately narrow (see Generator) so the poller and the
// task service can be tested against a fake without network access. All
// outgoing requests pass a shared token-bucket limiter; when the request
// budget for the rolling window is spent, callers queue FIFO on
// limiter.Wait rather than failing.
package suno

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/cur1osus/sunobot/internal/config"
)

// Generator is the surface the rest of the system depends on.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	TaskDetails(ctx context.Context, taskID string) (*TaskDetails, error)
	RemainingCredits(ctx context.Context) (int, error)
}

// Client talks to the provider over HTTP. Construct it with NewClient.
type Client struct {
	baseURL     string
	apiKey      string
	callbackURL string
	model       string

	http    *http.Client
	limiter *rate.Limiter
}

var _ Generator = (*Client)(nil)

// NewClient builds a Client from configuration. The limiter admits
// cfg.RateLimit requests per cfg.RateWindow with a burst of the full budget,
// matching the provider's documented rolling-window limit.
func NewClient(cfg config.SunoConfig) *Client {
	interval := cfg.RateWindow / time.Duration(cfg.RateLimit)
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		callbackURL: cfg.CallbackURL,
		model:       cfg.Model,
		http:        &http.Client{Timeout: cfg.RequestTimeout},
		limiter:     rate.NewLimiter(rate.Every(interval), cfg.RateLimit),
	}
}

// Generate submits a generation job and returns the provider-assigned task
// id.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	body := map[string]any{
		"prompt":       req.Prompt,
		"style":        req.Style,
		"title":        req.Title,
		"customMode":   req.CustomMode,
		"instrumental": req.Instrumental,
		"callBackUrl":  c.callbackURL,
		"model":        model,
	}

	raw, err := c.request(ctx, http.MethodPost, "/api/v1/generate", body, nil)
	if err != nil {
		return "", err
	}
	var data generateData
	if err := json.Unmarshal(raw, &data); err != nil || data.TaskID == "" {
		return "", &APIError{Message: "response carried no taskId"}
	}
	return data.TaskID, nil
}

// TaskDetails fetches the current status and any produced tracks for a job.
// The raw provider status is mapped into the closed RemoteStatus enum here;
// it never leaves this package as a string.
func (c *Client) TaskDetails(ctx context.Context, taskID string) (*TaskDetails, error) {
	raw, err := c.request(ctx, http.MethodGet, "/api/v1/generate/record-info",
		nil, url.Values{"taskId": {taskID}})
	if err != nil {
		return nil, err
	}
	return decodeTaskDetails(raw)
}

// LyricsDetails fetches a lyrics-generation job's record. It shares the
// track payload shape with TaskDetails.
func (c *Client) LyricsDetails(ctx context.Context, taskID string) (*TaskDetails, error) {
	raw, err := c.request(ctx, http.MethodGet, "/api/v1/lyrics/record-info",
		nil, url.Values{"taskId": {taskID}})
	if err != nil {
		return nil, err
	}
	return decodeTaskDetails(raw)
}

// RemainingCredits returns the provider-side credit balance for the API key.
func (c *Client) RemainingCredits(ctx context.Context) (int, error) {
	raw, err := c.request(ctx, http.MethodGet, "/api/v1/generate/credit", nil, nil)
	if err != nil {
		return 0, err
	}
	// The provider reports credits as a bare number, occasionally fractional.
	var credits float64
	if err := json.Unmarshal(raw, &credits); err != nil {
		return 0, &APIError{Message: "credit balance missing from response"}
	}
	return int(credits), nil
}

// request performs one rate-limited HTTP call and unwraps the provider's
// {code, msg, data} envelope. Every failure mode comes back as *APIError.
func (c *Client) request(ctx context.Context, method, path string, body any, query url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &APIError{Message: "rate limit wait aborted: " + err.Error()}
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{Message: "encode request: " + err.Error()}
		}
		rd = bytes.NewReader(buf)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &APIError{Message: "read response: " + err.Error(), Code: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &APIError{Message: "non-JSON response body", Code: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		msg := env.Msg
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Message: msg, Code: resp.StatusCode}
	}
	if env.Code != 0 && env.Code != 200 {
		msg := env.Msg
		if msg == "" {
			msg = "provider returned an error code"
		}
		return nil, &APIError{Message: msg, Code: env.Code}
	}
	return env.Data, nil
}

func decodeTaskDetails(raw json.RawMessage) (*TaskDetails, error) {
	var data recordInfoData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &APIError{Message: "malformed record-info payload"}
	}

	details := &TaskDetails{
		TaskID: data.TaskID,
		Status: ParseRemoteStatus(data.Status),
	}
	if data.Response == nil {
		return details, nil
	}
	payloads := data.Response.SunoData
	if len(payloads) == 0 {
		payloads = data.Response.Data
	}
	for _, p := range payloads {
		t := Track{
			ID:             p.ID,
			Title:          p.Title,
			Tags:           p.Tags,
			AudioURL:       p.AudioURL,
			StreamAudioURL: p.StreamAudioURL,
			Lyrics:         p.lyricText(),
		}
		details.Tracks = append(details.Tracks, t)
		if details.Lyrics == "" {
			details.Lyrics = t.Lyrics
		}
	}
	return details, nil
}
