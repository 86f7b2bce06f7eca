package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eleven-am/voice-stt/internal/audio"
	"github.com/eleven-am/voice-stt/internal/shared"
	"github.com/eleven-am/voice-stt/internal/transcript"
)

const (
	transcriptionsPath = "/v1/audio/transcriptions"
	healthPath         = "/health"
	initialBodySize    = 64 * 1024
	maxErrorBody       = 4 * 1024
)

var bodyPool = sync.Pool{
	New: func() any {
		b := &bytes.Buffer{}
		b.Grow(initialBodySize)
		return b
	},
}

type HTTPConfig struct {
	BaseURL    string
	Model      string
	APIKey     string
	Timeout    time.Duration
	Backoff    shared.BackoffConfig
	HTTPClient *http.Client
}

// HTTPEngine calls an OpenAI-compatible whisper sidecar.
type HTTPEngine struct {
	baseURL string
	model   string
	apiKey  string
	backoff shared.BackoffConfig
	client  *http.Client
	log     *slog.Logger
}

type verboseResponse struct {
	Text                string  `json:"text"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
	Duration            float64 `json:"duration"`
	Segments            []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// statusError is a non-2xx reply from the sidecar.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("engine returned %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

func NewHTTPEngine(cfg HTTPConfig, log *slog.Logger) (*HTTPEngine, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("transcription: engine url is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &HTTPEngine{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		backoff: cfg.Backoff.Normalize(),
		client:  client,
		log:     log.With("component", "engine.http"),
	}, nil
}

func (e *HTTPEngine) Transcribe(ctx context.Context, req Request) (*Response, error) {
	body := bodyPool.Get().(*bytes.Buffer)
	defer func() {
		body.Reset()
		bodyPool.Put(body)
	}()

	contentType, err := e.encode(body, req)
	if err != nil {
		return nil, err
	}
	payload := body.Bytes()

	var lastErr error
	for attempt := 1; attempt <= e.backoff.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.backoff.Delay(attempt - 1)):
			}
		}

		resp, err := e.post(ctx, contentType, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn("engine request failed",
			"attempt", attempt,
			"max_attempts", e.backoff.MaxAttempts,
			"profile", req.Options.Profile,
			"error", err)
	}

	return nil, fmt.Errorf("%w: engine request failed after %d attempts: %w", shared.ErrUnavailable, e.backoff.MaxAttempts, lastErr)
}

func (e *HTTPEngine) encode(body *bytes.Buffer, req Request) (string, error) {
	mw := multipart.NewWriter(body)

	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if err := audio.WriteWAV(part, req.Audio); err != nil {
		return "", err
	}

	opts := req.Options
	fields := [][2]string{
		{"response_format", "verbose_json"},
		{"temperature", strconv.FormatFloat(float64(opts.Temperature), 'f', -1, 32)},
		{"beam_size", strconv.Itoa(opts.BeamSize)},
		{"vad_filter", strconv.FormatBool(opts.VADFilter)},
		{"condition_on_previous_text", strconv.FormatBool(opts.ConditionOnPrevious)},
	}
	if e.model != "" {
		fields = append(fields, [2]string{"model", e.model})
	}
	if req.Language != "" {
		fields = append(fields, [2]string{"language", req.Language})
	}
	if req.Prompt != "" {
		fields = append(fields, [2]string{"prompt", req.Prompt})
	}
	if opts.VADFilter && opts.MinSilenceMs > 0 {
		fields = append(fields, [2]string{"vad_min_silence_duration_ms", strconv.Itoa(opts.MinSilenceMs)})
	}

	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}
	return mw.FormDataContentType(), nil
}

func (e *HTTPEngine) post(ctx context.Context, contentType string, payload []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+transcriptionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}

	var out verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.normalize(), nil
}

func (v verboseResponse) normalize() *Response {
	segments := make([]transcript.Segment, 0, len(v.Segments))
	for _, s := range v.Segments {
		segments = append(segments, transcript.Segment{Text: s.Text, Start: s.Start, End: s.End})
	}
	if len(segments) == 0 && strings.TrimSpace(v.Text) != "" {
		segments = append(segments, transcript.Segment{Text: v.Text, End: v.Duration})
	}
	return &Response{
		Segments:            segments,
		Language:            strings.TrimSpace(v.Language),
		LanguageProbability: v.LanguageProbability,
	}
}

// Ping checks that the sidecar answers its health endpoint.
func (e *HTTPEngine) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %w", shared.ErrUnavailable, &statusError{code: resp.StatusCode})
	}
	return nil
}

func (e *HTTPEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
