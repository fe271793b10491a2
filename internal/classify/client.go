// Package classify submits canonical WAV recordings to the remote heart-sound
// classification service and interprets its label scores.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chaz8081/murmurcap/internal/metrics"
)

const (
	// DefaultAPIBase is the public classification service.
	DefaultAPIBase = "https://backesteto.onrender.com"
	// DefaultMurmurLabel is the label the service uses for a murmur.
	DefaultMurmurLabel = "Soplo Cardíaco"
	// DefaultMurmurThreshold is the score above which a murmur is reported.
	DefaultMurmurThreshold = 0.5

	maxErrorBody = 4 << 10
)

// Label is one class score.
type Label struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Result is the service's classification of one recording.
type Result struct {
	OK         bool    `json:"ok"`
	SampleRate int     `json:"sample_rate"`
	WindowSize int     `json:"window_size"`
	StartIndex int     `json:"start_index"`
	Results    []Label `json:"results"`
	Anomaly    float64 `json:"anomaly"`
}

// Top returns the highest scoring label. ok is false when there are none.
func (r *Result) Top() (Label, bool) {
	if len(r.Results) == 0 {
		return Label{}, false
	}
	best := r.Results[0]
	for _, l := range r.Results[1:] {
		if l.Value > best.Value {
			best = l
		}
	}
	return best, true
}

// Value returns the score for label.
func (r *Result) Value(label string) (float64, bool) {
	for _, l := range r.Results {
		if l.Label == label {
			return l.Value, true
		}
	}
	return 0, false
}

// MurmurDetected reports whether label scored strictly above threshold.
func (r *Result) MurmurDetected(label string, threshold float64) bool {
	v, ok := r.Value(label)
	return ok && v > threshold
}

// NetworkError reports a failed request: either a transport failure (Err is
// set) or a non-2xx response (StatusCode and Message are set).
type NetworkError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classify: request failed: %v", e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("classify: server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("classify: server returned %d", e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Config configures a Client.
type Config struct {
	APIBase string
	Timeout time.Duration
}

// Client talks to the classification service.
type Client struct {
	base       string
	httpClient *http.Client
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

// NewClient returns a client for cfg. m may be nil.
func NewClient(cfg Config, log zerolog.Logger, m *metrics.Metrics) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		base:       strings.TrimRight(cfg.APIBase, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
		metrics:    m,
	}
}

// Options describe the uploaded file part.
type Options struct {
	// FileName defaults to <uuid>.wav.
	FileName string
	// ContentType defaults to audio/wav.
	ContentType string
}

// Classify uploads wav as multipart field "file" to {APIBase}/classify.
// Requests are never retried.
func (c *Client) Classify(ctx context.Context, wav []byte, opts Options) (*Result, error) {
	if opts.FileName == "" {
		opts.FileName = uuid.NewString() + ".wav"
	}
	if opts.ContentType == "" {
		opts.ContentType = "audio/wav"
	}

	body, contentType, err := multipartBody(wav, opts)
	if err != nil {
		return nil, fmt.Errorf("classify: build request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/classify", body)
	if err != nil {
		return nil, fmt.Errorf("classify: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.Classified("transport_error", time.Since(start))
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.metrics.Classified("http_error", time.Since(start))
		c.log.Warn().Int("status", resp.StatusCode).Msg("Classification request rejected")
		return nil, &NetworkError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.metrics.Classified("decode_error", time.Since(start))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, &NetworkError{Err: err}
		}
		return nil, fmt.Errorf("classify: decode response: %w", err)
	}

	c.metrics.Classified("ok", time.Since(start))
	c.log.Debug().
		Str("file", opts.FileName).
		Int("labels", len(result.Results)).
		Dur("elapsed", time.Since(start)).
		Msg("Classification received")
	return &result, nil
}

func multipartBody(wav []byte, opts Options) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, opts.FileName))
	h.Set("Content-Type", opts.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
