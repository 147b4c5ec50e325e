package backend

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

	"go.uber.org/zap"

	"mareye-api/internal/metrics"
)

const maxResponseBytes = 64 << 20

var (
	ErrUnreachable      = errors.New("upstream unreachable")
	ErrResponseTooLarge = errors.New("upstream response too large")
)

// UnreachableError is returned when the request never produced an HTTP response.
type UnreachableError struct {
	Service string
	Err     error
}

func (e *UnreachableError) Error() string {
	return "Network error: unable to reach " + e.Service
}

func (e *UnreachableError) Is(target error) bool { return target == ErrUnreachable }

func (e *UnreachableError) Unwrap() error { return e.Err }

// Response is an upstream reply kept verbatim for pass-through.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

func (r *Response) Decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// FilePart is one uploaded file forwarded unmodified.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Reader      io.Reader
}

type upstream struct {
	name    string
	label   string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	maxBody int64
}

func newUpstream(name, label, baseURL string, timeout time.Duration, logger *zap.Logger) *upstream {
	return &upstream{
		name:    name,
		label:   label,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		maxBody: maxResponseBytes,
	}
}

func (u *upstream) get(ctx context.Context, path string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return u.do(req)
}

func (u *upstream) postJSON(ctx context.Context, path string, body []byte) (*Response, error) {
	if len(body) == 0 {
		body = []byte("{}")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return u.do(req)
}

// postMultipart streams the file through a pipe so large uploads are not buffered twice.
func (u *upstream) postMultipart(ctx context.Context, path string, file FilePart, fields map[string]string) (*Response, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, file, fields))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return u.do(req)
}

func writeMultipart(mw *multipart.Writer, file FilePart, fields map[string]string) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Filename))
	ct := file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file.Reader); err != nil {
		return err
	}
	return mw.Close()
}

func (u *upstream) do(req *http.Request) (*Response, error) {
	start := time.Now()
	resp, err := u.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBody+1))
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(u.name, "network_error").Inc()
		return nil, &UnreachableError{Service: u.label, Err: err}
	}
	if int64(len(body)) > u.maxBody {
		metrics.UpstreamRequestsTotal.WithLabelValues(u.name, "too_large").Inc()
		u.logger.Warn("Upstream response exceeded size limit",
			zap.String("upstream", u.name),
			zap.String("path", req.URL.Path),
			zap.Int64("limit", u.maxBody),
		)
		return nil, fmt.Errorf("%w: %s replied with more than %d bytes", ErrResponseTooLarge, u.label, u.maxBody)
	}

	outcome := "success"
	if resp.StatusCode/100 != 2 {
		outcome = "http_error"
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(u.name, outcome).Inc()
	u.logger.Debug("Upstream call completed",
		zap.String("upstream", u.name),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	return &Response{StatusCode: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: body}, nil
}

// send performs the request and maps transport failures to UnreachableError.
func (u *upstream) send(req *http.Request) (*http.Response, error) {
	resp, err := u.http.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(u.name, "network_error").Inc()
		u.logger.Warn("Upstream request failed",
			zap.String("upstream", u.name),
			zap.String("path", req.URL.Path),
			zap.Error(err),
		)
		return nil, &UnreachableError{Service: u.label, Err: err}
	}
	return resp, nil
}
