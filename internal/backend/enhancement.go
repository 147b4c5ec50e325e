package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"mareye-api/internal/config"
)

const (
	DefaultEnhancementModel = "epoch4"
	DefaultAnalysisType     = "comprehensive"
)

var ErrInvalidPath = errors.New("invalid download path")

// Enhancement is the client of the CNN image enhancement service.
type Enhancement struct {
	up *upstream
}

func NewEnhancement(cfg config.BackendsConfig, logger *zap.Logger) *Enhancement {
	return &Enhancement{up: newUpstream("enhancement", "enhancement service", cfg.EnhancementURL, cfg.EnhancementTimeout, logger)}
}

func (e *Enhancement) Health(ctx context.Context) (*Response, error) {
	return e.up.get(ctx, "/health")
}

func (e *Enhancement) ProcessImage(ctx context.Context, image FilePart, model string) (*Response, error) {
	image.Field = "image"
	return e.up.postMultipart(ctx, "/api/process-image", image, map[string]string{"model": orDefault(model, DefaultEnhancementModel)})
}

func (e *Enhancement) ProcessVideo(ctx context.Context, video FilePart, model string) (*Response, error) {
	video.Field = "video"
	return e.up.postMultipart(ctx, "/api/process-video", video, map[string]string{"model": orDefault(model, DefaultEnhancementModel)})
}

func (e *Enhancement) RunAnalytics(ctx context.Context, file FilePart, analysisType string) (*Response, error) {
	file.Field = "file"
	return e.up.postMultipart(ctx, "/api/run-analytics", file, map[string]string{"analysis_type": orDefault(analysisType, DefaultAnalysisType)})
}

func (e *Enhancement) ExportONNX(ctx context.Context, body []byte) (*Response, error) {
	return e.up.postJSON(ctx, "/api/export-onnx", body)
}

func (e *Enhancement) DeployJetson(ctx context.Context, body []byte) (*Response, error) {
	return e.up.postJSON(ctx, "/api/deploy-jetson", body)
}

// Download opens a processed artifact for streaming. The caller closes the body.
func (e *Enhancement) Download(ctx context.Context, path string) (*http.Response, error) {
	escaped, err := escapePath(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.up.baseURL+"/api/download/"+escaped, nil)
	if err != nil {
		return nil, err
	}
	return e.up.send(req)
}

func escapePath(p string) (string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		if s == "" || s == "." || s == ".." {
			return "", ErrInvalidPath
		}
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/"), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
