package backend

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"mareye-api/internal/config"
)

const DefaultFrameInterval = 30

// Detection is the client of the YOLO threat detection service.
type Detection struct {
	up *upstream
}

func NewDetection(cfg config.BackendsConfig, logger *zap.Logger) *Detection {
	return &Detection{up: newUpstream("detection", "detection service", cfg.DetectionURL, cfg.DetectionTimeout, logger)}
}

func (d *Detection) Health(ctx context.Context) (*Response, error) {
	return d.up.get(ctx, "/health")
}

func (d *Detection) ModelInfo(ctx context.Context) (*Response, error) {
	return d.up.get(ctx, "/api/model/info")
}

func (d *Detection) DetectImage(ctx context.Context, file FilePart) (*Response, error) {
	file.Field = "file"
	return d.up.postMultipart(ctx, "/api/detect/image", file, nil)
}

func (d *Detection) DetectVideo(ctx context.Context, file FilePart, frameInterval int) (*Response, error) {
	if frameInterval <= 0 {
		frameInterval = DefaultFrameInterval
	}
	file.Field = "file"
	return d.up.postMultipart(ctx, "/api/detect/video", file, map[string]string{"frame_interval": strconv.Itoa(frameInterval)})
}

// Detect lets the service decide between image and video from the file.
func (d *Detection) Detect(ctx context.Context, file FilePart) (*Response, error) {
	file.Field = "file"
	return d.up.postMultipart(ctx, "/api/detect", file, nil)
}
