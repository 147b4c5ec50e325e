package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mareye-api/internal/backend"
	"mareye-api/internal/util"
)

const multipartMemory = 32 << 20

type Enhancer interface {
	Health(ctx context.Context) (*backend.Response, error)
	ProcessImage(ctx context.Context, image backend.FilePart, model string) (*backend.Response, error)
	ProcessVideo(ctx context.Context, video backend.FilePart, model string) (*backend.Response, error)
	RunAnalytics(ctx context.Context, file backend.FilePart, analysisType string) (*backend.Response, error)
	ExportONNX(ctx context.Context, body []byte) (*backend.Response, error)
	DeployJetson(ctx context.Context, body []byte) (*backend.Response, error)
	Download(ctx context.Context, path string) (*http.Response, error)
}

type Detector interface {
	Health(ctx context.Context) (*backend.Response, error)
	ModelInfo(ctx context.Context) (*backend.Response, error)
	DetectImage(ctx context.Context, file backend.FilePart) (*backend.Response, error)
	DetectVideo(ctx context.Context, file backend.FilePart, frameInterval int) (*backend.Response, error)
	Detect(ctx context.Context, file backend.FilePart) (*backend.Response, error)
}

// ProxyHandler forwards uploads to the enhancement and detection services and passes
// their JSON back unchanged.
type ProxyHandler struct {
	base
	enhancer      Enhancer
	detector      Detector
	maxUpload     int64
	uploadTimeout time.Duration
}

// NewProxyHandler builds the proxy routes. uploadTimeout replaces the server read and
// write deadlines on upload requests; zero keeps the server defaults.
func NewProxyHandler(enhancer Enhancer, detector Detector, maxUpload int64, uploadTimeout time.Duration, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{
		base:          base{logger: logger},
		enhancer:      enhancer,
		detector:      detector,
		maxUpload:     maxUpload,
		uploadTimeout: uploadTimeout,
	}
}

func (h *ProxyHandler) RegisterRoutes(r chi.Router) {
	r.Route("/enhance", func(r chi.Router) {
		r.Get("/health", h.EnhancementHealth)
		r.Post("/process-image", h.ProcessImage)
		r.Post("/process-video", h.ProcessVideo)
		r.Post("/run-analytics", h.RunAnalytics)
		r.Post("/export-onnx", h.ExportONNX)
		r.Post("/deploy-jetson", h.DeployJetson)
		r.Get("/download/*", h.Download)
	})
	r.Route("/detect", func(r chi.Router) {
		r.Post("/", h.Detect)
		r.Get("/health", h.DetectionHealth)
		r.Get("/model/info", h.ModelInfo)
		r.Post("/image", h.DetectImage)
		r.Post("/video", h.DetectVideo)
	})
}

func (h *ProxyHandler) EnhancementHealth(w http.ResponseWriter, r *http.Request) {
	resp, err := h.enhancer.Health(r.Context())
	h.relay(w, resp, err)
}

func (h *ProxyHandler) ProcessImage(w http.ResponseWriter, r *http.Request) {
	h.withUpload(w, r, "image", func(part backend.FilePart) (*backend.Response, error) {
		return h.enhancer.ProcessImage(r.Context(), part, r.FormValue("model"))
	})
}

func (h *ProxyHandler) ProcessVideo(w http.ResponseWriter, r *http.Request) {
	h.withUpload(w, r, "video", func(part backend.FilePart) (*backend.Response, error) {
		return h.enhancer.ProcessVideo(r.Context(), part, r.FormValue("model"))
	})
}

func (h *ProxyHandler) RunAnalytics(w http.ResponseWriter, r *http.Request) {
	h.withUpload(w, r, "file", func(part backend.FilePart) (*backend.Response, error) {
		return h.enhancer.RunAnalytics(r.Context(), part, r.FormValue("analysis_type"))
	})
}

func (h *ProxyHandler) ExportONNX(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	resp, err := h.enhancer.ExportONNX(r.Context(), body)
	h.relay(w, resp, err)
}

func (h *ProxyHandler) DeployJetson(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	resp, err := h.enhancer.DeployJetson(r.Context(), body)
	h.relay(w, resp, err)
}

// Download streams a processed artifact without buffering it.
func (h *ProxyHandler) Download(w http.ResponseWriter, r *http.Request) {
	resp, err := h.enhancer.Download(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		if errors.Is(err, backend.ErrInvalidPath) {
			h.respondWithError(w, http.StatusBadRequest, err, "Invalid download path")
			return
		}
		h.relay(w, nil, err)
		return
	}
	defer resp.Body.Close()

	for _, k := range []string{"Content-Type", "Content-Length", "Content-Disposition"} {
		if v := resp.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("Download stream interrupted", util.ErrorField(err))
	}
}

func (h *ProxyHandler) DetectionHealth(w http.ResponseWriter, r *http.Request) {
	resp, err := h.detector.Health(r.Context())
	h.relay(w, resp, err)
}

func (h *ProxyHandler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	resp, err := h.detector.ModelInfo(r.Context())
	h.relay(w, resp, err)
}

func (h *ProxyHandler) DetectImage(w http.ResponseWriter, r *http.Request) {
	h.withUpload(w, r, "file", func(part backend.FilePart) (*backend.Response, error) {
		return h.detector.DetectImage(r.Context(), part)
	})
}

func (h *ProxyHandler) DetectVideo(w http.ResponseWriter, r *http.Request) {
	h.withUpload(w, r, "file", func(part backend.FilePart) (*backend.Response, error) {
		interval := 0
		if v := r.FormValue("frame_interval"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, errBadFrameInterval
			}
			interval = n
		}
		return h.detector.DetectVideo(r.Context(), part, interval)
	})
}

func (h *ProxyHandler) Detect(w http.ResponseWriter, r *http.Request) {
	h.withUpload(w, r, "file", func(part backend.FilePart) (*backend.Response, error) {
		return h.detector.Detect(r.Context(), part)
	})
}

var errBadFrameInterval = errors.New("frame_interval must be a positive integer")

// withUpload parses the multipart form, opens field (or "file" as a fallback) and calls forward.
func (h *ProxyHandler) withUpload(w http.ResponseWriter, r *http.Request, field string, forward func(backend.FilePart) (*backend.Response, error)) {
	h.extendDeadlines(w)
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondWithError(w, http.StatusRequestEntityTooLarge, err, "File is too large")
			return
		}
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(field)
	if err != nil && field != "file" {
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "No file provided")
		return
	}
	defer file.Close()

	resp, err := forward(filePart(file, header))
	if errors.Is(err, errBadFrameInterval) {
		h.respondWithError(w, http.StatusBadRequest, err, err.Error())
		return
	}
	h.relay(w, resp, err)
}

func (h *ProxyHandler) extendDeadlines(w http.ResponseWriter) {
	if h.uploadTimeout <= 0 {
		return
	}
	deadline := time.Now().Add(h.uploadTimeout)
	rc := http.NewResponseController(w)
	if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("Failed to extend upload read deadline", util.ErrorField(err))
	}
	if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("Failed to extend upload write deadline", util.ErrorField(err))
	}
}

func filePart(file multipart.File, header *multipart.FileHeader) backend.FilePart {
	return backend.FilePart{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	}
}

func (h *ProxyHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return nil, false
	}
	return body, true
}

// relay writes the upstream reply as is, or the network error envelope.
func (h *ProxyHandler) relay(w http.ResponseWriter, resp *backend.Response, err error) {
	if err != nil {
		if errors.Is(err, backend.ErrUnreachable) {
			h.logger.Warn("Upstream unreachable", util.ErrorField(err))
			h.respondWithJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
			return
		}
		if errors.Is(err, backend.ErrResponseTooLarge) {
			h.respondWithError(w, http.StatusBadGateway, err, "Upstream response too large")
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, err, "Upstream request failed")
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		h.logger.Warn("Failed to write upstream response", util.ErrorField(err))
	}
}
