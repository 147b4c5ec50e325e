package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mareye-api/internal/config"
)

func backendsFor(url string) config.BackendsConfig {
	return config.BackendsConfig{
		EnhancementURL:     url,
		EnhancementTimeout: 5 * time.Second,
		DetectionURL:       url,
		DetectionTimeout:   5 * time.Second,
	}
}

func TestDetectImageForwardsFileUnmodified(t *testing.T) {
	var gotField, gotName, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/detect/image", r.URL.Path)
		file, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		b, _ := io.ReadAll(file)
		gotField, gotName, gotBody = "file", hdr.Filename, string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"type":"image","threat_count":1,"overall_threat_level":"HIGH",
			"threats":[{"id":1,"class":"mine","class_id":2,"confidence":0.91,"threat_level":"HIGH","bounding_box":{"x1":1,"y1":2,"x2":3,"y2":4}}]}`))
	}))
	defer srv.Close()

	d := NewDetection(backendsFor(srv.URL), zap.NewNop())
	resp, err := d.DetectImage(context.Background(), FilePart{Filename: "sonar.png", ContentType: "image/png", Reader: strings.NewReader("PNGDATA")})
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, "file", gotField)
	assert.Equal(t, "sonar.png", gotName)
	assert.Equal(t, "PNGDATA", gotBody)

	var result ImageDetectionResult
	require.NoError(t, resp.Decode(&result))
	assert.Equal(t, ThreatHigh, result.OverallThreatLevel)
	require.Len(t, result.Threats, 1)
	assert.Equal(t, "mine", result.Threats[0].Class)
	assert.Equal(t, 3.0, result.Threats[0].BoundingBox.X2)
}

func TestDetectVideoDefaultsFrameInterval(t *testing.T) {
	var interval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		interval = r.FormValue("frame_interval")
		_, _ = w.Write([]byte(`{"success":true,"type":"video"}`))
	}))
	defer srv.Close()

	d := NewDetection(backendsFor(srv.URL), zap.NewNop())
	_, err := d.DetectVideo(context.Background(), FilePart{Filename: "a.mp4", Reader: strings.NewReader("v")}, 0)
	require.NoError(t, err)
	assert.Equal(t, "30", interval)
}

func TestUpstreamErrorStatusIsPassedThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"error":"unsupported format"}`))
	}))
	defer srv.Close()

	e := NewEnhancement(backendsFor(srv.URL), zap.NewNop())
	resp, err := e.ProcessImage(context.Background(), FilePart{Filename: "x.gif", Reader: strings.NewReader("g")}, "")
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.JSONEq(t, `{"success":false,"error":"unsupported format"}`, string(resp.Body))
}

func TestOversizedUpstreamResponseIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detections":[1,2,3]}`))
	}))
	defer srv.Close()

	d := NewDetection(backendsFor(srv.URL), zap.NewNop())
	d.up.maxBody = int64(len(`{"detections":[1,2,3]}`))
	resp, err := d.ModelInfo(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"detections":[1,2,3]}`, string(resp.Body))

	d.up.maxBody--
	_, err = d.ModelInfo(context.Background())
	assert.ErrorIs(t, err, ErrResponseTooLarge)
	assert.False(t, errors.Is(err, ErrUnreachable))
}

func TestEnhancementDefaultsModelAndAnalysisType(t *testing.T) {
	seen := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		for k, v := range r.MultipartForm.Value {
			seen[r.URL.Path+":"+k] = v[0]
		}
		for k := range r.MultipartForm.File {
			seen[r.URL.Path+":file"] = k
		}
		_, _ = w.Write([]byte(`{"success":true,"metrics":{"psnr":27.5,"ssim":0.88,"uiqm_improvement":0.4}}`))
	}))
	defer srv.Close()

	e := NewEnhancement(backendsFor(srv.URL), zap.NewNop())
	ctx := context.Background()

	resp, err := e.ProcessImage(ctx, FilePart{Filename: "a.jpg", Reader: strings.NewReader("i")}, "")
	require.NoError(t, err)
	var result EnhancementResult
	require.NoError(t, resp.Decode(&result))
	require.NotNil(t, result.Metrics)
	assert.Equal(t, 27.5, result.Metrics.PSNR)

	_, err = e.ProcessVideo(ctx, FilePart{Filename: "a.mp4", Reader: strings.NewReader("v")}, "epoch9")
	require.NoError(t, err)
	_, err = e.RunAnalytics(ctx, FilePart{Filename: "a.jpg", Reader: strings.NewReader("i")}, "")
	require.NoError(t, err)

	assert.Equal(t, "epoch4", seen["/api/process-image:model"])
	assert.Equal(t, "image", seen["/api/process-image:file"])
	assert.Equal(t, "epoch9", seen["/api/process-video:model"])
	assert.Equal(t, "video", seen["/api/process-video:file"])
	assert.Equal(t, "comprehensive", seen["/api/run-analytics:analysis_type"])
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := NewDetection(backendsFor(url), zap.NewNop())
	_, err := d.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))
	assert.Equal(t, "Network error: unable to reach detection service", err.Error())
}

func TestDownloadRejectsTraversal(t *testing.T) {
	e := NewEnhancement(backendsFor("http://127.0.0.1:1"), zap.NewNop())
	for _, p := range []string{"", "/", "../etc/passwd", "a/../../b", "a//b"} {
		_, err := e.Download(context.Background(), p)
		assert.ErrorIs(t, err, ErrInvalidPath, p)
	}
}

func TestDownloadStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/download/results/out%20file.png", r.URL.EscapedPath())
		_, _ = w.Write([]byte("binary"))
	}))
	defer srv.Close()

	e := NewEnhancement(backendsFor(srv.URL), zap.NewNop())
	resp, err := e.Download(context.Background(), "results/out file.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "binary", string(b))
}
