package backend

import "encoding/json"

type BoundingBox struct {
	X1      float64 `json:"x1"`
	Y1      float64 `json:"y1"`
	X2      float64 `json:"x2"`
	Y2      float64 `json:"y2"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
}

// Threat levels reported by the detection model.
const (
	ThreatCritical = "CRITICAL"
	ThreatHigh     = "HIGH"
	ThreatMedium   = "MEDIUM"
	ThreatLow      = "LOW"
)

type Threat struct {
	ID                   int         `json:"id"`
	Class                string      `json:"class"`
	ClassID              int         `json:"class_id"`
	Confidence           float64     `json:"confidence"`
	ConfidencePercentage float64     `json:"confidence_percentage"`
	ThreatLevel          string      `json:"threat_level"`
	BoundingBox          BoundingBox `json:"bounding_box"`
	AreaPixels           float64     `json:"area_pixels"`
	RelativeSize         float64     `json:"relative_size"`
}

type ImageMetadata struct {
	ImagePath           string  `json:"image_path"`
	ImageWidth          int     `json:"image_width"`
	ImageHeight         int     `json:"image_height"`
	ImageSizeKB         float64 `json:"image_size_kb"`
	ModelUsed           string  `json:"model_used"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	DetectionTimestamp  string  `json:"detection_timestamp"`
}

type ImageDetectionResult struct {
	Success            bool          `json:"success"`
	Type               string        `json:"type"`
	Filename           string        `json:"filename"`
	Threats            []Threat      `json:"threats"`
	ThreatCount        int           `json:"threat_count"`
	OverallThreatLevel string        `json:"overall_threat_level"`
	OverallThreatScore float64       `json:"overall_threat_score"`
	AnnotatedImage     string        `json:"annotated_image,omitempty"`
	Metadata           ImageMetadata `json:"metadata"`
	Error              string        `json:"error,omitempty"`
}

type VideoFrame struct {
	FrameNumber int      `json:"frame_number"`
	Timestamp   float64  `json:"timestamp"`
	Threats     []Threat `json:"threats"`
	ThreatCount int      `json:"threat_count"`
	ThreatLevel string   `json:"threat_level"`
}

type VideoMetadata struct {
	DurationSeconds float64 `json:"duration_seconds"`
	FPS             float64 `json:"fps"`
	TotalFrames     int     `json:"total_frames"`
	ProcessedFrames int     `json:"processed_frames"`
	FrameInterval   int     `json:"frame_interval"`
	Resolution      string  `json:"resolution"`
}

type VideoSummary struct {
	FramesAnalyzed       int     `json:"frames_analyzed"`
	FramesWithDetections int     `json:"frames_with_detections"`
	DetectionRate        float64 `json:"detection_rate"`
}

type VideoDetectionResult struct {
	Success            bool          `json:"success"`
	Type               string        `json:"type"`
	Filename           string        `json:"filename"`
	VideoMetadata      VideoMetadata `json:"video_metadata"`
	TotalDetections    int           `json:"total_detections"`
	TotalThreats       int           `json:"total_threats"`
	OverallThreatLevel string        `json:"overall_threat_level"`
	FramesWithThreats  []VideoFrame  `json:"frames_with_threats"`
	Summary            VideoSummary  `json:"summary"`
	Error              string        `json:"error,omitempty"`
}

type EnhancementMetrics struct {
	PSNR            float64 `json:"psnr"`
	SSIM            float64 `json:"ssim"`
	UIQMImprovement float64 `json:"uiqm_improvement"`
}

// EnhancementResult is the envelope every enhancement endpoint answers with.
type EnhancementResult struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data,omitempty"`
	Metrics *EnhancementMetrics `json:"metrics,omitempty"`
	Error   string              `json:"error,omitempty"`
}
