package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"mareye-api/internal/ai"
	"mareye-api/internal/models"
	"mareye-api/internal/repository/mongo"
	"mareye-api/internal/util"
)

const maxSequenceLength = 20000

var (
	sequenceTypes = map[string]bool{"COI": true, "16S": true, "18S": true, "ITS": true, "other": true}
	iupacPattern  = regexp.MustCompile(`^[ACGTURYSWKMBDHVN]+$`)
)

// Analyzer is the Gemini-backed marine analysis client.
type Analyzer interface {
	IdentifySpecies(ctx context.Context, image []byte, mimeType, hint string) (*ai.SpeciesResult, error)
	AnalyzeGeneSequence(ctx context.Context, sequence, sequenceType, location string) (*ai.SpeciesResult, error)
	AssessThreats(ctx context.Context, in ai.ThreatInput) (*ai.ThreatResult, error)
}

type Chatter interface {
	Chat(ctx context.Context, message, pageContext string) (string, error)
}

type AnalysisIndexer interface {
	Index(ctx context.Context, doc models.AnalysisDocument) error
}

// AIService runs the analyses, stores them per user and feeds the search index.
// analyzer, chat and index are optional.
type AIService struct {
	analyzer Analyzer
	chat     Chatter
	analyses mongo.AnalysisRepository
	index    AnalysisIndexer
	logger   *zap.Logger
	now      func() time.Time
	bgAsync  func(fn func())
}

func NewAIService(analyzer Analyzer, chat Chatter, analyses mongo.AnalysisRepository, index AnalysisIndexer, logger *zap.Logger) *AIService {
	return &AIService{
		analyzer: analyzer,
		chat:     chat,
		analyses: analyses,
		index:    index,
		logger:   logger,
		now:      time.Now,
		bgAsync:  func(fn func()) { go fn() },
	}
}

func (s *AIService) Chat(ctx context.Context, message, pageContext string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if s.chat == nil {
		return "", fmt.Errorf("%w: Groq API key not configured", ErrNotConfigured)
	}
	reply, err := s.chat.Chat(ctx, message, pageContext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return reply, nil
}

type SpeciesRequest struct {
	Image    []byte
	MIMEType string
	Filename string
	Context  string
}

type SpeciesAnalysis struct {
	ID     string            `json:"id"`
	Result *ai.SpeciesResult `json:"result"`
}

func (s *AIService) IdentifySpecies(ctx context.Context, userID string, req SpeciesRequest) (*SpeciesAnalysis, error) {
	if s.analyzer == nil {
		return nil, fmt.Errorf("%w: Gemini API key not configured", ErrNotConfigured)
	}
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: image is required", ErrInvalidInput)
	}
	if !strings.HasPrefix(req.MIMEType, "image/") {
		return nil, fmt.Errorf("%w: unsupported image type %q", ErrInvalidInput, req.MIMEType)
	}

	result, err := s.analyzer.IdentifySpecies(ctx, req.Image, req.MIMEType, req.Context)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	now := s.now().UTC()
	id, err := s.analyses.InsertAnalysis(ctx, &models.Analysis{
		UserID:       userID,
		AnalysisType: models.AnalysisSpeciesIdentification,
		Input: map[string]interface{}{
			"filename": req.Filename,
			"mimeType": req.MIMEType,
			"size":     len(req.Image),
			"context":  req.Context,
		},
		Result:      result,
		ParseStatus: string(result.ParseStatus),
		CreatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store analysis: %w", err)
	}

	s.indexAsync(ctx, speciesDocument(id, userID, models.AnalysisSpeciesIdentification, result, now))
	return &SpeciesAnalysis{ID: id, Result: result}, nil
}

type GeneSequenceRequest struct {
	Sequence        string `json:"sequence"`
	SequenceType    string `json:"sequenceType"`
	LocationContext string `json:"locationContext"`
}

func (s *AIService) AnalyzeGeneSequence(ctx context.Context, userID string, req GeneSequenceRequest) (*SpeciesAnalysis, error) {
	if s.analyzer == nil {
		return nil, fmt.Errorf("%w: Gemini API key not configured", ErrNotConfigured)
	}
	seq, err := NormalizeSequence(req.Sequence)
	if err != nil {
		return nil, err
	}
	if !sequenceTypes[req.SequenceType] {
		return nil, fmt.Errorf("%w: sequenceType must be one of COI, 16S, 18S, ITS, other", ErrInvalidInput)
	}
	location := strings.TrimSpace(req.LocationContext)

	result, err := s.analyzer.AnalyzeGeneSequence(ctx, seq, req.SequenceType, location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	now := s.now().UTC()
	id, err := s.analyses.InsertGeneSequence(ctx, &models.GeneSequence{
		UserID:          userID,
		SequenceType:    req.SequenceType,
		Sequence:        seq,
		LocationContext: location,
		Result:          result,
		ParseStatus:     string(result.ParseStatus),
		CreatedAt:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store gene sequence: %w", err)
	}

	doc := speciesDocument(id, userID, models.AnalysisGeneSequence, result, now)
	doc.Tags = append(doc.Tags, req.SequenceType)
	s.indexAsync(ctx, doc)
	return &SpeciesAnalysis{ID: id, Result: result}, nil
}

type ThreatAnalysis struct {
	ID     string           `json:"id"`
	Result *ai.ThreatResult `json:"result"`
}

func (s *AIService) AssessThreats(ctx context.Context, userID string, in ai.ThreatInput) (*ThreatAnalysis, error) {
	if s.analyzer == nil {
		return nil, fmt.Errorf("%w: Gemini API key not configured", ErrNotConfigured)
	}
	if in.Location.Latitude < -90 || in.Location.Latitude > 90 || in.Location.Longitude < -180 || in.Location.Longitude > 180 {
		return nil, fmt.Errorf("%w: location is out of range", ErrInvalidInput)
	}

	result, err := s.analyzer.AssessThreats(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	now := s.now().UTC()
	id, err := s.analyses.InsertAnalysis(ctx, &models.Analysis{
		UserID:       userID,
		AnalysisType: models.AnalysisThreatAssessment,
		Input:        in,
		Result:       result,
		ParseStatus:  string(result.ParseStatus),
		CreatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store analysis: %w", err)
	}

	title := "Threat assessment"
	if result.ThreatLevel != "" {
		title += ": " + result.ThreatLevel
	}
	if in.Location.Region != "" {
		title += " (" + in.Location.Region + ")"
	}
	tags := append([]string{}, result.PrimaryThreats...)
	tags = append(tags, result.AffectedSpecies...)
	s.indexAsync(ctx, models.AnalysisDocument{
		ID:           id,
		UserID:       userID,
		AnalysisType: models.AnalysisThreatAssessment,
		Title:        title,
		Body:         strings.Join(append([]string{result.Timeframe}, result.Recommendations...), "\n"),
		Tags:         tags,
		CreatedAt:    now,
	})
	return &ThreatAnalysis{ID: id, Result: result}, nil
}

// NormalizeSequence strips FASTA headers and whitespace and upper-cases the bases.
func NormalizeSequence(raw string) (string, error) {
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, ">") {
			continue
		}
		for _, f := range strings.Fields(line) {
			b.WriteString(strings.ToUpper(f))
		}
	}
	seq := b.String()
	switch {
	case seq == "":
		return "", fmt.Errorf("%w: sequence is required", ErrInvalidInput)
	case len(seq) > maxSequenceLength:
		return "", fmt.Errorf("%w: sequence is longer than %d bases", ErrInvalidInput, maxSequenceLength)
	case !iupacPattern.MatchString(seq):
		return "", fmt.Errorf("%w: sequence contains non-nucleotide characters", ErrInvalidInput)
	}
	return seq, nil
}

func speciesDocument(id, userID, kind string, r *ai.SpeciesResult, at time.Time) models.AnalysisDocument {
	title := r.Species
	if title == "" {
		title = "Unidentified"
	}
	if r.CommonName != "" && r.CommonName != r.Species {
		title += " (" + r.CommonName + ")"
	}
	body := r.Description
	if body == "" && r.ParseStatus == ai.StatusUnparsed {
		body = r.Raw
	}
	tags := append([]string{}, r.Threats...)
	for _, rank := range []string{r.Classification.Family, r.Classification.Genus, r.Habitat, r.ConservationStatus} {
		if rank != "" {
			tags = append(tags, rank)
		}
	}
	return models.AnalysisDocument{
		ID:           id,
		UserID:       userID,
		AnalysisType: kind,
		Title:        title,
		Body:         body,
		Tags:         tags,
		CreatedAt:    at,
	}
}

// indexAsync writes to the search index after the response is decided; failures only log.
func (s *AIService) indexAsync(ctx context.Context, doc models.AnalysisDocument) {
	if s.index == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.bgAsync(func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.index.Index(ctx, doc); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Failed to index analysis",
				util.String("analysis_id", doc.ID),
				util.String("type", doc.AnalysisType),
				zap.Error(err),
			)
		}
	})
}
