package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	AnalysisSpeciesIdentification = "species_identification"
	AnalysisThreatAssessment      = "threat_assessment"
	AnalysisGeneSequence          = "gene_sequence"
)

// Analysis is a document in aiAnalyses.
type Analysis struct {
	ID           bson.ObjectID `json:"_id" bson:"_id,omitempty"`
	UserID       string        `json:"userId" bson:"userId"`
	AnalysisType string        `json:"analysisType" bson:"analysisType"`
	Input        interface{}   `json:"input,omitempty" bson:"input,omitempty"`
	Result       interface{}   `json:"result" bson:"result"`
	ParseStatus  string        `json:"parseStatus" bson:"parseStatus"`
	CreatedAt    time.Time     `json:"createdAt" bson:"createdAt"`
}

// GeneSequence is a document in geneSequences.
type GeneSequence struct {
	ID              bson.ObjectID `json:"_id" bson:"_id,omitempty"`
	UserID          string        `json:"userId" bson:"userId"`
	SequenceType    string        `json:"sequenceType" bson:"sequenceType"`
	Sequence        string        `json:"sequence" bson:"sequence"`
	LocationContext string        `json:"locationContext,omitempty" bson:"locationContext,omitempty"`
	Result          interface{}   `json:"result" bson:"result"`
	ParseStatus     string        `json:"parseStatus" bson:"parseStatus"`
	CreatedAt       time.Time     `json:"createdAt" bson:"createdAt"`
}

// AnalysisDocument is the searchable projection of an analysis kept in the search index.
type AnalysisDocument struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	AnalysisType string    `json:"analysisType"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
