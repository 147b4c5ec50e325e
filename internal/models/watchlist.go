package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	ItemTypeGeneSequence     = "gene_sequence"
	ItemTypeImageRecognition = "image_recognition"
)

func ValidItemType(t string) bool {
	return t == ItemTypeGeneSequence || t == ItemTypeImageRecognition
}

type WatchlistItem struct {
	ID          bson.ObjectID `json:"_id" bson:"_id,omitempty"`
	UserID      string        `json:"userId" bson:"userId"`
	ItemType    string        `json:"itemType" bson:"itemType"`
	ReferenceID string        `json:"referenceId,omitempty" bson:"referenceId,omitempty"`
	Title       string        `json:"title,omitempty" bson:"title,omitempty"`
	Summary     string        `json:"summary,omitempty" bson:"summary,omitempty"`
	DataPreview interface{}   `json:"dataPreview,omitempty" bson:"dataPreview,omitempty"`
	Score       *float64      `json:"score,omitempty" bson:"score,omitempty"`
	CreatedAt   time.Time     `json:"createdAt" bson:"createdAt"`
}
