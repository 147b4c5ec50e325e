package elastic

import (
	"context"
	"fmt"

	"mareye-api/internal/client"
	"mareye-api/internal/models"
)

// AnalysisIndex keeps a full-text projection of a user's saved analyses.
type AnalysisIndex struct {
	es    *client.ESClient
	index string
}

func NewAnalysisIndex(es *client.ESClient, index string) *AnalysisIndex {
	return &AnalysisIndex{es: es, index: index}
}

func (a *AnalysisIndex) Index(ctx context.Context, doc models.AnalysisDocument) error {
	if err := a.es.IndexDocument(ctx, a.index, doc.ID, doc); err != nil {
		return fmt.Errorf("failed to index analysis %s: %w", doc.ID, err)
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.AnalysisDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search matches text against title, body and tags, restricted to one user's documents.
func (a *AnalysisIndex) Search(ctx context.Context, userID, text string, limit int) ([]models.AnalysisDocument, error) {
	query := map[string]interface{}{
		"size": limit,
		"sort": []interface{}{map[string]interface{}{"createdAt": map[string]string{"order": "desc"}}},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"userId": userID}},
				},
				"must": []interface{}{
					map[string]interface{}{
						"multi_match": map[string]interface{}{
							"query":  text,
							"fields": []string{"title^2", "body", "tags"},
						},
					},
				},
			},
		},
	}

	var resp searchResponse
	if err := a.es.Search(ctx, a.index, query, &resp); err != nil {
		return nil, fmt.Errorf("failed to search analyses: %w", err)
	}

	out := make([]models.AnalysisDocument, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
