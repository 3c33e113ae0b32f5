// Package search builds an in-memory full-text index over tool
// catalogues so one query can rank matching tools across every
// configured server.
package search

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// DefaultLimit caps the result list when the caller passes no limit.
const DefaultLimit = 10

// Document is one tool as it enters the index.
type Document struct {
	Server      string `json:"server"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Match is one ranked hit.
type Match struct {
	Server      string
	Name        string
	Description string
	Score       float64
}

// Index holds tool documents for the lifetime of one invocation. It
// lives entirely in memory; there is nothing to persist because the
// catalogue is refetched on every run.
type Index struct {
	idx bleve.Index
}

// New creates an empty in-memory index.
func New() (*Index, error) {
	docMapping := bleve.NewDocumentMapping()

	// Server and tool names match as whole terms.
	serverField := bleve.NewTextFieldMapping()
	serverField.Analyzer = keyword.Name
	serverField.Store = true
	docMapping.AddFieldMappingsAt("server", serverField)

	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = keyword.Name
	nameField.Store = true
	docMapping.AddFieldMappingsAt("name", nameField)

	// Descriptions get full-text treatment.
	descriptionField := bleve.NewTextFieldMapping()
	descriptionField.Analyzer = standard.Name
	descriptionField.Store = true
	docMapping.AddFieldMappingsAt("description", descriptionField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// Add indexes tool documents in one batch. The document ID is
// server/name, so re-adding a tool replaces its previous entry.
func (x *Index) Add(docs []Document) error {
	batch := x.idx.NewBatch()
	for _, d := range docs {
		docID := d.Server + "/" + d.Name
		if err := batch.Index(docID, d); err != nil {
			return fmt.Errorf("failed to queue %s for indexing: %w", docID, err)
		}
	}
	return x.idx.Batch(batch)
}

// Search runs a relevance-ranked query and returns up to limit matches,
// best first.
func (x *Index) Search(query string, limit int) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit
	req.Fields = []string{"server", "name", "description"}

	res, err := x.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	matches := make([]Match, 0, len(res.Hits))
	for _, hit := range res.Hits {
		matches = append(matches, Match{
			Server:      stringField(hit.Fields, "server"),
			Name:        stringField(hit.Fields, "name"),
			Description: stringField(hit.Fields, "description"),
			Score:       hit.Score,
		})
	}
	return matches, nil
}

// Count returns the number of indexed documents.
func (x *Index) Count() (uint64, error) {
	return x.idx.DocCount()
}

// Close releases the index.
func (x *Index) Close() error {
	return x.idx.Close()
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
