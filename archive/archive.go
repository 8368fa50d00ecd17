package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/flowwork/agent/ledger"
)

// Delivery is one completed piece of work as indexed in the archive.
type Delivery struct {
	TaskID      uint64    `json:"task_id"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Proposal    string    `json:"proposal"`
	Confidence  int       `json:"confidence"`
	Price       string    `json:"price"`
	ContentRef  string    `json:"content_ref"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// Archive is a searchable record of everything the agent has delivered.
// It is an operator convenience: the ledger stays authoritative and the
// engine never reads the archive back to make decisions.
type Archive struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

// Config configures an Archive.
type Config struct {
	// Path is the directory holding the bleve index. Empty means an
	// in-memory index that is lost on close.
	Path string
}

// New opens or creates the delivery archive.
func New(cfg Config) (*Archive, error) {
	if cfg.Path == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create archive index: %w", err)
		}
		return &Archive{index: index}, nil
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	indexPath := filepath.Join(cfg.Path, "deliveries.bleve")

	var index bleve.Index
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create archive index: %w", err)
		}
	} else {
		index, err = bleve.Open(indexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive index: %w", err)
		}
	}
	return &Archive{index: index, path: cfg.Path}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	dateFieldMapping := bleve.NewDateTimeFieldMapping()
	numericFieldMapping := bleve.NewNumericFieldMapping()

	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("proposal", textFieldMapping)
	docMapping.AddFieldMappingsAt("category", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("content_ref", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("price", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("task_id", numericFieldMapping)
	docMapping.AddFieldMappingsAt("confidence", numericFieldMapping)
	docMapping.AddFieldMappingsAt("delivered_at", dateFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Record indexes a delivery. The task id is the document id, so
// re-recording the same task overwrites rather than duplicates.
func (a *Archive) Record(ctx context.Context, d Delivery) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if d.DeliveredAt.IsZero() {
		d.DeliveredAt = time.Now()
	}
	if err := a.index.Index(docID(d.TaskID), d); err != nil {
		return fmt.Errorf("failed to index delivery: %w", err)
	}
	return nil
}

// RecordTask is a convenience that builds the Delivery from a task
// snapshot plus the delivery metadata.
func (a *Archive) RecordTask(ctx context.Context, task *ledger.Task, proposal string, confidence int, price ledger.Amount, contentRef string) error {
	return a.Record(ctx, Delivery{
		TaskID:      task.ID,
		Category:    task.Category.String(),
		Description: task.Description,
		Proposal:    proposal,
		Confidence:  confidence,
		Price:       price.String(),
		ContentRef:  contentRef,
	})
}

// ByTask returns the archived delivery for one task.
func (a *Archive) ByTask(ctx context.Context, taskID uint64) (*Delivery, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{docID(taskID)}))
	req.Fields = []string{"*"}
	req.Size = 1

	res, err := a.index.Search(req)
	if err != nil {
		return nil, err
	}
	if res.Total == 0 {
		return nil, nil
	}
	d := hitToDelivery(res.Hits[0].ID, res.Hits[0].Fields)
	return &d, nil
}

// Search runs a full-text query over descriptions and proposals.
func (a *Archive) Search(ctx context.Context, queryText string, limit int) ([]Delivery, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(queryText))
	req.Fields = []string{"*"}
	req.Size = limit

	res, err := a.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("archive search failed: %w", err)
	}

	var out []Delivery
	for _, hit := range res.Hits {
		out = append(out, hitToDelivery(hit.ID, hit.Fields))
	}
	return out, nil
}

// Count returns how many deliveries are archived.
func (a *Archive) Count() (uint64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.DocCount()
}

// Close closes the underlying index.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index.Close()
}

func docID(taskID uint64) string {
	return strconv.FormatUint(taskID, 10)
}

func hitToDelivery(id string, fields map[string]interface{}) Delivery {
	var d Delivery
	d.TaskID, _ = strconv.ParseUint(id, 10, 64)
	if v, ok := fields["category"].(string); ok {
		d.Category = v
	}
	if v, ok := fields["description"].(string); ok {
		d.Description = v
	}
	if v, ok := fields["proposal"].(string); ok {
		d.Proposal = v
	}
	if v, ok := fields["confidence"].(float64); ok {
		d.Confidence = int(v)
	}
	if v, ok := fields["price"].(string); ok {
		d.Price = v
	}
	if v, ok := fields["content_ref"].(string); ok {
		d.ContentRef = v
	}
	if v, ok := fields["delivered_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			d.DeliveredAt = t
		}
	}
	return d
}
