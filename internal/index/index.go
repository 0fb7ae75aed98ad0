// Package index maintains a full-text search index over the current
// revision of every article. The index lives in memory only and is
// rebuilt from the store on startup; it is an acceleration structure,
// never a source of truth.
package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sirupsen/logrus"

	"github.com/quillwiki/quill/internal/articles"
	"github.com/quillwiki/quill/internal/metrics"
	"github.com/quillwiki/quill/pkg/types"
)

const maxResults = 10

// Result is one search hit.
type Result struct {
	ID         types.ArticleID
	Title      string
	Snippet    string
	LastEdited time.Time
}

type document struct {
	Name    string    `json:"name"`
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
}

type Index struct {
	mu      sync.Mutex // serializes writers; bleve reads are safe concurrently
	bi      bleve.Index
	log     *logrus.Logger
	metrics *metrics.Metrics
}

func New(log *logrus.Logger, m *metrics.Metrics) (*Index, error) {
	if m == nil {
		m = metrics.New()
	}

	mapping := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	nameField := bleve.NewTextFieldMapping()
	doc.AddFieldMappingsAt("name", nameField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Store = true
	doc.AddFieldMappingsAt("content", contentField)

	dateField := bleve.NewDateTimeFieldMapping()
	doc.AddFieldMappingsAt("date", dateField)

	mapping.DefaultMapping = doc

	bi, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("error creating search index: %w", err)
	}
	return &Index{bi: bi, log: log, metrics: m}, nil
}

func (i *Index) Close() error {
	return i.bi.Close()
}

func docID(id types.ArticleID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// AddOrUpdateArticle replaces whatever the index holds for the article.
// Passing a different name than before also covers renames, since the
// document is keyed by id.
func (i *Index) AddOrUpdateArticle(id types.ArticleID, name, content string, date time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	err := i.bi.Index(docID(id), document{Name: name, Content: content, Date: date})
	if err != nil {
		i.metrics.IndexFailuresTotal.Inc()
		return fmt.Errorf("error indexing article %d: %w", id, err)
	}
	i.metrics.IndexUpdatesTotal.Inc()
	return nil
}

// RemoveArticle drops the article from the index. Removing an unindexed
// article is a no-op.
func (i *Index) RemoveArticle(id types.ArticleID) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.bi.Delete(docID(id)); err != nil {
		i.metrics.IndexFailuresTotal.Inc()
		return fmt.Errorf("error removing article %d from index: %w", id, err)
	}
	return nil
}

// Rebuild reindexes the current revision of every article in the store.
// Articles without revisions carry no searchable text and are skipped.
// Returns the number of indexed articles.
func (i *Index) Rebuild(ctx context.Context, backend articles.Backend) (uint64, error) {
	var (
		count   uint64
		walkErr error
	)
	err := backend.ForEachArticle(ctx, func(a types.Article) bool {
		_, rev, ok, err := backend.GetCurrentRevision(ctx, a.ID)
		if err != nil {
			walkErr = err
			return false
		}
		if !ok {
			return true
		}
		if err := i.AddOrUpdateArticle(a.ID, a.Name, rev.Content, rev.Date); err != nil {
			walkErr = err
			return false
		}
		count++
		return true
	})
	if err == nil {
		err = walkErr
	}
	if err != nil {
		return count, fmt.Errorf("error rebuilding search index: %w", err)
	}

	i.log.WithField("articles", count).Info("Rebuilt search index")
	return count, nil
}

// Search matches text against article names and contents and returns up
// to ten hits, best first. Each hit carries a highlighted content snippet
// or, when the match gave no usable fragment, the content's first
// sentence.
func (i *Index) Search(text string) ([]Result, error) {
	byName := bleve.NewMatchQuery(text)
	byName.SetField("name")
	byContent := bleve.NewMatchQuery(text)
	byContent.SetField("content")

	req := bleve.NewSearchRequestOptions(
		query.NewDisjunctionQuery([]query.Query{byName, byContent}),
		maxResults, 0, false,
	)
	req.Fields = []string{"name", "content", "date"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("content")

	res, err := i.bi.Search(req)
	if err != nil {
		return nil, fmt.Errorf("error searching index: %w", err)
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("error parsing indexed document id %q: %w", hit.ID, err)
		}

		r := Result{ID: types.ArticleID(id)}
		if name, ok := hit.Fields["name"].(string); ok {
			r.Title = name
		}
		if raw, ok := hit.Fields["date"].(string); ok {
			if date, err := time.Parse(time.RFC3339, raw); err == nil {
				r.LastEdited = date
			}
		}

		if fragments := hit.Fragments["content"]; len(fragments) > 0 {
			r.Snippet = fragments[0]
		} else if content, ok := hit.Fields["content"].(string); ok {
			r.Snippet = firstSentence(content)
		}
		results = append(results, r)
	}
	return results, nil
}

// firstSentence cuts at the first sentence-ending punctuation. Commas do
// not end a sentence.
func firstSentence(content string) string {
	idx := strings.IndexFunc(content, func(r rune) bool {
		return r < 128 && isASCIIPunct(byte(r)) && r != ','
	})
	if idx < 0 {
		return content
	}
	return content[:idx+1]
}

func isASCIIPunct(b byte) bool {
	switch {
	case b >= '!' && b <= '/':
		return true
	case b >= ':' && b <= '@':
		return true
	case b >= '[' && b <= '`':
		return true
	case b >= '{' && b <= '~':
		return true
	}
	return false
}
