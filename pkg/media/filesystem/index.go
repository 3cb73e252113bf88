package filesystem

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// document is what gets indexed for each media file. The document ID is the
// relative path.
type document struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Genre  string `json:"genre"`
}

// maxHits bounds a search that asks for no explicit count.
const maxHits = 10000

type index struct {
	idx bleve.Index
}

// openIndex opens the index at path, creating it if needed. An empty path
// builds an in-memory index.
func openIndex(path string) (*index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return nil, err
		}
		return &index{idx: idx}, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		idx, err := bleve.New(path, bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create index at %q: %w", path, err)
		}
		return &index{idx: idx}, nil
	}

	idx, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %q: %w", path, err)
	}
	return &index{idx: idx}, nil
}

func (i *index) put(rel string, rec *record) error {
	return i.idx.Index(rel, document{
		Title:  rec.Title,
		Artist: rec.Artist,
		Album:  rec.Album,
		Genre:  rec.Genre,
	})
}

func (i *index) delete(rel string) error {
	return i.idx.Delete(rel)
}

// putBatch indexes many records at once during the initial scan.
func (i *index) putBatch(recs map[string]*record) error {
	b := i.idx.NewBatch()
	for rel, rec := range recs {
		if err := b.Index(rel, document{Title: rec.Title, Artist: rec.Artist, Album: rec.Album, Genre: rec.Genre}); err != nil {
			return err
		}
	}
	return i.idx.Batch(b)
}

// search returns the relative paths matching q, best match first. Ties are
// broken by path so paging is stable.
func (i *index) search(q string, from, size int) ([]string, error) {
	var bq query.Query
	if q == "" {
		bq = bleve.NewMatchAllQuery()
	} else {
		bq = bleve.NewQueryStringQuery(q)
	}
	if size <= 0 {
		size = maxHits
	}

	req := bleve.NewSearchRequestOptions(bq, size, from, false)
	req.SortBy([]string{"-_score", "_id"})

	res, err := i.idx.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, hit.ID)
	}
	return out, nil
}

func (i *index) close() error {
	return i.idx.Close()
}
