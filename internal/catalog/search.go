package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"quote-screener/internal/domain"
)

// Index is an in-memory full-text index over the catalog.
type Index struct {
	catalog *Catalog
	index   bleve.Index
}

// instrumentDoc is the indexed shape of an instrument.
type instrumentDoc struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

// NewIndex indexes every instrument in the catalog.
func NewIndex(c *Catalog) (*Index, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	batch := index.NewBatch()
	for _, i := range c.Instruments() {
		doc := instrumentDoc{
			Symbol:   i.Symbol,
			Name:     i.Name,
			Exchange: i.Exchange,
			Sector:   i.Sector,
			Industry: i.Industry,
		}
		if err := batch.Index(i.Symbol, doc); err != nil {
			return nil, fmt.Errorf("add to batch: %w", err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("execute batch: %w", err)
	}

	return &Index{catalog: c, index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Store = false
	textFieldMapping.Index = true
	for _, field := range []string{"symbol", "name", "exchange", "sector", "industry"} {
		docMapping.AddFieldMappingsAt(field, textFieldMapping)
	}

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Search returns instruments matching the query, best match first.
// Exact symbol hits outrank symbol prefixes, which outrank name and sector matches.
func (x *Index) Search(query string, limit int) ([]domain.Instrument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	lower := strings.ToLower(query)

	exact := bleve.NewTermQuery(lower)
	exact.SetField("symbol")
	exact.SetBoost(10.0)

	prefix := bleve.NewPrefixQuery(lower)
	prefix.SetField("symbol")
	prefix.SetBoost(5.0)

	name := bleve.NewMatchQuery(query)
	name.SetField("name")
	name.SetBoost(3.0)

	namePrefix := bleve.NewPrefixQuery(lower)
	namePrefix.SetField("name")
	namePrefix.SetBoost(2.0)

	sector := bleve.NewMatchQuery(query)
	sector.SetField("sector")

	industry := bleve.NewMatchQuery(query)
	industry.SetField("industry")

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(exact, prefix, name, namePrefix, sector, industry))
	req.Size = limit

	res, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := res.Hits
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	out := make([]domain.Instrument, 0, len(hits))
	for _, hit := range hits {
		if i, ok := x.catalog.Lookup(hit.ID); ok {
			out = append(out, i)
		}
	}
	return out, nil
}

// Close releases the index.
func (x *Index) Close() error {
	return x.index.Close()
}
