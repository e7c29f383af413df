// scry/pkg/store/store.go

package store

import "rgehrsitz/scry/pkg/features"

// Store is the boundary to the extraction collaborator: extracted
// feature documents live here until a matching pass consumes them.
type Store interface {
	SaveIndexDocument(name string, doc *features.Document) error
	LoadIndexDocument(name string) (*features.Document, error)
	LoadIndex(name string) (*features.Index, error)
	ListIndexes() ([]string, error)
	PublishResults(runID string, payload []byte) error
}
