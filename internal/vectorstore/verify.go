package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

// VerifyPartition checks that every document may be stored in p. It
// returns ErrCrossTenantContamination naming the first offending chunk.
func VerifyPartition(p hierarchy.Partition, docs []Document) error {
	for i, d := range docs {
		if err := p.Admits(d.Metadata); err != nil {
			return fmt.Errorf("%w: document %d (%s#%d): %v", ErrCrossTenantContamination, i, d.Source, d.Index, err)
		}
		if d.ID == "" {
			return fmt.Errorf("document %d (%s#%d): empty id", i, d.Source, d.Index)
		}
		if len(d.Vector) == 0 {
			return fmt.Errorf("document %d (%s#%d): missing embedding", i, d.Source, d.Index)
		}
	}
	return nil
}
