package feedback

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervox/pkg/types"
)

// MultiStore saves every report to all of its stores concurrently.
type MultiStore []Store

var _ Store = MultiStore(nil)

// SaveReport writes r to each store. Every store is attempted; the first
// error is returned.
func (m MultiStore) SaveReport(ctx context.Context, r types.Report) error {
	var g errgroup.Group
	for _, s := range m {
		g.Go(func() error { return s.SaveReport(ctx, r) })
	}
	return g.Wait()
}
