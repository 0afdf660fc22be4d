package migrations

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
)

// ErrChainInvalid tags every chain validation failure so that callers can
// detect the class without matching message text.
var ErrChainInvalid = errors.New("resolving migration chain")

// ResolveChain validates the parent pointers of the given migrations and
// returns the migrations in application order. Each migration must have a
// unique ID, exactly one migration must have no parent, every parent must be
// a known migration and no two migrations may share a parent, so that the
// migrations form a single unbroken chain. The walk order of the chain must
// match the lexicographical ID order that the migration library applies, so
// that a migration never runs before its parent.
//
// All structural problems are reported at once rather than one at a time.
func ResolveChain(migrations []*Migration) ([]*Migration, error) {
	if len(migrations) == 0 {
		return nil, nil
	}

	var errs *multierror.Error

	byID := make(map[string]*Migration, len(migrations))
	for _, m := range migrations {
		if _, ok := byID[m.Id]; ok {
			errs = multierror.Append(errs, fmt.Errorf("duplicate migration ID %s", m.Id))
			continue
		}
		byID[m.Id] = m
	}

	var root *Migration
	children := make(map[string]*Migration, len(migrations))
	for _, m := range migrations {
		if m.Parent == "" {
			if root != nil {
				errs = multierror.Append(errs, fmt.Errorf("multiple migrations without a parent: %s and %s", root.Id, m.Id))
				continue
			}
			root = m
			continue
		}
		if _, ok := byID[m.Parent]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("migration %s references unknown parent %s", m.Id, m.Parent))
			continue
		}
		if c, ok := children[m.Parent]; ok {
			errs = multierror.Append(errs, fmt.Errorf("migrations %s and %s share parent %s", c.Id, m.Id, m.Parent))
			continue
		}
		children[m.Parent] = m
	}
	if root == nil {
		errs = multierror.Append(errs, errors.New("no migration without a parent"))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChainInvalid, err)
	}

	chain := make([]*Migration, 0, len(migrations))
	for m := root; m != nil; m = children[m.Id] {
		chain = append(chain, m)
	}
	if len(chain) != len(migrations) {
		return nil, fmt.Errorf("%w: %d of %d migrations are not reachable from %s", ErrChainInvalid, len(migrations)-len(chain), len(migrations), root.Id)
	}

	sorted := make([]*Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Id < sorted[j].Id })
	for i, m := range chain {
		if m.Id != sorted[i].Id {
			return nil, fmt.Errorf("%w: chain order diverges from ID order at %s", ErrChainInvalid, m.Id)
		}
	}

	return chain, nil
}
