package store

import (
	"fmt"

	"github.com/pianohacker/qualia/internal/value"
	"github.com/pianohacker/qualia/qerr"
)

// Collection is the lazy result of a query: an ordered set of object ids
// already resolved by the executor, whose property bags are fetched one
// object at a time as the caller asks for them. Holding a Collection does
// not pin a transaction or a cursor against the store — each Get re-enters
// the store fresh, so a Collection outlives the query that produced it.
type Collection struct {
	store *Store
	ids   []int64
}

// Count returns the number of matching objects. It never touches property
// rows, since the id list was already materialized by the query.
func (c *Collection) Count() int { return len(c.ids) }

// IDs returns the matching object ids in ascending order.
func (c *Collection) IDs() []int64 {
	out := make([]int64, len(c.ids))
	copy(out, c.ids)
	return out
}

// One returns the sole matching object's property bag. It fails with
// qerr.NotUnique if the query's result set size is anything other than
// exactly one — including zero, per spec.md §4.4/§7.
func (c *Collection) One() (map[string][]value.Value, error) {
	const op = "Collection.One"
	if len(c.ids) != 1 {
		return nil, qerr.New(qerr.NotUnique, op, fmt.Errorf("query matched %d objects, expected exactly one", len(c.ids)))
	}
	return c.store.Get(c.ids[0])
}

// Iter returns every matching object's property bag, in ascending id
// order.
func (c *Collection) Iter() ([]map[string][]value.Value, error) {
	out := make([]map[string][]value.Value, 0, len(c.ids))
	for _, id := range c.ids {
		bag, err := c.store.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, bag)
	}
	return out, nil
}
