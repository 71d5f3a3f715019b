package shape

import "github.com/pianohacker/qualia/internal/value"

// bagSource is satisfied by *store.Collection; kept as a narrow interface
// here (rather than importing the store package) so shape has no
// dependency on store and store can depend on shape instead, avoiding an
// import cycle.
type bagSource interface {
	IDs() []int64
	Iter() ([]map[string][]value.Value, error)
	One() (map[string][]value.Value, error)
}

// OneAs projects a Collection's sole matching object onto shape T. It
// fails the same way Collection.One does if the match count isn't 1, and
// with qerr.TypeMismatch if the stored variants don't fit T's fields.
func OneAs[T any](c bagSource) (T, error) {
	var zero T
	bag, err := c.One()
	if err != nil {
		return zero, err
	}
	ids := c.IDs()
	return FromBag[T](ids[0], bag)
}

// IterAs projects every matching object onto shape T, in ascending id
// order.
func IterAs[T any](c bagSource) ([]T, error) {
	bags, err := c.Iter()
	if err != nil {
		return nil, err
	}
	ids := c.IDs()

	out := make([]T, len(bags))
	for i, bag := range bags {
		v, err := FromBag[T](ids[i], bag)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
