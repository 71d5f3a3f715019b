package store

import (
	"encoding/json"

	"github.com/pianohacker/qualia/internal/value"
	"github.com/pianohacker/qualia/qerr"
)

// encodeValuesJSON/decodeValuesJSON round-trip a property's values through
// their storage Scalar shape for the journal snapshot, so an undo replays
// exactly what was on disk rather than re-deriving it.

func encodeValuesJSON(values []value.Value) (json.RawMessage, error) {
	scalars := make([]value.Scalar, len(values))
	for i, v := range values {
		scalars[i] = value.Encode(v)
	}
	b, err := json.Marshal(scalars)
	if err != nil {
		return nil, qerr.New(qerr.Io, "store.snapshot", err)
	}
	return b, nil
}

func decodeValuesJSON(raw json.RawMessage) ([]value.Value, error) {
	var scalars []value.Scalar
	if err := json.Unmarshal(raw, &scalars); err != nil {
		return nil, qerr.New(qerr.CorruptData, "store.snapshot", err)
	}
	values := make([]value.Value, len(scalars))
	for i, sc := range scalars {
		v, err := value.Decode(sc)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
