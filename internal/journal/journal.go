// Package journal implements the checkpoint/undo machinery: an ordered
// stack of sealed checkpoints, each a list of primitive inverse
// operations sufficient to undo one committed mutation batch. The
// persistence shape is grounded in the original qualia implementation's
// object_changes/checkpoints tables (original_source/src/store.rs),
// adapted to the row-store layout spec.md prescribes.
package journal

import (
	"encoding/json"
	"time"

	"github.com/pianohacker/qualia/qerr"
)

// OpKind selects which primitive inverse an InverseOp represents.
type OpKind int

const (
	// InsertInverse undoes an add: delete the object.
	InsertInverse OpKind = iota
	// DeleteInverse undoes a delete: re-insert the object from its
	// snapshot.
	DeleteInverse
	// SetInverse undoes a set: restore a property's old values.
	SetInverse
)

// PropertySnapshot is one property's saved values, used both for a
// DeleteInverse's full-object snapshot and a SetInverse's prior values.
type PropertySnapshot struct {
	Name   string          `json:"name"`
	Values json.RawMessage `json:"values"`
}

// InverseOp is a single primitive inverse operation. Applying a
// checkpoint's InverseOps in reverse order restores the pre-commit state
// exactly.
type InverseOp struct {
	Kind     OpKind             `json:"kind"`
	ObjectID int64              `json:"object_id"`
	Snapshot []PropertySnapshot `json:"snapshot,omitempty"`
}

// Checkpoint is a non-empty ordered list of InverseOps sealed by a single
// commit. Description is an optional free-text label, supplemented from
// the original implementation's checkpoints.description column.
type Checkpoint struct {
	Seq         int64
	CreatedAt   time.Time
	Description string
	Ops         []InverseOp
}

// Pending accumulates InverseOps for the mutation batch currently in
// progress. It is not yet durable; EncodeBody turns its Ops into a
// Checkpoint body ready to persist.
type Pending struct {
	ops []InverseOp
}

// Record appends an inverse operation to the pending checkpoint, in the
// order its corresponding mutation happened. Undo replays in reverse.
func (p *Pending) Record(op InverseOp) { p.ops = append(p.ops, op) }

// Empty reports whether any mutation has been recorded since the last
// commit or undo.
func (p *Pending) Empty() bool { return len(p.ops) == 0 }

// Reset discards all recorded operations, used both after a successful
// commit and when a dirty store is closed without committing.
func (p *Pending) Reset() { p.ops = nil }

// Ops returns the recorded operations in record order.
func (p *Pending) Ops() []InverseOp { return p.ops }

// EncodeBody serializes a checkpoint's operations for the checkpoints.body
// BLOB column.
func EncodeBody(ops []InverseOp) ([]byte, error) {
	b, err := json.Marshal(ops)
	if err != nil {
		return nil, qerr.New(qerr.Io, "journal.EncodeBody", err)
	}
	return b, nil
}

// DecodeBody deserializes a checkpoints.body BLOB back into its operation
// list. A body that fails to decode indicates on-disk corruption.
func DecodeBody(body []byte) ([]InverseOp, error) {
	var ops []InverseOp
	if err := json.Unmarshal(body, &ops); err != nil {
		return nil, qerr.New(qerr.CorruptData, "journal.DecodeBody", err)
	}
	return ops, nil
}

// Reversed returns ops in reverse order, the order undo must apply them
// in: the inverse of the Nth mutation must run before the inverse of the
// (N-1)th, since later mutations may depend on earlier ones' effects.
func Reversed(ops []InverseOp) []InverseOp {
	out := make([]InverseOp, len(ops))
	for i, op := range ops {
		out[len(ops)-1-i] = op
	}
	return out
}
