package journal

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestPendingRecordAndReset(t *testing.T) {
	var p Pending
	if !p.Empty() {
		t.Fatal("expected a fresh Pending to be empty")
	}

	p.Record(InverseOp{Kind: InsertInverse, ObjectID: 1})
	p.Record(InverseOp{Kind: InsertInverse, ObjectID: 2})
	if p.Empty() {
		t.Fatal("expected Pending to be non-empty after Record")
	}
	if len(p.Ops()) != 2 {
		t.Fatalf("got %d ops, want 2", len(p.Ops()))
	}

	p.Reset()
	if !p.Empty() {
		t.Fatal("expected Pending to be empty after Reset")
	}
}

func TestReversedOrder(t *testing.T) {
	ops := []InverseOp{
		{Kind: InsertInverse, ObjectID: 1},
		{Kind: InsertInverse, ObjectID: 2},
		{Kind: InsertInverse, ObjectID: 3},
	}
	rev := Reversed(ops)
	want := []int64{3, 2, 1}
	for i, id := range want {
		if rev[i].ObjectID != id {
			t.Errorf("position %d: got object %d, want %d", i, rev[i].ObjectID, id)
		}
	}
	// Reversed must not mutate its input.
	if ops[0].ObjectID != 1 {
		t.Errorf("Reversed mutated its input slice")
	}
}

func TestEncodeDecodeBodyRoundTrip(t *testing.T) {
	ops := []InverseOp{
		{Kind: DeleteInverse, ObjectID: 5, Snapshot: []PropertySnapshot{
			{Name: "title", Values: json.RawMessage(`[{"Tag":0,"Payload":"hello"}]`)},
		}},
		{Kind: SetInverse, ObjectID: 5, Snapshot: []PropertySnapshot{
			{Name: "count", Values: json.RawMessage(`[{"Tag":1,"Payload":"3","NumericKey":3}]`)},
		}},
	}

	body, err := EncodeBody(ops)
	if err != nil {
		t.Fatalf("EncodeBody: %v", err)
	}

	back, err := DecodeBody(body)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if len(back) != len(ops) {
		t.Fatalf("got %d ops back, want %d", len(back), len(ops))
	}
	if back[0].Kind != DeleteInverse || back[0].ObjectID != 5 {
		t.Errorf("op 0 mismatch: %+v", back[0])
	}
	if !reflect.DeepEqual(back[0].Snapshot[0].Name, ops[0].Snapshot[0].Name) {
		t.Errorf("snapshot name mismatch")
	}
}

func TestDecodeBodyRejectsGarbage(t *testing.T) {
	_, err := DecodeBody([]byte("not json"))
	if err == nil {
		t.Fatal("expected a decode error for malformed body")
	}
}
