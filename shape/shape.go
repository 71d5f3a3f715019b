// Package shape implements Object-Shape Binding: associating a
// user-defined Go struct with a store property bag. Go has no
// derive-macro or compile-time reflection system, so the binding the spec
// calls "compile-time" is instead compiled once per reflect.Type at first
// use and cached, the same deferred-validation approach the teacher takes
// in nanostore/declarative.go's parseStructTags. An unsupported field
// type is rejected the first time a shape is bound, which is the closest
// a reflection-based binding gets to rejecting at build time.
package shape

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/pianohacker/qualia/internal/value"
	"github.com/pianohacker/qualia/qerr"
)

// fieldBinding is one struct field's resolved mapping to a property name.
type fieldBinding struct {
	index        int
	propertyName string
	isID         bool
	isOptionalID bool
}

// binding is the compiled shape for one reflect.Type: every ordinary field
// plus, if present, the reserved object_id field.
type binding struct {
	typ    reflect.Type
	fields []fieldBinding
	idIdx  int // -1 if this shape has no id field
}

var cache sync.Map // reflect.Type -> *binding

// bindingFor compiles (or retrieves the cached compilation of) T's shape.
func bindingFor(t reflect.Type) (*binding, error) {
	if cached, ok := cache.Load(t); ok {
		return cached.(*binding), nil
	}

	b, err := compile(t)
	if err != nil {
		return nil, err
	}
	cache.Store(t, b)
	return b, nil
}

var optionalIDType = reflect.TypeOf((*int64)(nil))

func compile(t reflect.Type) (*binding, error) {
	const op = "shape.bind"
	if t.Kind() != reflect.Struct {
		return nil, qerr.New(qerr.TypeMismatch, op, fmt.Errorf("shape type must be a struct, got %s", t.Kind()))
	}

	b := &binding{typ: t, idIdx: -1}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		if f.Name == "ObjectID" || strings.EqualFold(f.Tag.Get("qualia"), "id") {
			if f.Type != optionalIDType {
				return nil, qerr.New(qerr.TypeMismatch, op, fmt.Errorf(
					"field %s: an id field must have type *int64, got %s", f.Name, f.Type))
			}
			b.idIdx = len(b.fields)
			b.fields = append(b.fields, fieldBinding{index: i, isID: true, isOptionalID: true})
			continue
		}

		name := f.Tag.Get("qualia")
		if name == "-" {
			continue
		}
		if name == "" {
			name = toSnakeCase(f.Name)
		}

		switch {
		case f.Type.Kind() == reflect.String:
			b.fields = append(b.fields, fieldBinding{index: i, propertyName: name})
		case f.Type.Kind() == reflect.Int64:
			b.fields = append(b.fields, fieldBinding{index: i, propertyName: name})
		default:
			return nil, qerr.New(qerr.TypeMismatch, op, fmt.Errorf(
				"field %s: unsupported shape field type %s (only string, int64, and *int64 id fields are supported)",
				f.Name, f.Type))
		}
	}

	return b, nil
}

// ToBag builds a property bag from a record of type T, for Add/Set.
func ToBag[T any](record T) (map[string][]value.Value, error) {
	b, err := bindingFor(reflect.TypeOf(record))
	if err != nil {
		return nil, err
	}

	rv := reflect.ValueOf(record)
	bag := map[string][]value.Value{}
	for _, fb := range b.fields {
		if fb.isID {
			continue
		}
		fv := rv.Field(fb.index)
		switch fv.Kind() {
		case reflect.String:
			bag[fb.propertyName] = []value.Value{value.NewPhrase(fv.String())}
		case reflect.Int64:
			bag[fb.propertyName] = []value.Value{value.NewInteger(fv.Int())}
		}
	}
	return bag, nil
}

// ID returns the record's bound object id, or nil if it has none (not yet
// stored) or the shape has no id field at all.
func ID[T any](record T) (*int64, error) {
	b, err := bindingFor(reflect.TypeOf(record))
	if err != nil {
		return nil, err
	}
	if b.idIdx < 0 {
		return nil, nil
	}
	rv := reflect.ValueOf(record)
	fv := rv.Field(b.fields[b.idIdx].index)
	if fv.IsNil() {
		return nil, nil
	}
	id := fv.Elem().Int()
	return &id, nil
}

// FromBag constructs a record of type T from a stored property bag and
// its object id. A property whose stored value variant doesn't match the
// field's declared Go type fails with qerr.TypeMismatch.
func FromBag[T any](id int64, bag map[string][]value.Value) (T, error) {
	var zero T
	const op = "shape.project"

	b, err := bindingFor(reflect.TypeOf(zero))
	if err != nil {
		return zero, err
	}

	out := reflect.New(b.typ).Elem()
	for _, fb := range b.fields {
		if fb.isID {
			idCopy := id
			out.Field(fb.index).Set(reflect.ValueOf(&idCopy))
			continue
		}

		values := bag[fb.propertyName]
		if len(values) == 0 {
			continue
		}
		v := values[0]

		field := out.Field(fb.index)
		switch field.Kind() {
		case reflect.String:
			if v.Tag != value.Phrase {
				return zero, qerr.New(qerr.TypeMismatch, op, fmt.Errorf(
					"property %q holds a %s value, field wants text", fb.propertyName, v.Tag))
			}
			field.SetString(v.Phrase)
		case reflect.Int64:
			switch v.Tag {
			case value.Integer:
				field.SetInt(v.Integer)
			case value.ObjectID:
				field.SetInt(v.Object)
			default:
				return zero, qerr.New(qerr.TypeMismatch, op, fmt.Errorf(
					"property %q holds a %s value, field wants an integer", fb.propertyName, v.Tag))
			}
		}
	}

	return out.Interface().(T), nil
}

func toSnakeCase(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			sb.WriteByte('_')
		}
		if r >= 'A' && r <= 'Z' {
			sb.WriteRune(r - 'A' + 'a')
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
