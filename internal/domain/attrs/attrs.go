// Package attrs provides the open attribute bag attached to cart and order
// line items: a mapping from attribute name to a scalar value (string,
// number, or boolean). Keys are unique, ordering is irrelevant.
package attrs

import (
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Bag holds selected attributes for a line item, e.g. {"color": "red",
// "size": 42}. Values are restricted to string, float64, int, int64 and
// bool; anything else is rejected by Validate and the JSON codec.
type Bag map[string]any

// Validate checks that every value in the bag is a supported scalar.
func (b Bag) Validate() error {
	for k, v := range b {
		switch v.(type) {
		case string, bool, float64, int, int64:
		default:
			return errors.Errorf("attribute %q: unsupported value type %T", k, v)
		}
	}
	return nil
}

// Clone returns a shallow copy of the bag. A nil bag clones to nil.
func (b Bag) Clone() Bag {
	if b == nil {
		return nil
	}
	c := make(Bag, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

// MarshalJSON encodes the bag as a JSON object with keys in sorted order so
// the stored representation is deterministic.
func (b Bag) MarshalJSON() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var w jx.Writer
	w.ObjStart()
	for i, k := range keys {
		if i > 0 {
			w.Comma()
		}
		w.FieldStart(k)
		switch v := b[k].(type) {
		case string:
			w.Str(v)
		case bool:
			w.Bool(v)
		case int:
			w.Int(v)
		case int64:
			w.Int64(v)
		case float64:
			w.Float64(v)
		}
	}
	w.ObjEnd()
	return w.Buf, nil
}

// UnmarshalJSON decodes a JSON object into the bag, rejecting nested objects,
// arrays and null values. Numbers decode to int64 when integral, float64
// otherwise.
func (b *Bag) UnmarshalJSON(data []byte) error {
	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		*b = nil
		return d.Null()
	}

	out := make(Bag)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch d.Next() {
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return err
			}
			out[key] = s
		case jx.Bool:
			v, err := d.Bool()
			if err != nil {
				return err
			}
			out[key] = v
		case jx.Number:
			n, err := d.Num()
			if err != nil {
				return err
			}
			if n.IsInt() {
				i, err := n.Int64()
				if err != nil {
					return err
				}
				out[key] = i
			} else {
				f, err := n.Float64()
				if err != nil {
					return err
				}
				out[key] = f
			}
		default:
			return errors.Errorf("attribute %q: value must be a string, number or boolean", key)
		}
		return nil
	}); err != nil {
		return errors.Wrap(err, "decode attributes")
	}

	*b = out
	return nil
}
