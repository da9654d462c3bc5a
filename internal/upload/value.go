// Package upload encodes GraphQL variables that contain files. Variables are
// held in a small tagged value model; ReplaceFiles lifts the files out of a
// tree into an ordered list and leaves placeholders behind, and
// NewMultipartBody streams the envelope and the files as one request body.
package upload

import (
	"bytes"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// decodeConfig keeps number literals as json.Number so large integers and
// exact decimals survive a round trip.
var decodeConfig = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Value is a node of a variables tree: *Object, *Array, Scalar, *File or
// *Placeholder.
type Value interface {
	isValue()
	MarshalJSON() ([]byte, error)
}

// Field is one key of an Object.
type Field struct {
	Key   string
	Value Value
}

// Object is a mapping with ordered keys.
type Object struct {
	Fields []Field
}

// Array is an ordered sequence.
type Array struct {
	Items []Value
}

// Scalar is a leaf that is not a file: string, number, bool or nil.
type Scalar struct {
	V any
}

// Placeholder stands in for a file that travels in multipart part
// "file<MultipartIndex>". SizeBytes is -1 when the size is unknown.
type Placeholder struct {
	MultipartIndex int    `json:"multipartIndex"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	SizeBytes      int64  `json:"sizeBytes"`
}

func (*Object) isValue()      {}
func (*Array) isValue()       {}
func (Scalar) isValue()       {}
func (*File) isValue()        {}
func (*Placeholder) isValue() {}

// Get returns the value of key.
func (o *Object) Get(key string) (Value, bool) {
	for _, f := range o.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of key, or appends the key when it is new.
func (o *Object) Set(key string, v Value) {
	for i, f := range o.Fields {
		if f.Key == key {
			o.Fields[i].Value = v
			return
		}
	}
	o.Fields = append(o.Fields, Field{Key: key, Value: v})
}

// MarshalJSON writes the fields in order.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if err := writeValue(&buf, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON writes the items in order.
func (a *Array) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range a.Items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(&buf, v); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.V)
}

func (p *Placeholder) MarshalJSON() ([]byte, error) {
	type plain Placeholder
	return json.Marshal((*plain)(p))
}

func writeValue(buf *bytes.Buffer, v Value) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// FromAny converts decoded JSON into a Value. Map keys are sorted so the
// traversal order, and so the multipart indices, are deterministic. Values
// that already are a Value are kept as they are.
func FromAny(v any) Value {
	switch t := v.(type) {
	case Value:
		return t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := &Object{Fields: make([]Field, 0, len(keys))}
		for _, k := range keys {
			obj.Fields = append(obj.Fields, Field{Key: k, Value: FromAny(t[k])})
		}
		return obj
	case []any:
		arr := &Array{Items: make([]Value, 0, len(t))}
		for _, item := range t {
			arr.Items = append(arr.Items, FromAny(item))
		}
		return arr
	default:
		return Scalar{V: t}
	}
}

// Decode parses JSON into a Value, keeping object keys in document order.
// Numbers are kept as json.Number.
func Decode(data []byte) (Value, error) {
	iter := decodeConfig.BorrowIterator(data)
	defer decodeConfig.ReturnIterator(iter)
	v := decodeValue(iter)
	if iter.Error != nil {
		return nil, iter.Error
	}
	return v, nil
}

func decodeValue(iter *jsoniter.Iterator) Value {
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		obj := &Object{}
		iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			obj.Fields = append(obj.Fields, Field{Key: key, Value: decodeValue(it)})
			return true
		})
		return obj
	case jsoniter.ArrayValue:
		arr := &Array{}
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			arr.Items = append(arr.Items, decodeValue(it))
			return true
		})
		return arr
	default:
		return Scalar{V: iter.Read()}
	}
}
