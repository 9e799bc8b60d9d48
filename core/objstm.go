package core

import (
	"bytes"
	"fmt"
)

// ObjectStream is a decoded /Type /ObjStm stream: a header of N
// (object number, offset) pairs followed by the objects themselves.
type ObjectStream struct {
	stream  *Stream
	n       int
	first   int
	extends *IndirectRef
	entries []objStmEntry
	decoded []byte
	objects map[int]Object // index -> parsed object
}

type objStmEntry struct {
	num    int
	offset int
}

// NewObjectStream validates the stream dictionary. Decoding happens lazily
// on first access.
func NewObjectStream(stream *Stream) (*ObjectStream, error) {
	if stream == nil {
		return nil, fmt.Errorf("stream is nil")
	}
	if t, _ := stream.Dict.GetName("Type"); t != "ObjStm" {
		return nil, fmt.Errorf("stream is not an object stream, got type %q", t)
	}
	n, ok := stream.Dict.GetInt("N")
	if !ok || n < 0 {
		return nil, fmt.Errorf("object stream has invalid /N")
	}
	first, ok := stream.Dict.GetInt("First")
	if !ok || first < 0 {
		return nil, fmt.Errorf("object stream has invalid /First")
	}

	os := &ObjectStream{
		stream:  stream,
		n:       int(n),
		first:   int(first),
		objects: make(map[int]Object),
	}
	if obj := stream.Dict.Get("Extends"); obj != nil {
		ref, ok := obj.(IndirectRef)
		if !ok {
			return nil, fmt.Errorf("invalid /Extends type: %T", obj)
		}
		os.extends = &ref
	}
	return os, nil
}

// N returns the number of objects stored in the stream.
func (os *ObjectStream) N() int { return os.n }

// Extends returns the reference to another object stream this one extends, or nil.
func (os *ObjectStream) Extends() *IndirectRef { return os.extends }

func (os *ObjectStream) decode() error {
	if os.decoded != nil {
		return nil
	}
	decoded, err := os.stream.Decode()
	if err != nil {
		return fmt.Errorf("failed to decode object stream: %w", err)
	}
	if os.first > len(decoded) {
		return fmt.Errorf("/First %d beyond decoded length %d", os.first, len(decoded))
	}

	header := decoded[:os.first]
	pos := 0
	for i := 0; i < os.n; i++ {
		num, next, ok := readInt(header, skipSpace(header, pos))
		if !ok {
			return fmt.Errorf("object stream header truncated at entry %d", i)
		}
		off, next, ok := readInt(header, skipSpace(header, next))
		if !ok {
			return fmt.Errorf("object stream header truncated at entry %d", i)
		}
		pos = next
		os.entries = append(os.entries, objStmEntry{num: num, offset: off})
	}
	os.decoded = decoded
	return nil
}

// GetObjectByIndex returns the object at index and its object number.
func (os *ObjectStream) GetObjectByIndex(index int) (Object, int, error) {
	if err := os.decode(); err != nil {
		return nil, 0, err
	}
	if index < 0 || index >= len(os.entries) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", index, len(os.entries))
	}
	num := os.entries[index].num
	if obj, ok := os.objects[index]; ok {
		return obj, num, nil
	}

	start := os.first + os.entries[index].offset
	end := len(os.decoded)
	if index+1 < len(os.entries) {
		end = os.first + os.entries[index+1].offset
	}
	if start >= len(os.decoded) || end > len(os.decoded) || start > end {
		return nil, 0, fmt.Errorf("object %d has offset outside stream", num)
	}

	obj, err := NewParser(bytes.NewReader(os.decoded[start:end])).ParseObject()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse object %d: %w", num, err)
	}
	os.objects[index] = obj
	return obj, num, nil
}

// GetObjectByNumber finds an object by its object number and returns it
// with its index.
func (os *ObjectStream) GetObjectByNumber(objNum int) (Object, int, error) {
	if err := os.decode(); err != nil {
		return nil, 0, err
	}
	for i, e := range os.entries {
		if e.num == objNum {
			obj, _, err := os.GetObjectByIndex(i)
			return obj, i, err
		}
	}
	return nil, 0, fmt.Errorf("object %d not found in object stream", objNum)
}

// ObjectNumbers returns the object numbers stored in this stream in
// header order.
func (os *ObjectStream) ObjectNumbers() ([]int, error) {
	if err := os.decode(); err != nil {
		return nil, err
	}
	nums := make([]int, len(os.entries))
	for i, e := range os.entries {
		nums[i] = e.num
	}
	return nums, nil
}
