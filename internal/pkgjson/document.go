package pkgjson

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is a JSON object that remembers the order of its top-level keys.
type Document struct {
	keys   []string
	values map[string]json.RawMessage
}

// Keys returns the keys in document order.
func (d *Document) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Get returns the raw value stored under key.
func (d *Document) Get(key string) (json.RawMessage, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Set stores v under key, appending the key if it is new.
func (d *Document) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	if d.values == nil {
		d.values = make(map[string]json.RawMessage)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = raw
	return nil
}

// Delete removes key from the document.
func (d *Document) Delete(key string) {
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		keys:   append([]string(nil), d.keys...),
		values: make(map[string]json.RawMessage, len(d.values)),
	}
	for k, v := range d.values {
		out.values[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// UnmarshalJSON decodes a JSON object keeping key order.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected a JSON object")
	}
	d.keys = nil
	d.values = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected an object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("failed to decode %q: %w", key, err)
		}
		if _, seen := d.values[key]; !seen {
			d.keys = append(d.keys, key)
		}
		d.values[key] = raw
	}
	_, err = dec.Token()
	return err
}

// MarshalJSON encodes the object in key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(d.values[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Indented renders the document the way package managers write manifests.
func (d *Document) Indented() ([]byte, error) {
	raw, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
