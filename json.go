package up

import (
	"bytes"
	"encoding/json"
)

// MarshalJSON encodes the document as its node array, in source order.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d.Nodes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d.Nodes)
}

// MarshalJSON encodes a node as {"key": ..., "type": ..., "value": ...},
// omitting type when the key carried no annotation.
func (n Node) MarshalJSON() ([]byte, error) {
	out := struct {
		Key   string  `json:"key"`
		Type  *string `json:"type,omitempty"`
		Value Value   `json:"value"`
	}{Key: n.Key, Value: n.Value}
	if n.HasType {
		out.Type = &n.Type
	}
	return json.Marshal(out)
}

// MarshalJSON encodes a block as a JSON object with keys in insertion
// order.
func (b *Block) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range b.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(b.entries[key])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *Table) MarshalJSON() ([]byte, error) {
	cols := t.Columns
	if cols == nil {
		cols = List{}
	}
	rows := t.Rows
	if rows == nil {
		rows = []List{}
	}
	return json.Marshal(struct {
		Columns List   `json:"columns"`
		Rows    []List `json:"rows"`
	}{cols, rows})
}

func (u *UseDirective) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Namespaces []string `json:"namespaces"`
	}{u.Namespaces})
}
