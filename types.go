// Package up defines the core data structures for UP parsing.
package up

// Value is any UP value. The concrete types are Scalar, List, *Block,
// *Table and *UseDirective; consumers should type-switch over these
// exhaustively rather than fall back to reflection.
type Value interface {
	isValue()
}

// Scalar is a bare string value. Type annotations on the owning key are
// metadata only; an !int annotation never converts the text to a number.
type Scalar string

// List is an ordered sequence of values. Elements may mix scalars,
// nested lists and nested blocks.
type List []Value

// Block is an ordered string-keyed mapping of nested values. Keys keep
// the position of their first appearance; re-setting an existing key
// replaces its value in place.
type Block struct {
	keys    []string
	entries map[string]Value
}

// Table holds a columns list and a sequence of rows. Row lengths are
// not checked against the column count.
type Table struct {
	Columns List
	Rows    []List
}

// UseDirective records the namespace list of a !use directive. Applying
// the namespaces is up to the caller.
type UseDirective struct {
	Namespaces []string
}

func (Scalar) isValue()        {}
func (List) isValue()          {}
func (*Block) isValue()        {}
func (*Table) isValue()        {}
func (*UseDirective) isValue() {}

// Node represents a key-value pair with optional type annotation.
// HasType distinguishes a key with an empty annotation ("key!") from a
// key with none ("key").
type Node struct {
	Key     string
	Type    string
	HasType bool
	Value   Value
}

// Document represents a parsed UP document: its top-level nodes in
// source order, including any _use/_lint directive pseudo-nodes.
type Document struct {
	Nodes []Node
}

// NewBlock creates an empty block.
func NewBlock() *Block {
	return &Block{entries: make(map[string]Value)}
}

// Set inserts or replaces the value for key. A new key is appended at
// the end; an existing key keeps its original position.
func (b *Block) Set(key string, v Value) {
	if _, ok := b.entries[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.entries[key] = v
}

// Get returns the value for key and whether it is present.
func (b *Block) Get(key string) (Value, bool) {
	v, ok := b.entries[key]
	return v, ok
}

// Len returns the number of entries.
func (b *Block) Len() int {
	return len(b.keys)
}

// Keys returns the keys in insertion order.
func (b *Block) Keys() []string {
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}
