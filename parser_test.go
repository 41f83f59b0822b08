package up

import (
	"strings"
	"testing"
)

func TestNewParser(t *testing.T) {
	p := NewParser()
	if p == nil {
		t.Fatal("NewParser() returned nil")
	}
}

func TestParse_Empty(t *testing.T) {
	doc, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if len(doc.Nodes) != 0 {
		t.Fatalf("Expected empty document, got %d nodes", len(doc.Nodes))
	}
}

func TestParseDocument_Simple(t *testing.T) {
	input := `name John Doe
age!int 30
active!bool true`

	p := NewParser()
	doc, err := p.ParseDocument(strings.NewReader(input))

	if err != nil {
		t.Fatalf("ParseDocument() failed: %v", err)
	}

	if len(doc.Nodes) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(doc.Nodes))
	}

	// Check first node
	if doc.Nodes[0].Key != "name" {
		t.Errorf("Expected key 'name', got '%s'", doc.Nodes[0].Key)
	}
	if doc.Nodes[0].HasType {
		t.Error("Expected no type annotation on 'name'")
	}
	if doc.Nodes[0].Value != Scalar("John Doe") {
		t.Errorf("Expected value 'John Doe', got '%v'", doc.Nodes[0].Value)
	}

	// Check second node with type annotation
	if doc.Nodes[1].Key != "age" {
		t.Errorf("Expected key 'age', got '%s'", doc.Nodes[1].Key)
	}
	if !doc.Nodes[1].HasType || doc.Nodes[1].Type != "int" {
		t.Errorf("Expected type 'int', got '%s'", doc.Nodes[1].Type)
	}
	if doc.Nodes[1].Value != Scalar("30") {
		t.Errorf("Expected value '30', got '%v'", doc.Nodes[1].Value)
	}
}

func TestParseKeyAndType(t *testing.T) {
	tests := []struct {
		keyPart string
		key     string
		typ     string
		hasType bool
	}{
		{"name", "name", "", false},
		{"age!int", "age", "int", true},
		{"key!", "key", "", true},
		{"a!b!c", "a", "b!c", true},
	}

	for _, test := range tests {
		key, typ, hasType := parseKeyAndType(test.keyPart)
		if key != test.key || typ != test.typ || hasType != test.hasType {
			t.Errorf("parseKeyAndType(%q) = (%q, %q, %v), want (%q, %q, %v)",
				test.keyPart, key, typ, hasType, test.key, test.typ, test.hasType)
		}
	}
}

func TestSplitKeyValue_LineOriented(t *testing.T) {
	p := NewParser()

	key, val, lineOriented := p.splitKeyValue("name: John Doe # a comment")
	if !lineOriented {
		t.Error("Expected line-oriented mode")
	}
	if key != "name" || val != "John Doe" {
		t.Errorf("Got key %q value %q", key, val)
	}

	// A # inside quotes is not a comment
	_, val, _ = p.splitKeyValue(`motto: "no #1 fan"`)
	if val != "no #1 fan" {
		t.Errorf("Expected quoted # preserved, got %q", val)
	}
}

func TestSplitKeyValue_Traditional(t *testing.T) {
	p := NewParser()

	// In traditional mode # is literal
	key, val, lineOriented := p.splitKeyValue("channel irc #general")
	if lineOriented {
		t.Error("Expected traditional mode")
	}
	if key != "channel" || val != "irc #general" {
		t.Errorf("Got key %q value %q", key, val)
	}

	// Surrounding quotes are stripped once in both modes
	_, val, _ = p.splitKeyValue(`greeting "Hello World"`)
	if val != "Hello World" {
		t.Errorf("Expected quotes stripped, got %q", val)
	}
}

func TestSplitKeyValue_URLKeyNotLineOriented(t *testing.T) {
	p := NewParser()

	key, val, lineOriented := p.splitKeyValue("https://example.com home")
	if lineOriented {
		t.Error("A URL scheme must not trigger line-oriented mode")
	}
	if key != "https://example.com" || val != "home" {
		t.Errorf("Got key %q value %q", key, val)
	}
}

func TestParseDocument_QuotedAnnotation(t *testing.T) {
	doc, err := Parse([]byte("greeting!quoted hello world"))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	node := doc.Nodes[0]
	if node.Type != "string" {
		t.Errorf("Expected type normalized to 'string', got %q", node.Type)
	}
	if node.Value != Scalar(`"hello world"`) {
		t.Errorf("Expected quoted value, got %v", node.Value)
	}
}

func TestParseDocument_Multiline(t *testing.T) {
	input := "description!4 ```markdown\n    # About this service\n    - Written by Robert\n    - Runs on Postgres\n```\n"

	p := NewParser()
	doc, err := p.ParseDocument(strings.NewReader(input))

	if err != nil {
		t.Fatalf("ParseDocument() failed: %v", err)
	}

	if len(doc.Nodes) != 1 {
		t.Fatalf("Expected 1 node, got %d", len(doc.Nodes))
	}

	node := doc.Nodes[0]
	if node.Key != "description" {
		t.Errorf("Expected key 'description', got '%s'", node.Key)
	}

	expectedContent := "# About this service\n- Written by Robert\n- Runs on Postgres"
	if node.Value != Scalar(expectedContent) {
		t.Errorf("Expected dedented content, got: %v", node.Value)
	}
}

func TestParseDocument_MultilineShortLineUntouched(t *testing.T) {
	input := "text!2 ```\n     five\n.\n```\n"

	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	// 2 chars removed from the 5-space line, the 1-char line untouched
	if doc.Nodes[0].Value != Scalar("   five\n.") {
		t.Errorf("Got %q", doc.Nodes[0].Value)
	}
}

func TestParseDocument_Block(t *testing.T) {
	input := `server {
host localhost
port!int 8080
}`

	p := NewParser()
	doc, err := p.ParseDocument(strings.NewReader(input))

	if err != nil {
		t.Fatalf("ParseDocument() failed: %v", err)
	}

	if len(doc.Nodes) != 1 {
		t.Fatalf("Expected 1 node, got %d", len(doc.Nodes))
	}

	node := doc.Nodes[0]
	if node.Key != "server" {
		t.Errorf("Expected key 'server', got '%s'", node.Key)
	}

	block, ok := node.Value.(*Block)
	if !ok {
		t.Fatalf("Expected *Block type, got %T", node.Value)
	}

	if v, _ := block.Get("host"); v != Scalar("localhost") {
		t.Errorf("Expected host 'localhost', got '%v'", v)
	}

	// The annotation is kept on nodes, not inside block storage
	if v, _ := block.Get("port"); v != Scalar("8080") {
		t.Errorf("Expected port '8080', got '%v'", v)
	}
}

func TestParseDocument_BlockDuplicateKey(t *testing.T) {
	input := `cfg {
a 1
b 2
a 3
}`

	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	block := doc.Nodes[0].Value.(*Block)
	if block.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", block.Len())
	}

	keys := block.Keys()
	if keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Expected keys [a b], got %v", keys)
	}

	if v, _ := block.Get("a"); v != Scalar("3") {
		t.Errorf("Expected last value '3' at first position, got '%v'", v)
	}
}

func TestParseDocument_List(t *testing.T) {
	input := `items [
apple
banana
cherry
]`

	p := NewParser()
	doc, err := p.ParseDocument(strings.NewReader(input))

	if err != nil {
		t.Fatalf("ParseDocument() failed: %v", err)
	}

	if len(doc.Nodes) != 1 {
		t.Fatalf("Expected 1 node, got %d", len(doc.Nodes))
	}

	node := doc.Nodes[0]
	if node.Key != "items" {
		t.Errorf("Expected key 'items', got '%s'", node.Key)
	}

	list, ok := node.Value.(List)
	if !ok {
		t.Fatalf("Expected List type, got %T", node.Value)
	}

	expectedItems := []Scalar{"apple", "banana", "cherry"}
	if len(list) != len(expectedItems) {
		t.Fatalf("Expected %d items, got %d", len(expectedItems), len(list))
	}

	for i, expected := range expectedItems {
		if list[i] != expected {
			t.Errorf("Expected item[%d] '%s', got '%v'", i, expected, list[i])
		}
	}
}

func TestParseDocument_ListNestedForms(t *testing.T) {
	input := `mixed [
plain value
[a, b]
{
k v
}
]`

	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	list := doc.Nodes[0].Value.(List)
	if len(list) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(list))
	}

	// Bare scalar lines are verbatim: no quote stripping, no !type split
	if list[0] != Scalar("plain value") {
		t.Errorf("Got %v", list[0])
	}

	nested, ok := list[1].(List)
	if !ok || len(nested) != 2 {
		t.Fatalf("Expected nested 2-element list, got %v", list[1])
	}

	block, ok := list[2].(*Block)
	if !ok {
		t.Fatalf("Expected nested block, got %T", list[2])
	}
	if v, _ := block.Get("k"); v != Scalar("v") {
		t.Errorf("Got %v", v)
	}
}

func TestParseDocument_InlineBlock(t *testing.T) {
	doc, err := Parse([]byte("point {x!int 1, y 2, y 3}"))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	block, ok := doc.Nodes[0].Value.(*Block)
	if !ok {
		t.Fatalf("Expected *Block, got %T", doc.Nodes[0].Value)
	}

	// Field annotations are discarded; duplicate keys keep the last value
	if v, _ := block.Get("x"); v != Scalar("1") {
		t.Errorf("Got x=%v", v)
	}
	if v, _ := block.Get("y"); v != Scalar("3") {
		t.Errorf("Got y=%v", v)
	}
	if block.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", block.Len())
	}
}

func TestParseDocument_Table(t *testing.T) {
	input := `people!table {
columns [name, age]
rows {
[Alice, 30]
[Bob, 25]
}
}`

	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	table, ok := doc.Nodes[0].Value.(*Table)
	if !ok {
		t.Fatalf("Expected *Table, got %T", doc.Nodes[0].Value)
	}

	if len(table.Columns) != 2 || table.Columns[0] != Scalar("name") {
		t.Errorf("Unexpected columns: %v", table.Columns)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(table.Rows))
	}
	if table.Rows[1][0] != Scalar("Bob") || table.Rows[1][1] != Scalar("25") {
		t.Errorf("Unexpected row: %v", table.Rows[1])
	}
}

func TestParseDocument_EmptyLinesAndComments(t *testing.T) {
	input := `# This is a comment
name John

# Another comment
age!int 30

`

	p := NewParser()
	doc, err := p.ParseDocument(strings.NewReader(input))

	if err != nil {
		t.Fatalf("ParseDocument() failed: %v", err)
	}

	if len(doc.Nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(doc.Nodes))
	}

	if doc.Nodes[0].Key != "name" {
		t.Errorf("Expected key 'name', got '%s'", doc.Nodes[0].Key)
	}

	if doc.Nodes[1].Key != "age" {
		t.Errorf("Expected key 'age', got '%s'", doc.Nodes[1].Key)
	}
}

func TestParseDocument_CRLF(t *testing.T) {
	doc, err := Parse([]byte("a 1\r\nb 2\r\n"))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if len(doc.Nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(doc.Nodes))
	}
	if doc.Nodes[1].Value != Scalar("2") {
		t.Errorf("Got %v", doc.Nodes[1].Value)
	}
}

func TestParseDocument_UnterminatedBlock(t *testing.T) {
	doc, err := Parse([]byte("a {\nb c"))
	if err != nil {
		t.Fatalf("Unterminated block must not fail: %v", err)
	}

	block := doc.Nodes[0].Value.(*Block)
	if v, _ := block.Get("b"); v != Scalar("c") {
		t.Errorf("Got %v", v)
	}
}

func TestParseDocument_UseDirective(t *testing.T) {
	doc, err := Parse([]byte("!use [ns1, ns2]"))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	node := doc.Nodes[0]
	if node.Key != "_use" || node.Type != "directive" {
		t.Errorf("Unexpected pseudo-node: %+v", node)
	}

	use, ok := node.Value.(*UseDirective)
	if !ok {
		t.Fatalf("Expected *UseDirective, got %T", node.Value)
	}
	if len(use.Namespaces) != 2 || use.Namespaces[0] != "ns1" || use.Namespaces[1] != "ns2" {
		t.Errorf("Unexpected namespaces: %v", use.Namespaces)
	}
}

func TestParseDocument_UseDirectiveError(t *testing.T) {
	_, err := Parse([]byte("name x\n\n!use foo"))
	if err == nil {
		t.Fatal("Expected error for !use without a list")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("Expected line number in error, got: %v", err)
	}
}

func TestParseDocument_LintDirective(t *testing.T) {
	input := `!lint {
max_depth 5
}`

	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	node := doc.Nodes[0]
	if node.Key != "_lint" || node.Type != "directive" {
		t.Errorf("Unexpected pseudo-node: %+v", node)
	}

	block, ok := node.Value.(*Block)
	if !ok {
		t.Fatalf("Expected *Block, got %T", node.Value)
	}
	if v, _ := block.Get("max_depth"); v != Scalar("5") {
		t.Errorf("Got %v", v)
	}
}

func TestParseDocument_LintDirectiveError(t *testing.T) {
	_, err := Parse([]byte("!lint nope"))
	if err == nil {
		t.Fatal("Expected error for !lint without a block")
	}
}

func TestParseInlineList(t *testing.T) {
	tests := []struct {
		input    string
		expected []Scalar
	}{
		{"[apple, banana, cherry]", []Scalar{"apple", "banana", "cherry"}},
		{"[]", []Scalar{}},
		{"[ ]", []Scalar{}},
		{"[single]", []Scalar{"single"}},
		{"[item1,item2,item3]", []Scalar{"item1", "item2", "item3"}},
		{"[ red , green , blue ]", []Scalar{"red", "green", "blue"}},
	}

	for _, test := range tests {
		result := parseInlineList(test.input)

		if len(result) != len(test.expected) {
			t.Errorf("parseInlineList(%s) length mismatch: expected %d, got %d",
				test.input, len(test.expected), len(result))
			continue
		}

		for i, expected := range test.expected {
			if result[i] != expected {
				t.Errorf("parseInlineList(%s)[%d]: expected %v, got %v",
					test.input, i, expected, result[i])
			}
		}
	}
}

func TestDedentLines(t *testing.T) {
	input := "    line1\n    line2\n    line3"
	expected := "line1\nline2\nline3"

	result := dedentLines(input, 4)
	if result != expected {
		t.Errorf("dedentLines() failed:\nexpected: %q\ngot: %q", expected, result)
	}
}

func TestParserWithCustomDedent(t *testing.T) {
	customDedent := func(s string, n int) string {
		return strings.ReplaceAll(s, "\t", strings.Repeat(" ", n))
	}

	p := NewParser().WithDedentFunc(customDedent)

	input := "content!2 ```\n\tindented content\n\tmore content\n```\n"

	doc, err := p.ParseDocument(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseDocument() failed: %v", err)
	}

	if len(doc.Nodes) != 1 {
		t.Fatalf("Expected 1 node, got %d", len(doc.Nodes))
	}

	// The custom dedent function should replace tabs with 2 spaces
	expected := Scalar("  indented content\n  more content")
	if doc.Nodes[0].Value != expected {
		t.Errorf("Expected custom dedent result, got: %q", doc.Nodes[0].Value)
	}
}
