// Package up provides parsing of UP (Unified Properties) documents.
package up

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// cursor walks the document's lines. The position only ever moves
// forward; sub-parsers share one cursor and never back up.
type cursor struct {
	lines []string
	pos   int
}

// newCursor splits text into lines on line-feed, tolerating an optional
// preceding carriage-return.
func newCursor(text string) *cursor {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return &cursor{lines: lines}
}

// next returns the current line and advances past it.
func (c *cursor) next() (string, bool) {
	if c.pos >= len(c.lines) {
		return "", false
	}
	line := c.lines[c.pos]
	c.pos++
	return line, true
}

// lineNum is the 1-based number of the next line to be consumed.
func (c *cursor) lineNum() int {
	return c.pos + 1
}

// Parser provides configurable parsing functionality.
type Parser struct {
	dedentFunc    func(string, int) string
	skipEmptyLine func(string) bool
	skipComment   func(string) bool
}

// NewParser creates a new Parser with default configuration.
func NewParser() *Parser {
	return &Parser{
		dedentFunc:    dedentLines,
		skipEmptyLine: func(line string) bool { return strings.TrimSpace(line) == "" },
		skipComment:   func(line string) bool { return strings.HasPrefix(strings.TrimSpace(line), "#") },
	}
}

// WithDedentFunc configures the dedent function.
func (p *Parser) WithDedentFunc(fn func(string, int) string) *Parser {
	p.dedentFunc = fn
	return p
}

// WithSkipEmptyLine configures the empty line skip function.
func (p *Parser) WithSkipEmptyLine(fn func(string) bool) *Parser {
	p.skipEmptyLine = fn
	return p
}

// WithSkipComment configures the comment skip function.
func (p *Parser) WithSkipComment(fn func(string) bool) *Parser {
	p.skipComment = fn
	return p
}

// Parse parses a complete UP document held in memory.
func Parse(data []byte) (*Document, error) {
	return NewParser().parse(string(data))
}

// ParseDocument parses a UP document from an io.Reader. The whole input
// is read before parsing begins.
func (p *Parser) ParseDocument(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return p.parse(string(data))
}

func (p *Parser) parse(text string) (*Document, error) {
	nodes, err := p.parseNodes(newCursor(text))
	if err != nil {
		return nil, err
	}
	return &Document{Nodes: nodes}, nil
}

// parseNodes parses top-level nodes until the input is exhausted.
// Failures are wrapped with the 1-based number of the line the node
// started on; nested failures surface with the outer node's line.
func (p *Parser) parseNodes(c *cursor) ([]Node, error) {
	var nodes []Node

	for {
		lineNum := c.lineNum()
		line, ok := c.next()
		if !ok {
			break
		}

		if p.skipEmptyLine(line) || p.skipComment(line) {
			continue
		}

		trimmed := strings.TrimSpace(line)

		// Document-level directives
		if strings.HasPrefix(trimmed, "!use") {
			useNode, err := p.parseUseDirective(trimmed)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			nodes = append(nodes, useNode)
			continue
		}

		if strings.HasPrefix(trimmed, "!lint") {
			lintNode, err := p.parseLintDirective(c, trimmed)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			nodes = append(nodes, lintNode)
			continue
		}

		node, err := p.parseLine(c, line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

// parseUseDirective parses a !use directive: !use [namespace1, namespace2]
func (p *Parser) parseUseDirective(line string) (Node, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "!use"))

	if !strings.HasPrefix(rest, "[") {
		return Node{}, fmt.Errorf("!use directive requires a list: !use [namespace1, namespace2]")
	}

	items := parseInlineList(rest)
	namespaces := make([]string, len(items))
	for i, item := range items {
		if s, ok := item.(Scalar); ok {
			namespaces[i] = string(s)
		}
	}
	return Node{
		Key:     "_use",
		Type:    "directive",
		HasType: true,
		Value:   &UseDirective{Namespaces: namespaces},
	}, nil
}

// parseLintDirective parses a !lint directive block.
func (p *Parser) parseLintDirective(c *cursor, line string) (Node, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "!lint"))

	if rest != "{" {
		return Node{}, fmt.Errorf("!lint directive requires a block: !lint { ... }")
	}

	block, err := p.parseBlock(c)
	if err != nil {
		return Node{}, fmt.Errorf("invalid !lint block: %w", err)
	}
	return Node{
		Key:     "_lint",
		Type:    "directive",
		HasType: true,
		Value:   block,
	}, nil
}

// parseLine parses a single key-value line.
func (p *Parser) parseLine(c *cursor, line string) (Node, error) {
	keyPart, valPart, _ := p.splitKeyValue(line)
	key, typeAnnotation, hasType := parseKeyAndType(keyPart)

	node := Node{
		Key:     key,
		Type:    typeAnnotation,
		HasType: hasType,
	}

	// !quoted forces a quoted scalar regardless of the stripping that
	// already ran, and normalizes the annotation to "string".
	if hasType && typeAnnotation == "quoted" {
		if !strings.HasPrefix(valPart, "\"") || !strings.HasSuffix(valPart, "\"") {
			valPart = "\"" + valPart + "\""
		}
		node.Type = "string"
		node.Value = Scalar(valPart)
		return node, nil
	}

	value, err := p.parseValue(c, node, valPart)
	if err != nil {
		return Node{}, err
	}

	node.Value = value
	return node, nil
}

// splitKeyValue splits a line into key and value parts.
// Supports both traditional whitespace-delimited and line-oriented
// (: suffix) syntax. Only line-oriented mode strips trailing comments;
// in traditional mode a # inside the value is literal.
func (p *Parser) splitKeyValue(line string) (string, string, bool) {
	line = strings.TrimSpace(line)

	keyEnd := strings.IndexAny(line, " \t")
	if keyEnd == -1 {
		keyEnd = len(line)
	}

	keyPart := line[:keyEnd]

	// Line-oriented syntax: key ends with : (but not part of a URL
	// scheme like https://).
	if strings.HasSuffix(keyPart, ":") && !strings.Contains(keyPart, "://") {
		key := strings.TrimSuffix(keyPart, ":")
		var value string
		if keyEnd < len(line) {
			value = strings.TrimSpace(line[keyEnd:])
			if idx := unquotedCommentIndex(value); idx >= 0 {
				value = strings.TrimSpace(value[:idx])
			}
			value = stripSurroundingQuotes(value)
		}
		return key, value, true
	}

	// Traditional whitespace-delimited syntax
	if keyEnd < len(line) {
		value := strings.TrimSpace(line[keyEnd:])
		value = stripSurroundingQuotes(value)
		return keyPart, value, false
	}

	return keyPart, "", false
}

// unquotedCommentIndex returns the index of the first # outside double
// quotes, or -1 if there is none.
func unquotedCommentIndex(s string) int {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return i
			}
		}
	}
	return -1
}

// stripSurroundingQuotes removes exactly one layer of surrounding
// double quotes from a value.
func stripSurroundingQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"") {
		return s[1 : len(s)-1]
	}
	return s
}

// parseKeyAndType splits the key part on the first ! into key name and
// type annotation. The third result reports whether a ! was present;
// "key!" carries an empty annotation, which is distinct from none.
func parseKeyAndType(keyPart string) (string, string, bool) {
	if idx := strings.Index(keyPart, "!"); idx >= 0 {
		return keyPart[:idx], keyPart[idx+1:], true
	}
	return keyPart, "", false
}

// parseValue dispatches on the value part's format. Exactly one branch
// fires; the table form is keyed off the annotation and takes priority
// over a plain block.
func (p *Parser) parseValue(c *cursor, node Node, valPart string) (Value, error) {
	switch {
	case strings.HasPrefix(valPart, "```"):
		return p.parseMultiline(c, node, valPart), nil
	case node.HasType && node.Type == "table" && valPart == "{":
		return p.parseTable(c), nil
	case valPart == "{":
		return p.parseBlock(c)
	case valPart == "[":
		return p.parseList(c)
	case strings.HasPrefix(valPart, "[") && strings.HasSuffix(valPart, "]"):
		return parseInlineList(valPart), nil
	case strings.HasPrefix(valPart, "{") && strings.Contains(valPart, "}"):
		return p.parseInlineBlock(valPart), nil
	default:
		return Scalar(valPart), nil
	}
}

// parseMultiline handles triple-backtick blocks with optional dedent.
// An unterminated fence simply ends at end of input.
func (p *Parser) parseMultiline(c *cursor, node Node, line string) Scalar {
	// A language hint may follow the fence; it has no semantic effect.
	_ = strings.TrimSpace(strings.TrimPrefix(line, "```"))

	var content []string
	for {
		line, ok := c.next()
		if !ok {
			break
		}
		if strings.TrimSpace(line) == "```" {
			break
		}
		content = append(content, line)
	}

	text := strings.Join(content, "\n")

	if node.HasType {
		if dedent, err := strconv.Atoi(node.Type); err == nil {
			text = p.dedentFunc(text, dedent)
		}
	}

	return Scalar(text)
}

// parseBlock parses a { ... } block of statements. A later occurrence
// of a key replaces the value at the key's original position.
func (p *Parser) parseBlock(c *cursor) (*Block, error) {
	block := NewBlock()

	for {
		line, ok := c.next()
		if !ok {
			break
		}

		if strings.TrimSpace(line) == "}" {
			break
		}
		if p.skipEmptyLine(line) || p.skipComment(line) {
			continue
		}

		node, err := p.parseLine(c, line)
		if err != nil {
			return nil, err
		}
		block.Set(node.Key, node.Value)
	}

	return block, nil
}

// parseList parses the multi-line [ ... ] list form.
func (p *Parser) parseList(c *cursor) (List, error) {
	var list List

	for {
		line, ok := c.next()
		if !ok {
			break
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "]" {
			break
		}
		if p.skipEmptyLine(line) || p.skipComment(line) {
			continue
		}

		item, err := p.parseListItem(c, trimmed)
		if err != nil {
			return nil, err
		}
		list = append(list, item)
	}

	return list, nil
}

// parseListItem classifies a single list line. Bare scalar lines are
// taken verbatim: no quote stripping and no !type splitting.
func (p *Parser) parseListItem(c *cursor, line string) (Value, error) {
	switch {
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
		return parseInlineList(line), nil
	case line == "{":
		return p.parseBlock(c)
	default:
		return Scalar(line), nil
	}
}

// parseTable parses a table block: a columns inline list plus a
// rows { ... } block of inline lists. Other keys are ignored.
func (p *Parser) parseTable(c *cursor) *Table {
	table := &Table{}

	for {
		line, ok := c.next()
		if !ok {
			break
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "}" {
			break
		}
		if p.skipEmptyLine(line) || p.skipComment(line) {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "columns"):
			table.Columns = parseInlineList(strings.TrimSpace(strings.TrimPrefix(trimmed, "columns")))
		case strings.HasPrefix(trimmed, "rows"):
			table.Rows = p.parseTableRows(c)
		}
	}

	return table
}

// parseTableRows collects the [...] rows inside rows { ... }.
func (p *Parser) parseTableRows(c *cursor) []List {
	var rows []List

	for {
		line, ok := c.next()
		if !ok {
			break
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "}" {
			break
		}
		if p.skipEmptyLine(line) || p.skipComment(line) {
			continue
		}
		if strings.HasPrefix(trimmed, "[") {
			rows = append(rows, parseInlineList(trimmed))
		}
	}

	return rows
}

// parseInlineBlock parses a single-line block: { key1 value1, key2 value2 }.
// Fields are stored as raw scalars; a !type suffix on a field key is
// stripped and discarded. Splitting is naive comma splitting.
func (p *Parser) parseInlineBlock(s string) *Block {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	s = strings.TrimSpace(s)

	block := NewBlock()
	if s == "" {
		return block
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		keyPart, valPart, _ := p.splitKeyValue(part)
		key, _, _ := parseKeyAndType(keyPart)
		block.Set(key, Scalar(valPart))
	}
	return block
}

// parseInlineList parses a single-line list: [item1, item2, ...].
// Splitting is naive: a comma inside quotes or nested brackets still
// separates items.
func parseInlineList(s string) List {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	if strings.TrimSpace(s) == "" {
		return List{}
	}

	items := strings.Split(s, ",")
	list := make(List, len(items))
	for i, item := range items {
		list[i] = Scalar(strings.TrimSpace(item))
	}
	return list
}

// dedentLines removes n leading characters from each line. Lines
// shorter than n are left untouched.
func dedentLines(s string, n int) string {
	if n <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if len(line) >= n {
			lines[i] = line[n:]
		}
	}
	return strings.Join(lines, "\n")
}
