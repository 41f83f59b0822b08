// Package up provides templating support for UP documents
package up

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// TemplateEngine processes UP templates with overlays, includes, and variables
type TemplateEngine struct {
	options TemplateOptions
	vars    map[string]Value
	visited map[string]bool // prevent circular dependencies
}

// TemplateOptions configures template processing
type TemplateOptions struct {
	MergeStrategy string // "deep", "shallow", "replace"
	ListStrategy  string // "append", "replace", "unique"
	BaseDir       string // base directory for relative includes
}

// NewTemplateEngine creates a new template engine
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{
		options: TemplateOptions{
			MergeStrategy: "deep",
			ListStrategy:  "append",
			BaseDir:       ".",
		},
		vars:    make(map[string]Value),
		visited: make(map[string]bool),
	}
}

// WithOptions sets template options
func (e *TemplateEngine) WithOptions(opts TemplateOptions) *TemplateEngine {
	e.options = opts
	return e
}

// WithVars sets initial variables
func (e *TemplateEngine) WithVars(vars map[string]Value) *TemplateEngine {
	e.vars = vars
	return e
}

// ProcessTemplate processes a UP template file
func (e *TemplateEngine) ProcessTemplate(filename string) (*Document, error) {
	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	if e.visited[absPath] {
		return nil, fmt.Errorf("circular dependency detected: %s", filename)
	}
	e.visited[absPath] = true
	defer delete(e.visited, absPath)

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	doc, err := NewParser().ParseDocument(file)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	// Relative includes resolve against the template's own directory.
	oldBaseDir := e.options.BaseDir
	e.options.BaseDir = filepath.Dir(absPath)
	defer func() { e.options.BaseDir = oldBaseDir }()

	return e.processDocument(doc)
}

// ProcessTemplateFromReader processes a template from an io.Reader
func (e *TemplateEngine) ProcessTemplateFromReader(r io.Reader) (*Document, error) {
	doc, err := NewParser().ParseDocument(r)
	if err != nil {
		return nil, err
	}
	return e.processDocument(doc)
}

// processDocument processes template directives in a document
func (e *TemplateEngine) processDocument(doc *Document) (*Document, error) {
	plain := &Document{}
	var baseDoc *Document
	var overlayNodes []Node
	var patchNodes []Node
	var includeFiles []string

	// Template directives ride on type annotations:
	// !base, !overlay, !include, !patch, !merge.
	for _, node := range doc.Nodes {
		if !node.HasType {
			plain.Nodes = append(plain.Nodes, node)
			continue
		}
		switch node.Type {
		case "base":
			baseFile, ok := node.Value.(Scalar)
			if !ok {
				continue
			}
			basePath := filepath.Join(e.options.BaseDir, string(baseFile))
			var err error
			baseDoc, err = e.loadDocumentRaw(basePath)
			if err != nil {
				return nil, fmt.Errorf("failed to load base %s: %w", baseFile, err)
			}
		case "overlay":
			if _, ok := node.Value.(*Block); ok {
				overlayNodes = append(overlayNodes, node)
			}
		case "include":
			if list, ok := node.Value.(List); ok {
				for _, item := range list {
					if file, ok := item.(Scalar); ok {
						includeFiles = append(includeFiles, string(file))
					}
				}
			}
		case "patch":
			if block, ok := node.Value.(*Block); ok {
				for _, k := range block.Keys() {
					v, _ := block.Get(k)
					patchNodes = append(patchNodes, Node{Key: k, Value: v})
				}
			}
		case "merge":
			if block, ok := node.Value.(*Block); ok {
				if v, ok := block.Get("strategy"); ok {
					if s, ok := v.(Scalar); ok {
						e.options.MergeStrategy = string(s)
					}
				}
				if v, ok := block.Get("list_strategy"); ok {
					if s, ok := v.(Scalar); ok {
						e.options.ListStrategy = string(s)
					}
				}
			}
		default:
			plain.Nodes = append(plain.Nodes, node)
		}
	}

	var includeDocs []*Document
	for _, includeFile := range includeFiles {
		includePath := filepath.Join(e.options.BaseDir, includeFile)
		includeDoc, err := e.loadDocumentRaw(includePath)
		if err != nil {
			return nil, fmt.Errorf("failed to include %s: %w", includeFile, err)
		}
		includeDocs = append(includeDocs, includeDoc)
	}

	// Collect variables from every contributing document before merging
	// so references work regardless of declaration order.
	var allDocs []*Document
	if baseDoc != nil {
		allDocs = append(allDocs, baseDoc)
	}
	allDocs = append(allDocs, includeDocs...)
	allDocs = append(allDocs, plain)
	for _, d := range allDocs {
		for _, node := range d.Nodes {
			if node.Key == "vars" {
				if block, ok := node.Value.(*Block); ok {
					e.extractVars(block, "")
				}
			}
		}
	}

	final := &Document{}
	if baseDoc != nil {
		final = baseDoc
	}
	for _, includeDoc := range includeDocs {
		final = e.mergeDocuments(final, includeDoc)
	}
	if len(plain.Nodes) > 0 {
		final = e.mergeDocuments(final, plain)
	}

	// Overlays merge onto the node with the same key, or append.
	for _, overlayNode := range overlayNodes {
		merged := false
		for i, target := range final.Nodes {
			if target.Key == overlayNode.Key {
				final.Nodes[i].Value = e.mergeValues(target.Value, overlayNode.Value)
				merged = true
				break
			}
		}
		if !merged {
			final.Nodes = append(final.Nodes, Node{Key: overlayNode.Key, Value: overlayNode.Value})
		}
	}

	if len(patchNodes) > 0 {
		final = e.applyPatches(final, patchNodes)
	}

	return e.resolveVariablesIteratively(final)
}

// loadDocumentRaw loads, parses and recursively processes a document.
func (e *TemplateEngine) loadDocumentRaw(filename string) (*Document, error) {
	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	if e.visited[absPath] {
		return nil, fmt.Errorf("circular dependency detected: %s", filename)
	}
	e.visited[absPath] = true
	defer delete(e.visited, absPath)

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	doc, err := NewParser().ParseDocument(file)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	oldBaseDir := e.options.BaseDir
	e.options.BaseDir = filepath.Dir(absPath)
	defer func() { e.options.BaseDir = oldBaseDir }()

	return e.processDocument(doc)
}

// extractVars flattens a vars block into dotted paths. Values may still
// reference other variables; they are resolved iteratively later.
func (e *TemplateEngine) extractVars(block *Block, prefix string) {
	for _, k := range block.Keys() {
		v, _ := block.Get(k)
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if nested, ok := v.(*Block); ok {
			e.extractVars(nested, path)
		} else {
			e.vars[path] = v
		}
	}
}

// resolveVariablesIteratively resolves variable references until
// convergence, then substitutes them throughout the document.
func (e *TemplateEngine) resolveVariablesIteratively(doc *Document) (*Document, error) {
	const maxIterations = 100

	for iteration := 0; iteration < maxIterations; iteration++ {
		hasChanges := false
		newVars := make(map[string]Value)

		for path, value := range e.vars {
			resolved := e.resolveValue(value)
			newVars[path] = resolved
			if !valuesEqual(value, resolved) {
				hasChanges = true
			}
		}

		e.vars = newVars

		if !hasChanges {
			break
		}
		if iteration == maxIterations-1 {
			return nil, fmt.Errorf("circular dependency detected: exceeded %d iterations resolving variables", maxIterations)
		}
	}

	result := &Document{Nodes: make([]Node, len(doc.Nodes))}
	for i, node := range doc.Nodes {
		result.Nodes[i] = Node{
			Key:     node.Key,
			Type:    node.Type,
			HasType: node.HasType,
			Value:   e.resolveValue(node.Value),
		}
	}
	return result, nil
}

// valuesEqual reports structural equality, used to detect convergence.
func valuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch va := a.(type) {
	case Scalar:
		vb, ok := b.(Scalar)
		return ok && va == vb
	case *Block:
		vb, ok := b.(*Block)
		if !ok || va.Len() != vb.Len() {
			return false
		}
		for _, k := range va.keys {
			x, _ := va.Get(k)
			y, ok := vb.Get(k)
			if !ok || !valuesEqual(x, y) {
				return false
			}
		}
		return true
	case List:
		vb, ok := b.(List)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i, v := range va {
			if !valuesEqual(v, vb[i]) {
				return false
			}
		}
		return true
	case *Table:
		vb, ok := b.(*Table)
		if !ok || !valuesEqual(va.Columns, vb.Columns) || len(va.Rows) != len(vb.Rows) {
			return false
		}
		for i, row := range va.Rows {
			if !valuesEqual(row, vb.Rows[i]) {
				return false
			}
		}
		return true
	case *UseDirective:
		vb, ok := b.(*UseDirective)
		if !ok || len(va.Namespaces) != len(vb.Namespaces) {
			return false
		}
		for i, ns := range va.Namespaces {
			if ns != vb.Namespaces[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// resolveValue substitutes $vars. references in a value.
func (e *TemplateEngine) resolveValue(value Value) Value {
	switch v := value.(type) {
	case Scalar:
		s := string(v)
		if !strings.Contains(s, "$vars.") {
			return v
		}

		result := s
		searchFrom := 0
		for {
			idx := strings.Index(result[searchFrom:], "$vars.")
			if idx == -1 {
				break
			}
			start := searchFrom + idx

			end := start + len("$vars.")
			for end < len(result) && (isVarChar(result[end]) || result[end] == '.') {
				end++
			}

			fullRef := result[start:end]
			varPath := strings.TrimPrefix(fullRef, "$vars.")

			resolved, ok := e.vars[varPath]
			if !ok {
				// Unknown variable: leave the reference in place.
				searchFrom = end
				continue
			}

			// A reference that spans the whole scalar keeps the
			// referenced value's structure. One step per pass; the
			// convergence loop handles chained references.
			if result == fullRef {
				return resolved
			}
			text := scalarText(resolved)
			result = result[:start] + text + result[end:]
			searchFrom = start + len(text)
		}

		return Scalar(result)
	case *Block:
		result := NewBlock()
		for _, k := range v.keys {
			val, _ := v.Get(k)
			result.Set(k, e.resolveValue(val))
		}
		return result
	case List:
		result := make(List, len(v))
		for i, val := range v {
			result[i] = e.resolveValue(val)
		}
		return result
	default:
		return v
	}
}

// scalarText renders a value for interpolation inside a larger string.
func scalarText(v Value) string {
	if s, ok := v.(Scalar); ok {
		return string(s)
	}
	return fmt.Sprint(v)
}

// isVarChar checks if a character is valid in a variable path
func isVarChar(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_'
}

// mergeDocuments merges two documents. Base order is kept; keys only
// present in the overlay are appended in overlay order.
func (e *TemplateEngine) mergeDocuments(base, overlay *Document) *Document {
	result := &Document{}

	overlayIdx := make(map[string]int)
	for i, node := range overlay.Nodes {
		if _, ok := overlayIdx[node.Key]; !ok {
			overlayIdx[node.Key] = i
		}
	}

	merged := make(map[string]bool)
	for _, node := range base.Nodes {
		if i, ok := overlayIdx[node.Key]; ok {
			o := overlay.Nodes[i]
			result.Nodes = append(result.Nodes, Node{
				Key:     node.Key,
				Type:    o.Type,
				HasType: o.HasType,
				Value:   e.mergeValues(node.Value, o.Value),
			})
			merged[node.Key] = true
		} else {
			result.Nodes = append(result.Nodes, node)
		}
	}

	for _, node := range overlay.Nodes {
		if !merged[node.Key] {
			result.Nodes = append(result.Nodes, node)
		}
	}

	return result
}

// mergeValues merges two values according to the merge strategy.
func (e *TemplateEngine) mergeValues(base, overlay Value) Value {
	if overlay == nil {
		return base
	}

	if e.options.MergeStrategy == "shallow" || e.options.MergeStrategy == "replace" {
		return overlay
	}

	if baseBlock, ok := base.(*Block); ok {
		if overlayBlock, ok := overlay.(*Block); ok && e.options.MergeStrategy == "deep" {
			result := NewBlock()
			for _, k := range baseBlock.keys {
				v, _ := baseBlock.Get(k)
				result.Set(k, v)
			}
			for _, k := range overlayBlock.keys {
				v, _ := overlayBlock.Get(k)
				if existing, ok := result.Get(k); ok {
					result.Set(k, e.mergeValues(existing, v))
				} else {
					result.Set(k, v)
				}
			}
			return result
		}
	}

	if baseList, ok := base.(List); ok {
		if overlayList, ok := overlay.(List); ok {
			switch e.options.ListStrategy {
			case "append":
				return append(append(List{}, baseList...), overlayList...)
			case "unique":
				return uniqueList(append(append(List{}, baseList...), overlayList...))
			default:
				return overlayList
			}
		}
	}

	return overlay
}

// uniqueList removes duplicate scalar entries, keeping first occurrence.
func uniqueList(list List) List {
	seen := make(map[Scalar]bool)
	result := List{}
	for _, item := range list {
		if s, ok := item.(Scalar); ok {
			if seen[s] {
				continue
			}
			seen[s] = true
		}
		result = append(result, item)
	}
	return result
}

// applyPatches applies patch directives to a document
func (e *TemplateEngine) applyPatches(doc *Document, patches []Node) *Document {
	result := &Document{Nodes: make([]Node, len(doc.Nodes))}
	copy(result.Nodes, doc.Nodes)

	for _, patch := range patches {
		// Patch paths are dotted: "server.host", "servers[*].cpu"
		parts := strings.Split(patch.Key, ".")
		e.applyPatchPath(result, parts, patch.Value)
	}

	return result
}

// applyPatchPath applies a patch at a specific path
func (e *TemplateEngine) applyPatchPath(doc *Document, path []string, value Value) {
	if len(path) == 0 {
		return
	}

	for i, node := range doc.Nodes {
		if node.Key == path[0] {
			if len(path) == 1 {
				doc.Nodes[i].Value = value
			} else if block, ok := node.Value.(*Block); ok {
				e.applyPatchToBlock(block, path[1:], value)
			}
			return
		}
	}
}

// applyPatchToBlock applies a patch within a block
func (e *TemplateEngine) applyPatchToBlock(block *Block, path []string, value Value) {
	if len(path) == 0 {
		return
	}

	key := path[0]

	// List selector: key[*]. Numeric and key=value selectors are not
	// supported. TODO: numeric index selector once a document needs it.
	if strings.Contains(key, "[") {
		parts := strings.SplitN(key, "[", 2)
		baseKey := parts[0]
		selector := strings.TrimSuffix(parts[1], "]")

		if v, ok := block.Get(baseKey); ok {
			if list, ok := v.(List); ok && selector == "*" {
				for i := range list {
					if len(path) == 1 {
						list[i] = value
					} else if itemBlock, ok := list[i].(*Block); ok {
						e.applyPatchToBlock(itemBlock, path[1:], value)
					}
				}
			}
		}
		return
	}

	if len(path) == 1 {
		block.Set(key, value)
		return
	}
	if v, ok := block.Get(key); ok {
		if nested, ok := v.(*Block); ok {
			e.applyPatchToBlock(nested, path[1:], value)
		}
	}
}
