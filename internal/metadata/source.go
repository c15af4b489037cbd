package metadata

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/Aman-CERP/amankb/internal/filetype"
)

// SourceParser extracts top-level structure from Python (and Cython)
// sources with tree-sitter. Nothing is executed.
type SourceParser struct{}

// Kind implements Parser.
func (SourceParser) Kind() filetype.Kind { return filetype.SourceCode }

// ExtractText implements Parser. Source code is indexed verbatim.
func (SourceParser) ExtractText(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ExtractMetadata implements Parser. A file that fails to parse cleanly
// yields the minimal record.
func (p SourceParser) ExtractMetadata(ctx context.Context, path string) DocumentMetadata {
	data, err := os.ReadFile(path)
	if err != nil {
		return Minimal(filetype.SourceCode)
	}
	md, ok := p.parse(ctx, data)
	if !ok {
		return Minimal(filetype.SourceCode)
	}
	md.ModuleName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return md
}

func (SourceParser) parse(ctx context.Context, source []byte) (DocumentMetadata, bool) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil || tree == nil {
		return DocumentMetadata{}, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return DocumentMetadata{}, false
	}

	md := Minimal(filetype.SourceCode)
	seenImports := make(map[string]struct{})
	addImport := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seenImports[name]; ok {
			return
		}
		seenImports[name] = struct{}{}
		md.Imports = append(md.Imports, name)
	}

	walk(root, func(n *sitter.Node) {
		switch n.Type() {
		case "class_definition":
			if name := n.ChildByFieldName("name"); name != nil {
				md.Classes = append(md.Classes, name.Content(source))
			}
		case "function_definition":
			if n.StartPoint().Column != 0 {
				return
			}
			if name := n.ChildByFieldName("name"); name != nil {
				md.Functions = append(md.Functions, name.Content(source))
			}
		case "import_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				addImport(importName(n.NamedChild(i), source))
			}
		case "import_from_statement":
			if mod := n.ChildByFieldName("module_name"); mod != nil {
				addImport(importName(mod, source))
			}
		case "if_statement":
			if isMainGuard(n.ChildByFieldName("condition"), source) {
				md.HasMain = true
			}
		}
	})

	if doc := moduleDocstring(root, source); doc != "" {
		md.Custom["docstring"] = doc
		md.Tags = ExtractInlineTags(doc)
	}
	return md, true
}

// walk visits n and all descendants depth-first.
func walk(n *sitter.Node, visit func(*sitter.Node)) {
	visit(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil {
			walk(child, visit)
		}
	}
}

// importName resolves dotted_name, aliased_import and relative_import
// nodes to the imported module path. "from . import x" has no module.
func importName(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "dotted_name":
		return n.Content(source)
	case "aliased_import":
		return importName(n.ChildByFieldName("name"), source)
	case "relative_import":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() == "dotted_name" {
				return c.Content(source)
			}
		}
	}
	return ""
}

// isMainGuard matches comparisons whose left operand is __name__.
func isMainGuard(cond *sitter.Node, source []byte) bool {
	if cond == nil || cond.Type() != "comparison_operator" || cond.NamedChildCount() == 0 {
		return false
	}
	left := cond.NamedChild(0)
	return left.Type() == "identifier" && left.Content(source) == "__name__"
}

// moduleDocstring returns the cleaned docstring when the first statement
// of the module is a bare string literal.
func moduleDocstring(root *sitter.Node, source []byte) string {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() == "comment" {
			continue
		}
		if stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
			return ""
		}
		lit := stmt.NamedChild(0)
		if lit.Type() != "string" {
			return ""
		}
		return cleanDoc(unquote(lit.Content(source)))
	}
	return ""
}

// unquote strips a Python string prefix and its quotes.
func unquote(lit string) string {
	lit = strings.TrimLeft(lit, "rRuUbB")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(lit) >= 2*len(q) && strings.HasPrefix(lit, q) && strings.HasSuffix(lit, q) {
			return lit[len(q) : len(lit)-len(q)]
		}
	}
	return lit
}

// cleanDoc removes the common indentation of all lines after the first
// and trims leading and trailing blank lines.
func cleanDoc(doc string) string {
	lines := strings.Split(strings.ReplaceAll(doc, "\t", "        "), "\n")
	indent := -1
	for _, line := range lines[1:] {
		stripped := strings.TrimLeft(line, " ")
		if stripped == "" {
			continue
		}
		if n := len(line) - len(stripped); indent < 0 || n < indent {
			indent = n
		}
	}
	lines[0] = strings.TrimSpace(lines[0])
	if indent > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= indent {
				lines[i] = lines[i][indent:]
			} else {
				lines[i] = strings.TrimLeft(lines[i], " ")
			}
		}
	}
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}
