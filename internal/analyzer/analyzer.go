// Package analyzer extracts function-level digests and call lists from Python
// sources with Tree-sitter, and derives which tests depend on which functions.
package analyzer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"lukechampine.com/blake3"
)

// ErrSyntax is returned for sources the grammar cannot parse cleanly.
var ErrSyntax = errors.New("syntax error")

// FileAnalysis holds the functions of one file. Methods are named
// Class::method, nested classes Outer::Inner::method.
type FileAnalysis struct {
	Functions map[string]string   // name -> digest of the definition text
	Calls     map[string][]string // name -> sorted simple names of called functions
}

// Analyzer extracts functions and their calls from a single source file.
type Analyzer interface {
	Analyze(path string, content []byte) (*FileAnalysis, error)
}

// PythonAnalyzer is safe for concurrent use; Tree-sitter parsers are pooled
// because a single parser is not.
type PythonAnalyzer struct {
	parsers sync.Pool
}

// NewPythonAnalyzer creates an analyzer for Python sources
func NewPythonAnalyzer() *PythonAnalyzer {
	a := &PythonAnalyzer{}
	a.parsers.New = func() interface{} {
		p := sitter.NewParser()
		p.SetLanguage(python.GetLanguage())
		return p
	}
	return a
}

// Analyze parses content and returns its top-level functions and class
// methods. Nested functions are part of their enclosing function's digest.
func (a *PythonAnalyzer) Analyze(path string, content []byte) (*FileAnalysis, error) {
	parser := a.parsers.Get().(*sitter.Parser)
	defer a.parsers.Put(parser)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%s: %w", path, ErrSyntax)
	}

	fa := &FileAnalysis{
		Functions: map[string]string{},
		Calls:     map[string][]string{},
	}
	collectDefinitions(root, content, "", fa)
	return fa, nil
}

// collectDefinitions walks the statements of a module or class body.
func collectDefinitions(body *sitter.Node, content []byte, prefix string, fa *FileAnalysis) {
	for i := 0; i < int(body.ChildCount()); i++ {
		stmt := body.Child(i)
		def := stmt
		if stmt.Type() == "decorated_definition" {
			def = stmt.ChildByFieldName("definition")
			if def == nil {
				continue
			}
		}

		switch def.Type() {
		case "function_definition":
			name := nodeName(def, content)
			if name == "" {
				continue
			}
			// decorators are part of the digest
			fa.Functions[prefix+name] = digest(stmt, content)
			fa.Calls[prefix+name] = callNames(def, content)
		case "class_definition":
			name := nodeName(def, content)
			classBody := def.ChildByFieldName("body")
			if name == "" || classBody == nil {
				continue
			}
			collectDefinitions(classBody, content, prefix+name+"::", fa)
		}
	}
}

func nodeName(def *sitter.Node, content []byte) string {
	if n := def.ChildByFieldName("name"); n != nil {
		return n.Content(content)
	}
	return ""
}

func digest(node *sitter.Node, content []byte) string {
	sum := blake3.Sum256(content[node.StartByte():node.EndByte()])
	return hex.EncodeToString(sum[:])
}

// callNames returns the de-duplicated simple names called anywhere in def:
// foo() yields foo, obj.method() and mod.sub.fn() yield method and fn.
func callNames(def *sitter.Node, content []byte) []string {
	seen := map[string]bool{}

	iter := sitter.NewIterator(def, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			break
		}
		if n.Type() != "call" {
			continue
		}

		callee := n.ChildByFieldName("function")
		if callee == nil {
			continue
		}
		switch callee.Type() {
		case "identifier":
			seen[callee.Content(content)] = true
		case "attribute":
			if attr := callee.ChildByFieldName("attribute"); attr != nil {
				seen[attr.Content(content)] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
