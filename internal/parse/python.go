package parse

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"aether/internal/core"
	"aether/internal/logging"
)

// PythonParser extracts symbols, edges and test intents from Python source
// using tree-sitter.
type PythonParser struct {
	parser *sitter.Parser
}

// NewPythonParser creates a new Python parser.
func NewPythonParser() *PythonParser {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &PythonParser{parser: parser}
}

// Language returns the language this parser emits symbols for.
func (p *PythonParser) Language() core.Language {
	return core.LanguagePython
}

// Extensions returns [".py", ".pyi"].
func (p *PythonParser) Extensions() []string {
	return []string{".py", ".pyi"}
}

// ModuleMarkers returns the files that mark a Python module root.
func (p *PythonParser) ModuleMarkers() []string {
	return []string{"__init__.py", "pyproject.toml", "setup.py", "setup.cfg"}
}

// Extract parses Python source content.
func (p *PythonParser) Extract(filePath string, content []byte) (*ExtractedFile, error) {
	start := time.Now()

	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("python parse failed for %s: %w", filePath, err)
	}
	defer tree.Close()

	out := &ExtractedFile{}
	root := tree.RootNode()

	p.walkSymbols(root, filePath, content, out)
	p.walkEdges(root, filePath, content, out)
	p.walkTestIntents(root, filePath, content, out)

	logging.ParseDebug("python: parsed %s - %d symbols, %d edges in %v",
		filepath.Base(filePath), len(out.Symbols), len(out.Edges), time.Since(start))
	return finishExtraction(out), nil
}

func (p *PythonParser) walkSymbols(node *sitter.Node, filePath string, content []byte, out *ExtractedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			if symbol := p.mapFunction(child, filePath, content); symbol != nil {
				out.Symbols = append(out.Symbols, *symbol)
			}
		case "class_definition":
			if symbol := p.mapClass(child, filePath, content); symbol != nil {
				out.Symbols = append(out.Symbols, *symbol)
			}
		case "decorated_definition":
			// The symbol is the inner definition; decorators never produce
			// a second symbol for the same declaration.
			if inner := decoratedInner(child); inner != nil {
				switch inner.Type() {
				case "function_definition":
					if symbol := p.mapFunction(inner, filePath, content); symbol != nil {
						out.Symbols = append(out.Symbols, *symbol)
					}
				case "class_definition":
					if symbol := p.mapClass(inner, filePath, content); symbol != nil {
						out.Symbols = append(out.Symbols, *symbol)
					}
				}
				p.walkSymbols(inner, filePath, content, out)
				continue
			}
		case "assignment":
			if symbol := p.mapVariable(child, filePath, content); symbol != nil {
				out.Symbols = append(out.Symbols, *symbol)
			}
		case "type_alias_statement":
			if symbol := p.mapTypeAlias(child, filePath, content); symbol != nil {
				out.Symbols = append(out.Symbols, *symbol)
			}
		}
		p.walkSymbols(child, filePath, content, out)
	}
}

func (p *PythonParser) mapFunction(node *sitter.Node, filePath string, content []byte) *core.Symbol {
	name := namedChildText(node, "name", content)
	if name == "" {
		return nil
	}

	kind := core.KindFunction
	var parent string
	if isPythonMethod(node) {
		kind = core.KindMethod
		parent = nearestAncestorName(node, content, "class_definition")
	} else {
		parent = nearestAncestorName(node, content, "class_definition", "function_definition")
	}

	qualified := pythonQualifiedName(filePath, name, parent)
	symbol := buildSymbol(core.LanguagePython, filePath, kind, name, qualified, node, content)
	return &symbol
}

func (p *PythonParser) mapClass(node *sitter.Node, filePath string, content []byte) *core.Symbol {
	name := namedChildText(node, "name", content)
	if name == "" {
		return nil
	}
	parent := nearestAncestorName(node, content, "class_definition", "function_definition")
	qualified := pythonQualifiedName(filePath, name, parent)
	symbol := buildSymbol(core.LanguagePython, filePath, core.KindClass, name, qualified, node, content)
	return &symbol
}

// mapVariable records module-level assignments as variables, but only when
// they carry a type annotation or define __all__. Untyped module globals
// are too noisy to index.
func (p *PythonParser) mapVariable(node *sitter.Node, filePath string, content []byte) *core.Symbol {
	if hasAncestorOfType(node, "function_definition") || hasAncestorOfType(node, "class_definition") {
		return nil
	}

	nameNode := node.ChildByFieldName("left")
	if nameNode == nil {
		nameNode = node.NamedChild(0)
	}
	if nameNode == nil {
		return nil
	}
	name := sanitizeName(nodeText(nameNode, content))
	if name == "" {
		return nil
	}
	if node.ChildByFieldName("type") == nil && name != "__all__" {
		return nil
	}

	qualified := pythonQualifiedName(filePath, name, "")
	symbol := buildSymbol(core.LanguagePython, filePath, core.KindVariable, name, qualified, node, content)
	return &symbol
}

func (p *PythonParser) mapTypeAlias(node *sitter.Node, filePath string, content []byte) *core.Symbol {
	name := namedChildText(node, "name", content)
	if name == "" {
		if first := node.NamedChild(0); first != nil {
			name = sanitizeName(nodeText(first, content))
		}
	}
	if name == "" {
		return nil
	}

	qualified := pythonQualifiedName(filePath, name, "")
	symbol := buildSymbol(core.LanguagePython, filePath, core.KindTypeAlias, name, qualified, node, content)
	return &symbol
}

func (p *PythonParser) walkEdges(node *sitter.Node, filePath string, content []byte, out *ExtractedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "call":
			if target := pythonCallTarget(child, content); target != "" {
				sourceID := enclosingFunctionSymbolID(out.Symbols, child)
				if sourceID == "" {
					sourceID = core.FileSourceID(filePath)
				}
				out.Edges = append(out.Edges, core.SymbolEdge{
					SourceID:            sourceID,
					TargetQualifiedName: target,
					EdgeKind:            core.EdgeCalls,
					FilePath:            filePath,
				})
			}
		case "import_statement", "import_from_statement":
			for _, target := range pythonImportTargets(child, content, filePath) {
				out.Edges = append(out.Edges, core.SymbolEdge{
					SourceID:            core.FileSourceID(filePath),
					TargetQualifiedName: target,
					EdgeKind:            core.EdgeDependsOn,
					FilePath:            filePath,
				})
			}
		}
		p.walkEdges(child, filePath, content, out)
	}
}

func (p *PythonParser) walkTestIntents(node *sitter.Node, filePath string, content []byte, out *ExtractedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "function_definition" {
			if intent := p.mapTestIntent(child, filePath, content); intent != nil {
				out.TestIntents = append(out.TestIntents, *intent)
			}
		}
		p.walkTestIntents(child, filePath, content, out)
	}
}

func (p *PythonParser) mapTestIntent(node *sitter.Node, filePath string, content []byte) *TestIntent {
	testName := namedChildText(node, "name", content)
	if !strings.HasPrefix(testName, "test_") {
		return nil
	}

	symbolID := ""
	if symbol := p.mapFunction(node, filePath, content); symbol != nil {
		symbolID = symbol.ID
	}

	intentText := pythonDocstring(node, content)
	if intentText == "" {
		intentText = humanizeTestName(testName)
	}
	intentText = normalizeIntentText(intentText)
	if intentText == "" {
		return nil
	}

	return &TestIntent{
		FilePath:   filePath,
		TestName:   testName,
		IntentText: intentText,
		Language:   core.LanguagePython,
		SymbolID:   symbolID,
	}
}

// pythonQualifiedName is dotted.module.path::Parent::name, with at most one
// enclosing scope recorded.
func pythonQualifiedName(filePath, name, parent string) string {
	module := pythonModulePath(filePath)
	if strings.TrimSpace(parent) != "" {
		return fmt.Sprintf("%s::%s::%s", module, parent, name)
	}
	return fmt.Sprintf("%s::%s", module, name)
}

// pythonModulePath converts a file path into an importable dotted module
// path. __init__.py collapses to its package.
func pythonModulePath(filePath string) string {
	normalized := core.NormalizePath(filePath)
	stem := strings.TrimSuffix(filepath.Base(normalized), filepath.Ext(normalized))
	isInit := stem == "__init__"

	var segments []string
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(normalized)), "/") {
		part = strings.TrimSpace(part)
		if part != "" && part != "." {
			segments = append(segments, part)
		}
	}
	if !isInit && strings.TrimSpace(stem) != "" {
		segments = append(segments, stem)
	}

	if len(segments) == 0 {
		if isInit {
			return "module"
		}
		return stem
	}
	return strings.Join(segments, ".")
}

// pythonPackagePath is the dotted package containing the module: the module
// path minus the final segment, except for __init__.py which already names
// its package.
func pythonPackagePath(filePath string) string {
	module := pythonModulePath(filePath)
	stem := strings.TrimSuffix(filepath.Base(core.NormalizePath(filePath)), filepath.Ext(filePath))
	if stem == "__init__" {
		return module
	}
	segments := strings.Split(module, ".")
	if len(segments) <= 1 {
		return ""
	}
	return strings.Join(segments[:len(segments)-1], ".")
}

func pythonCallTarget(node *sitter.Node, content []byte) string {
	callee := node.ChildByFieldName("function")
	if callee == nil {
		callee = node.NamedChild(0)
	}
	if callee == nil {
		return ""
	}
	return strings.TrimSpace(nodeText(callee, content))
}

func pythonImportTargets(node *sitter.Node, content []byte, filePath string) []string {
	text := nodeText(node, content)
	switch node.Type() {
	case "import_statement":
		return parseImportStatement(text)
	case "import_from_statement":
		return parseImportFromStatement(text, filePath)
	default:
		return nil
	}
}

// pythonDocstring returns the string literal opening a definition body.
func pythonDocstring(node *sitter.Node, content []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" {
		return ""
	}
	literal := first.NamedChild(0)
	if literal == nil || literal.Type() != "string" {
		return ""
	}

	raw := strings.TrimSpace(nodeText(literal, content))
	for _, prefix := range []string{`r"""`, `u"""`, `f"""`, `"""`, "'''"} {
		raw = strings.TrimPrefix(raw, prefix)
	}
	raw = strings.TrimSuffix(raw, `"""`)
	raw = strings.TrimSuffix(raw, "'''")
	return strings.TrimSpace(raw)
}

func parseImportStatement(text string) []string {
	remainder, ok := strings.CutPrefix(strings.TrimSpace(text), "import")
	if !ok {
		return nil
	}
	var targets []string
	for _, entry := range strings.Split(remainder, ",") {
		entry = strings.TrimSpace(entry)
		if name, _, found := strings.Cut(entry, " as "); found {
			entry = strings.TrimSpace(name)
		}
		if entry != "" {
			targets = append(targets, entry)
		}
	}
	return targets
}

func parseImportFromStatement(text, filePath string) []string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(text), "from")
	if !ok {
		return nil
	}
	moduleRaw, namesRaw, found := strings.Cut(strings.TrimSpace(rest), " import ")
	if !found {
		return nil
	}

	module := resolveImportModule(strings.TrimSpace(moduleRaw), filePath)
	names := strings.TrimSpace(namesRaw)
	if names == "*" {
		if module == "" {
			return nil
		}
		return []string{module}
	}

	var targets []string
	for _, entry := range strings.Split(names, ",") {
		entry = strings.TrimSpace(entry)
		if name, _, hasAlias := strings.Cut(entry, " as "); hasAlias {
			entry = strings.TrimSpace(name)
		}
		if entry == "" {
			continue
		}
		if module == "" {
			targets = append(targets, entry)
		} else {
			targets = append(targets, module+"."+entry)
		}
	}
	return targets
}

// resolveImportModule resolves leading-dot relative imports against the
// importing file's package path.
func resolveImportModule(rawModule, filePath string) string {
	module := strings.TrimSpace(rawModule)
	if module == "" {
		return ""
	}
	if !strings.HasPrefix(module, ".") {
		return module
	}

	dotCount := 0
	for _, ch := range module {
		if ch != '.' {
			break
		}
		dotCount++
	}
	tail := strings.Trim(module[dotCount:], ".")

	var segments []string
	for _, segment := range strings.Split(pythonPackagePath(filePath), ".") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	ascend := dotCount - 1
	if ascend >= len(segments) {
		segments = nil
	} else {
		segments = segments[:len(segments)-ascend]
	}

	if tail != "" {
		for _, segment := range strings.Split(tail, ".") {
			if segment != "" {
				segments = append(segments, segment)
			}
		}
	}
	return strings.Join(segments, ".")
}

func isPythonMethod(node *sitter.Node) bool {
	for current := node.Parent(); current != nil; current = current.Parent() {
		switch current.Type() {
		case "class_definition":
			return true
		case "function_definition":
			return false
		}
	}
	return false
}

func nearestAncestorName(node *sitter.Node, content []byte, nodeTypes ...string) string {
	for current := node.Parent(); current != nil; current = current.Parent() {
		for _, nodeType := range nodeTypes {
			if current.Type() == nodeType {
				return namedChildText(current, "name", content)
			}
		}
	}
	return ""
}

func decoratedInner(node *sitter.Node) *sitter.Node {
	if inner := node.ChildByFieldName("definition"); inner != nil {
		return inner
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "function_definition" || child.Type() == "class_definition" {
			return child
		}
	}
	return nil
}
