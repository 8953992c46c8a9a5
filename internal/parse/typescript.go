package parse

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"aether/internal/core"
	"aether/internal/logging"
)

// TypeScriptParser extracts symbols, edges and test intents from
// TypeScript, TSX, JavaScript and JSX source. Each dialect gets its own
// tree-sitter grammar; the extracted model is shared.
type TypeScriptParser struct {
	tsParser  *sitter.Parser
	tsxParser *sitter.Parser
	jsParser  *sitter.Parser
}

// NewTypeScriptParser creates a parser covering the TypeScript family.
func NewTypeScriptParser() *TypeScriptParser {
	tsParser := sitter.NewParser()
	tsParser.SetLanguage(typescript.GetLanguage())
	tsxParser := sitter.NewParser()
	tsxParser.SetLanguage(tsx.GetLanguage())
	jsParser := sitter.NewParser()
	jsParser.SetLanguage(javascript.GetLanguage())
	return &TypeScriptParser{tsParser: tsParser, tsxParser: tsxParser, jsParser: jsParser}
}

// Language returns the primary language of this parser. Dialects report
// their own language on extracted symbols.
func (p *TypeScriptParser) Language() core.Language {
	return core.LanguageTypeScript
}

// Extensions returns the TypeScript-family extensions.
func (p *TypeScriptParser) Extensions() []string {
	return []string{".ts", ".tsx", ".js", ".jsx"}
}

// ModuleMarkers returns the files that mark a TypeScript module root.
func (p *TypeScriptParser) ModuleMarkers() []string {
	return []string{"package.json", "tsconfig.json"}
}

// Extract parses TypeScript-family source content, choosing the grammar
// from the file extension.
func (p *TypeScriptParser) Extract(filePath string, content []byte) (*ExtractedFile, error) {
	start := time.Now()

	language, ok := LanguageForPath(filePath)
	if !ok {
		language = core.LanguageTypeScript
	}
	parser := p.dialectParser(filePath)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("typescript parse failed for %s: %w", filePath, err)
	}
	defer tree.Close()

	out := &ExtractedFile{}
	root := tree.RootNode()

	p.walkSymbols(root, language, filePath, content, out)
	p.walkEdges(root, language, filePath, content, out)
	p.walkTestIntents(root, language, filePath, content, out, "")

	logging.ParseDebug("typescript: parsed %s (%s) - %d symbols, %d edges in %v",
		filepath.Base(filePath), language, len(out.Symbols), len(out.Edges), time.Since(start))
	return finishExtraction(out), nil
}

// dialectParser picks a grammar by extension. The tsx grammar is a
// superset shared by .tsx, and plain .js/.jsx use the javascript grammar.
func (p *TypeScriptParser) dialectParser(filePath string) *sitter.Parser {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".tsx":
		return p.tsxParser
	case ".js", ".jsx":
		return p.jsParser
	default:
		return p.tsParser
	}
}

func (p *TypeScriptParser) walkSymbols(node *sitter.Node, language core.Language, filePath string, content []byte, out *ExtractedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)

		var kind core.SymbolKind
		switch child.Type() {
		case "class_declaration":
			kind = core.KindClass
		case "interface_declaration":
			kind = core.KindInterface
		case "function_declaration":
			kind = core.KindFunction
		case "method_definition":
			kind = core.KindMethod
		case "type_alias_declaration":
			kind = core.KindTypeAlias
		default:
			p.walkSymbols(child, language, filePath, content, out)
			continue
		}

		name := namedChildText(child, "name", content)
		if name != "" {
			qualified := typescriptQualifiedName(child, name, content)
			out.Symbols = append(out.Symbols, buildSymbol(language, filePath, kind, name, qualified, child, content))
		}
		p.walkSymbols(child, language, filePath, content, out)
	}
}

func (p *TypeScriptParser) walkEdges(node *sitter.Node, language core.Language, filePath string, content []byte, out *ExtractedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "call_expression", "new_expression":
			target := typescriptCallTarget(child, content)
			sourceID := typescriptSourceFunctionID(language, filePath, content, child)
			if target != "" && sourceID != "" {
				out.Edges = append(out.Edges, core.SymbolEdge{
					SourceID:            sourceID,
					TargetQualifiedName: target,
					EdgeKind:            core.EdgeCalls,
					FilePath:            filePath,
				})
			}
		case "import_statement":
			if target := namedChildText(child, "source", content); target != "" {
				out.Edges = append(out.Edges, core.SymbolEdge{
					SourceID:            core.FileSourceID(filePath),
					TargetQualifiedName: target,
					EdgeKind:            core.EdgeDependsOn,
					FilePath:            filePath,
				})
			}
		}
		p.walkEdges(child, language, filePath, content, out)
	}
}

// walkTestIntents picks up describe/it/test calls. A describe block is an
// intent of its own and labels the intents nested under it.
func (p *TypeScriptParser) walkTestIntents(node *sitter.Node, language core.Language, filePath string, content []byte, out *ExtractedFile, groupLabel string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "call_expression" {
			callee := typescriptCalleeIdentifier(child, content)
			label := typescriptFirstStringArgument(child, content)
			switch callee {
			case "describe":
				if label != "" {
					out.TestIntents = append(out.TestIntents, TestIntent{
						FilePath:   filePath,
						TestName:   callee,
						IntentText: normalizeIntentText(label),
						GroupLabel: groupLabel,
						Language:   language,
					})
					p.walkTestIntents(child, language, filePath, content, out, normalizeIntentText(label))
					continue
				}
			case "it", "test":
				if label != "" {
					out.TestIntents = append(out.TestIntents, TestIntent{
						FilePath:   filePath,
						TestName:   callee,
						IntentText: normalizeIntentText(label),
						GroupLabel: groupLabel,
						Language:   language,
					})
				}
			}
		}
		p.walkTestIntents(child, language, filePath, content, out, groupLabel)
	}
}

func typescriptQualifiedName(node *sitter.Node, name string, content []byte) string {
	var context []string
	for current := node.Parent(); current != nil; current = current.Parent() {
		switch current.Type() {
		case "class_declaration", "interface_declaration":
			if parent := namedChildText(current, "name", content); parent != "" {
				context = append(context, parent)
			}
		}
	}
	if len(context) == 0 {
		return name
	}
	for left, right := 0, len(context)-1; left < right; left, right = left+1, right-1 {
		context[left], context[right] = context[right], context[left]
	}
	return strings.Join(context, "::") + "::" + name
}

func typescriptCallTarget(node *sitter.Node, content []byte) string {
	callee := node.ChildByFieldName("function")
	if callee == nil {
		callee = node.ChildByFieldName("constructor")
	}
	if callee == nil {
		callee = node.NamedChild(0)
	}
	if callee == nil {
		return ""
	}
	return strings.TrimSpace(nodeText(callee, content))
}

// typescriptSourceFunctionID resolves a call site to the stable ID of its
// nearest enclosing function_declaration or method_definition.
func typescriptSourceFunctionID(language core.Language, filePath string, content []byte, node *sitter.Node) string {
	var functionNode *sitter.Node
	for current := node; current != nil; current = current.Parent() {
		if current.Type() == "function_declaration" || current.Type() == "method_definition" {
			functionNode = current
			break
		}
	}
	if functionNode == nil {
		return ""
	}

	name := namedChildText(functionNode, "name", content)
	if name == "" {
		return ""
	}
	kind := core.KindFunction
	if functionNode.Type() == "method_definition" {
		kind = core.KindMethod
	}
	qualified := typescriptQualifiedName(functionNode, name, content)
	signature := core.SignatureFingerprint(declarationPrefix(functionNode, content))
	return core.StableSymbolID(language, filePath, kind, qualified, signature)
}

func typescriptCalleeIdentifier(node *sitter.Node, content []byte) string {
	callee := node.ChildByFieldName("function")
	if callee == nil || callee.Type() != "identifier" {
		return ""
	}
	return strings.TrimSpace(nodeText(callee, content))
}

func typescriptFirstStringArgument(node *sitter.Node, content []byte) string {
	arguments := node.ChildByFieldName("arguments")
	if arguments == nil {
		return ""
	}
	for i := 0; i < int(arguments.NamedChildCount()); i++ {
		argument := arguments.NamedChild(i)
		if argument.Type() == "string" || argument.Type() == "template_string" {
			return strings.Trim(strings.TrimSpace(nodeText(argument, content)), "`\"'")
		}
	}
	return ""
}
