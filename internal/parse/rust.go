package parse

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"aether/internal/core"
	"aether/internal/logging"
)

// RustParser extracts symbols, edges and test intents from Rust source
// using tree-sitter.
type RustParser struct {
	parser *sitter.Parser
}

// NewRustParser creates a new Rust parser.
func NewRustParser() *RustParser {
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())
	return &RustParser{parser: parser}
}

// Language returns the language this parser emits symbols for.
func (p *RustParser) Language() core.Language {
	return core.LanguageRust
}

// Extensions returns [".rs"].
func (p *RustParser) Extensions() []string {
	return []string{".rs"}
}

// ModuleMarkers returns the files that mark a Rust module root.
func (p *RustParser) ModuleMarkers() []string {
	return []string{"Cargo.toml"}
}

// Extract parses Rust source content.
func (p *RustParser) Extract(filePath string, content []byte) (*ExtractedFile, error) {
	start := time.Now()

	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("rust parse failed for %s: %w", filePath, err)
	}
	defer tree.Close()

	out := &ExtractedFile{}
	root := tree.RootNode()

	p.walkSymbols(root, filePath, content, out)
	p.walkEdges(root, filePath, content, out)
	p.walkTestIntents(root, filePath, content, out)

	logging.ParseDebug("rust: parsed %s - %d symbols, %d edges in %v",
		filepath.Base(filePath), len(out.Symbols), len(out.Edges), time.Since(start))
	return finishExtraction(out), nil
}

func (p *RustParser) walkSymbols(node *sitter.Node, filePath string, content []byte, out *ExtractedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)

		var kind core.SymbolKind
		switch child.Type() {
		case "struct_item":
			kind = core.KindStruct
		case "enum_item":
			kind = core.KindEnum
		case "trait_item":
			kind = core.KindTrait
		case "type_item":
			kind = core.KindTypeAlias
		case "function_item":
			kind = core.KindFunction
			if hasAncestorOfType(child, "impl_item") {
				kind = core.KindMethod
			}
		default:
			p.walkSymbols(child, filePath, content, out)
			continue
		}

		name := namedChildText(child, "name", content)
		if name != "" {
			qualified := rustQualifiedName(child, name, content)
			out.Symbols = append(out.Symbols, buildSymbol(core.LanguageRust, filePath, kind, name, qualified, child, content))
		}
		p.walkSymbols(child, filePath, content, out)
	}
}

func (p *RustParser) walkEdges(node *sitter.Node, filePath string, content []byte, out *ExtractedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "call_expression":
			target := rustCallTarget(child, content)
			sourceID := rustSourceFunctionID(filePath, content, child)
			if target != "" && sourceID != "" {
				out.Edges = append(out.Edges, core.SymbolEdge{
					SourceID:            sourceID,
					TargetQualifiedName: target,
					EdgeKind:            core.EdgeCalls,
					FilePath:            filePath,
				})
			}
		case "use_declaration":
			if target := rustUseTarget(child, content); target != "" {
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

func (p *RustParser) walkTestIntents(node *sitter.Node, filePath string, content []byte, out *ExtractedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "function_item" && rustHasTestAttribute(child, content) {
			if intent := p.mapTestIntent(child, filePath, content); intent != nil {
				out.TestIntents = append(out.TestIntents, *intent)
			}
		}
		p.walkTestIntents(child, filePath, content, out)
	}
}

func (p *RustParser) mapTestIntent(node *sitter.Node, filePath string, content []byte) *TestIntent {
	testName := namedChildText(node, "name", content)
	if testName == "" {
		return nil
	}

	intentText := rustDocComment(node, content)
	if intentText == "" {
		intentText = humanizeTestName(testName)
	}
	intentText = normalizeIntentText(intentText)
	if intentText == "" {
		return nil
	}

	kind := core.KindFunction
	if hasAncestorOfType(node, "impl_item") {
		kind = core.KindMethod
	}
	qualified := rustQualifiedName(node, testName, content)
	signature := core.SignatureFingerprint(declarationPrefix(node, content))
	symbolID := core.StableSymbolID(core.LanguageRust, filePath, kind, qualified, signature)

	return &TestIntent{
		FilePath:   filePath,
		TestName:   testName,
		IntentText: intentText,
		Language:   core.LanguageRust,
		SymbolID:   symbolID,
	}
}

// rustQualifiedName joins the enclosing mod/impl/trait chain with the name.
func rustQualifiedName(node *sitter.Node, name string, content []byte) string {
	var context []string
	for current := node.Parent(); current != nil; current = current.Parent() {
		switch current.Type() {
		case "mod_item", "trait_item":
			if modName := namedChildText(current, "name", content); modName != "" {
				context = append(context, modName)
			}
		case "impl_item":
			target := "impl"
			if typeNode := current.ChildByFieldName("type"); typeNode != nil {
				if normalized := core.NormalizeForFingerprint(nodeText(typeNode, content)); normalized != "" {
					target = normalized
				}
			}
			context = append(context, target)
		}
	}
	if len(context) == 0 {
		return name
	}
	// Ancestors were collected innermost-first.
	for left, right := 0, len(context)-1; left < right; left, right = left+1, right-1 {
		context[left], context[right] = context[right], context[left]
	}
	return strings.Join(context, "::") + "::" + name
}

func rustCallTarget(node *sitter.Node, content []byte) string {
	callee := node.ChildByFieldName("function")
	if callee == nil {
		callee = node.NamedChild(0)
	}
	if callee == nil {
		return ""
	}
	return strings.TrimSpace(nodeText(callee, content))
}

func rustUseTarget(node *sitter.Node, content []byte) string {
	text := strings.TrimSpace(nodeText(node, content))
	text = strings.TrimSpace(strings.TrimPrefix(text, "use"))
	text = strings.TrimSpace(strings.TrimSuffix(text, ";"))
	return text
}

// rustSourceFunctionID resolves a call site to the stable ID of its
// enclosing function_item. Calls outside any function carry no edge.
func rustSourceFunctionID(filePath string, content []byte, node *sitter.Node) string {
	functionNode := nearestAncestorOfType(node, "function_item")
	if functionNode == nil {
		return ""
	}
	name := namedChildText(functionNode, "name", content)
	if name == "" {
		return ""
	}
	kind := core.KindFunction
	if hasAncestorOfType(functionNode, "impl_item") {
		kind = core.KindMethod
	}
	qualified := rustQualifiedName(functionNode, name, content)
	signature := core.SignatureFingerprint(declarationPrefix(functionNode, content))
	return core.StableSymbolID(core.LanguageRust, filePath, kind, qualified, signature)
}

// rustHasTestAttribute reports whether a function_item carries #[test]
// (or a namespaced variant like #[tokio::test]) among its preceding
// sibling attributes.
func rustHasTestAttribute(node *sitter.Node, content []byte) bool {
	for sibling := node.PrevNamedSibling(); sibling != nil; sibling = sibling.PrevNamedSibling() {
		switch sibling.Type() {
		case "attribute_item":
			text := core.NormalizeForFingerprint(nodeText(sibling, content))
			if text == "#[test]" || strings.HasSuffix(strings.TrimSuffix(text, "]"), "::test") {
				return true
			}
		case "line_comment", "block_comment":
			continue
		default:
			return false
		}
	}
	return false
}

// rustDocComment collects the /// lines directly above a function,
// skipping attribute items in between.
func rustDocComment(node *sitter.Node, content []byte) string {
	var lines []string
	for sibling := node.PrevNamedSibling(); sibling != nil; sibling = sibling.PrevNamedSibling() {
		switch sibling.Type() {
		case "attribute_item":
			continue
		case "line_comment":
			text := strings.TrimSpace(nodeText(sibling, content))
			if !strings.HasPrefix(text, "///") {
				return strings.Join(lines, " ")
			}
			text = strings.TrimSpace(strings.TrimPrefix(text, "///"))
			if text != "" {
				lines = append([]string{text}, lines...)
			}
		default:
			return strings.Join(lines, " ")
		}
	}
	return strings.Join(lines, " ")
}
