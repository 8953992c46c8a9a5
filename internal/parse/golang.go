package parse

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"aether/internal/core"
	"aether/internal/logging"
)

// GoParser extracts symbols, edges and test intents from Go source using
// the standard go/ast package, which parses Go more precisely than a
// grammar-based pass would.
type GoParser struct{}

// NewGoParser creates a new Go parser.
func NewGoParser() *GoParser {
	return &GoParser{}
}

// Language returns the language this parser emits symbols for.
func (p *GoParser) Language() core.Language {
	return core.LanguageGo
}

// Extensions returns [".go"].
func (p *GoParser) Extensions() []string {
	return []string{".go"}
}

// ModuleMarkers returns the files that mark a Go module root.
func (p *GoParser) ModuleMarkers() []string {
	return []string{"go.mod"}
}

// Extract parses Go source content.
func (p *GoParser) Extract(filePath string, content []byte) (*ExtractedFile, error) {
	start := time.Now()

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, content, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("go parse failed for %s: %w", filePath, err)
	}

	pkgName := file.Name.Name
	out := &ExtractedFile{}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			symbol := p.mapFuncDecl(fset, d, filePath, pkgName, content)
			out.Symbols = append(out.Symbols, symbol)
			p.collectCallEdges(fset, d, symbol.ID, filePath, content, out)
			if intent := p.mapTestIntent(d, symbol, filePath); intent != nil {
				out.TestIntents = append(out.TestIntents, *intent)
			}
		case *ast.GenDecl:
			p.mapGenDecl(fset, d, filePath, pkgName, content, out)
		}
	}

	for _, imported := range file.Imports {
		target := strings.Trim(imported.Path.Value, `"`)
		if target == "" {
			continue
		}
		out.Edges = append(out.Edges, core.SymbolEdge{
			SourceID:            core.FileSourceID(filePath),
			TargetQualifiedName: target,
			EdgeKind:            core.EdgeDependsOn,
			FilePath:            filePath,
		})
	}

	logging.ParseDebug("go: parsed %s - %d symbols, %d edges in %v",
		filepath.Base(filePath), len(out.Symbols), len(out.Edges), time.Since(start))
	return finishExtraction(out), nil
}

func (p *GoParser) mapFuncDecl(fset *token.FileSet, decl *ast.FuncDecl, filePath, pkgName string, content []byte) core.Symbol {
	name := decl.Name.Name
	kind := core.KindFunction
	parent := ""
	if decl.Recv != nil && len(decl.Recv.List) > 0 {
		kind = core.KindMethod
		parent = receiverTypeName(decl.Recv.List[0].Type)
	}

	qualified := goQualifiedName(pkgName, parent, name)
	declText := sliceAt(fset, content, decl.Pos(), decl.End())
	prefix := declText
	if decl.Body != nil {
		prefix = sliceAt(fset, content, decl.Pos(), decl.Body.Pos())
	}

	signature := core.SignatureFingerprint(prefix)
	return core.Symbol{
		ID:                   core.StableSymbolID(core.LanguageGo, filePath, kind, qualified, signature),
		Language:             core.LanguageGo,
		FilePath:             filePath,
		Kind:                 kind,
		Name:                 name,
		QualifiedName:        qualified,
		SignatureFingerprint: signature,
		ContentHash:          core.ContentHash(declText),
		Range:                rangeAt(fset, decl.Pos(), decl.End()),
	}
}

func (p *GoParser) mapGenDecl(fset *token.FileSet, decl *ast.GenDecl, filePath, pkgName string, content []byte, out *ExtractedFile) {
	for _, spec := range decl.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			kind := core.KindTypeAlias
			switch s.Type.(type) {
			case *ast.StructType:
				kind = core.KindStruct
			case *ast.InterfaceType:
				kind = core.KindInterface
			}
			out.Symbols = append(out.Symbols, p.buildGoSymbol(fset, content, filePath, kind, pkgName, s.Name.Name, s.Pos(), s.End()))
		case *ast.ValueSpec:
			if decl.Tok != token.CONST && decl.Tok != token.VAR {
				continue
			}
			for _, ident := range s.Names {
				if ident.Name == "_" {
					continue
				}
				out.Symbols = append(out.Symbols, p.buildGoSymbol(fset, content, filePath, core.KindVariable, pkgName, ident.Name, s.Pos(), s.End()))
			}
		}
	}
}

func (p *GoParser) buildGoSymbol(fset *token.FileSet, content []byte, filePath string, kind core.SymbolKind, pkgName, name string, pos, end token.Pos) core.Symbol {
	qualified := goQualifiedName(pkgName, "", name)
	declText := sliceAt(fset, content, pos, end)
	signature := core.SignatureFingerprint(declText)
	return core.Symbol{
		ID:                   core.StableSymbolID(core.LanguageGo, filePath, kind, qualified, signature),
		Language:             core.LanguageGo,
		FilePath:             filePath,
		Kind:                 kind,
		Name:                 name,
		QualifiedName:        qualified,
		SignatureFingerprint: signature,
		ContentHash:          core.ContentHash(declText),
		Range:                rangeAt(fset, pos, end),
	}
}

// collectCallEdges walks a function body and records one calls edge per
// distinct callee expression.
func (p *GoParser) collectCallEdges(fset *token.FileSet, decl *ast.FuncDecl, sourceID, filePath string, content []byte, out *ExtractedFile) {
	if decl.Body == nil {
		return
	}
	ast.Inspect(decl.Body, func(node ast.Node) bool {
		call, ok := node.(*ast.CallExpr)
		if !ok {
			return true
		}
		target := strings.TrimSpace(sliceAt(fset, content, call.Fun.Pos(), call.Fun.End()))
		if target == "" {
			return true
		}
		out.Edges = append(out.Edges, core.SymbolEdge{
			SourceID:            sourceID,
			TargetQualifiedName: target,
			EdgeKind:            core.EdgeCalls,
			FilePath:            filePath,
		})
		return true
	})
}

func (p *GoParser) mapTestIntent(decl *ast.FuncDecl, symbol core.Symbol, filePath string) *TestIntent {
	name := decl.Name.Name
	if !strings.HasSuffix(filePath, "_test.go") || !strings.HasPrefix(name, "Test") || name == "Test" {
		return nil
	}

	intentText := ""
	if decl.Doc != nil {
		intentText = strings.TrimSpace(decl.Doc.Text())
	}
	if intentText == "" {
		intentText = humanizeTestName(splitCamelCase(name))
	}
	intentText = normalizeIntentText(intentText)
	if intentText == "" {
		return nil
	}

	return &TestIntent{
		FilePath:   filePath,
		TestName:   name,
		IntentText: intentText,
		Language:   core.LanguageGo,
		SymbolID:   symbol.ID,
	}
}

func goQualifiedName(pkgName, parent, name string) string {
	if strings.TrimSpace(parent) != "" {
		return fmt.Sprintf("%s::%s::%s", pkgName, parent, name)
	}
	return fmt.Sprintf("%s::%s", pkgName, name)
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverTypeName(t.X)
	case *ast.IndexListExpr:
		return receiverTypeName(t.X)
	default:
		return ""
	}
}

func sliceAt(fset *token.FileSet, content []byte, pos, end token.Pos) string {
	start := fset.Position(pos).Offset
	stop := fset.Position(end).Offset
	if start < 0 || stop > len(content) || start >= stop {
		return ""
	}
	return string(content[start:stop])
}

func rangeAt(fset *token.FileSet, pos, end token.Pos) core.SourceRange {
	start := fset.Position(pos)
	stop := fset.Position(end)
	return core.SourceRange{
		Start: core.Position{Line: start.Line, Column: start.Column},
		End:   core.Position{Line: stop.Line, Column: stop.Column},
	}
}

// splitCamelCase turns TestHandlesNegativeBalance into
// test_handles_negative_balance so humanizeTestName can work on it.
func splitCamelCase(name string) string {
	var builder strings.Builder
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			builder.WriteRune('_')
		}
		builder.WriteRune(unicode.ToLower(r))
	}
	return builder.String()
}
