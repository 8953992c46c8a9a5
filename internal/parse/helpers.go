package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"aether/internal/core"
)

func nodeText(node *sitter.Node, content []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if start >= end || int(end) > len(content) {
		return ""
	}
	return string(content[start:end])
}

func nodeRange(node *sitter.Node) core.SourceRange {
	return core.SourceRange{
		Start: pointToPosition(node.StartPoint()),
		End:   pointToPosition(node.EndPoint()),
	}
}

func pointToPosition(point sitter.Point) core.Position {
	return core.Position{
		Line:   int(point.Row) + 1,
		Column: int(point.Column) + 1,
	}
}

// declarationPrefix returns the declaration text up to (but excluding) the
// body, which is what signature fingerprints are computed over.
func declarationPrefix(node *sitter.Node, content []byte) string {
	start := node.StartByte()
	end := node.EndByte()
	if body := node.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	if start >= end || int(end) > len(content) {
		return ""
	}
	return string(content[start:end])
}

func namedChildText(node *sitter.Node, fieldName string, content []byte) string {
	child := node.ChildByFieldName(fieldName)
	if child == nil {
		return ""
	}
	return sanitizeName(nodeText(child, content))
}

func sanitizeName(value string) string {
	value = strings.TrimSpace(value)
	value = strings.Trim(value, `"'`)
	value = strings.TrimSuffix(value, ";")
	return strings.TrimSpace(value)
}

func hasAncestorOfType(node *sitter.Node, nodeType string) bool {
	for current := node.Parent(); current != nil; current = current.Parent() {
		if current.Type() == nodeType {
			return true
		}
	}
	return false
}

func nearestAncestorOfType(node *sitter.Node, nodeType string) *sitter.Node {
	for current := node; current != nil; current = current.Parent() {
		if current.Type() == nodeType {
			return current
		}
	}
	return nil
}

// buildSymbol assembles a Symbol with its stable ID, fingerprint and hash
// from the declaration node.
func buildSymbol(language core.Language, filePath string, kind core.SymbolKind, name, qualifiedName string, node *sitter.Node, content []byte) core.Symbol {
	signature := core.SignatureFingerprint(declarationPrefix(node, content))
	return core.Symbol{
		ID:                   core.StableSymbolID(language, filePath, kind, qualifiedName, signature),
		Language:             language,
		FilePath:             filePath,
		Kind:                 kind,
		Name:                 name,
		QualifiedName:        qualifiedName,
		SignatureFingerprint: signature,
		ContentHash:          core.ContentHash(nodeText(node, content)),
		Range:                nodeRange(node),
	}
}

// enclosingFunctionSymbolID finds the smallest function or method symbol
// whose range covers the node. Used to attribute call edges to their
// caller.
func enclosingFunctionSymbolID(symbols []core.Symbol, node *sitter.Node) string {
	nodeStart := pointToPosition(node.StartPoint())
	nodeEnd := pointToPosition(node.EndPoint())

	bestID := ""
	bestSpan, bestWidth := -1, -1
	for _, symbol := range symbols {
		if symbol.Kind != core.KindFunction && symbol.Kind != core.KindMethod {
			continue
		}
		if !positionLTE(symbol.Range.Start, nodeStart) || !positionLTE(nodeEnd, symbol.Range.End) {
			continue
		}
		span := symbol.Range.End.Line - symbol.Range.Start.Line
		width := symbol.Range.End.Column - symbol.Range.Start.Column
		if bestSpan < 0 || span < bestSpan || (span == bestSpan && width < bestWidth) {
			bestSpan, bestWidth = span, width
			bestID = symbol.ID
		}
	}
	return bestID
}

func positionLTE(a, b core.Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Column <= b.Column
}

// humanizeTestName turns test_handles_negative_balance into
// "handles negative balance".
func humanizeTestName(name string) string {
	normalized := strings.TrimSpace(name)
	if normalized == "" {
		return ""
	}

	lowered := strings.ToLower(normalized)
	switch {
	case strings.HasPrefix(lowered, "test_"):
		lowered = strings.TrimPrefix(lowered, "test_")
	case strings.HasPrefix(lowered, "test"):
		lowered = strings.TrimLeft(strings.TrimPrefix(lowered, "test"), "_")
	}

	lowered = strings.NewReplacer("_", " ", "-", " ").Replace(lowered)
	return strings.Join(strings.Fields(lowered), " ")
}

// normalizeIntentText collapses quoting and internal whitespace of an
// intent string to a single-line form.
func normalizeIntentText(value string) string {
	value = strings.TrimSpace(value)
	value = strings.Trim(value, `"'`)
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.Join(strings.Fields(value), " ")
}
