// Package parse extracts symbols, relationship edges and test intents from
// source files. Each supported language has its own tree-sitter (or go/ast)
// parser behind a common interface; a Registry routes files to parsers by
// extension.
package parse

import (
	"sort"

	"aether/internal/core"
)

// ExtractedFile is the full extraction result for one source file.
// Symbols are sorted by ID; edges and intents are sorted and deduped.
type ExtractedFile struct {
	Symbols     []core.Symbol     `json:"symbols"`
	Edges       []core.SymbolEdge `json:"edges"`
	TestIntents []TestIntent      `json:"test_intents"`
}

// TestIntent captures what a test claims to verify: the docstring, doc
// comment or humanized name of a test, tied back to the test's symbol when
// it could be resolved.
type TestIntent struct {
	FilePath   string        `json:"file_path"`
	TestName   string        `json:"test_name"`
	IntentText string        `json:"intent_text"`
	GroupLabel string        `json:"group_label,omitempty"`
	Language   core.Language `json:"language"`
	SymbolID   string        `json:"symbol_id,omitempty"`
}

// LanguageParser is the contract for language-specific extractors. Parsers
// receive raw file bytes so callers can extract in-memory content, and the
// (normalized, workspace-relative) file path used in qualified names and
// stable IDs.
type LanguageParser interface {
	// Extract parses source content and returns symbols, edges and test
	// intents. Implementations must not retain the content slice.
	Extract(filePath string, content []byte) (*ExtractedFile, error)

	// Extensions returns the file extensions this parser handles, with the
	// leading dot (e.g. ".py"). The first extension is canonical.
	Extensions() []string

	// Language returns the primary language the parser emits symbols for.
	Language() core.Language

	// ModuleMarkers returns file names whose presence marks a directory as
	// a module root for this language (e.g. "__init__.py", "Cargo.toml").
	ModuleMarkers() []string
}

func finishExtraction(out *ExtractedFile) *ExtractedFile {
	sort.Slice(out.Symbols, func(i, j int) bool {
		return out.Symbols[i].ID < out.Symbols[j].ID
	})
	sortAndDedupeEdges(&out.Edges)
	sortAndDedupeIntents(&out.TestIntents)
	return out
}

func sortAndDedupeEdges(edges *[]core.SymbolEdge) {
	list := *edges
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.TargetQualifiedName != b.TargetQualifiedName {
			return a.TargetQualifiedName < b.TargetQualifiedName
		}
		if a.EdgeKind != b.EdgeKind {
			return a.EdgeKind < b.EdgeKind
		}
		return a.FilePath < b.FilePath
	})

	deduped := list[:0]
	for i, edge := range list {
		if i > 0 && edge == list[i-1] {
			continue
		}
		deduped = append(deduped, edge)
	}
	*edges = deduped
}

func sortAndDedupeIntents(intents *[]TestIntent) {
	list := *intents
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.TestName != b.TestName {
			return a.TestName < b.TestName
		}
		if a.IntentText != b.IntentText {
			return a.IntentText < b.IntentText
		}
		if a.GroupLabel != b.GroupLabel {
			return a.GroupLabel < b.GroupLabel
		}
		if a.Language != b.Language {
			return a.Language < b.Language
		}
		return a.SymbolID < b.SymbolID
	})

	deduped := list[:0]
	for i, intent := range list {
		if i > 0 && intent == list[i-1] {
			continue
		}
		deduped = append(deduped, intent)
	}
	*intents = deduped
}
