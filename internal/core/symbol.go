// Package core defines the language-agnostic symbol model shared by the
// parsers, the store and the indexer: symbols with stable identities,
// relationship edges, and change events produced by diffing snapshots.
package core

// Language identifies a supported source language.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageRust       Language = "rust"
	LanguageTypeScript Language = "typescript"
	LanguageTsx        Language = "tsx"
	LanguageJavaScript Language = "javascript"
	LanguageJsx        Language = "jsx"
	LanguageGo         Language = "go"
)

// SymbolKind classifies an extracted symbol.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindStruct    SymbolKind = "struct"
	KindEnum      SymbolKind = "enum"
	KindTrait     SymbolKind = "trait"
	KindInterface SymbolKind = "interface"
	KindTypeAlias SymbolKind = "type_alias"
	KindVariable  SymbolKind = "variable"
)

// EdgeKind classifies a relationship between symbols.
type EdgeKind string

const (
	EdgeCalls     EdgeKind = "calls"
	EdgeDependsOn EdgeKind = "depends_on"
)

// Position is a 1-based line/column location in a source file.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// SourceRange spans a symbol's declaration in its file.
type SourceRange struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Symbol is one extracted declaration. ID is stable across edits that do
// not change the declaration itself (see StableSymbolID).
type Symbol struct {
	ID                   string      `json:"id"`
	Language             Language    `json:"language"`
	FilePath             string      `json:"file_path"`
	Kind                 SymbolKind  `json:"kind"`
	Name                 string      `json:"name"`
	QualifiedName        string      `json:"qualified_name"`
	SignatureFingerprint string      `json:"signature_fingerprint"`
	ContentHash          string      `json:"content_hash"`
	Range                SourceRange `json:"range"`
}

// SymbolEdge records a relationship from a source symbol (or a whole file,
// via FileSourceID) to a target named by its qualified name. Targets are
// names rather than IDs because the target may live in a file that has not
// been indexed yet.
type SymbolEdge struct {
	SourceID            string   `json:"source_id"`
	TargetQualifiedName string   `json:"target_qualified_name"`
	EdgeKind            EdgeKind `json:"edge_kind"`
	FilePath            string   `json:"file_path"`
}

// SymbolChangeEvent describes how one file's symbols changed between two
// extractions. Each slice is sorted by symbol ID.
type SymbolChangeEvent struct {
	FilePath string   `json:"file_path"`
	Language Language `json:"language"`
	Added    []Symbol `json:"added"`
	Removed  []Symbol `json:"removed"`
	Updated  []Symbol `json:"updated"`
}

// IsEmpty reports whether the event carries no changes.
func (e *SymbolChangeEvent) IsEmpty() bool {
	return len(e.Added) == 0 && len(e.Removed) == 0 && len(e.Updated) == 0
}
