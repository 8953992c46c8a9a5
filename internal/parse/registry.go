package parse

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"aether/internal/core"
	"aether/internal/logging"
)

// Registry manages language-specific parsers and routes extraction requests
// by file extension.
type Registry struct {
	mu         sync.RWMutex
	parsers    map[string]LanguageParser // extension -> parser (".py" -> python)
	byLanguage map[core.Language]LanguageParser
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers:    make(map[string]LanguageParser),
		byLanguage: make(map[core.Language]LanguageParser),
	}
}

// DefaultRegistry returns a Registry with all built-in parsers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewPythonParser())
	r.Register(NewRustParser())
	r.Register(NewTypeScriptParser())
	r.Register(NewGoParser())
	logging.ParseDebug("default registry: %d extensions registered", len(r.parsers))
	return r
}

// Register adds a parser for its supported extensions, replacing any
// previous registration.
func (r *Registry) Register(parser LanguageParser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range parser.Extensions() {
		r.parsers[normalizeExtension(ext)] = parser
	}
	r.byLanguage[parser.Language()] = parser
}

// ParserFor returns the parser for a file path, or nil when the extension
// is not supported.
func (r *Registry) ParserFor(path string) LanguageParser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parsers[normalizeExtension(filepath.Ext(path))]
}

// ParserForLanguage returns the registered parser for a language.
func (r *Registry) ParserForLanguage(language core.Language) LanguageParser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byLanguage[language]
}

// Supports reports whether a parser exists for the given file path.
func (r *Registry) Supports(path string) bool {
	return r.ParserFor(path) != nil
}

// Extensions returns all registered file extensions.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		exts = append(exts, ext)
	}
	return exts
}

// ExtractFile extracts symbols, edges and test intents from a file, picking
// the parser by extension.
func (r *Registry) ExtractFile(filePath string, content []byte) (*ExtractedFile, error) {
	parser := r.ParserFor(filePath)
	if parser == nil {
		return nil, fmt.Errorf("unsupported file extension: %s", filepath.Ext(filePath))
	}
	return parser.Extract(core.NormalizePath(filePath), content)
}

// ExtractSource extracts from in-memory content for a known language. The
// extension still wins when it maps to a registered parser, so a .tsx path
// with a TypeScript language hint parses as tsx; otherwise the language's
// own parser is the fallback.
func (r *Registry) ExtractSource(language core.Language, filePath string, content []byte) (*ExtractedFile, error) {
	normalized := core.NormalizePath(filePath)
	parser := r.ParserFor(normalized)
	if parser == nil {
		parser = r.ParserForLanguage(fallbackLanguage(language))
	}
	if parser == nil {
		return nil, fmt.Errorf("unsupported file extension for %s", normalized)
	}
	return parser.Extract(normalized, content)
}

// ExtractSymbols is a symbol-only convenience wrapper over ExtractSource.
func (r *Registry) ExtractSymbols(language core.Language, filePath string, content []byte) ([]core.Symbol, error) {
	extracted, err := r.ExtractSource(language, filePath, content)
	if err != nil {
		return nil, err
	}
	return extracted.Symbols, nil
}

// LanguageForPath maps a file extension to its language. Returns false for
// unsupported extensions.
func LanguageForPath(path string) (core.Language, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rs":
		return core.LanguageRust, true
	case ".ts":
		return core.LanguageTypeScript, true
	case ".tsx":
		return core.LanguageTsx, true
	case ".js":
		return core.LanguageJavaScript, true
	case ".jsx":
		return core.LanguageJsx, true
	case ".py", ".pyi":
		return core.LanguagePython, true
	case ".go":
		return core.LanguageGo, true
	default:
		return "", false
	}
}

// fallbackLanguage collapses dialects onto the parser that handles them.
func fallbackLanguage(language core.Language) core.Language {
	switch language {
	case core.LanguageTsx, core.LanguageJavaScript, core.LanguageJsx:
		return core.LanguageTypeScript
	default:
		return language
	}
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
