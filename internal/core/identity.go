package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeForFingerprint strips all whitespace so that formatting-only
// edits do not change a signature fingerprint.
func NormalizeForFingerprint(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SignatureFingerprint hashes a declaration's signature text, ignoring
// whitespace.
func SignatureFingerprint(signatureText string) string {
	return hashHex([]byte(NormalizeForFingerprint(signatureText)))
}

// ContentHash hashes a symbol's full source text.
func ContentHash(content string) string {
	return hashHex([]byte(content))
}

// StableSymbolID derives a symbol identity from what the symbol is, not
// where it sits: language, file, kind, qualified name and signature.
// Shifting a declaration up or down a file keeps its ID; renaming it or
// changing its signature does not.
func StableSymbolID(language Language, filePath string, kind SymbolKind, qualifiedName, signatureFingerprint string) string {
	material := strings.Join([]string{
		string(language),
		NormalizePath(filePath),
		string(kind),
		qualifiedName,
		signatureFingerprint,
	}, "\n")
	return hashHex([]byte(material))
}

// FileSourceID is the synthetic edge source used for file-level edges such
// as imports, where no enclosing symbol exists.
func FileSourceID(filePath string) string {
	return "file:" + NormalizePath(filePath)
}

// NormalizePath converts to forward slashes for cross-platform stability.
func NormalizePath(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
