package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleSymbol(id, name, contentHash string) Symbol {
	return Symbol{
		ID:                   id,
		Language:             LanguageRust,
		FilePath:             "src/lib.rs",
		Kind:                 KindFunction,
		Name:                 name,
		QualifiedName:        name,
		SignatureFingerprint: "sig",
		ContentHash:          contentHash,
		Range: SourceRange{
			Start: Position{Line: 1, Column: 1},
			End:   Position{Line: 1, Column: 10},
		},
	}
}

func TestDiffSymbols_TracksAddedRemovedAndUpdated(t *testing.T) {
	previous := []Symbol{
		sampleSymbol("same", "same", "content-a"),
		sampleSymbol("gone", "gone", "content-b"),
	}
	current := []Symbol{
		sampleSymbol("same", "same", "content-c"),
		sampleSymbol("new", "new", "content-d"),
	}

	diff := DiffSymbols("src/lib.rs", LanguageRust, previous, current)

	if got := symbolIDs(diff.Added); !cmp.Equal(got, []string{"new"}) {
		t.Errorf("added = %v, want [new]", got)
	}
	if got := symbolIDs(diff.Removed); !cmp.Equal(got, []string{"gone"}) {
		t.Errorf("removed = %v, want [gone]", got)
	}
	if got := symbolIDs(diff.Updated); !cmp.Equal(got, []string{"same"}) {
		t.Errorf("updated = %v, want [same]", got)
	}
	if diff.IsEmpty() {
		t.Error("diff with changes should not be empty")
	}
}

func TestDiffSymbols_IdenticalSnapshotsProduceEmptyEvent(t *testing.T) {
	symbols := []Symbol{sampleSymbol("a", "a", "hash")}
	diff := DiffSymbols("src/lib.rs", LanguageRust, symbols, symbols)
	if !diff.IsEmpty() {
		t.Errorf("expected empty diff, got %+v", diff)
	}
}

func symbolIDs(symbols []Symbol) []string {
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		ids = append(ids, s.ID)
	}
	return ids
}
