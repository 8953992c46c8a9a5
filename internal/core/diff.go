package core

import "sort"

// DiffSymbols compares two extractions of the same file. A symbol is added
// when its ID is new, removed when its ID is gone, and updated when the ID
// survives but the content hash differs.
func DiffSymbols(filePath string, language Language, previous, current []Symbol) SymbolChangeEvent {
	previousByID := make(map[string]*Symbol, len(previous))
	for i := range previous {
		previousByID[previous[i].ID] = &previous[i]
	}
	currentByID := make(map[string]*Symbol, len(current))
	for i := range current {
		currentByID[current[i].ID] = &current[i]
	}

	var added, removed, updated []Symbol
	for id, symbol := range currentByID {
		old, ok := previousByID[id]
		switch {
		case !ok:
			added = append(added, *symbol)
		case old.ContentHash != symbol.ContentHash:
			updated = append(updated, *symbol)
		}
	}
	for id, symbol := range previousByID {
		if _, ok := currentByID[id]; !ok {
			removed = append(removed, *symbol)
		}
	}

	sortByID(added)
	sortByID(removed)
	sortByID(updated)

	return SymbolChangeEvent{
		FilePath: NormalizePath(filePath),
		Language: language,
		Added:    added,
		Removed:  removed,
		Updated:  updated,
	}
}

func sortByID(symbols []Symbol) {
	sort.Slice(symbols, func(i, j int) bool {
		return symbols[i].ID < symbols[j].ID
	})
}
