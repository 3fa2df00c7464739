package catalog

import (
	"strings"

	"zeptobook/internal/types"
)

type Filter struct {
	SearchTerm    string
	SelectedGenre string // empty means any genre
}

func (f Filter) Matches(book *types.Book) bool {
	if f.SearchTerm != "" && !strings.Contains(strings.ToLower(book.Title), strings.ToLower(f.SearchTerm)) {
		return false
	}

	if f.SelectedGenre != "" && !book.HasSubject(f.SelectedGenre) {
		return false
	}

	return true
}

// Apply keeps books passing both title and genre predicates, preserving the original order
func Apply(books []types.Book, f Filter) []types.Book {
	ret := make([]types.Book, 0, len(books))
	for ix := range books {
		if f.Matches(&books[ix]) {
			ret = append(ret, books[ix])
		}
	}

	return ret
}
