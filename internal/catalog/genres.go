package catalog

import "zeptobook/internal/types"

// Genres returns distinct subjects of all books in order of first occurrence.
// Must be called with the full (unfiltered) collection.
func Genres(books []types.Book) []string {
	ret := make([]string, 0)
	seen := make(map[string]struct{})

	for _, book := range books {
		for _, subject := range book.Subjects {
			if _, ok := seen[subject]; ok {
				continue
			}

			seen[subject] = struct{}{}
			ret = append(ret, subject)
		}
	}

	return ret
}
