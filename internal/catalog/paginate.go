package catalog

import "zeptobook/internal/types"

const BooksPerPage = 4

type Page struct {
	Books      []types.Book
	Number     int
	TotalPages int
	Total      int
}

func TotalPages(n, perPage int) int {
	if n <= 0 || perPage <= 0 {
		return 0
	}

	return (n + perPage - 1) / perPage
}

// ClampPage moves page into [1, totalPages]. With no pages at all the result is 1.
func ClampPage(page, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}

	return page
}

// Paginate slices the window [(page-1)*perPage, page*perPage) out of books.
// A page outside of the collection yields an empty window, clamping is up to the caller.
func Paginate(books []types.Book, page, perPage int) Page {
	ret := Page{
		Number:     page,
		TotalPages: TotalPages(len(books), perPage),
		Total:      len(books),
	}

	// checked before multiplying, a huge page number would overflow the window bounds
	if page < 1 || perPage <= 0 || page > ret.TotalPages {
		ret.Books = make([]types.Book, 0)
		return ret
	}

	first := (page - 1) * perPage
	last := page * perPage
	if last > len(books) {
		last = len(books)
	}

	ret.Books = books[first:last]
	return ret
}

func (p *Page) HasPrevious() bool {
	return p.Number > 1
}

func (p *Page) HasNext() bool {
	return p.Number < p.TotalPages
}

// ShowControls reports whether the pagination bar is rendered at all
func (p *Page) ShowControls() bool {
	return p.TotalPages > 1
}

func (p *Page) Numbers() []int {
	ret := make([]int, 0, p.TotalPages)
	for n := 1; n <= p.TotalPages; n++ {
		ret = append(ret, n)
	}

	return ret
}
