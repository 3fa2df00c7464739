package catalog

import "zeptobook/internal/types"

// State is the user input driving one render of the browser
type State struct {
	Filter
	CurrentPage int
}

// View is everything derived from a catalog response and the current state
type View struct {
	Genres   []string
	Filtered []types.Book
	Page     Page
	State    State
}

type Browser struct {
	BooksPerPage int
	// ClampPage moves a page number left out of range by a narrowing filter back into range
	ClampPage bool
}

func NewBrowser() *Browser {
	return &Browser{BooksPerPage: BooksPerPage, ClampPage: true}
}

// Derive recomputes genres, filtered books and the page window. It never caches.
func (b *Browser) Derive(resp *types.CatalogResponse, state State) View {
	var books []types.Book
	if resp != nil {
		books = resp.Results
	}

	filtered := Apply(books, state.Filter)

	page := state.CurrentPage
	if b.ClampPage {
		page = ClampPage(page, TotalPages(len(filtered), b.BooksPerPage))
	}
	state.CurrentPage = page

	return View{
		Genres:   Genres(books),
		Filtered: filtered,
		Page:     Paginate(filtered, page, b.BooksPerPage),
		State:    state,
	}
}
