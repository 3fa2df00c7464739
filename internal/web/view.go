package web

import (
	"net/url"
	"strconv"

	"zeptobook/internal/catalog"
	"zeptobook/internal/navbar"
	"zeptobook/internal/source"
	"zeptobook/internal/types"
	"zeptobook/internal/wishlist"
)

const (
	StatusLoading = "loading"
	StatusError   = "error"
	StatusReady   = "ready"
)

// RefreshSeconds is how often the loading placeholder reloads itself
const RefreshSeconds = 2

type Page struct {
	Title    string
	Refresh  int
	Nav      Nav
	Catalog  *Catalog
	Wishlist []Card
}

type Nav struct {
	Brand     string
	Links     []navbar.Link
	Open      bool
	ToggleURL string
}

type Catalog struct {
	Status   string
	Search   string
	Genre    string
	MenuOpen bool
	Genres   []string
	Cards    []Card
	Pager    Pager
}

type Card struct {
	Id         int
	Title      string
	Author     string
	Genres     string
	Cover      string
	Wishlisted bool
	Return     string
}

type PageLink struct {
	Number int
	URL    string
	Active bool
}

type Pager struct {
	Show    bool
	PrevURL string
	NextURL string
	Numbers []PageLink
}

// NewNav builds the header for a request to u, the toggle link points back to u with the menu flipped
func NewNav(menu navbar.Menu, u *url.URL) Nav {
	toggle := url.URL{Path: u.Path, RawQuery: menu.ToggleQuery(u.Query()).Encode()}

	return Nav{
		Brand:     navbar.Brand,
		Links:     menu.Links(),
		Open:      menu.Open,
		ToggleURL: toggle.RequestURI(),
	}
}

func StatusOf(s source.Status) string {
	switch s {
	case source.StatusReady:
		return StatusReady
	case source.StatusError:
		return StatusError
	default:
		return StatusLoading
	}
}

// NewCatalog is the placeholder-only panel used while the catalog is not ready
func NewCatalog(status source.Status) *Catalog {
	return &Catalog{Status: StatusOf(status)}
}

// NewReadyCatalog renders the derived view for a request to u
func NewReadyCatalog(v catalog.View, wl *wishlist.Wishlist, menu navbar.Menu, u *url.URL) *Catalog {
	ret := u.RequestURI()

	return &Catalog{
		Status:   StatusReady,
		Search:   v.State.SearchTerm,
		Genre:    v.State.SelectedGenre,
		MenuOpen: menu.Open,
		Genres:   v.Genres,
		Cards:    Cards(v.Page.Books, wl, ret),
		Pager:    NewPager(v.Page, u),
	}
}

func Cards(books []types.Book, wl *wishlist.Wishlist, ret string) []Card {
	cards := make([]Card, 0, len(books))
	for i := range books {
		b := &books[i]
		cards = append(cards, Card{
			Id:         b.Id,
			Title:      b.Title,
			Author:     b.AuthorName(),
			Genres:     b.GenreLabel(),
			Cover:      b.CoverURL(),
			Wishlisted: wl != nil && wl.Contains(b.Id),
			Return:     ret,
		})
	}

	return cards
}

func NewPager(p catalog.Page, u *url.URL) Pager {
	pager := Pager{Show: p.ShowControls()}
	if !pager.Show {
		return pager
	}

	q := u.Query()
	if p.HasPrevious() {
		pager.PrevURL = pageURL(u.Path, q, p.Number-1)
	}
	if p.HasNext() {
		pager.NextURL = pageURL(u.Path, q, p.Number+1)
	}

	for _, n := range p.Numbers() {
		pager.Numbers = append(pager.Numbers, PageLink{
			Number: n,
			URL:    pageURL(u.Path, q, n),
			Active: n == p.Number,
		})
	}

	return pager
}

func pageURL(path string, q url.Values, page int) string {
	c := make(url.Values, len(q)+1)
	for k, v := range q {
		c[k] = v
	}
	c.Set("page", strconv.Itoa(page))

	u := url.URL{Path: path, RawQuery: c.Encode()}
	return u.RequestURI()
}
