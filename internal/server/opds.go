package server

import (
	"encoding/xml"
	"net/url"
	"sort"
	"strconv"

	"github.com/opds-community/libopds2-go/opds1"

	"zeptobook/internal/catalog"
	"zeptobook/internal/source"
	"zeptobook/internal/types"
)

const (
	opdsContentType   = "application/atom+xml;profile=opds-catalog;kind=acquisition;charset=utf-8"
	linkRelOpenAccess = source.LinkRelAcquisition + "/open-access"
	entryIdPrefix     = "urn:zeptobook:book:"
)

// atomFeed puts the Atom namespace on the root element, opds1.Feed does not carry one
type atomFeed struct {
	XMLName xml.Name `xml:"http://www.w3.org/2005/Atom feed"`
	opds1.Feed
}

func newFeed(title string, self *url.URL, books []types.Book) atomFeed {
	f := atomFeed{}
	f.Title = title
	f.Links = append(f.Links,
		opds1.Link{Rel: "self", Href: self.RequestURI(), TypeLink: source.LinkTypeCatalog},
		opds1.Link{Rel: "start", Href: "/opds/books", TypeLink: source.LinkTypeCatalog},
	)

	f.Entries = make([]opds1.Entry, 0, len(books))
	for i := range books {
		f.Entries = append(f.Entries, bookEntry(&books[i]))
	}

	return f
}

// pagedFeed is the acquisition feed of one page window with next/previous links carrying the same query
func pagedFeed(self *url.URL, view catalog.View) atomFeed {
	f := newFeed("ZeptoBook catalog", self, view.Page.Books)

	q := self.Query()
	link := func(rel string, page int) opds1.Link {
		q.Set("page", strconv.Itoa(page))
		u := url.URL{Path: self.Path, RawQuery: q.Encode()}
		return opds1.Link{Rel: rel, Href: u.RequestURI(), TypeLink: source.LinkTypeCatalog}
	}

	if view.Page.HasPrevious() {
		f.Links = append(f.Links, link("previous", view.Page.Number-1))
	}
	if view.Page.HasNext() {
		f.Links = append(f.Links, link(source.LinkRelNext, view.Page.Number+1))
	}

	return f
}

func bookEntry(b *types.Book) opds1.Entry {
	e := opds1.Entry{
		ID:    entryIdPrefix + strconv.Itoa(b.Id),
		Title: b.Title,
	}

	for _, a := range b.Authors {
		e.Author = append(e.Author, opds1.Author{Name: a.Name})
	}

	for _, s := range b.Subjects {
		e.Category = append(e.Category, opds1.Category{Term: s})
	}

	if len(b.Languages) > 0 {
		e.Language = b.Languages[0]
	}

	e.Content.Content = b.GenreLabel()

	types_ := make([]string, 0, len(b.Formats))
	for typ := range b.Formats {
		types_ = append(types_, typ)
	}
	sort.Strings(types_)

	for _, typ := range types_ {
		rel := linkRelOpenAccess
		if typ == types.CoverFormat {
			rel = source.LinkRelImage
		}

		e.Links = append(e.Links, opds1.Link{Rel: rel, Href: b.Formats[typ], TypeLink: typ})
	}

	return e
}
