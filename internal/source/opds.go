package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/opds-community/libopds2-go/opds1"

	"zeptobook/internal/types"
)

const (
	LinkTypeCatalog    = "application/atom+xml;profile=opds-catalog"
	LinkRelImage       = "http://opds-spec.org/image"
	LinkRelAcquisition = "http://opds-spec.org/acquisition"
	LinkRelNext        = "next"

	acceptOPDS = "application/atom+xml"
	// acquisition rels come with suffixes like /open-access
	linkRelAcquisitionPrefix = LinkRelAcquisition + "/"
)

var regEntryId = regexp.MustCompile(`(\d+)`)

// OPDS reads an OPDS 1 acquisition feed, following "next" links up to MaxPages pages
type OPDS struct {
	Fetcher  *Fetcher
	Logger   *slog.Logger
	URL      *url.URL
	MaxPages int
}

func (o *OPDS) Fetch(ctx context.Context) (*types.CatalogResponse, error) {
	resp := &types.CatalogResponse{Results: make([]types.Book, 0)}
	seen := make(map[int]struct{})

	u := o.URL
	for pageNo := 1; u != nil; pageNo++ {
		l := o.Logger.With(slog.String("feed", u.String()))
		l.DebugContext(ctx, "Begin processing books feed")

		bs, err := o.Fetcher.Get(ctx, u, acceptOPDS)
		if err != nil {
			l.ErrorContext(ctx, "Failed to fetch books feed: "+err.Error())
			return nil, fmt.Errorf("fetching books feed: %w", err)
		}

		var feed opds1.Feed
		err = xml.Unmarshal(removeDisallowedCodepoints(bs, l), &feed)
		if err != nil {
			l.ErrorContext(ctx, "Failed to unmarshal books feed: "+err.Error())
			return nil, fmt.Errorf("unmarshalling books feed: %w", err)
		}

		for _, entry := range feed.Entries {
			book, ok := entryToBook(u, &entry, l)
			if !ok {
				continue
			}

			if _, dup := seen[book.Id]; dup {
				l.Warn(fmt.Sprintf("Found duplicate of book %d", book.Id))
				continue
			}

			seen[book.Id] = struct{}{}
			resp.Results = append(resp.Results, book)
		}

		var next *url.URL
		linkNext := chooseLink(feed.Links, func(link *opds1.Link) string {
			if link.Rel != LinkRelNext {
				return "unknown rel " + link.Rel
			}

			return ""
		}, clLogger{logger: l})
		if linkNext != nil {
			next = resolve(u, linkNext.Href, l)
		}

		if next != nil {
			s := next.String()
			resp.Next = &s
		} else {
			resp.Next = nil
		}

		if pageNo >= o.MaxPages {
			break
		}

		u = next
	}

	resp.Count = len(resp.Results)
	return resp, nil
}

func entryToBook(base *url.URL, entry *opds1.Entry, l *slog.Logger) (types.Book, bool) {
	entry.ID = strings.TrimSpace(entry.ID)

	s := regEntryId.FindStringSubmatch(entry.ID)
	if len(s) == 0 {
		l.Warn("Found entry without numeric id " + entry.ID)
		return types.Book{}, false
	}

	id, err := strconv.Atoi(s[1])
	if err != nil {
		l.Error("Failed to parse entry id " + entry.ID + ": " + err.Error())
		return types.Book{}, false
	}

	book := types.Book{
		Id:    id,
		Title: strings.TrimSpace(entry.Title),
	}

	for _, auth := range entry.Author {
		name := strings.TrimSpace(auth.Name)
		if name != "" {
			book.Authors = append(book.Authors, types.Person{Name: name})
		}
	}

	seenSubjects := make(map[string]struct{}, len(entry.Category))
	for _, cat := range entry.Category {
		term := strings.TrimSpace(cat.Term)
		if term == "" {
			continue
		}

		if _, ok := seenSubjects[term]; ok {
			l.Warn("In the same book found duplicate of subject " + term)
			continue
		}

		seenSubjects[term] = struct{}{}
		book.Subjects = append(book.Subjects, term)
	}

	book.Formats = make(map[string]string)
	for _, link := range entry.Links {
		rel := strings.TrimSpace(link.Rel)
		typ := strings.TrimSpace(link.TypeLink)
		if typ == "" {
			continue
		}

		if rel == LinkRelImage || rel == LinkRelAcquisition || strings.HasPrefix(rel, linkRelAcquisitionPrefix) {
			if _, ok := book.Formats[typ]; ok {
				continue
			}

			if u := resolve(base, link.Href, l); u != nil {
				book.Formats[typ] = u.String()
			}
		}
	}

	book.Normalize()
	return book, true
}

type clLogger struct {
	logger        *slog.Logger
	levelSkipLink slog.Leveler
}

func chooseLink(links []opds1.Link, matcher func(link *opds1.Link) string, l clLogger) *opds1.Link {
	var ret *opds1.Link

	for _, link := range links {
		link.Rel = strings.TrimSpace(link.Rel)
		link.TypeLink = strings.TrimSpace(link.TypeLink)

		if matcher != nil {
			mismatch := matcher(&link)
			if mismatch != "" {
				if l.levelSkipLink != nil {
					l.logger.LogAttrs(context.Background(), l.levelSkipLink.Level(), "Skip non-matching link: "+mismatch)
				}

				continue
			}
		}

		if ret != nil {
			l.logger.Warn("Skip duplicate matching link: " + link.Href)
			continue
		}

		ret = &link
	}

	return ret
}

// Feeds in the wild sometimes carry runes outside of the XML character range
func removeDisallowedCodepoints(bs []byte, l *slog.Logger) []byte {
	ret := make([]byte, 0, len(bs))
	buf := bs

	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		if r == utf8.RuneError && size == 1 {
			l.Warn("Going to fail XML parsing because the bytes do not represent valid UTF8")
			return bs
		}

		if isInCharacterRange(r) {
			ret = append(ret, buf[:size]...)
		} else {
			l.Warn("Removed invalid rune from XML")
		}

		buf = buf[size:]
	}

	return ret
}

// Char production of https://www.w3.org/TR/xml/#charsets, same as encoding/xml
func isInCharacterRange(r rune) bool {
	return r == 0x09 ||
		r == 0x0A ||
		r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}
