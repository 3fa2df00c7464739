package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"zeptobook/internal/types"
)

const DefaultGutendexURL = "https://gutendex.com/books"

// Gutendex reads the JSON book listing {count, next, previous, results}
type Gutendex struct {
	Fetcher *Fetcher
	Logger  *slog.Logger
	URL     *url.URL
	// MaxPages limits how many listing pages are followed through "next", at least one is always read
	MaxPages int
}

type gutendexPage struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []json.RawMessage `json:"results"`
}

func (g *Gutendex) Fetch(ctx context.Context) (*types.CatalogResponse, error) {
	resp := &types.CatalogResponse{Results: make([]types.Book, 0)}
	seen := make(map[int]struct{})

	u := g.URL
	for pageNo := 1; u != nil; pageNo++ {
		l := g.Logger.With(slog.String("feed", u.String()))
		l.DebugContext(ctx, "Begin fetching catalog page")

		bs, err := g.Fetcher.Get(ctx, u, "application/json")
		if err != nil {
			l.ErrorContext(ctx, "Failed to fetch catalog page: "+err.Error())
			return nil, fmt.Errorf("fetching catalog: %w", err)
		}

		page, err := decodeGutendexPage(bs, l)
		if err != nil {
			l.ErrorContext(ctx, "Failed to unmarshal catalog page: "+err.Error())
			return nil, fmt.Errorf("unmarshalling catalog: %w", err)
		}

		if pageNo == 1 {
			resp.Count = page.Count
			resp.Previous = page.Previous
		}
		resp.Next = page.Next

		for _, book := range page.Results {
			if _, ok := seen[book.Id]; ok {
				l.Warn(fmt.Sprintf("Found duplicate of book %d", book.Id))
				continue
			}

			seen[book.Id] = struct{}{}
			resp.Results = append(resp.Results, book)
		}

		if pageNo >= g.MaxPages || page.Next == nil || *page.Next == "" {
			break
		}

		u = resolve(u, *page.Next, l)
	}

	return resp, nil
}

type decodedPage struct {
	Count    int
	Next     *string
	Previous *string
	Results  []types.Book
}

// decodeGutendexPage fails only if the document itself is not a JSON object.
// Books that do not decode are skipped, missing collections become empty.
func decodeGutendexPage(bs []byte, l *slog.Logger) (*decodedPage, error) {
	var raw map[string]json.RawMessage
	err := json.Unmarshal(bs, &raw)
	if err != nil {
		return nil, err
	}

	var page gutendexPage
	ret := &decodedPage{Results: make([]types.Book, 0)}

	// each field separately so that one malformed field does not spoil the others
	if v, ok := raw["count"]; ok && json.Unmarshal(v, &page.Count) == nil {
		ret.Count = page.Count
	}
	if v, ok := raw["next"]; ok && json.Unmarshal(v, &page.Next) == nil {
		ret.Next = page.Next
	}
	if v, ok := raw["previous"]; ok && json.Unmarshal(v, &page.Previous) == nil {
		ret.Previous = page.Previous
	}

	if v, ok := raw["results"]; ok {
		if err := json.Unmarshal(v, &page.Results); err != nil {
			l.Warn("Catalog results are not a list: " + err.Error())
		}
	}

	for ix, rawBook := range page.Results {
		book, err := decodeBook(rawBook)
		if err != nil {
			l.Warn(fmt.Sprintf("Skip malformed book at position %d: %s", ix, err.Error()))
			continue
		}

		ret.Results = append(ret.Results, book)
	}

	return ret, nil
}

// decodeBook requires an object with a numeric id, every other field falls back to its empty value
func decodeBook(bs json.RawMessage) (types.Book, error) {
	var book types.Book

	var raw map[string]json.RawMessage
	err := json.Unmarshal(bs, &raw)
	if err != nil {
		return book, err
	}

	idRaw, ok := raw["id"]
	if !ok {
		return book, fmt.Errorf("no id")
	}
	err = json.Unmarshal(idRaw, &book.Id)
	if err != nil {
		return book, fmt.Errorf("id: %w", err)
	}

	fields := map[string]any{
		"title":          &book.Title,
		"authors":        &book.Authors,
		"subjects":       &book.Subjects,
		"bookshelves":    &book.Bookshelves,
		"languages":      &book.Languages,
		"formats":        &book.Formats,
		"download_count": &book.DownloadCount,
	}
	for name, target := range fields {
		if v, ok := raw[name]; ok {
			// a malformed field leaves the target untouched or partially filled, reset below
			if json.Unmarshal(v, target) != nil {
				resetField(&book, name)
			}
		}
	}

	book.Normalize()
	return book, nil
}

func resetField(book *types.Book, name string) {
	switch name {
	case "title":
		book.Title = ""
	case "authors":
		book.Authors = nil
	case "subjects":
		book.Subjects = nil
	case "bookshelves":
		book.Bookshelves = nil
	case "languages":
		book.Languages = nil
	case "formats":
		book.Formats = nil
	case "download_count":
		book.DownloadCount = 0
	}
}
