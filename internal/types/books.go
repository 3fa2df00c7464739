package types

import "strings"

const CoverFormat = "image/jpeg"

type Person struct {
	Name      string `json:"name"`
	BirthYear *int   `json:"birth_year,omitempty"`
	DeathYear *int   `json:"death_year,omitempty"`
}

type Book struct {
	Id            int               `json:"id"`
	Title         string            `json:"title"`
	Authors       []Person          `json:"authors"`
	Subjects      []string          `json:"subjects"`
	Bookshelves   []string          `json:"bookshelves,omitempty"`
	Languages     []string          `json:"languages,omitempty"`
	Formats       map[string]string `json:"formats"`
	DownloadCount int               `json:"download_count,omitempty"`
}

// CatalogResponse is a single catalog read. Next and Previous are page links of the remote listing, if any.
type CatalogResponse struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []Book  `json:"results"`
}

func (b *Book) CoverURL() string {
	if b.Formats == nil {
		return ""
	}

	return b.Formats[CoverFormat]
}

// AuthorName is the name of the first author or "Unknown"
func (b *Book) AuthorName() string {
	if len(b.Authors) > 0 && strings.TrimSpace(b.Authors[0].Name) != "" {
		return b.Authors[0].Name
	}

	return "Unknown"
}

func (b *Book) GenreLabel() string {
	if len(b.Subjects) == 0 {
		return "No genres available"
	}

	return strings.Join(b.Subjects, ", ")
}

func (b *Book) HasSubject(subject string) bool {
	for _, s := range b.Subjects {
		if s == subject {
			return true
		}
	}

	return false
}

// Normalize replaces nil collections with empty ones so that rendering and JSON never see null
func (b *Book) Normalize() {
	if b.Authors == nil {
		b.Authors = make([]Person, 0)
	}
	if b.Subjects == nil {
		b.Subjects = make([]string, 0)
	}
	if b.Formats == nil {
		b.Formats = make(map[string]string)
	}
}
