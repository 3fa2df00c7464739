package web

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"zeptobook/internal/catalog"
	"zeptobook/internal/types"
	"zeptobook/internal/wishlist"
)

// WriteText is the terminal rendering of one browser page
func WriteText(w io.Writer, v catalog.View, wl *wishlist.Wishlist) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	genre := v.State.SelectedGenre
	if genre == "" {
		genre = "All Genres"
	}
	fmt.Fprintf(tw, "Search:\t%q\n", v.State.SearchTerm)
	fmt.Fprintf(tw, "Genre:\t%s\n", genre)
	fmt.Fprintf(tw, "Genres:\t%s\n\n", strings.Join(v.Genres, ", "))

	if len(v.Page.Books) == 0 {
		fmt.Fprintln(tw, "No books found")
		return tw.Flush()
	}

	writeBooks(tw, v.Page.Books, wl)

	if v.Page.ShowControls() {
		fmt.Fprintf(tw, "\nPage %d of %d (%d books)\n", v.Page.Number, v.Page.TotalPages, v.Page.Total)
	}

	return tw.Flush()
}

func WriteWishlistText(w io.Writer, wl *wishlist.Wishlist) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	if wl.Len() == 0 {
		fmt.Fprintln(tw, "Your wishlist is empty")
		return tw.Flush()
	}

	writeBooks(tw, wl.Entries(), wl)
	return tw.Flush()
}

func writeBooks(tw *tabwriter.Writer, books []types.Book, wl *wishlist.Wishlist) {
	fmt.Fprintln(tw, "\tID\tTitle\tAuthor\tGenres")
	for _, c := range Cards(books, wl, "") {
		heart := "🤍"
		if c.Wishlisted {
			heart = "💖"
		}

		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", heart, c.Id, c.Title, c.Author, c.Genres)
	}
}
