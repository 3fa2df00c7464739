package wishlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"zeptobook/internal/storage/kv"
	"zeptobook/internal/types"
)

const StorageKey = "wishlist"

var ErrUnknownBook = errors.New("unknown book")

// Wishlist is an ordered set of book snapshots keyed by book id
type Wishlist struct {
	entries []types.Book
}

func New(entries ...types.Book) *Wishlist {
	w := &Wishlist{entries: make([]types.Book, 0, len(entries))}
	for _, e := range entries {
		if !w.Contains(e.Id) {
			w.entries = append(w.entries, e)
		}
	}

	return w
}

func (w *Wishlist) Contains(id int) bool {
	for ix := range w.entries {
		if w.entries[ix].Id == id {
			return true
		}
	}

	return false
}

// Toggle removes the book with the same id if present, otherwise appends a snapshot of book.
// Returns whether the book is wishlisted afterwards.
func (w *Wishlist) Toggle(book types.Book) bool {
	for ix := range w.entries {
		if w.entries[ix].Id == book.Id {
			w.entries = append(w.entries[:ix:ix], w.entries[ix+1:]...)
			return false
		}
	}

	w.entries = append(w.entries, book)
	return true
}

func (w *Wishlist) Len() int {
	return len(w.entries)
}

// Entries returns a copy of the entries in insertion order
func (w *Wishlist) Entries() []types.Book {
	ret := make([]types.Book, len(w.entries))
	copy(ret, w.entries)
	return ret
}

func (w *Wishlist) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.entries)
}

// Store binds wishlists to a key-value repository, one wishlist per scope
type Store struct {
	Repo   kv.Repository
	Logger *slog.Logger
}

// Load never fails on absent or malformed data, such wishlist is treated as empty
func (s *Store) Load(ctx context.Context, scope string) (*Wishlist, error) {
	bs, err := s.Repo.Get(ctx, scope, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("loading wishlist: %w", err)
	}

	if len(bs) == 0 {
		return New(), nil
	}

	var entries []types.Book
	err = json.Unmarshal(bs, &entries)
	if err != nil {
		s.Logger.WarnContext(ctx, "Malformed wishlist stored for "+scope+", treating as empty: "+err.Error())
		return New(), nil
	}

	return New(entries...), nil
}

// Save rewrites the whole wishlist
func (s *Store) Save(ctx context.Context, scope string, w *Wishlist) error {
	bs, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshalling wishlist: %w", err)
	}

	err = s.Repo.Set(ctx, scope, StorageKey, bs)
	if err != nil {
		return fmt.Errorf("saving wishlist: %w", err)
	}

	return nil
}

// Toggle loads the wishlist of scope, toggles book in it and writes the result back
func (s *Store) Toggle(ctx context.Context, scope string, book types.Book) (*Wishlist, bool, error) {
	w, err := s.Load(ctx, scope)
	if err != nil {
		return nil, false, err
	}

	wishlisted := w.Toggle(book)

	err = s.Save(ctx, scope, w)
	if err != nil {
		return nil, false, err
	}

	return w, wishlisted, nil
}

// ToggleById looks the book up in books first, so that a full snapshot gets stored.
// A book already in the wishlist can be removed even if it is not in books anymore.
func (s *Store) ToggleById(ctx context.Context, scope string, id int, books []types.Book) (*Wishlist, bool, error) {
	for ix := range books {
		if books[ix].Id == id {
			return s.Toggle(ctx, scope, books[ix])
		}
	}

	w, err := s.Load(ctx, scope)
	if err != nil {
		return nil, false, err
	}

	if !w.Contains(id) {
		return nil, false, fmt.Errorf("toggling book %d: %w", id, ErrUnknownBook)
	}

	w.Toggle(types.Book{Id: id})

	err = s.Save(ctx, scope, w)
	if err != nil {
		return nil, false, err
	}

	return w, false, nil
}
