package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"zeptobook/internal/catalog"
	"zeptobook/internal/navbar"
	"zeptobook/internal/response"
	"zeptobook/internal/source"
	"zeptobook/internal/types"
	"zeptobook/internal/web"
	"zeptobook/internal/wishlist"
)

const msgInvalidBookId = "invalid book id"

var errCatalogLoading = errors.New("catalog is still loading")

// Catalog is the read side of the catalog source, *source.Revalidator in production
type Catalog interface {
	Load(ctx context.Context) source.Snapshot
}

func Handler(cat Catalog, ws *wishlist.Store, br *catalog.Browser, rr *response.Responder,
	pages *template.Template) http.Handler {

	r := chi.NewRouter()
	r.Use(Visitor)

	loadWishlist := func(ctx context.Context) *wishlist.Wishlist {
		wl, err := ws.Load(ctx, VisitorFrom(ctx))
		if err != nil {
			slog.WarnContext(ctx, "Failed to load wishlist, rendering it empty: "+err.Error())
			return wishlist.New()
		}

		return wl
	}

	toggle := func(w http.ResponseWriter, r *http.Request) (*wishlist.Wishlist, bool, bool) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			rr.RespondClientError(w, r.Context(), http.StatusBadRequest, msgInvalidBookId)
			return nil, false, false
		}

		snap := cat.Load(r.Context())

		var books []types.Book
		if snap.Response != nil {
			books = snap.Response.Results
		}

		wl, wishlisted, err := ws.ToggleById(r.Context(), VisitorFrom(r.Context()), id, books)
		switch {
		case err == nil:
			return wl, wishlisted, true
		case errors.Is(err, wishlist.ErrUnknownBook) && snap.Status != source.StatusReady:
			rr.RespondAndLogCustom(w, r.Context(), notReady(snap), slog.LevelWarn, http.StatusServiceUnavailable)
		case errors.Is(err, wishlist.ErrUnknownBook):
			rr.RespondClientError(w, r.Context(), http.StatusNotFound, fmt.Sprintf("book %d not found", id))
		default:
			rr.RespondAndLogError(w, r.Context(), err)
		}

		return nil, false, false
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		menu := navbar.FromQuery(q)

		page := web.Page{
			Title: navbar.Brand,
			Nav:   web.NewNav(menu, r.URL),
		}

		snap := cat.Load(r.Context())
		switch snap.Status {
		case source.StatusReady:
			view := br.Derive(snap.Response, stateFromQuery(q))
			page.Catalog = web.NewReadyCatalog(view, loadWishlist(r.Context()), menu, r.URL)
			rr.SendHtml(w, r.Context(), http.StatusOK, pages, "index", page)
		case source.StatusError:
			page.Catalog = web.NewCatalog(snap.Status)
			rr.SendHtml(w, r.Context(), http.StatusServiceUnavailable, pages, "index", page)
		default:
			page.Catalog = web.NewCatalog(snap.Status)
			page.Refresh = web.RefreshSeconds
			rr.SendHtml(w, r.Context(), http.StatusOK, pages, "index", page)
		}
	})

	r.Get("/wishlist", func(w http.ResponseWriter, r *http.Request) {
		wl := loadWishlist(r.Context())

		rr.SendHtml(w, r.Context(), http.StatusOK, pages, "wishlist", web.Page{
			Title:    navbar.Brand + " wishlist",
			Nav:      web.NewNav(navbar.FromQuery(r.URL.Query()), r.URL),
			Wishlist: web.Cards(wl.Entries(), wl, r.URL.RequestURI()),
		})
	})

	r.Post("/wishlist/{id}", func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := toggle(w, r); !ok {
			return
		}

		http.Redirect(w, r, returnPath(r.FormValue("return")), http.StatusSeeOther)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/books", func(w http.ResponseWriter, r *http.Request) {
			snap := cat.Load(r.Context())
			if snap.Status != source.StatusReady {
				rr.RespondAndLogCustom(w, r.Context(), notReady(snap), slog.LevelWarn, http.StatusServiceUnavailable)
				return
			}

			view := br.Derive(snap.Response, stateFromQuery(r.URL.Query()))

			rr.SendJson(w, r.Context(), struct {
				Books      []types.Book `json:"books"`
				Page       int          `json:"page"`
				TotalPages int          `json:"total_pages"`
				Total      int          `json:"total"`
				Genres     []string     `json:"genres"`
			}{
				Books:      view.Page.Books,
				Page:       view.Page.Number,
				TotalPages: view.Page.TotalPages,
				Total:      view.Page.Total,
				Genres:     view.Genres,
			})
		})

		r.Get("/genres", func(w http.ResponseWriter, r *http.Request) {
			snap := cat.Load(r.Context())
			if snap.Status != source.StatusReady {
				rr.RespondAndLogCustom(w, r.Context(), notReady(snap), slog.LevelWarn, http.StatusServiceUnavailable)
				return
			}

			rr.SendJson(w, r.Context(), struct {
				Titles []string `json:"titles"`
			}{Titles: catalog.Genres(snap.Response.Results)})
		})

		r.Get("/wishlist", func(w http.ResponseWriter, r *http.Request) {
			wl, err := ws.Load(r.Context(), VisitorFrom(r.Context()))
			if err != nil {
				rr.RespondAndLogError(w, r.Context(), err)
				return
			}

			rr.SendJson(w, r.Context(), struct {
				Wishlist *wishlist.Wishlist `json:"wishlist"`
			}{Wishlist: wl})
		})

		r.Post("/wishlist/{id}", func(w http.ResponseWriter, r *http.Request) {
			wl, wishlisted, ok := toggle(w, r)
			if !ok {
				return
			}

			rr.SendJson(w, r.Context(), struct {
				Wishlisted bool               `json:"wishlisted"`
				Wishlist   *wishlist.Wishlist `json:"wishlist"`
			}{Wishlisted: wishlisted, Wishlist: wl})
		})
	})

	r.Route("/opds", func(r chi.Router) {
		r.Get("/books", func(w http.ResponseWriter, r *http.Request) {
			snap := cat.Load(r.Context())
			if snap.Status != source.StatusReady {
				rr.RespondAndLogCustom(w, r.Context(), notReady(snap), slog.LevelWarn, http.StatusServiceUnavailable)
				return
			}

			view := br.Derive(snap.Response, stateFromQuery(r.URL.Query()))
			rr.SendXml(w, r.Context(), opdsContentType, pagedFeed(r.URL, view))
		})

		r.Get("/wishlist", func(w http.ResponseWriter, r *http.Request) {
			wl, err := ws.Load(r.Context(), VisitorFrom(r.Context()))
			if err != nil {
				rr.RespondAndLogError(w, r.Context(), err)
				return
			}

			rr.SendXml(w, r.Context(), opdsContentType, newFeed("ZeptoBook wishlist", r.URL, wl.Entries()))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		rr.SendJson(w, r.Context(), struct {
			Status string `json:"status"`
		}{Status: "ok"})
	})

	return r
}

func notReady(snap source.Snapshot) error {
	if snap.Err != nil {
		return fmt.Errorf("catalog failed to load: %w", snap.Err)
	}

	return errCatalogLoading
}

func stateFromQuery(q url.Values) catalog.State {
	return catalog.State{
		Filter: catalog.Filter{
			SearchTerm:    q.Get("q"),
			SelectedGenre: strings.TrimSpace(q.Get("genre")),
		},
		CurrentPage: getIntOrDefault("page", q, 1),
	}
}

// returnPath only lets local paths through, anything else goes to the front page
func returnPath(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return "/"
	}

	return u.RequestURI()
}

func getIntOrDefault(key string, q url.Values, default_ int) int {
	if ls := q.Get(key); ls != "" {
		val, err := strconv.Atoi(strings.TrimSpace(ls))
		if err == nil {
			return val
		}
	}

	return default_
}
