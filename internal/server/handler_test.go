package server

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/opds-community/libopds2-go/opds1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zeptobook/internal/catalog"
	"zeptobook/internal/response"
	"zeptobook/internal/source"
	"zeptobook/internal/storage/kv"
	"zeptobook/internal/types"
	"zeptobook/internal/web"
	"zeptobook/internal/wishlist"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeCatalog struct {
	snap source.Snapshot
}

func (f *fakeCatalog) Load(context.Context) source.Snapshot {
	return f.snap
}

func testBooks() []types.Book {
	books := make([]types.Book, 0, 10)
	for i := 1; i <= 10; i++ {
		b := types.Book{
			Id:       i,
			Title:    "Book " + strconv.Itoa(i),
			Authors:  []types.Person{{Name: "Author " + strconv.Itoa(i)}},
			Subjects: []string{"Fiction"},
		}
		if i == 1 {
			b.Title = "DUNE"
			b.Subjects = []string{"Science fiction", "Fiction"}
			b.Formats = map[string]string{
				types.CoverFormat:       "https://covers.example/1.jpg",
				"application/epub+zip": "https://files.example/1.epub",
			}
		}
		b.Normalize()
		books = append(books, b)
	}

	return books
}

func readySnapshot() source.Snapshot {
	books := testBooks()
	return source.Snapshot{
		Status:   source.StatusReady,
		Response: &types.CatalogResponse{Count: len(books), Results: books},
	}
}

type testServer struct {
	handler http.Handler
	repo    *kv.MemoryRepository
	cat     *fakeCatalog
	cookie  *http.Cookie
}

func newTestServer(t *testing.T, snap source.Snapshot) *testServer {
	t.Helper()

	repo := kv.NewMemoryRepository()
	cat := &fakeCatalog{snap: snap}

	return &testServer{
		handler: Handler(cat,
			&wishlist.Store{Repo: repo, Logger: discardLogger},
			catalog.NewBrowser(),
			&response.Responder{DebugMode: true},
			web.MustParse(),
		),
		repo: repo,
		cat:  cat,
	}
}

// do sends req with the visitor cookie of earlier responses
func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == VisitorCookie {
			s.cookie = c
		}
	}

	return w
}

func (s *testServer) get(target string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (s *testServer) post(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *testServer) storedIds(t *testing.T) []int {
	t.Helper()
	require.NotNil(t, s.cookie)

	bs, err := s.repo.Get(context.Background(), s.cookie.Value, wishlist.StorageKey)
	require.NoError(t, err)

	var entries []types.Book
	require.NoError(t, json.Unmarshal(bs, &entries))

	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Id)
	}
	return ids
}

func document(t *testing.T, w *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()

	doc, err := goquery.NewDocumentFromReader(w.Body)
	require.NoError(t, err)
	return doc
}

func cardIds(doc *goquery.Document) []string {
	var ids []string
	doc.Find(".book-card").Each(func(_ int, s *goquery.Selection) {
		ids = append(ids, s.AttrOr("data-id", ""))
	})
	return ids
}

func TestIndex(t *testing.T) {
	s := newTestServer(t, readySnapshot())

	w := s.get("/")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, s.cookie)
	assert.True(t, s.cookie.HttpOnly)

	doc := document(t, w)
	assert.Equal(t, []string{"1", "2", "3", "4"}, cardIds(doc))
	assert.Equal(t, "All Genres", doc.Find("select[name=genre] option").First().Text())
	assert.Equal(t, 3, doc.Find("select[name=genre] option").Length())
	assert.Equal(t, 3, doc.Find(".page-number").Length())

	_, prevDisabled := doc.Find(".page-prev").Attr("disabled")
	assert.True(t, prevDisabled)
}

func TestIndexLastPage(t *testing.T) {
	s := newTestServer(t, readySnapshot())

	doc := document(t, s.get("/?page=3"))
	assert.Equal(t, []string{"9", "10"}, cardIds(doc))

	_, prevDisabled := doc.Find(".page-prev").Attr("disabled")
	_, nextDisabled := doc.Find(".page-next").Attr("disabled")
	assert.False(t, prevDisabled)
	assert.True(t, nextDisabled)
	assert.Equal(t, "/?page=2", doc.Find("a.page-prev").AttrOr("href", ""))
}

func TestIndexFilters(t *testing.T) {
	s := newTestServer(t, readySnapshot())

	t.Run("search is case insensitive", func(t *testing.T) {
		doc := document(t, s.get("/?q=dune"))
		assert.Equal(t, []string{"1"}, cardIds(doc))
		assert.Equal(t, 0, doc.Find(".pagination").Length())
		assert.Equal(t, 3, doc.Find("select[name=genre] option").Length())
	})

	t.Run("genre", func(t *testing.T) {
		doc := document(t, s.get("/?genre="+url.QueryEscape("Science fiction")))
		assert.Equal(t, []string{"1"}, cardIds(doc))
		_, selected := doc.Find("option[value='Science fiction']").Attr("selected")
		assert.True(t, selected)
	})

	t.Run("no match", func(t *testing.T) {
		doc := document(t, s.get("/?q=zzz"))
		assert.Empty(t, cardIds(doc))
		assert.Equal(t, "No books found", doc.Find(".status").Text())
	})

	t.Run("page out of range after filtering is clamped", func(t *testing.T) {
		doc := document(t, s.get("/?q=book&page=5"))
		assert.Equal(t, []string{"10"}, cardIds(doc))
		assert.Equal(t, "3", doc.Find(".page-number.active").Text())
	})
}

func TestIndexPlaceholders(t *testing.T) {
	s := newTestServer(t, source.Snapshot{Status: source.StatusLoading})

	w := s.get("/")
	assert.Equal(t, http.StatusOK, w.Code)
	doc := document(t, w)
	assert.Equal(t, "Loading...", doc.Find(".status").Text())
	assert.Equal(t, 1, doc.Find("meta[http-equiv=refresh]").Length())
	assert.Equal(t, 0, doc.Find(".book-card").Length())

	s.cat.snap = source.Snapshot{Status: source.StatusError, Err: errors.New("boom")}
	w = s.get("/")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	doc = document(t, w)
	assert.Equal(t, "Failed to load", doc.Find(".status").Text())
	assert.Equal(t, 0, doc.Find("form.filters").Length())
}

func TestMenuToggle(t *testing.T) {
	s := newTestServer(t, readySnapshot())

	doc := document(t, s.get("/?page=2"))
	assert.False(t, doc.Find(".nav-links").HasClass("open"))
	toggle := doc.Find(".hamburger").AttrOr("href", "")
	assert.Equal(t, "/?menu=open&page=2", toggle)

	doc = document(t, s.get(toggle))
	assert.True(t, doc.Find(".nav-links").HasClass("open"))
	assert.Equal(t, "/?page=2", doc.Find(".hamburger").AttrOr("href", ""))
	assert.Equal(t, "open", doc.Find("form.filters input[name=menu]").AttrOr("value", ""))
}

func TestToggleWishlist(t *testing.T) {
	s := newTestServer(t, readySnapshot())
	s.get("/")

	w := s.post("/wishlist/9", url.Values{"return": {"/?page=3"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/?page=3", w.Header().Get("Location"))
	assert.Equal(t, []int{9}, s.storedIds(t))

	s.post("/wishlist/2", nil)
	assert.Equal(t, []int{9, 2}, s.storedIds(t))

	doc := document(t, s.get("/?page=3"))
	assert.Equal(t, "💖", doc.Find(".book-card[data-id='9'] .heart-icon").Text())
	assert.Equal(t, "🤍", doc.Find(".book-card[data-id='10'] .heart-icon").Text())

	w = s.post("/wishlist/9", url.Values{"return": {"https://evil.example/"}})
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, []int{2}, s.storedIds(t))

	doc = document(t, s.get("/wishlist"))
	assert.Equal(t, []string{"2"}, cardIds(doc))
}

func TestToggleWishlistErrors(t *testing.T) {
	s := newTestServer(t, readySnapshot())

	w := s.post("/wishlist/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.post("/wishlist/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Book 999 not found")

	s.cat.snap = source.Snapshot{Status: source.StatusLoading}
	w = s.post("/wishlist/1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWishlistRemovableWhileLoading(t *testing.T) {
	s := newTestServer(t, readySnapshot())
	s.post("/wishlist/3", nil)

	s.cat.snap = source.Snapshot{Status: source.StatusLoading}
	w := s.post("/wishlist/3", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Empty(t, s.storedIds(t))
}

func TestVisitorsAreIsolated(t *testing.T) {
	s := newTestServer(t, readySnapshot())
	s.post("/wishlist/1", nil)
	first := s.cookie

	s.cookie = &http.Cookie{Name: VisitorCookie, Value: "not-a-uuid"}
	s.get("/")
	require.NotEqual(t, "not-a-uuid", s.cookie.Value)
	require.NotEqual(t, first.Value, s.cookie.Value)

	doc := document(t, s.get("/wishlist"))
	assert.Empty(t, cardIds(doc))

	s.cookie = first
	doc = document(t, s.get("/wishlist"))
	assert.Equal(t, []string{"1"}, cardIds(doc))
}

func TestAPIBooks(t *testing.T) {
	s := newTestServer(t, readySnapshot())

	w := s.get("/api/books?page=99")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Books      []types.Book `json:"books"`
		Page       int          `json:"page"`
		TotalPages int          `json:"total_pages"`
		Total      int          `json:"total"`
		Genres     []string     `json:"genres"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Page)
	assert.Equal(t, 3, body.TotalPages)
	assert.Equal(t, 10, body.Total)
	assert.Len(t, body.Books, 2)
	assert.Equal(t, []string{"Science fiction", "Fiction"}, body.Genres)

	s.cat.snap = source.Snapshot{Status: source.StatusError, Err: errors.New("remote is down")}
	w = s.get("/api/books")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "remote is down")
}

func TestAPIGenres(t *testing.T) {
	s := newTestServer(t, readySnapshot())

	w := s.get("/api/genres?q=zzz")
	assert.JSONEq(t, `{"titles":["Science fiction","Fiction"]}`, w.Body.String())

	s.cat.snap = source.Snapshot{Status: source.StatusLoading}
	w = s.get("/api/genres")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAPIWishlist(t *testing.T) {
	s := newTestServer(t, readySnapshot())

	w := s.get("/api/wishlist")
	assert.JSONEq(t, `{"wishlist":[]}`, w.Body.String())

	type toggled struct {
		Wishlisted bool         `json:"wishlisted"`
		Wishlist   []types.Book `json:"wishlist"`
	}

	var body toggled
	w = s.post("/api/wishlist/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Wishlisted)
	require.Len(t, body.Wishlist, 1)
	assert.Equal(t, "DUNE", body.Wishlist[0].Title)

	body = toggled{}
	w = s.post("/api/wishlist/1", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Wishlisted)
	assert.Empty(t, body.Wishlist)
}

func TestOPDSBooks(t *testing.T) {
	s := newTestServer(t, readySnapshot())

	w := s.get("/opds/books?page=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/atom+xml"))

	var feed opds1.Feed
	require.NoError(t, xml.Unmarshal(w.Body.Bytes(), &feed))
	require.Len(t, feed.Entries, 4)
	assert.Equal(t, "urn:zeptobook:book:5", feed.Entries[0].ID)

	rels := make(map[string]string)
	for _, l := range feed.Links {
		rels[l.Rel] = l.Href
	}
	assert.Equal(t, "/opds/books?page=1", rels["previous"])
	assert.Equal(t, "/opds/books?page=3", rels["next"])
}

// The served feed must be readable by the OPDS catalog source
func TestOPDSRoundTrip(t *testing.T) {
	s := newTestServer(t, readySnapshot())
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	u, err := url.Parse(srv.URL + "/opds/books")
	require.NoError(t, err)

	src := &source.OPDS{Fetcher: source.NewFetcher(0, 0), Logger: discardLogger, URL: u, MaxPages: 5}
	resp, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Results, 10)

	dune := resp.Results[0]
	assert.Equal(t, 1, dune.Id)
	assert.Equal(t, "DUNE", dune.Title)
	assert.Equal(t, "Author 1", dune.AuthorName())
	assert.Equal(t, []string{"Science fiction", "Fiction"}, dune.Subjects)
	assert.Equal(t, "https://covers.example/1.jpg", dune.CoverURL())
	assert.Equal(t, "https://files.example/1.epub", dune.Formats["application/epub+zip"])
}

func TestOPDSWishlist(t *testing.T) {
	s := newTestServer(t, readySnapshot())
	s.post("/wishlist/4", nil)

	w := s.get("/opds/wishlist")
	require.Equal(t, http.StatusOK, w.Code)

	var feed opds1.Feed
	require.NoError(t, xml.Unmarshal(w.Body.Bytes(), &feed))
	require.Len(t, feed.Entries, 1)
	assert.Equal(t, "Book 4", feed.Entries[0].Title)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, source.Snapshot{Status: source.StatusLoading})

	w := s.get("/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReturnPath(t *testing.T) {
	for raw, want := range map[string]string{
		"":                 "/",
		"/?page=2&q=dune":  "/?page=2&q=dune",
		"/wishlist":        "/wishlist",
		"//evil.example/":  "/",
		"/\\evil.example":  "/",
		"https://evil.ex/": "/",
		"relative":         "/",
	} {
		assert.Equal(t, want, returnPath(raw), raw)
	}
}
