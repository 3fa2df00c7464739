package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const opdsPage1 = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opds="http://opds-spec.org/">
  <id>http://www.gutenberg.org/ebooks/search.opds/</id>
  <title>Popular books` + "\x01" + `</title>
  <link rel="next" type="application/atom+xml;profile=opds-catalog" href="/feed?page=2"/>
  <entry>
    <id>urn:gutenberg:84:2</id>
    <title>Frankenstein</title>
    <author><name>Shelley, Mary Wollstonecraft</name></author>
    <category term="Science fiction"/>
    <category term="Horror tales"/>
    <category term="Science fiction"/>
    <link rel="http://opds-spec.org/image" type="image/jpeg" href="/cache/epub/84/pg84.cover.medium.jpg"/>
    <link rel="http://opds-spec.org/acquisition/open-access" type="application/epub+zip" href="/ebooks/84.epub3.images"/>
    <link rel="alternate" type="text/html" href="/ebooks/84"/>
  </entry>
  <entry>
    <id>urn:gutenberg:none</id>
    <title>Navigation</title>
  </entry>
</feed>`

const opdsPage2 = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <id>page2</id>
  <title>Popular books</title>
  <entry>
    <id>urn:gutenberg:84:2</id>
    <title>Frankenstein duplicate</title>
  </entry>
  <entry>
    <id>urn:gutenberg:1342:2</id>
    <title>  Pride and Prejudice </title>
  </entry>
</feed>`

func opdsServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		if r.URL.Query().Get("page") == "2" {
			_, _ = io.WriteString(w, opdsPage2)
			return
		}
		_, _ = io.WriteString(w, opdsPage1)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOPDSFetch(t *testing.T) {
	srv := opdsServer(t)

	o := &OPDS{Fetcher: testFetcher(), Logger: discardLogger(), URL: mustParse(t, srv.URL+"/feed"), MaxPages: 1}

	resp, err := o.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	require.NotNil(t, resp.Next)
	assert.Equal(t, srv.URL+"/feed?page=2", *resp.Next)

	book := resp.Results[0]
	assert.Equal(t, 84, book.Id)
	assert.Equal(t, "Frankenstein", book.Title)
	assert.Equal(t, "Shelley, Mary Wollstonecraft", book.AuthorName())
	assert.Equal(t, []string{"Science fiction", "Horror tales"}, book.Subjects)
	assert.Equal(t, srv.URL+"/cache/epub/84/pg84.cover.medium.jpg", book.CoverURL())
	assert.Equal(t, srv.URL+"/ebooks/84.epub3.images", book.Formats["application/epub+zip"])
	assert.NotContains(t, book.Formats, "text/html")
}

func TestOPDSFetchFollowsNext(t *testing.T) {
	srv := opdsServer(t)

	o := &OPDS{Fetcher: testFetcher(), Logger: discardLogger(), URL: mustParse(t, srv.URL+"/feed"), MaxPages: 3}

	resp, err := o.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1342, resp.Results[1].Id)
	assert.Equal(t, "Pride and Prejudice", resp.Results[1].Title)
	assert.Equal(t, "Unknown", resp.Results[1].AuthorName())
	assert.Nil(t, resp.Next)
	assert.Equal(t, 2, resp.Count)
}

func TestOPDSFetchBrokenFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<feed><entry>`)
	}))
	t.Cleanup(srv.Close)

	o := &OPDS{Fetcher: testFetcher(), Logger: discardLogger(), URL: mustParse(t, srv.URL), MaxPages: 1}

	_, err := o.Fetch(context.Background())
	assert.Error(t, err)
}

func TestRemoveDisallowedCodepoints(t *testing.T) {
	out := removeDisallowedCodepoints([]byte("a\x01b\tcé"), discardLogger())
	assert.Equal(t, "ab\tcé", string(out))

	invalid := []byte{'a', 0xff, 0x01}
	assert.Equal(t, invalid, removeDisallowedCodepoints(invalid, discardLogger()))
}
