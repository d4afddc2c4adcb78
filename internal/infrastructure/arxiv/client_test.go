package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"needle-api/internal/config"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2104.08653v2</id>
    <title>Papers with
      Wrapped   Titles</title>
    <summary>A summary
      spanning lines.</summary>
    <published>2021-04-18T00:00:00Z</published>
    <author><name>Jane Doe</name></author>
    <author><name>John Roe</name></author>
    <link href="http://arxiv.org/abs/2104.08653v2" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2104.08653v2" rel="related" title="pdf" type="application/pdf"/>
    <category term="cs.CL"/>
    <category term="cs.LG"/>
    <doi>10.48550/arXiv.2104.08653</doi>
  </entry>
</feed>`

const errorFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/api/errors#incorrect_id_format</id>
    <title>Error</title>
    <summary>incorrect id format</summary>
  </entry>
</feed>`

func newTestClient(apiURL, pdfURL string) *Client {
	return NewClient(&config.ArxivConfig{
		APIBaseURL: apiURL,
		PDFBaseURL: pdfURL,
		Timeout:    2 * time.Second,
	})
}

func TestGetMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2104.08653", r.URL.Query().Get("id_list"))
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "https://arxiv.org/pdf")
	meta, err := c.GetMetadata(context.Background(), "2104.08653")
	require.NoError(t, err)

	assert.Equal(t, "2104.08653", meta.ArxivID)
	assert.Equal(t, "Papers with Wrapped Titles", meta.Title)
	assert.Equal(t, "A summary spanning lines.", meta.Summary)
	assert.Equal(t, []string{"Jane Doe", "John Roe"}, meta.Authors)
	assert.Equal(t, []string{"cs.CL", "cs.LG"}, meta.Categories)
	assert.Equal(t, "2021-04-18T00:00:00Z", meta.Published)
	assert.Equal(t, "http://arxiv.org/pdf/2104.08653v2", meta.PDFURL)
	assert.Equal(t, "10.48550/arXiv.2104.08653", meta.DOI)
}

func TestGetMetadataUnknownID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(errorFeed))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "https://arxiv.org/pdf")
	_, err := c.GetMetadata(context.Background(), "bogus")
	assert.ErrorContains(t, err, "not found")
}

func TestGetMetadataEmptyFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "https://arxiv.org/pdf")
	_, err := c.GetMetadata(context.Background(), "2104.99999")
	assert.ErrorContains(t, err, "not found")
}

func TestGetMetadataHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "https://arxiv.org/pdf")
	_, err := c.GetMetadata(context.Background(), "2104.08653")
	assert.ErrorContains(t, err, "HTTP 503")
}

func TestDownloadPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2104.08653", r.URL.Path)
		_, _ = w.Write([]byte("%PDF-1.5 fake"))
	}))
	defer srv.Close()

	c := newTestClient("http://unused.invalid", srv.URL)
	data, err := c.DownloadPDF(context.Background(), "2104.08653")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.5 fake"), data)
}

func TestPDFURL(t *testing.T) {
	c := newTestClient("http://unused.invalid", "https://arxiv.org/pdf/")
	assert.Equal(t, "https://arxiv.org/pdf/2104.08653", c.PDFURL("2104.08653"))
}
