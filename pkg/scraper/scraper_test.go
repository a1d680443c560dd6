package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScraperConfig(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.com",
		MaxDepth:       5,
		RateLimit:      1.0,
		IgnorePatterns: []string{"/ignore/", "private"},
		Timeout:        10 * time.Second,
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)
	assert.Equal(t, config.BaseURL, s.config.BaseURL)
	assert.Equal(t, config.MaxDepth, s.config.MaxDepth)
}

func TestShouldProcessURL(t *testing.T) {
	config := ScraperConfig{
		BaseURL:           "https://example.com",
		IgnorePatterns:    []string{"/ignore/", "private"},
		AllowedExtensions: []string{".html", "/"},
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/page.html", true},
		{"https://example.com/ignore/page.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			result := s.shouldProcessURL(tt.url)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestScrapeWithMockServer(t *testing.T) {
	// Create a mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html>
				<head><title>Test Page</title></head>
				<body>
					<main>
						<h1>Test Content</h1>
						<p>This is a test paragraph.</p>
						<a href="/page2.html">Link</a>
					</main>
				</body>
			</html>
		`))
	}))
	defer server.Close()

	config := ScraperConfig{
		BaseURL:   server.URL,
		Category:  "docs",
		MaxDepth:  1,
		RateLimit: 10,
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)

	docs, err := s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	require.NotEmpty(t, docs)

	doc := docs[0]
	assert.Equal(t, server.URL, doc.Source)
	assert.Equal(t, "docs", doc.Category)
	assert.Equal(t, "Test Page", doc.Metadata["title"])
	assert.Contains(t, doc.Content, "Test Content")
	assert.Contains(t, doc.Content, "This is a test paragraph")
	assert.Empty(t, doc.ID, "ids are assigned at ingestion time")
}

func TestScrapeVisitsLinkedPagesOnce(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Root</title></head><body><main>root
			<a href="/page2.html">two</a><a href="/page2.html">two again</a>
		</main></body></html>`))
	})
	mux.HandleFunc("/page2.html", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Two</title></head><body><main>second page
			<a href="/">back</a>
		</main></body></html>`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	s, err := NewWithConfig(ScraperConfig{
		BaseURL:   server.URL,
		MaxDepth:  3,
		RateLimit: 100,
	})
	require.NoError(t, err)

	docs, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, 2, hits, "each page is fetched exactly once")
}
