package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"PaperDigest/internal/scanner"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
  <title>astro-ph.GA updates on arXiv.org</title>
  <link>http://rss.arxiv.org/rss/astro-ph.GA</link>
  <description>astro-ph.GA updates</description>
  <item>
    <title>Tidal Streams   Around M31</title>
    <link>https://arxiv.org/abs/2509.11111</link>
    <description>arXiv:2509.11111v1 Announce Type: new
Abstract: We map tidal streams.</description>
    <guid isPermaLink="false">oai:arXiv.org:2509.11111v1</guid>
    <pubDate>Wed, 17 Sep 2025 00:00:00 -0400</pubDate>
    <dc:creator>Ada Lovelace, Charles Babbage</dc:creator>
  </item>
  <item>
    <title>Yesterday's Paper</title>
    <link>https://arxiv.org/abs/2509.22222</link>
    <description>Abstract: Old news.</description>
    <pubDate>Tue, 16 Sep 2025 00:00:00 -0400</pubDate>
  </item>
  <item>
    <title>No Identifier</title>
    <link>https://example.org/elsewhere</link>
    <description>Abstract: Nothing.</description>
    <pubDate>Wed, 17 Sep 2025 00:00:00 -0400</pubDate>
  </item>
</channel>
</rss>`

func TestRSSScannerScan(t *testing.T) {
	t.Parallel()

	var requested string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	sc := NewRSSScanner(srv.Client(), nil, srv.URL, "")
	papers, err := sc.Scan(context.Background(), scanner.Request{Day: targetDay, Category: "astro-ph.GA"})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	if requested != "/astro-ph.GA" {
		t.Fatalf("unexpected feed path: %s", requested)
	}
	if len(papers) != 1 {
		t.Fatalf("expected 1 paper, got %d", len(papers))
	}

	p := papers[0]
	if p.ArxivID != "2509.11111" {
		t.Fatalf("unexpected id: %s", p.ArxivID)
	}
	if p.Title != "Tidal Streams Around M31" {
		t.Fatalf("unexpected title: %q", p.Title)
	}
	if p.Abstract != "We map tidal streams." {
		t.Fatalf("unexpected abstract: %q", p.Abstract)
	}
	if len(p.Authors) != 2 || p.Authors[1] != "Charles Babbage" {
		t.Fatalf("unexpected authors: %v", p.Authors)
	}
}

func TestRSSScannerFetchFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	papers, err := NewRSSScanner(srv.Client(), nil, srv.URL, "").Scan(context.Background(), scanner.Request{Day: targetDay, Category: "astro-ph.GA"})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(papers) != 0 {
		t.Fatalf("expected no papers, got %d", len(papers))
	}
}
