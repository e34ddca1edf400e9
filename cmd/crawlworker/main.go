// Command crawlworker is the external worker process CrawlJobRunner spawns
// for every crawl task (SPEC_FULL.md §4.10). It fetches pages with
// net/http and extracts links/content with goquery the way
// internal/services/crawler/link_extractor.go does, and reports progress to
// its parent exclusively through the line-oriented stdout protocol
// internal/crawljob.ParseLine understands: it never touches the task store
// directly.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const userAgent = "orcaweaver-crawlworker/1.0"

type pendingURL struct {
	url   string
	depth int
}

// worker is the crawl loop's mutable state. A single goroutine drives
// fetch/parse/enqueue; a second goroutine reads control lines from stdin
// and signals it via the channels below.
type worker struct {
	jobID    string
	seedURL  string
	maxPages int

	httpClient *http.Client

	mu       sync.Mutex
	paused   bool
	visited  map[string]bool
	queue    []pendingURL
	pagesGot int

	pauseCh  chan bool
	stopCh   chan struct{}
	addURLCh chan string
}

func main() {
	jobID := flag.String("job-id", "", "task id this worker reports progress under")
	dbPath := flag.String("db", "", "path to the orchestrator's store (unused by this reference worker; accepted for interface parity)")
	seedURL := flag.String("url", "", "seed URL to crawl")
	maxPages := flag.Int("max-pages", 50, "maximum number of pages to fetch before stopping")
	flag.Parse()
	_ = *dbPath

	if *jobID == "" || *seedURL == "" {
		emitError("missing required --job-id/--url flags", true)
		os.Exit(2)
	}

	w := &worker{
		jobID:      *jobID,
		seedURL:    *seedURL,
		maxPages:   *maxPages,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		visited:    make(map[string]bool),
		pauseCh:    make(chan bool, 8),
		stopCh:     make(chan struct{}),
		addURLCh:   make(chan string, 64),
	}

	go w.readControlLines(os.Stdin)
	go w.watchSignals()

	if err := w.run(); err != nil {
		emitError(err.Error(), true)
		os.Exit(1)
	}
}

// readControlLines parses PAUSE/RESUME/STOP/ADDURL lines written to stdin
// by CrawlJobRunner.sendControlLine.
func (w *worker) readControlLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "PAUSE":
			w.pauseCh <- true
		case line == "RESUME":
			w.pauseCh <- false
		case line == "STOP":
			close(w.stopCh)
			return
		case strings.HasPrefix(line, "ADDURL "):
			w.addURLCh <- strings.TrimSpace(strings.TrimPrefix(line, "ADDURL "))
		}
	}
}

// watchSignals treats SIGUSR1 as a pause/resume toggle, the alternate
// control surface spec §4.10 names alongside stdin control lines (useful
// when the supervising process can signal but not write to stdin).
func (w *worker) watchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	for range sigCh {
		w.mu.Lock()
		w.paused = !w.paused
		next := w.paused
		w.mu.Unlock()
		w.pauseCh <- next
	}
}

func (w *worker) run() error {
	w.enqueue(pendingURL{url: w.seedURL, depth: 0}, "seed")
	emitMilestone("crawl_started", "job", w.jobID, fmt.Sprintf("starting crawl at %s", w.seedURL))

	for {
		select {
		case <-w.stopCh:
			emitMilestone("crawl_stopped", "job", w.jobID, "stop requested")
			return nil
		case paused := <-w.pauseCh:
			w.mu.Lock()
			w.paused = paused
			w.mu.Unlock()
			continue
		case added := <-w.addURLCh:
			w.enqueue(pendingURL{url: added, depth: 1}, "planner")
			continue
		default:
		}

		w.mu.Lock()
		if w.paused {
			w.mu.Unlock()
			select {
			case <-w.stopCh:
				return nil
			case paused := <-w.pauseCh:
				w.mu.Lock()
				w.paused = paused
				w.mu.Unlock()
			case added := <-w.addURLCh:
				w.enqueue(pendingURL{url: added, depth: 1}, "planner")
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		if len(w.queue) == 0 || w.pagesGot >= w.maxPages {
			w.mu.Unlock()
			break
		}
		next := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.fetchAndExtract(next)
	}

	emitMilestone("crawl_completed", "job", w.jobID, fmt.Sprintf("fetched %d pages", w.pagesGot))
	return nil
}

func (w *worker) enqueue(p pendingURL, reason string) {
	parsed, err := url.Parse(p.url)
	if err != nil {
		emitProblem("invalid_url", "frontier", p.url, err.Error())
		return
	}

	w.mu.Lock()
	if w.visited[p.url] {
		w.mu.Unlock()
		return
	}
	w.visited[p.url] = true
	w.queue = append(w.queue, p)
	size := len(w.queue)
	w.mu.Unlock()

	emitQueue("enqueue", p.url, p.depth, parsed.Host, reason, size)
}

func (w *worker) fetchAndExtract(p pendingURL) {
	req, err := http.NewRequest(http.MethodGet, p.url, nil)
	if err != nil {
		emitProblem("request_build_failed", "fetch", p.url, err.Error())
		return
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		emitProblem("fetch_failed", "fetch", p.url, err.Error())
		return
	}
	defer resp.Body.Close()

	emitQueue("dequeue", p.url, p.depth, req.URL.Host, "fetched", 0)

	if resp.StatusCode >= 400 {
		emitProblem("http_status", "fetch", p.url, fmt.Sprintf("status %d", resp.StatusCode))
		return
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		emitProblem("parse_failed", "parse", p.url, err.Error())
		return
	}

	w.mu.Lock()
	w.pagesGot++
	current := w.pagesGot
	w.mu.Unlock()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	emitProgress(int64(current), int64(w.maxPages), "fetching", fmt.Sprintf("fetched %s (%s)", p.url, title))

	if current == w.maxPages/2 && current > 0 {
		emitMilestone("halfway", "job", w.jobID, "reached half of max-pages budget")
	}

	w.extractLinks(doc, p)
}

// extractLinks mirrors link_extractor.go's <a href> walk and relative-URL
// resolution, trimmed to same-host following since this reference worker
// has no domain policy of its own (that lives in the in-process Planner).
func (w *worker) extractLinks(doc *goquery.Document, from pendingURL) {
	base, err := url.Parse(from.url)
	if err != nil {
		return
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil || resolved.Host != base.Host {
			return
		}
		resolved.Fragment = ""
		w.enqueue(pendingURL{url: resolved.String(), depth: from.depth + 1}, "link")
	})
}
