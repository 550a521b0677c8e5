package extract

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// QualityConfig tunes the page admission filter.
type QualityConfig struct {
	MinContentLength int
	MaxContentLength int
	BlockedDomains   []string
	BlockedPaths     []string
}

// Defaults mirror the quality thresholds this filter has always shipped with.
func (c *QualityConfig) applyDefaults() {
	if c.MinContentLength <= 0 {
		c.MinContentLength = 200
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = 20000
	}
	if c.BlockedDomains == nil {
		c.BlockedDomains = []string{
			"facebook.com", "twitter.com", "instagram.com", "linkedin.com",
			"youtube.com", "tiktok.com", "pinterest.com", "reddit.com",
		}
	}
	if c.BlockedPaths == nil {
		c.BlockedPaths = []string{
			"/login", "/signup", "/register", "/logout", "/password",
			"/admin", "/dashboard", "/account", "/profile",
		}
	}
}

var blockedExtensions = []string{".pdf", ".doc", ".docx", ".zip", ".rar", ".jpg", ".jpeg", ".png", ".gif", ".css", ".js"}

var placeholderPhrases = []string{
	"page not found", "404", "under construction", "coming soon",
	"login required", "access denied",
}

// QualityFilter rejects low-signal pages and duplicate content before they
// reach the index. Safe for concurrent use by crawler workers.
type QualityFilter struct {
	cfg QualityConfig

	mu   sync.Mutex
	seen map[string]struct{} // content hashes observed this process
}

// NewQualityFilter builds a filter with defaults applied.
func NewQualityFilter(cfg QualityConfig) *QualityFilter {
	cfg.applyDefaults()
	return &QualityFilter{
		cfg:  cfg,
		seen: make(map[string]struct{}),
	}
}

// AllowURL reports whether a URL may be crawled at all.
func (f *QualityFilter) AllowURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, blocked := range f.cfg.BlockedDomains {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return false
		}
	}
	path := strings.ToLower(u.Path)
	for _, blocked := range f.cfg.BlockedPaths {
		if strings.HasPrefix(path, blocked) {
			return false
		}
	}
	for _, ext := range blockedExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return true
}

// Verdict explains why a page was rejected, for crawl logs.
type Verdict string

const (
	VerdictOK          Verdict = "ok"
	VerdictTooShort    Verdict = "too_short"
	VerdictTooLong     Verdict = "too_long"
	VerdictPlaceholder Verdict = "placeholder"
	VerdictLowDensity  Verdict = "low_density"
	VerdictDuplicate   Verdict = "duplicate"
)

// Check applies length, placeholder, density, and duplicate-hash checks to
// extracted page text. A rejected page still counts toward the crawl's page
// budget; it just never reaches the index.
func (f *QualityFilter) Check(text string) Verdict {
	if len(text) < f.cfg.MinContentLength {
		return VerdictTooShort
	}
	if len(text) > f.cfg.MaxContentLength {
		return VerdictTooLong
	}
	lowered := strings.ToLower(text)
	for _, phrase := range placeholderPhrases {
		if strings.Contains(lowered, phrase) {
			return VerdictPlaceholder
		}
	}
	// Extracted text arrives whitespace-collapsed, so density is judged by
	// vocabulary: a long page cycling through the same few words is
	// navigation chrome or boilerplate, not prose.
	if words := strings.Fields(lowered); len(words) > 50 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}
		if len(unique)*5 < len(words) {
			return VerdictLowDensity
		}
	}

	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[hash]; dup {
		return VerdictDuplicate
	}
	f.seen[hash] = struct{}{}
	return VerdictOK
}
