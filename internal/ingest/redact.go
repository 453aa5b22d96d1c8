package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksregexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// ErrInvalidAllowlist is returned for an unreadable or invalid allowlist file.
var ErrInvalidAllowlist = errors.New("invalid redaction allowlist")

// Redactor removes secrets from document text before it is chunked and
// embedded.
type Redactor interface {
	// Redact returns text with every detected secret replaced by a marker,
	// and the number of secrets replaced.
	Redact(path, text string) (string, int)
}

// Allowlist holds path and content patterns excluded from redaction.
type Allowlist struct {
	Paths   []string
	Regexes []string
}

// LoadAllowlist reads a gitleaks-style TOML allowlist:
//
//	[allowlist]
//	paths = ['''examples/.*''']
//	regexes = ['''DEMO_KEY_.*''']
func LoadAllowlist(path string) (*Allowlist, error) {
	var file struct {
		Allowlist Allowlist `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAllowlist, path, err)
	}
	for _, p := range append(append([]string(nil), file.Allowlist.Paths...), file.Allowlist.Regexes...) {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: pattern %q in %s: %v", ErrInvalidAllowlist, p, path, err)
		}
	}
	return &file.Allowlist, nil
}

// GitleaksRedactor detects secrets with the gitleaks default rule set.
type GitleaksRedactor struct {
	// mu serializes use of the detector, which keeps per-scan state.
	mu       sync.Mutex
	detector *detect.Detector
}

// NewGitleaksRedactor creates a redactor. allowlist may be nil.
func NewGitleaksRedactor(allowlist *Allowlist) (*GitleaksRedactor, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating gitleaks detector: %w", err)
	}
	if allowlist != nil {
		if err := applyAllowlist(&detector.Config, allowlist); err != nil {
			return nil, err
		}
	}
	return &GitleaksRedactor{detector: detector}, nil
}

// Redact replaces each detected secret with [REDACTED:<rule-id>].
func (r *GitleaksRedactor) Redact(path, text string) (string, int) {
	r.mu.Lock()
	findings := r.detector.Detect(detect.Fragment{Raw: text, FilePath: path})
	r.mu.Unlock()
	if len(findings) == 0 {
		return text, 0
	}

	// Longest secrets first so a secret containing another is replaced whole.
	sort.SliceStable(findings, func(i, j int) bool {
		return len(findings[i].Secret) > len(findings[j].Secret)
	})
	n := 0
	for _, f := range findings {
		if f.Secret == "" || !strings.Contains(text, f.Secret) {
			continue
		}
		text = strings.ReplaceAll(text, f.Secret, "[REDACTED:"+f.RuleID+"]")
		n++
	}
	return text, n
}

func applyAllowlist(cfg *gitleaksconfig.Config, allowlist *Allowlist) error {
	entry := &gitleaksconfig.Allowlist{Description: "hierctx corpus allowlist"}
	for _, p := range allowlist.Paths {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("%w: path pattern %q: %v", ErrInvalidAllowlist, p, err)
		}
		entry.Paths = append(entry.Paths, (*gitleaksregexp.Regexp)(re))
	}
	for _, p := range allowlist.Regexes {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("%w: content pattern %q: %v", ErrInvalidAllowlist, p, err)
		}
		entry.Regexes = append(entry.Regexes, (*gitleaksregexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, entry)
	return nil
}

// NewRedactor builds the redactor described by cfg, or nil when redaction
// is disabled.
func NewRedactor(cfg RedactionConfig) (Redactor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	var allowlist *Allowlist
	if cfg.Allowlist != "" {
		var err error
		if allowlist, err = LoadAllowlist(cfg.Allowlist); err != nil {
			return nil, err
		}
	}
	r, err := NewGitleaksRedactor(allowlist)
	if err != nil {
		return nil, err
	}
	return r, nil
}
