package hierarchy

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultGeneralDir is the corpus directory holding documents shared by all companies.
const DefaultGeneralDir = "general"

// Classification is the hierarchy position of one corpus document.
type Classification struct {
	Metadata

	// Path is the document path relative to the corpus root, slash separated.
	Path string

	// Extra holds directory segments below the employee level. They do not
	// affect classification.
	Extra []string
}

// Classifier maps corpus paths to hierarchy positions.
type Classifier struct {
	root    string
	general map[string]struct{}
}

// NewClassifier creates a classifier for the corpus at root. Top-level
// directories named in generalDirs hold general documents; with none given
// DefaultGeneralDir is used.
func NewClassifier(root string, generalDirs ...string) *Classifier {
	if len(generalDirs) == 0 {
		generalDirs = []string{DefaultGeneralDir}
	}
	c := &Classifier{
		root:    filepath.Clean(root),
		general: make(map[string]struct{}, len(generalDirs)),
	}
	for _, d := range generalDirs {
		c.general[d] = struct{}{}
	}
	return c
}

// Classify interprets path below the corpus root. Absolute paths must lie
// under the root; relative paths are taken relative to it.
func (c *Classifier) Classify(path string) (Classification, error) {
	rel := path
	if filepath.IsAbs(path) {
		var err error
		rel, err = filepath.Rel(c.root, path)
		if err != nil {
			return Classification{}, fmt.Errorf("%w: %s: %v", ErrMalformedPath, path, err)
		}
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return Classification{}, fmt.Errorf("%w: %s is outside corpus root %s", ErrMalformedPath, path, c.root)
	}

	segments := strings.Split(rel, "/")
	cl, err := c.ClassifySegments(segments[:len(segments)-1])
	if err != nil {
		return Classification{}, fmt.Errorf("%s: %w", rel, err)
	}
	cl.Path = rel
	return cl, nil
}

// ClassifySegments classifies a document from the directory segments
// between the corpus root and the file.
func (c *Classifier) ClassifySegments(dirs []string) (Classification, error) {
	if len(dirs) == 0 {
		return Classification{}, fmt.Errorf("%w: document is not inside a company or general directory", ErrMalformedPath)
	}
	for _, d := range dirs {
		if err := validSegment(d); err != nil {
			return Classification{}, fmt.Errorf("%w: %v", ErrMalformedPath, err)
		}
	}

	if _, ok := c.general[dirs[0]]; ok {
		return Classification{
			Metadata: Metadata{Level: LevelGeneral},
			Extra:    tail(dirs, 1),
		}, nil
	}

	var department, employee string
	if len(dirs) > 1 {
		department = dirs[1]
	}
	if len(dirs) > 2 {
		employee = dirs[2]
	}
	m, err := NewMetadata(dirs[0], department, employee)
	if err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrMalformedPath, err)
	}
	return Classification{Metadata: m, Extra: tail(dirs, 3)}, nil
}

func tail(s []string, from int) []string {
	if len(s) <= from {
		return nil
	}
	out := make([]string, len(s)-from)
	copy(out, s[from:])
	return out
}
