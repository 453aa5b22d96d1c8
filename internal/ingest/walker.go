package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

// source is one corpus document accepted for ingestion.
type source struct {
	abs   string
	class hierarchy.Classification
}

// walkResult is the classified content of a corpus walk.
type walkResult struct {
	byPartition map[hierarchy.Partition][]source
	skipped     int
	unsupported int
}

// ignored reports whether a directory entry is never part of the corpus:
// hidden files and directories, and office lock files.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
}

func (p *Pipeline) supported(name string) bool {
	return slices.Contains(p.cfg.Extensions, strings.ToLower(filepath.Ext(name)))
}

// walk classifies every supported document under dir. dir is the corpus
// root or one company directory inside it.
func (p *Pipeline) walk(ctx context.Context, classifier *hierarchy.Classifier, dir string) (*walkResult, error) {
	res := &walkResult{byPartition: map[hierarchy.Partition][]source{}}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			p.logger.Warn("skipping unreadable entry", zap.String("path", path), zap.Error(err))
			res.skipped++
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != dir && ignored(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !p.supported(d.Name()) {
			res.unsupported++
			return nil
		}

		cl, err := classifier.Classify(path)
		if err != nil {
			p.logger.Warn("skipping unclassifiable document", zap.String("path", path), zap.Error(err))
			res.skipped++
			return nil
		}
		part := cl.Partition()
		res.byPartition[part] = append(res.byPartition[part], source{abs: path, class: cl})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// companyPartitions lists the partitions of the company directories
// directly under root.
func companyPartitions(classifier *hierarchy.Classifier, root string) ([]hierarchy.Partition, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("listing corpus root: %w", err)
	}
	var out []hierarchy.Partition
	for _, e := range entries {
		if !e.IsDir() || ignored(e.Name()) {
			continue
		}
		cl, err := classifier.ClassifySegments([]string{e.Name()})
		if err != nil || cl.Level == hierarchy.LevelGeneral {
			continue
		}
		out = append(out, cl.Partition())
	}
	return out, nil
}

// readText reads a document and checks it is UTF-8 text.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.New("not valid UTF-8 text")
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}

// companyDir returns the directory holding company's documents, or an
// error when company is not a valid company name for this corpus.
func (p *Pipeline) companyDir(root, company string) (string, error) {
	if _, err := hierarchy.NewMetadata(company, "", ""); err != nil {
		return "", fmt.Errorf("%w: company %q: %v", hierarchy.ErrInvalidScope, company, err)
	}
	if slices.Contains(p.cfg.GeneralDirs, company) {
		return "", fmt.Errorf("%w: %q names the general area, not a company", hierarchy.ErrInvalidScope, company)
	}
	return filepath.Join(root, company), nil
}
