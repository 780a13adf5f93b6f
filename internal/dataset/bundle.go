// Package dataset loads health export bundles: a zip archive, a directory or a
// single CSV, TSV or XLSX file, each holding one dataset named after the file.
package dataset

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/healthloom-cli/internal/logger"
	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

// Reader turns one bundle member into a table.
type Reader interface {
	CanRead(filename string) bool
	Read(name string, r io.Reader) (*Table, error)
}

var registry []Reader

// Register adds a reader implementation to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

type csvReader struct{}

func (csvReader) CanRead(filename string) bool {
	return strings.EqualFold(path.Ext(filename), ".csv")
}

func (csvReader) Read(name string, r io.Reader) (*Table, error) { return ReadCSV(name, r, 0) }

type tsvReader struct{}

func (tsvReader) CanRead(filename string) bool {
	return strings.EqualFold(path.Ext(filename), ".tsv")
}

func (tsvReader) Read(name string, r io.Reader) (*Table, error) { return ReadCSV(name, r, '\t') }

func init() {
	Register(csvReader{})
	Register(tsvReader{})
	Register(xlsxReader{})
}

func readerFor(filename string) Reader {
	for _, r := range registry {
		if r.CanRead(filename) {
			return r
		}
	}
	return nil
}

// Bundle is a loaded export: one table per dataset name.
type Bundle struct {
	ID       uuid.UUID
	Path     string
	LoadedAt time.Time
	Tables   map[string]*Table
	// Skipped lists members that were ignored or failed to parse.
	Skipped []string
}

// DatasetName derives the dataset identifier from a member path, e.g.
// "export/StepCount.csv" -> "StepCount".
func DatasetName(member string) string {
	base := path.Base(filepath.ToSlash(member))
	return strings.TrimSuffix(base, path.Ext(base))
}

func ignored(member string) bool {
	m := filepath.ToSlash(member)
	if strings.HasPrefix(m, "__MACOSX/") || strings.Contains(m, "/__MACOSX/") {
		return true
	}
	return strings.HasPrefix(path.Base(m), ".")
}

func newBundle(p string) *Bundle {
	return &Bundle{ID: uuid.New(), Path: p, LoadedAt: time.Now(), Tables: map[string]*Table{}}
}

// Load reads a bundle from a zip archive, a directory or a single CSV, TSV or XLSX file.
// Unreadable members are logged and skipped; only an unusable path fails.
func Load(p string) (*Bundle, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	var b *Bundle
	switch {
	case info.IsDir():
		b, err = loadDir(p)
	case strings.EqualFold(filepath.Ext(p), ".zip"):
		b, err = loadZipFile(p)
	default:
		b, err = loadSingle(p)
	}
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("bundle", b.ID.String()).
		Str("path", p).
		Int("datasets", len(b.Tables)).
		Int("skipped", len(b.Skipped)).
		Msg("bundle loaded")
	return b, nil
}

func loadZipFile(p string) (*Bundle, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()
	b := newBundle(p)
	b.addZip(&zr.Reader)
	return b, nil
}

// FromZip loads a bundle from an in-memory archive.
func FromZip(r io.ReaderAt, size int64, name string) (*Bundle, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	b := newBundle(name)
	b.addZip(zr)
	return b, nil
}

func (b *Bundle) addZip(zr *zip.Reader) {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || ignored(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			b.skip(f.Name, err)
			continue
		}
		b.add(f.Name, rc)
		rc.Close()
	}
}

func loadDir(p string) (*Bundle, error) {
	b := newBundle(p)
	err := filepath.WalkDir(p, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(p, fp)
		if d.IsDir() {
			if fp != p && ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignored(rel) {
			return nil
		}
		f, err := os.Open(fp)
		if err != nil {
			b.skip(rel, err)
			return nil
		}
		defer f.Close()
		b.add(rel, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk bundle: %w", err)
	}
	return b, nil
}

func loadSingle(p string) (*Bundle, error) {
	if readerFor(p) == nil {
		return nil, fmt.Errorf("unsupported bundle %s (want .zip, .csv, .tsv, .xlsx or a directory)", filepath.Base(p))
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()
	b := newBundle(p)
	b.add(filepath.Base(p), f)
	if len(b.Tables) == 0 {
		return nil, fmt.Errorf("read %s: %s", filepath.Base(p), strings.Join(b.Skipped, "; "))
	}
	return b, nil
}

func (b *Bundle) add(member string, r io.Reader) {
	rd := readerFor(member)
	if rd == nil {
		logger.Debug().Str("member", member).Msg("no reader, skipping")
		b.Skipped = append(b.Skipped, member)
		return
	}
	name := DatasetName(member)
	if _, dup := b.Tables[name]; dup {
		b.skip(member, fmt.Errorf("duplicate dataset %q", name))
		return
	}
	t, err := rd.Read(name, r)
	if err != nil {
		b.skip(member, err)
		return
	}
	b.Tables[name] = t
	logger.Debug().Str("dataset", name).Int("rows", len(t.Rows)).Msg("dataset read")
}

func (b *Bundle) skip(member string, err error) {
	logger.Warn().Err(err).Str("member", member).Msg("skipping bundle member")
	b.Skipped = append(b.Skipped, fmt.Sprintf("%s: %v", member, err))
}

// Names returns the dataset names in lexical order.
func (b *Bundle) Names() []string {
	names := make([]string, 0, len(b.Tables))
	for n := range b.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Datasets converts every table into a metric series.
func (b *Bundle) Datasets() metrics.Datasets {
	ds := make(metrics.Datasets, len(b.Tables))
	for n, t := range b.Tables {
		ds[n] = t.Series()
	}
	return ds
}
