package catalog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/timmy/stylematch/internal/config"
	"github.com/timmy/stylematch/internal/domain"
	"github.com/timmy/stylematch/internal/repository"
	"gorm.io/gorm"
)

// maxLineSize bounds a single JSONL record. Catalog lines carry long
// descriptions, so the bufio default of 64KiB is too small.
const maxLineSize = 4 << 20

// Loader produces the full catalog for one run.
type Loader interface {
	Load(ctx context.Context) ([]domain.ProductRecord, error)
}

// TypeCounter is implemented by loaders that can count records per
// product_type without loading the whole catalog.
type TypeCounter interface {
	CountByType(ctx context.Context) (map[string]int, error)
}

// FileLoader reads a JSON Lines catalog: one product object per line.
type FileLoader struct {
	path  string
	limit int
}

// NewFileLoader creates a loader for the JSONL file at path. A positive limit
// keeps only the first limit records.
func NewFileLoader(path string, limit int) *FileLoader {
	return &FileLoader{path: path, limit: limit}
}

// Load implements Loader.
func (l *FileLoader) Load(ctx context.Context) ([]domain.ProductRecord, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, &domain.CatalogError{Source: l.path, Err: err}
	}
	defer file.Close()

	return readJSONL(ctx, l.path, file, l.limit)
}

func readJSONL(ctx context.Context, source string, r io.Reader, limit int) ([]domain.ProductRecord, error) {
	var records []domain.ProductRecord

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec domain.ProductRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, &domain.CatalogError{Source: source, Line: lineNum, Err: err}
		}
		records = append(records, rec)

		if limit > 0 && len(records) >= limit {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &domain.CatalogError{Source: source, Line: lineNum + 1, Err: err}
	}

	if err := Validate(source, records); err != nil {
		return nil, err
	}
	return records, nil
}

// DBLoader reads the catalog from the products table.
type DBLoader struct {
	repo  *repository.ProductRepository
	limit int
}

// NewDBLoader creates a loader backed by repo.
func NewDBLoader(repo *repository.ProductRepository, limit int) *DBLoader {
	return &DBLoader{repo: repo, limit: limit}
}

// Load implements Loader.
func (l *DBLoader) Load(ctx context.Context) ([]domain.ProductRecord, error) {
	products, err := l.repo.List(ctx, l.limit)
	if err != nil {
		return nil, &domain.CatalogError{Source: "database", Err: err}
	}

	records := make([]domain.ProductRecord, 0, len(products))
	for _, p := range products {
		records = append(records, p.ToRecord())
	}
	if err := Validate("database", records); err != nil {
		return nil, err
	}
	return records, nil
}

// CountByType implements TypeCounter. With a limit set the counts come from
// the limited load, so they match what a run sees.
func (l *DBLoader) CountByType(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	if l.limit > 0 {
		records, err := l.Load(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			counts[r.ProductType]++
		}
		return counts, nil
	}

	rows, err := l.repo.CountByType(ctx)
	if err != nil {
		return nil, &domain.CatalogError{Source: "database", Err: err}
	}
	for t, n := range rows {
		counts[t] = int(n)
	}
	return counts, nil
}

// NewLoader builds the Loader selected by cfg.Source. db is only required for
// the database source.
func NewLoader(cfg *config.CatalogConfig, db *gorm.DB) (Loader, error) {
	switch cfg.Source {
	case "file":
		return NewFileLoader(cfg.Path, cfg.Limit), nil
	case "database":
		if db == nil {
			return nil, errors.New("catalog: database source requires a database connection")
		}
		return NewDBLoader(repository.NewProductRepository(db), cfg.Limit), nil
	default:
		return nil, fmt.Errorf("catalog: unknown source %q", cfg.Source)
	}
}

// Validate checks the catalog-wide invariants: every record has a product_id
// and no product_id appears twice.
func Validate(source string, records []domain.ProductRecord) error {
	seen := make(map[string]int, len(records))
	for i, r := range records {
		if r.ProductID == "" {
			return &domain.CatalogError{Source: source, Err: fmt.Errorf("record %d has no product_id", i)}
		}
		if prev, dup := seen[r.ProductID]; dup {
			return &domain.CatalogError{
				Source: source,
				Err:    fmt.Errorf("duplicate product_id %s (records %d and %d)", r.ProductID, prev, i),
			}
		}
		seen[r.ProductID] = i
	}
	return nil
}
