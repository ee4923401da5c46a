package acebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"
)

const (
	columnDocsID   = "docs_id"
	columnDocsPage = "page"
)

// DocsEntry is a single documentation entry. An entry with a non-nil Page
// and a nil Fragment is a page header, representing the whole page; a
// non-nil Fragment marks a sub-entry belonging to the page named by Page.
// Entries are created during corpus ingestion and immutable until the next
// rebuild.
type DocsEntry struct {
	ModelUintID
	Content  string  `json:"content" gorm:"type:string"`
	Link     *string `json:"link" gorm:"type:string"`
	Page     *string `json:"page" gorm:"type:string;index"`
	Fragment *string `json:"fragment" gorm:"type:string"`
}

func (DocsEntry) TableName() string {
	return "docs_entry"
}

// IsPageHeader reports whether the entry represents an entire page.
func (e DocsEntry) IsPageHeader() bool {
	return e.Page != nil && e.Fragment == nil
}

func (e DocsEntry) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("id", uint64(e.ID)),
		slog.String("link", stringPointerValue(e.Link)),
		slog.String("page", stringPointerValue(e.Page)),
		slog.String("fragment", stringPointerValue(e.Fragment)),
	)
}

// DocsName maps a lookup name to a [DocsEntry]. Multiple names may map to
// the same entry (aliases). Lookups are lowercase-normalized.
type DocsName struct {
	ModelUintID
	DocsID uint   `json:"docs_id" gorm:"index;not null"`
	Name   string `json:"name" gorm:"index;not null"`
}

func (DocsName) TableName() string {
	return "docs_name"
}

// DocsSyntax is an optional code-signature block for an entry; at most one
// per entry.
type DocsSyntax struct {
	ModelUintID
	DocsID uint   `json:"docs_id" gorm:"index;not null"`
	Syntax string `json:"syntax" gorm:"type:string"`
}

func (DocsSyntax) TableName() string {
	return "docs_syntax"
}

// nameIndexEntry is one row of the in-memory name index used by the
// similarity tier. The lowercased name is precomputed so ranking a query
// doesn't re-normalize every candidate.
type nameIndexEntry struct {
	nameID uint
	docsID uint
	lower  string
	name   string
}

// DocsStore is the queryable corpus of documentation entries, names and
// syntax blocks, backed by gorm tables plus an in-memory name index for
// the similarity tier. The index is a snapshot swapped atomically on
// rebuild, so concurrent readers never rank against a half-built corpus.
type DocsStore struct {
	db     *gorm.DB
	logger *slog.Logger

	mu    sync.RWMutex
	names []nameIndexEntry
}

func NewDocsStore(db *gorm.DB, logger *slog.Logger) *DocsStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocsStore{
		db:     db,
		logger: logger.With(loggerNameKey, "docs_store"),
	}
}

// LoadNameIndex (re)builds the in-memory name index from the docs_name
// table. Called at startup and after every successful rebuild.
func (s *DocsStore) LoadNameIndex() error {
	var rows []DocsName
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return fmt.Errorf("error loading docs names: %w", err)
	}
	index := make([]nameIndexEntry, 0, len(rows))
	for _, row := range rows {
		index = append(
			index, nameIndexEntry{
				nameID: row.ID,
				docsID: row.DocsID,
				lower:  strings.ToLower(row.Name),
				name:   row.Name,
			},
		)
	}
	s.mu.Lock()
	s.names = index
	s.mu.Unlock()
	s.logger.Info("loaded docs name index", "names", len(index))
	return nil
}

func (s *DocsStore) nameIndex() []nameIndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names
}

// FindByExactName returns the name row matching the given name exactly
// (case-insensitive), or nil if there is none.
func (s *DocsStore) FindByExactName(name string) (*DocsName, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, nil
	}
	for _, entry := range s.nameIndex() {
		if entry.lower == name {
			return &DocsName{
				ModelUintID: ModelUintID{ID: entry.nameID},
				DocsID:      entry.docsID,
				Name:        entry.name,
			}, nil
		}
	}
	return nil, nil
}

// FindSimilar returns up to limit name rows ranked by trigram similarity
// to the given name, descending. Names with no trigram overlap at all are
// excluded.
func (s *DocsStore) FindSimilar(name string, limit int) ([]DocsName, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || limit <= 0 {
		return nil, nil
	}

	type scored struct {
		entry nameIndexEntry
		score float64
	}
	index := s.nameIndex()
	candidates := make([]scored, 0, len(index))
	for _, entry := range index {
		score := trigramSimilarity(name, entry.lower)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, scored{entry: entry, score: score})
	}
	sort.SliceStable(
		candidates, func(i, j int) bool {
			return candidates[i].score > candidates[j].score
		},
	)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	results := make([]DocsName, 0, len(candidates))
	for _, c := range candidates {
		results = append(
			results, DocsName{
				ModelUintID: ModelUintID{ID: c.entry.nameID},
				DocsID:      c.entry.docsID,
				Name:        c.entry.name,
			},
		)
	}
	return results, nil
}

// FindPageHeader returns the page-header entry (fragment IS NULL) whose
// page name is most similar to the query, or nil when the corpus has no
// page resembling it.
func (s *DocsStore) FindPageHeader(query string) (*DocsEntry, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}
	var headers []DocsEntry
	err := s.db.Where("fragment IS NULL AND page IS NOT NULL").Find(&headers).Error
	if err != nil {
		return nil, fmt.Errorf("error loading page headers: %w", err)
	}

	var best *DocsEntry
	bestScore := 0.0
	for i := range headers {
		score := trigramSimilarity(query, *headers[i].Page)
		if score > bestScore {
			best = &headers[i]
			bestScore = score
		}
	}
	return best, nil
}

// FindEntriesOnPage returns the sub-entries of the given page, in
// insertion order.
func (s *DocsStore) FindEntriesOnPage(page string) ([]DocsEntry, error) {
	var entries []DocsEntry
	err := s.db.Where(
		"page = ? AND fragment IS NOT NULL", page,
	).Order("id").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("error loading page entries: %w", err)
	}
	return entries, nil
}

// GetEntry returns the entry with the given ID, or nil if it doesn't exist.
func (s *DocsStore) GetEntry(id uint) (*DocsEntry, error) {
	var entry DocsEntry
	err := s.db.Take(&entry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// GetSyntax returns the syntax block for the given entry ID, or nil when
// the entry has none.
func (s *DocsStore) GetSyntax(docsID uint) (*DocsSyntax, error) {
	var syntax DocsSyntax
	err := s.db.Take(&syntax, "docs_id = ?", docsID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &syntax, nil
}

// DocsCounts summarizes corpus table sizes, for the status API.
type DocsCounts struct {
	Entries  int64 `json:"entries"`
	Names    int64 `json:"names"`
	Syntaxes int64 `json:"syntaxes"`
}

func (s *DocsStore) Counts() (DocsCounts, error) {
	var counts DocsCounts
	if err := s.db.Model(&DocsEntry{}).Count(&counts.Entries).Error; err != nil {
		return counts, err
	}
	if err := s.db.Model(&DocsName{}).Count(&counts.Names).Error; err != nil {
		return counts, err
	}
	if err := s.db.Model(&DocsSyntax{}).Count(&counts.Syntaxes).Error; err != nil {
		return counts, err
	}
	return counts, nil
}

// Rebuild atomically replaces the entire corpus with the given entries.
// All three tables are truncated and repopulated inside one transaction,
// so a failed rebuild rolls back and never leaves the store empty; the
// in-memory name index only swaps after the transaction commits.
func (s *DocsStore) Rebuild(ctx context.Context, entries []CorpusEntry) error {
	if len(entries) == 0 {
		return errors.New("refusing to rebuild from an empty corpus")
	}
	err := s.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			for _, table := range []string{"docs_name", "docs_syntax", "docs_entry"} {
				if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
					return fmt.Errorf("error clearing %s: %w", table, err)
				}
			}
			for _, corpusEntry := range entries {
				if err := insertCorpusEntry(tx, corpusEntry); err != nil {
					return err
				}
			}
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("rebuild aborted: %w", err)
	}
	return s.LoadNameIndex()
}

func insertCorpusEntry(tx *gorm.DB, corpusEntry CorpusEntry) error {
	page, fragment := corpusEntry.pageAndFragment()
	entry := DocsEntry{
		Content:  corpusEntry.Desc,
		Link:     corpusEntry.Link,
		Page:     page,
		Fragment: fragment,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("error inserting docs entry: %w", err)
	}
	for _, name := range corpusEntry.Names {
		docsName := DocsName{DocsID: entry.ID, Name: name}
		if err := tx.Create(&docsName).Error; err != nil {
			return fmt.Errorf("error inserting docs name %q: %w", name, err)
		}
	}
	if corpusEntry.Syntax != nil {
		docsSyntax := DocsSyntax{DocsID: entry.ID, Syntax: *corpusEntry.Syntax}
		if err := tx.Create(&docsSyntax).Error; err != nil {
			return fmt.Errorf("error inserting docs syntax: %w", err)
		}
	}
	return nil
}
