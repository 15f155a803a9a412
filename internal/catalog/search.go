package catalog

import (
	"fmt"
	"strings"

	"github.com/mantonx/liveset-cataloger/internal/catalogdb"
)

// SearchResult pairs a hydrated Project with why it matched.
type SearchResult struct {
	Project      catalogdb.Project
	MatchReasons []MatchReason
}

// Search dispatches to the FTS path when the query carries recognized
// operators, to the simple LIKE search when it carries only free text, and
// to the empty-result short-circuit when it carries neither.
// The distinction between "simple" and "FTS" search that the original
// implementation routed through separate, inconsistent code paths is
// unified here: both share ParseQuery and Query.Empty, per the Open
// Question resolution in DESIGN.md.
func (s *Store) Search(raw string) ([]SearchResult, error) {
	q := ParseQuery(raw)
	if q.Empty() {
		return nil, nil
	}

	if len(q.Conditions) == 0 {
		return s.simpleSearch(q.FreeText)
	}
	return s.ftsSearch(q)
}

// simpleSearch is the LIKE-pattern fallback across name/plugin/sample/
// vendor, used when the grammar yields no recognized operators.
func (s *Store) simpleSearch(text string) ([]SearchResult, error) {
	pattern := "%" + text + "%"

	var ids []uint
	err := s.DB.Raw(`
		SELECT DISTINCT p.id FROM projects p
		LEFT JOIN project_plugins pp ON pp.project_id = p.id
		LEFT JOIN plugins pl ON pl.id = pp.plugin_id
		LEFT JOIN project_samples ps ON ps.project_id = p.id
		LEFT JOIN samples sm ON sm.id = ps.sample_id
		WHERE p.is_active = true AND (
			p.name LIKE ? OR pl.name LIKE ? OR sm.name LIKE ? OR pl.vendor LIKE ?
		)`, pattern, pattern, pattern, pattern).Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("simple search: %w", err)
	}

	return s.hydrate(ids, nil)
}

// ftsSearch compiles the parsed conditions into column-scoped FTS MATCH
// predicates, ANDed together, plus the free-text remainder as an
// unscoped predicate.
func (s *Store) ftsSearch(q Query) ([]SearchResult, error) {
	var matchParts []string
	reasonByColumn := make(map[string]MatchReason)

	for _, c := range q.Conditions {
		reasonByColumn[c.column] = c.reason
		if c.prefix {
			matchParts = append(matchParts, fmt.Sprintf(`%s: %s*`, c.column, ftsQuote(c.value)))
		} else {
			matchParts = append(matchParts, fmt.Sprintf(`%s: %s*`, c.column, ftsQuote(c.value)))
		}
	}
	if strings.TrimSpace(q.FreeText) != "" {
		matchParts = append(matchParts, ftsQuote(q.FreeText))
	}

	matchExpr := strings.Join(matchParts, " AND ")

	type row struct {
		ProjectID uint
	}
	var rows []row
	err := s.DB.Raw(`
		SELECT project_id FROM projects_fts WHERE projects_fts MATCH ? ORDER BY rank
	`, matchExpr).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}

	ids := make([]uint, len(rows))
	for i, r := range rows {
		ids[i] = r.ProjectID
	}

	var reasons []MatchReason
	for _, r := range reasonByColumn {
		reasons = append(reasons, r)
	}
	return s.hydrate(ids, reasons)
}

func ftsQuote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func (s *Store) hydrate(ids []uint, reasons []MatchReason) ([]SearchResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var projects []catalogdb.Project
	err := s.DB.Preload("Plugins").Preload("Samples").Preload("Tags").
		Where("id IN ? AND is_active = ?", ids, true).Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("hydrate projects: %w", err)
	}

	results := make([]SearchResult, len(projects))
	for i, p := range projects {
		results[i] = SearchResult{Project: p, MatchReasons: reasons}
	}
	return results, nil
}
