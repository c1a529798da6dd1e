package store

import (
	"context"
	"fmt"

	"github.com/clinforge/sdtmap/internal/sdtm"
)

// RunSummary is the archived header of one run.
type RunSummary struct {
	ID              string
	Domain          string
	Score           float64
	SubmissionReady bool
	Iterations      int
	ReportHash      string
}

// ListRuns returns the archived runs for a domain, or for every domain
// when domain is empty. Run ids are UUIDv7, so binary id order is
// creation order.
//
// Returns an empty slice (not nil) if nothing is archived.
func (s *Store) ListRuns(ctx context.Context, domain string) ([]RunSummary, error) {
	query := `
		SELECT id, domain, score, submission_ready, iterations, report_hash
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`
	args := []any{}
	if domain != "" {
		query = `
			SELECT id, domain, score, submission_ready, iterations, report_hash
			FROM runs
			WHERE domain = ?
			ORDER BY id COLLATE BINARY ASC
		`
		args = append(args, domain)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var ready int
		if err := rows.Scan(&r.ID, &r.Domain, &r.Score, &ready, &r.Iterations, &r.ReportHash); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.SubmissionReady = ready != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	if runs == nil {
		runs = []RunSummary{}
	}
	return runs, nil
}

// ReadRun retrieves one run header by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, runID string) (RunSummary, error) {
	var r RunSummary
	var ready int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, domain, score, submission_ready, iterations, report_hash
		FROM runs
		WHERE id = ?
	`, runID).Scan(&r.ID, &r.Domain, &r.Score, &ready, &r.Iterations, &r.ReportHash)
	if err != nil {
		return RunSummary{}, err
	}
	r.SubmissionReady = ready != 0
	return r, nil
}

// ReadReport retrieves a run's full compliance report.
// Returns sql.ErrNoRows if the run is not archived.
func (s *Store) ReadReport(ctx context.Context, runID string) (sdtm.ComplianceReport, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT report FROM runs WHERE id = ?
	`, runID).Scan(&data)
	if err != nil {
		return sdtm.ComplianceReport{}, err
	}
	return unmarshalReport(data)
}

// ReadIssues returns a run's archived issues in report order.
//
// Returns an empty slice (not nil) if the run has no issues.
func (s *Store) ReadIssues(ctx context.Context, runID string) ([]sdtm.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, layer, severity, domain, variable, message, count, counting
		FROM issues
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var issues []sdtm.Issue
	for rows.Next() {
		var iss sdtm.Issue
		var layer, severity, counting string
		if err := rows.Scan(&iss.RuleID, &layer, &severity, &iss.Domain, &iss.Variable, &iss.Message, &iss.Count, &counting); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		iss.Layer = sdtm.Layer(layer)
		iss.Severity = sdtm.Severity(severity)
		iss.Counting = sdtm.Counting(counting)
		issues = append(issues, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}

	if issues == nil {
		issues = []sdtm.Issue{}
	}
	return issues, nil
}

// ReadRecords returns a run's archived records in their final sorted
// order.
//
// Returns an empty slice (not nil) if the run archived no records.
func (s *Store) ReadRecords(ctx context.Context, runID string) ([]*sdtm.OutputRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, payload
		FROM records
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []*sdtm.OutputRecord
	for rows.Next() {
		var seq int
		var payload string
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := unmarshalRecord(payload, seq)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	if records == nil {
		records = []*sdtm.OutputRecord{}
	}
	return records, nil
}
