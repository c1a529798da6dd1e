package store

import (
	"context"
	"fmt"

	"github.com/clinforge/sdtmap/internal/sdtm"
)

// WriteRun archives one completed run: the run row, its issues, its
// layer sub-scores, and the final records, all in a single transaction.
//
// Every INSERT uses ON CONFLICT DO NOTHING for idempotency - archiving
// the same run id twice is a silent no-op. Other constraint violations
// (e.g., NOT NULL) still return errors.
//
// The report must carry a run id; records are archived in their final
// sorted order.
func (s *Store) WriteRun(ctx context.Context, report sdtm.ComplianceReport, state sdtm.CorrectionState, records []*sdtm.OutputRecord) error {
	if report.RunID == "" {
		return fmt.Errorf("write run: report has no run id")
	}

	reportHash, err := report.ReportHash()
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	reportJSON, err := marshalReport(report)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	ready := 0
	if report.SubmissionReady {
		ready = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, domain, score, submission_ready, iterations, report_hash, report)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		report.RunID,
		report.Domain,
		report.Score,
		ready,
		state.Iteration,
		reportHash,
		reportJSON,
	)
	if err != nil {
		return fmt.Errorf("write run: insert run: %w", err)
	}

	for i, iss := range report.Issues {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO issues
			(run_id, seq, rule_id, layer, severity, domain, variable, message, count, counting)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, seq) DO NOTHING
		`,
			report.RunID,
			i,
			iss.RuleID,
			string(iss.Layer),
			string(iss.Severity),
			iss.Domain,
			iss.Variable,
			iss.Message,
			iss.Count,
			string(iss.Counting),
		)
		if err != nil {
			return fmt.Errorf("write run: insert issue %d: %w", i, err)
		}
	}

	for _, ls := range report.LayerScores {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO layer_scores
			(run_id, layer, score, issue_count)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(run_id, layer) DO NOTHING
		`,
			report.RunID,
			string(ls.Layer),
			ls.Score,
			ls.IssueCount,
		)
		if err != nil {
			return fmt.Errorf("write run: insert layer score %s: %w", ls.Layer, err)
		}
	}

	for i, rec := range records {
		recordHash, err := rec.RecordHash()
		if err != nil {
			return fmt.Errorf("write run: record %d: %w", i, err)
		}
		payload, err := marshalRecord(rec)
		if err != nil {
			return fmt.Errorf("write run: record %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO records
			(run_id, seq, record_hash, payload)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(run_id, seq) DO NOTHING
		`,
			report.RunID,
			i,
			recordHash,
			payload,
		)
		if err != nil {
			return fmt.Errorf("write run: insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}

	return nil
}

// HasRun checks if a run id is already archived.
func (s *Store) HasRun(ctx context.Context, runID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM runs WHERE id = ?
	`, runID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check run: %w", err)
	}
	return count > 0, nil
}
