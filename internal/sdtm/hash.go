package sdtm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// enables future algorithm migration.
const (
	hashDomainRecord = "sdtmap/record/v1"
	hashDomainReport = "sdtmap/report/v1"
)

// hashWithDomain computes SHA-256 with domain separation. The null byte
// prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RecordHash computes the content-addressed identity of an output
// record: the same domain and values always hash alike, independent of
// map iteration order. Diagnostics and source position are excluded:
// the hash identifies what the record says, not how it was produced.
func (r *OutputRecord) RecordHash() (string, error) {
	values := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	canonical, err := MarshalCanonical(map[string]any{
		"domain": r.Domain,
		"values": values,
	})
	if err != nil {
		return "", fmt.Errorf("record hash: %w", err)
	}
	return hashWithDomain(hashDomainRecord, canonical), nil
}

// ReportHash computes the content-addressed identity of a compliance
// report, excluding the run ID so identical findings hash alike across
// runs.
func (r *ComplianceReport) ReportHash() (string, error) {
	issues := make([]any, len(r.Issues))
	for i, iss := range r.Issues {
		issues[i] = map[string]any{
			"rule_id":  iss.RuleID,
			"layer":    string(iss.Layer),
			"severity": string(iss.Severity),
			"variable": iss.Variable,
			"count":    iss.Count,
		}
	}
	canonical, err := MarshalCanonical(map[string]any{
		"domain": r.Domain,
		"score":  r.Score,
		"ready":  r.SubmissionReady,
		"issues": issues,
	})
	if err != nil {
		return "", fmt.Errorf("report hash: %w", err)
	}
	return hashWithDomain(hashDomainReport, canonical), nil
}
