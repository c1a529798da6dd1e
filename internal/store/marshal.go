package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clinforge/sdtmap/internal/sdtm"
)

// marshalRecord converts an output record to canonical JSON TEXT for
// storage. Uses RFC 8785 canonical JSON so the stored payload is
// byte-identical across runs that produced the same record.
func marshalRecord(r *sdtm.OutputRecord) (string, error) {
	variables := make([]any, len(r.Variables))
	for i, v := range r.Variables {
		variables[i] = v
	}
	values := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	data, err := sdtm.MarshalCanonical(map[string]any{
		"domain":    r.Domain,
		"variables": variables,
		"values":    values,
	})
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// unmarshalRecord parses a stored payload back into an output record.
// Diagnostics and source position are not archived; the restored
// record carries its archive position as SourceIndex.
func unmarshalRecord(payload string, seq int) (*sdtm.OutputRecord, error) {
	var raw struct {
		Domain    string            `json:"domain"`
		Variables []string          `json:"variables"`
		Values    map[string]string `json:"values"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	rec := sdtm.NewOutputRecord(raw.Domain, seq)
	for _, v := range raw.Variables {
		rec.Set(v, raw.Values[v])
	}
	return rec, nil
}

// marshalReport converts a compliance report to JSON TEXT.
// Uses json.Encoder with HTML escaping disabled so stored reports match
// the canonical form used for hashing.
func marshalReport(r sdtm.ComplianceReport) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalReport parses JSON TEXT to a ComplianceReport.
func unmarshalReport(data string) (sdtm.ComplianceReport, error) {
	var r sdtm.ComplianceReport
	if data == "" || data == "{}" {
		return r, nil
	}
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return sdtm.ComplianceReport{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return r, nil
}
