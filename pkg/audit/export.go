package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// exportJSON exports records as a JSON array.
func exportJSON(records []*Record) ([]byte, error) {
	return json.MarshalIndent(records, "", "  ")
}

// exportNDJSON exports records as newline-delimited JSON.
func exportNDJSON(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for _, r := range records {
		if err := encoder.Encode(r); err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", r.Seq, err)
		}
	}

	return buf.Bytes(), nil
}

// exportCSV exports records as CSV.
func exportCSV(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"Seq",
		"Type",
		"Action",
		"Result",
		"Actor",
		"Subject",
		"SchemaID",
		"Timestamp",
		"PrevHash",
		"SelfHash",
		"Redacted",
	}

	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.Seq, 10),
			string(r.Type),
			r.Action,
			string(r.Result),
			r.Actor,
			r.Subject,
			r.SchemaID,
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.PrevHash,
			r.SelfHash,
			strconv.FormatBool(r.Redacted),
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}
