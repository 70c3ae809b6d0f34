package audit

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []*Record {
	return []*Record{
		{
			Seq: 1, Type: TypeRegistration, Action: "register", Result: ResultSuccess,
			Actor: "alice", Subject: "orders.created", SchemaID: "sha256:aaa",
			Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			PrevHash:  genesisHash, SelfHash: "deadbeef",
		},
		{
			Seq: 2, Type: TypeLifecycle, Action: "activate", Result: ResultSuccess,
			Actor: "bob", Subject: "orders.created",
			Timestamp: time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC),
			PrevHash:  "deadbeef", SelfHash: "cafebabe",
		},
	}
}

func TestExportJSON(t *testing.T) {
	data, err := exportJSON(sampleRecords())
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	var parsed []*Record
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Len(t, parsed, 2)
}

func TestExportNDJSON(t *testing.T) {
	data, err := exportNDJSON(sampleRecords())
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	lines := strings.Split(string(data), "\n")
	valid := 0
	for _, line := range lines {
		if line == "" {
			continue
		}
		var r Record
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		valid++
	}
	assert.Equal(t, 2, valid)
}

func TestExportCSV(t *testing.T) {
	data, err := exportCSV(sampleRecords())
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	lines := strings.Split(string(data), "\n")
	assert.GreaterOrEqual(t, len(lines), 3)

	header := lines[0]
	assert.Contains(t, header, "Seq")
	assert.Contains(t, header, "Actor")
	assert.Contains(t, header, "SelfHash")

	assert.Contains(t, lines[1], "alice")
	assert.Contains(t, lines[1], "registration")
}

func TestExportCSV_EmptyRecords(t *testing.T) {
	data, err := exportCSV(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, data) // header only

	lines := strings.Split(string(data), "\n")
	assert.GreaterOrEqual(t, len(lines), 1)
}

func TestExportCSV_RedactedRecord(t *testing.T) {
	records := []*Record{
		{Seq: 1, Type: TypeDeletion, Action: "delete", Result: ResultSuccess, Actor: "carol", Redacted: true},
	}

	data, err := exportCSV(records)
	require.NoError(t, err)

	lines := strings.Split(string(data), "\n")
	assert.Contains(t, lines[1], "true")
}
