package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSafeMigration(t *testing.T) {
	plan := &Plan{
		Diff:     SchemaDiff{ComplexityScore: 0.1},
		Strategy: StrategySafe,
	}
	report, err := NewValidator().Validate(plan)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, RiskLow, report.RiskLevel)
}

func TestCheckDataLossWarnsOnUnpreservedRemoval(t *testing.T) {
	changes := []SchemaChange{
		{Kind: ChangeFieldRemoved, FieldName: "old_field", PreserveData: false},
	}
	warnings := NewValidator().checkDataLoss(changes)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "data loss")
}

func TestCheckDataLossSilentWhenDataPreserved(t *testing.T) {
	changes := []SchemaChange{
		{Kind: ChangeFieldRemoved, FieldName: "old_field", PreserveData: true},
	}
	assert.Empty(t, NewValidator().checkDataLoss(changes))
}

func TestCheckTypeCompatibilityFlagsUnsafeConversion(t *testing.T) {
	changes := []SchemaChange{
		{Kind: ChangeTypeChanged, FieldName: "amount", OldType: "string", NewType: "integer"},
	}
	errors := NewValidator().checkTypeCompatibility(changes)
	require.Len(t, errors, 1)
	assert.Contains(t, errors[0], "unsafe type conversion")
}

func TestCheckTypeCompatibilityAllowsSafeWidening(t *testing.T) {
	changes := []SchemaChange{
		{Kind: ChangeTypeChanged, FieldName: "age", OldType: "integer", NewType: "long"},
	}
	assert.Empty(t, NewValidator().checkTypeCompatibility(changes))
}

func TestEstimatePerformance(t *testing.T) {
	plan := &Plan{
		Diff: SchemaDiff{Changes: []SchemaChange{
			{Kind: ChangeFieldAdded, FieldName: "new_field"},
		}},
	}
	estimate := NewValidator().EstimatePerformance(plan, 10000)
	assert.Greater(t, estimate.EstimatedDuration.Milliseconds(), int64(0))
	assert.True(t, estimate.ParallelSafe)
}

func TestEstimatePerformanceFlagsTypeChangeAsUnsafeToParallelize(t *testing.T) {
	plan := &Plan{
		Diff: SchemaDiff{Changes: []SchemaChange{
			{Kind: ChangeTypeChanged, FieldName: "amount", OldType: "string", NewType: "integer"},
		}},
	}
	estimate := NewValidator().EstimatePerformance(plan, 10000)
	assert.False(t, estimate.ParallelSafe)
}

func TestGenerateRulesCoversEachRiskyChangeKind(t *testing.T) {
	changes := []SchemaChange{
		{Kind: ChangeFieldRemoved, FieldName: "a"},
		{Kind: ChangeTypeChanged, FieldName: "b", OldType: "string", NewType: "integer"},
		{Kind: ChangeConstraintAdded, FieldName: "c"},
		{Kind: ChangeFieldAdded, FieldName: "d"},
	}
	rules := NewValidator().GenerateRules(changes)
	require.Len(t, rules, 3)
}
