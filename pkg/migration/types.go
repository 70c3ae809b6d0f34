// Package migration implements the diff-to-plan-to-codegen pipeline that
// turns a pair of schema versions into a migration artifact: a structural
// diff, a recommended strategy, generated transformation code per target
// language, a validation report, and a rollback plan. It does not execute
// migrations against live data; it produces artifacts for an operator or a
// downstream job to run.
package migration

import (
	"time"

	"github.com/schemaforge/registry-core/pkg/version"
)

// ChangeKind classifies a single language-agnostic structural change between
// two schema versions.
type ChangeKind int

const (
	ChangeFieldAdded ChangeKind = iota
	ChangeFieldRemoved
	ChangeTypeChanged
	ChangeFieldRenamed
	ChangeConstraintAdded
	ChangeConstraintRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeFieldAdded:
		return "FieldAdded"
	case ChangeFieldRemoved:
		return "FieldRemoved"
	case ChangeTypeChanged:
		return "TypeChanged"
	case ChangeFieldRenamed:
		return "FieldRenamed"
	case ChangeConstraintAdded:
		return "ConstraintAdded"
	case ChangeConstraintRemoved:
		return "ConstraintRemoved"
	default:
		return "Unknown"
	}
}

// SchemaChange is one entry of a SchemaDiff.
type SchemaChange struct {
	Kind          ChangeKind
	Path          string
	FieldName     string
	OldName       string // populated for ChangeFieldRenamed
	OldType       string
	NewType       string
	Required      bool
	HasDefault    bool
	Default       any
	PreserveData  bool // for ChangeFieldRemoved: whether a migration path preserves the data
	Breaking      bool
	Description   string
}

// SchemaDiff is the structural comparison between an old and new schema
// version, independent of the target migration language.
type SchemaDiff struct {
	SchemaName      string
	Namespace       string
	OldVersion      version.SemanticVersion
	NewVersion      version.SemanticVersion
	Changes         []SchemaChange
	BreakingChanges []SchemaChange
	ComplexityScore float64 // [0,1], aggregates change count and kind severity
	CreatedAt       time.Time
}

// MigrationStrategy is the recommended approach for applying a migration.
type MigrationStrategy int

const (
	StrategySafe MigrationStrategy = iota
	StrategyRisky
	StrategyManual
	StrategyDualWrite
	StrategyShadow
)

func (s MigrationStrategy) String() string {
	switch s {
	case StrategySafe:
		return "Safe"
	case StrategyRisky:
		return "Risky"
	case StrategyManual:
		return "Manual"
	case StrategyDualWrite:
		return "DualWrite"
	case StrategyShadow:
		return "Shadow"
	default:
		return "Unknown"
	}
}

// RiskLevel is a monotonically ordered assessment of migration risk;
// comparisons (<, >=) are meaningful because the constants are ordered.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	case RiskCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Language identifies a migration codegen target.
type Language int

const (
	LanguagePython Language = iota
	LanguageTypeScript
	LanguageGo
	LanguageJava
	LanguageSQL
)

func (l Language) String() string {
	switch l {
	case LanguagePython:
		return "python"
	case LanguageTypeScript:
		return "typescript"
	case LanguageGo:
		return "go"
	case LanguageJava:
		return "java"
	case LanguageSQL:
		return "sql"
	default:
		return "unknown"
	}
}

// ParseLanguage parses a language name as produced by Language.String().
func ParseLanguage(s string) (Language, error) {
	switch s {
	case "python":
		return LanguagePython, nil
	case "typescript":
		return LanguageTypeScript, nil
	case "go":
		return LanguageGo, nil
	case "java":
		return LanguageJava, nil
	case "sql":
		return LanguageSQL, nil
	default:
		return 0, &UnsupportedLanguageError{Language: s}
	}
}

// UnsupportedLanguageError is returned by ParseLanguage for an unknown name.
type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return "migration: unsupported target language: " + e.Language
}

// GeneratedCode is the codegen output for a single target language.
type GeneratedCode struct {
	Language       Language
	MigrationCode  string
	TestCode       string
	RollbackCode   string
}

// MigrationContext is the data handed to each language generator.
type MigrationContext struct {
	SchemaName  string
	Namespace   string
	FromVersion version.SemanticVersion
	ToVersion   version.SemanticVersion
	Changes     []SchemaChange
	GeneratedAt time.Time
}

// ValidationRuleType classifies a ValidationRule.
type ValidationRuleType int

const (
	RuleDataLoss ValidationRuleType = iota
	RuleTypeCompatibility
	RuleConstraintSatisfaction
)

func (t ValidationRuleType) String() string {
	switch t {
	case RuleDataLoss:
		return "DataLoss"
	case RuleTypeCompatibility:
		return "TypeCompatibility"
	case RuleConstraintSatisfaction:
		return "ConstraintSatisfaction"
	default:
		return "Unknown"
	}
}

// ValidationRule is a generated check an operator should run before or
// during a migration to catch the risk a SchemaChange introduces.
type ValidationRule struct {
	Name        string
	Description string
	Fields      []string
	RuleType    ValidationRuleType
}

// RollbackStrategy is the recommended approach for reverting a migration.
type RollbackStrategy int

const (
	RollbackReverse RollbackStrategy = iota
	RollbackBackup
	RollbackManual
)

func (s RollbackStrategy) String() string {
	switch s {
	case RollbackReverse:
		return "Reverse"
	case RollbackBackup:
		return "Backup"
	case RollbackManual:
		return "Manual"
	default:
		return "Unknown"
	}
}

// RollbackPlan describes how to revert a migration once applied.
type RollbackPlan struct {
	Strategy          RollbackStrategy
	RollbackCode       map[Language]string
	EstimatedDuration time.Duration
	BackupRequired    bool
}

// ValidationReport is the outcome of validating a MigrationPlan before it is
// handed to an operator.
type ValidationReport struct {
	Valid     bool
	Errors    []string
	Warnings  []string
	Info      []string
	RiskLevel RiskLevel
}

// PerformanceEstimate projects migration duration and resource cost for a
// given data volume.
type PerformanceEstimate struct {
	EstimatedDuration   time.Duration
	EstimatedMemoryMB   int
	ParallelSafe        bool
}

// Plan is the complete output of the migration pipeline for one
// (old, new) schema pair.
type Plan struct {
	Diff              SchemaDiff
	Strategy          MigrationStrategy
	CodeTemplates     map[Language]GeneratedCode
	ValidationRules   []ValidationRule
	RollbackPlan      *RollbackPlan
	EstimatedDuration *time.Duration
	RiskLevel         RiskLevel
}
