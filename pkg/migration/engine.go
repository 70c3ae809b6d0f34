package migration

import (
	"fmt"
	"time"

	"github.com/schemaforge/registry-core/pkg/schema"
)

// Engine is the top-level migration pipeline: Analyze -> Strategize ->
// Generate -> Validate -> PlanRollback. It produces artifacts; it never
// executes a migration against live data.
type Engine struct {
	analyzer  *Analyzer
	generator *Generator
	validator *Validator
}

// NewEngine builds a migration engine. It takes no format: the analyzer
// resolves the adapter per call from the schema's own Format field.
func NewEngine() (*Engine, error) {
	gen, err := NewGenerator()
	if err != nil {
		return nil, err
	}
	return &Engine{
		analyzer:  NewAnalyzer(),
		generator: gen,
		validator: NewValidator(),
	}, nil
}

// GenerateMigration builds a complete Plan for moving from oldS to newS,
// rendering code for each requested language.
func (e *Engine) GenerateMigration(oldS, newS *schema.Schema, languages []Language) (*Plan, error) {
	diff, err := e.analyzer.Analyze(oldS, newS)
	if err != nil {
		return nil, err
	}
	return e.buildPlan(diff, languages)
}

// GenerateRollback builds the reverse migration (newS -> oldS), useful when
// an operator wants a standalone rollback artifact distinct from the
// forward plan's own RollbackPlan.
func (e *Engine) GenerateRollback(newS, oldS *schema.Schema, languages []Language) (*Plan, error) {
	return e.GenerateMigration(newS, oldS, languages)
}

func (e *Engine) buildPlan(diff *SchemaDiff, languages []Language) (*Plan, error) {
	strategy := e.analyzer.SuggestStrategy(diff)
	validationRules := e.validator.GenerateRules(diff.Changes)

	ctx := &MigrationContext{
		SchemaName:  diff.SchemaName,
		Namespace:   diff.Namespace,
		FromVersion: diff.OldVersion,
		ToVersion:   diff.NewVersion,
		Changes:     diff.Changes,
		GeneratedAt: diff.CreatedAt,
	}
	codeTemplates, err := e.generator.GenerateAll(ctx, languages)
	if err != nil {
		return nil, err
	}

	rollbackPlan, err := e.generateRollbackPlan(diff, languages)
	if err != nil {
		return nil, err
	}

	risk := e.assessRisk(diff, strategy)

	estimate := e.validator.EstimatePerformance(&Plan{Diff: *diff}, 1000)
	duration := estimate.EstimatedDuration

	return &Plan{
		Diff:              *diff,
		Strategy:          strategy,
		CodeTemplates:     codeTemplates,
		ValidationRules:   validationRules,
		RollbackPlan:      rollbackPlan,
		EstimatedDuration: &duration,
		RiskLevel:         risk,
	}, nil
}

// generateRollbackPlan picks a RollbackStrategy from the diff's breaking
// change count and renders each language's rollback snippet from a reversed
// MigrationContext.
func (e *Engine) generateRollbackPlan(diff *SchemaDiff, languages []Language) (*RollbackPlan, error) {
	var strategy RollbackStrategy
	switch {
	case len(diff.BreakingChanges) == 0:
		strategy = RollbackReverse
	case len(diff.BreakingChanges) > 5:
		strategy = RollbackManual
	default:
		strategy = RollbackBackup
	}

	reversedCtx := &MigrationContext{
		SchemaName:  diff.SchemaName,
		Namespace:   diff.Namespace,
		FromVersion: diff.NewVersion,
		ToVersion:   diff.OldVersion,
		Changes:     diff.Changes,
		GeneratedAt: diff.CreatedAt,
	}

	rollbackCode := make(map[Language]string, len(languages))
	for _, lang := range languages {
		code, err := e.generator.Generate(lang, reversedCtx)
		if err != nil {
			return nil, fmt.Errorf("migration: generate rollback for %s: %w", lang, err)
		}
		rollbackCode[lang] = code.RollbackCode
	}

	return &RollbackPlan{
		Strategy:          strategy,
		RollbackCode:      rollbackCode,
		EstimatedDuration: 10 * time.Second,
		BackupRequired:    strategy == RollbackBackup,
	}, nil
}

// assessRisk scores risk from the chosen strategy and the diff's own
// breaking-change count and complexity; distinct from Validator.assessRisk,
// which scores a built Plan without regard to the strategy that produced it.
func (e *Engine) assessRisk(diff *SchemaDiff, strategy MigrationStrategy) RiskLevel {
	breaking := len(diff.BreakingChanges)
	complexity := diff.ComplexityScore

	switch strategy {
	case StrategySafe:
		if complexity < 0.3 {
			return RiskLow
		}
		return RiskMedium
	case StrategyRisky:
		if complexity < 0.5 {
			return RiskMedium
		}
		return RiskHigh
	case StrategyManual, StrategyDualWrite, StrategyShadow:
		if breaking > 5 || complexity > 0.8 {
			return RiskCritical
		}
		return RiskHigh
	default:
		return RiskMedium
	}
}

// ValidateMigration runs the validator over an already-built plan.
func (e *Engine) ValidateMigration(plan *Plan) (*ValidationReport, error) {
	return e.validator.Validate(plan)
}

// EstimateComplexity is a thin accessor kept for callers that only need the
// scalar score without building a full plan.
func (e *Engine) EstimateComplexity(diff *SchemaDiff) float64 {
	return diff.ComplexityScore
}

// EstimatePerformance projects migration duration/memory for dataSize
// records against an already-built plan.
func (e *Engine) EstimatePerformance(plan *Plan, dataSize int) PerformanceEstimate {
	return e.validator.EstimatePerformance(plan, dataSize)
}
