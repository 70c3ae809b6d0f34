package migration

import (
	"fmt"
	"time"
)

// Validator checks a Plan for data-loss risk, unsafe type narrowings, and
// constraints existing data may violate, and estimates migration
// performance and cost.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// safeConversions lists (old, new) type pairs considered safe to widen
// without manual review. Anything else involving a TypeChanged is flagged
// for validation.
var safeConversions = map[[2]string]bool{
	{"integer", "long"}:   true,
	{"float", "double"}:   true,
	{"integer", "string"}: true,
	{"long", "string"}:    true,
	{"boolean", "string"}: true,
}

func isSafeConversion(oldType, newType string) bool {
	return safeConversions[[2]string{oldType, newType}]
}

// Validate runs the full validation pass over plan and produces a report.
func (v *Validator) Validate(plan *Plan) (*ValidationReport, error) {
	var errors, warnings, info []string

	warnings = append(warnings, v.checkDataLoss(plan.Diff.Changes)...)
	errors = append(errors, v.checkTypeCompatibility(plan.Diff.Changes)...)
	warnings = append(warnings, v.checkConstraints(plan.Diff.Changes)...)

	risk := v.assessRisk(plan)
	info = append(info, fmt.Sprintf("Risk level: %s", risk))

	if len(plan.Diff.BreakingChanges) > 0 {
		warnings = append(warnings, fmt.Sprintf("Migration contains %d breaking changes", len(plan.Diff.BreakingChanges)))
	}

	return &ValidationReport{
		Valid:     len(errors) == 0,
		Errors:    errors,
		Warnings:  warnings,
		Info:      info,
		RiskLevel: risk,
	}, nil
}

func (v *Validator) checkDataLoss(changes []SchemaChange) []string {
	var warnings []string
	for _, c := range changes {
		switch c.Kind {
		case ChangeFieldRemoved:
			if !c.PreserveData {
				warnings = append(warnings, fmt.Sprintf("removing field %q will result in permanent data loss", c.FieldName))
			}
		case ChangeTypeChanged:
			if !isSafeConversion(c.OldType, c.NewType) {
				warnings = append(warnings, fmt.Sprintf("type change for %q from %s to %s may cause data loss", c.FieldName, c.OldType, c.NewType))
			}
		}
	}
	return warnings
}

func (v *Validator) checkTypeCompatibility(changes []SchemaChange) []string {
	var errors []string
	for _, c := range changes {
		if c.Kind != ChangeTypeChanged {
			continue
		}
		if !isSafeConversion(c.OldType, c.NewType) {
			errors = append(errors, fmt.Sprintf("unsafe type conversion for %q: %s to %s requires manual validation", c.FieldName, c.OldType, c.NewType))
		}
	}
	return errors
}

func (v *Validator) checkConstraints(changes []SchemaChange) []string {
	var warnings []string
	for _, c := range changes {
		if c.Kind == ChangeConstraintAdded {
			warnings = append(warnings, fmt.Sprintf("new constraint on %q may reject existing data", c.FieldName))
		}
	}
	return warnings
}

// assessRisk scores the plan's RiskLevel from breaking-change count and
// complexity alone, independent of the chosen MigrationStrategy (contrast
// with the engine's own strategy-aware risk assessment used at plan-build
// time).
func (v *Validator) assessRisk(plan *Plan) RiskLevel {
	breaking := len(plan.Diff.BreakingChanges)
	complexity := plan.Diff.ComplexityScore

	switch {
	case breaking == 0 && complexity < 0.3:
		return RiskLow
	case breaking <= 2 && complexity < 0.6:
		return RiskMedium
	case breaking <= 5 && complexity < 0.8:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// GenerateRules produces the operator-facing ValidationRule list for a set
// of changes, one rule per change that carries a reviewable risk.
func (v *Validator) GenerateRules(changes []SchemaChange) []ValidationRule {
	var rules []ValidationRule
	for _, c := range changes {
		switch c.Kind {
		case ChangeFieldRemoved:
			rules = append(rules, ValidationRule{
				Name:        fmt.Sprintf("Check data loss for %q", c.FieldName),
				Description: fmt.Sprintf("Ensure data from %q is preserved or a migration path exists", c.FieldName),
				Fields:      []string{c.FieldName},
				RuleType:    RuleDataLoss,
			})
		case ChangeTypeChanged:
			rules = append(rules, ValidationRule{
				Name:        fmt.Sprintf("Validate type conversion for %q", c.FieldName),
				Description: fmt.Sprintf("Ensure all existing values can be converted from %s to %s", c.OldType, c.NewType),
				Fields:      []string{c.FieldName},
				RuleType:    RuleTypeCompatibility,
			})
		case ChangeConstraintAdded:
			rules = append(rules, ValidationRule{
				Name:        fmt.Sprintf("Validate constraint for %q", c.FieldName),
				Description: fmt.Sprintf("Ensure all existing values satisfy the new constraint on %q", c.FieldName),
				Fields:      []string{c.FieldName},
				RuleType:    RuleConstraintSatisfaction,
			})
		}
	}
	return rules
}

// EstimatePerformance projects migration duration and memory cost for a
// given row/record count using a linear heuristic (ms per change per 1000
// records); migrations touching a TypeChanged or FieldRemoved are flagged
// as not safely parallelizable since they require read-modify-write per row.
func (v *Validator) EstimatePerformance(plan *Plan, dataSize int) PerformanceEstimate {
	changeCount := len(plan.Diff.Changes)
	estimatedMS := (float64(dataSize) / 1000.0) * float64(changeCount)

	parallelSafe := true
	for _, c := range plan.Diff.Changes {
		if c.Kind == ChangeTypeChanged || c.Kind == ChangeFieldRemoved {
			parallelSafe = false
			break
		}
	}

	return PerformanceEstimate{
		EstimatedDuration: time.Duration(estimatedMS) * time.Millisecond,
		EstimatedMemoryMB: int(float64(dataSize)*0.001 + 0.999),
		ParallelSafe:      parallelSafe,
	}
}
