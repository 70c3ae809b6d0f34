package migration

import (
	"fmt"
	"sort"
	"time"

	"github.com/schemaforge/registry-core/pkg/format"
	"github.com/schemaforge/registry-core/pkg/schema"
	"github.com/schemaforge/registry-core/pkg/version"
)

// Analyzer produces a SchemaDiff between two versions of the same schema and
// recommends a MigrationStrategy for applying it.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze compares oldS against newS field-by-field via the format adapter
// shared with pkg/compatibility, and aggregates the result into a SchemaDiff.
func (a *Analyzer) Analyze(oldS, newS *schema.Schema) (*SchemaDiff, error) {
	if oldS.Format != newS.Format {
		return nil, fmt.Errorf("migration: cannot diff across formats (%s -> %s)", oldS.Format, newS.Format)
	}
	adapter, err := format.For(newS.Format)
	if err != nil {
		return nil, err
	}
	oldParsed, err := adapter.Parse(oldS.Content)
	if err != nil {
		return nil, fmt.Errorf("parse old schema: %w", err)
	}
	newParsed, err := adapter.Parse(newS.Content)
	if err != nil {
		return nil, fmt.Errorf("parse new schema: %w", err)
	}

	changes := diffFields(adapter, oldParsed, newParsed)

	var breaking []SchemaChange
	for _, c := range changes {
		if c.Breaking {
			breaking = append(breaking, c)
		}
	}

	diff := &SchemaDiff{
		SchemaName:      oldS.Subject.Name,
		Namespace:       oldS.Subject.Namespace,
		OldVersion:      oldS.Version,
		NewVersion:      newS.Version,
		Changes:         changes,
		BreakingChanges: breaking,
		ComplexityScore: complexityScore(changes),
		CreatedAt:       time.Now(),
	}
	return diff, nil
}

// AnalyzeContent is Analyze's entry point for callers that have raw schema
// bytes rather than registered Schema records (e.g. a pre-registration
// migration preview).
func (a *Analyzer) AnalyzeContent(f schema.Format, oldContent, newContent []byte, schemaName, namespace string, oldVersion, newVersion version.SemanticVersion) (*SchemaDiff, error) {
	adapter, err := format.For(f)
	if err != nil {
		return nil, err
	}
	oldParsed, err := adapter.Parse(oldContent)
	if err != nil {
		return nil, fmt.Errorf("parse old schema: %w", err)
	}
	newParsed, err := adapter.Parse(newContent)
	if err != nil {
		return nil, fmt.Errorf("parse new schema: %w", err)
	}
	changes := diffFields(adapter, oldParsed, newParsed)
	var breaking []SchemaChange
	for _, c := range changes {
		if c.Breaking {
			breaking = append(breaking, c)
		}
	}
	return &SchemaDiff{
		SchemaName:      schemaName,
		Namespace:       namespace,
		OldVersion:      oldVersion,
		NewVersion:      newVersion,
		Changes:         changes,
		BreakingChanges: breaking,
		ComplexityScore: complexityScore(changes),
		CreatedAt:       time.Now(),
	}, nil
}

// diffFields walks old and new field inventories and classifies every
// addition, removal, rename, type change, and required-ness flip.
func diffFields(adapter format.Adapter, oldParsed, newParsed *format.Parsed) []SchemaChange {
	oldByKey := indexByKey(adapter.FieldInventory(oldParsed))
	newByKey := indexByKey(adapter.FieldInventory(newParsed))

	var changes []SchemaChange
	for key, nf := range newByKey {
		of, existed := oldByKey[key]
		if !existed {
			change := SchemaChange{
				Kind:       ChangeFieldAdded,
				Path:       nf.Path,
				FieldName:  nf.Name,
				NewType:    nf.Type,
				Required:   nf.Required,
				HasDefault: nf.HasDefault,
				Default:    nf.Default,
				Breaking:   nf.Required && !nf.HasDefault,
			}
			if change.Breaking {
				change.Description = fmt.Sprintf("required field %q added with no default", nf.Name)
			} else {
				change.Description = fmt.Sprintf("field %q added", nf.Name)
			}
			changes = append(changes, change)
			continue
		}

		if of.Name != nf.Name {
			changes = append(changes, SchemaChange{
				Kind:        ChangeFieldRenamed,
				Path:        nf.Path,
				FieldName:   nf.Name,
				OldName:     of.Name,
				OldType:     of.Type,
				NewType:     nf.Type,
				Breaking:    true,
				Description: fmt.Sprintf("field at %s renamed %q -> %q", nf.Path, of.Name, nf.Name),
			})
		}
		if of.Type != nf.Type && !adapter.TypesCompatible(of.Type, nf.Type) {
			changes = append(changes, SchemaChange{
				Kind:        ChangeTypeChanged,
				Path:        nf.Path,
				FieldName:   nf.Name,
				OldType:     of.Type,
				NewType:     nf.Type,
				Breaking:    true,
				Description: fmt.Sprintf("field %q type changed %s -> %s", nf.Name, of.Type, nf.Type),
			})
		}
		if !of.Required && nf.Required {
			changes = append(changes, SchemaChange{
				Kind:        ChangeConstraintAdded,
				Path:        nf.Path,
				FieldName:   nf.Name,
				NewType:     nf.Type,
				Required:    true,
				Breaking:    !nf.HasDefault,
				Description: fmt.Sprintf("field %q became required", nf.Name),
			})
		}
		if of.Required && !nf.Required {
			changes = append(changes, SchemaChange{
				Kind:        ChangeConstraintRemoved,
				Path:        nf.Path,
				FieldName:   nf.Name,
				NewType:     nf.Type,
				Breaking:    false,
				Description: fmt.Sprintf("field %q no longer required", nf.Name),
			})
		}
	}
	for key, of := range oldByKey {
		if _, stillPresent := newByKey[key]; stillPresent {
			continue
		}
		changes = append(changes, SchemaChange{
			Kind:         ChangeFieldRemoved,
			Path:         of.Path,
			FieldName:    of.Name,
			OldType:      of.Type,
			PreserveData: false,
			Breaking:     true,
			Description:  fmt.Sprintf("field %q removed", of.Name),
		})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// indexByKey keys by field number for protobuf (stable across renames) and
// by path otherwise, mirroring pkg/compatibility's indexing strategy.
func indexByKey(fields []format.FieldInfo) map[string]format.FieldInfo {
	m := make(map[string]format.FieldInfo, len(fields))
	for _, f := range fields {
		key := f.Path
		if f.Number != 0 {
			key = fmt.Sprintf("field.%d", f.Number)
		}
		m[key] = f
	}
	return m
}

// changeWeight assigns a relative severity used to aggregate ComplexityScore.
func changeWeight(k ChangeKind) float64 {
	switch k {
	case ChangeFieldAdded:
		return 0.05
	case ChangeFieldRemoved:
		return 0.25
	case ChangeTypeChanged:
		return 0.3
	case ChangeFieldRenamed:
		return 0.15
	case ChangeConstraintAdded:
		return 0.2
	case ChangeConstraintRemoved:
		return 0.05
	default:
		return 0.1
	}
}

// complexityScore aggregates change count and kind into [0,1] with
// diminishing returns, so many low-severity changes don't saturate the
// score the way a few high-severity ones do.
func complexityScore(changes []SchemaChange) float64 {
	if len(changes) == 0 {
		return 0
	}
	var total float64
	for _, c := range changes {
		w := changeWeight(c.Kind)
		if c.Breaking {
			w *= 1.25
		}
		total += w
	}
	score := total / (total + 3.0)
	if score > 1 {
		return 1
	}
	return score
}

// SuggestStrategy recommends a MigrationStrategy from a diff's breaking
// change count and complexity score.
func (a *Analyzer) SuggestStrategy(diff *SchemaDiff) MigrationStrategy {
	breaking := len(diff.BreakingChanges)
	switch {
	case breaking == 0 && diff.ComplexityScore < 0.3:
		return StrategySafe
	case breaking >= 5:
		return StrategyManual
	case breaking > 2 || diff.ComplexityScore >= 0.6:
		return StrategyShadow
	case breaking > 0:
		return StrategyDualWrite
	default:
		return StrategyRisky
	}
}
