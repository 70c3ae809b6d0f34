// Package compatibility implements the seven-mode, format-agnostic
// compatibility engine: it consults a pkg/format adapter for structural
// comparison and never itself knows whether the schemas are JSON Schema,
// Avro, or Protobuf.
package compatibility

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/schemaforge/registry-core/pkg/format"
	"github.com/schemaforge/registry-core/pkg/schema"
	"github.com/schemaforge/registry-core/pkg/version"
)

// Mode defines the type of compatibility checking.
type Mode int

const (
	ModeNone Mode = iota
	ModeBackward
	ModeForward
	ModeFull
	ModeBackwardTransitive
	ModeForwardTransitive
	ModeFullTransitive
)

func (m Mode) String() string {
	return []string{
		"NONE", "BACKWARD", "FORWARD", "FULL",
		"BACKWARD_TRANSITIVE", "FORWARD_TRANSITIVE", "FULL_TRANSITIVE",
	}[m]
}

// ParseMode parses a mode name, case-sensitively matching Mode.String().
func ParseMode(s string) (Mode, error) {
	for m := ModeNone; m <= ModeFullTransitive; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return ModeNone, fmt.Errorf("unknown compatibility mode: %q", s)
}

func (m Mode) isTransitive() bool {
	return m == ModeBackwardTransitive || m == ModeForwardTransitive || m == ModeFullTransitive
}

// ViolationLevel indicates the severity of a Violation.
type ViolationLevel int

const (
	LevelInfo ViolationLevel = iota
	LevelWarning
	LevelError
)

func (l ViolationLevel) String() string {
	return []string{"INFO", "WARNING", "ERROR"}[l]
}

// ViolationCategory classifies the kind of structural change a Violation reports.
type ViolationCategory int

const (
	CategoryFieldChange ViolationCategory = iota
	CategoryTypeChange
	CategoryFormatChange
)

func (c ViolationCategory) String() string {
	return []string{"FIELD_CHANGE", "TYPE_CHANGE", "FORMAT_CHANGE"}[c]
}

// Violation is a single compatibility finding.
type Violation struct {
	Rule           string
	Level          ViolationLevel
	Category       ViolationCategory
	Message        string
	Path           string
	OldValue       string
	NewValue       string
	WireBreaking   bool
	SourceBreaking bool
	Suggestion     string
}

// ViolationBuilder is a fluent builder for Violation, grounded on the
// teacher's builder idiom.
type ViolationBuilder struct {
	v Violation
}

func NewViolation(rule string) *ViolationBuilder {
	return &ViolationBuilder{v: Violation{Rule: rule}}
}

func (b *ViolationBuilder) WithLevel(l ViolationLevel) *ViolationBuilder {
	b.v.Level = l
	return b
}

func (b *ViolationBuilder) WithCategory(c ViolationCategory) *ViolationBuilder {
	b.v.Category = c
	return b
}

func (b *ViolationBuilder) WithPath(path string) *ViolationBuilder {
	b.v.Path = path
	return b
}

func (b *ViolationBuilder) WithMessage(msg string) *ViolationBuilder {
	b.v.Message = msg
	return b
}

func (b *ViolationBuilder) WithChange(oldValue, newValue string) *ViolationBuilder {
	b.v.OldValue = oldValue
	b.v.NewValue = newValue
	return b
}

func (b *ViolationBuilder) WithBreaking(wire, source bool) *ViolationBuilder {
	b.v.WireBreaking = wire
	b.v.SourceBreaking = source
	return b
}

func (b *ViolationBuilder) WithSuggestion(s string) *ViolationBuilder {
	b.v.Suggestion = s
	return b
}

func (b *ViolationBuilder) Build() Violation {
	return b.v
}

// Summary aggregates a Result's violations by level.
type Summary struct {
	Total        int
	Errors       int
	Warnings     int
	Infos        int
	WireBreaking int
}

// Result is the outcome of a single pairwise or transitive compatibility check.
type Result struct {
	Compatible        bool
	Mode              Mode
	Violations        []Violation
	Summary           Summary
	VersionsConsulted []string
	Duration          time.Duration
}

func summarize(violations []Violation) Summary {
	s := Summary{Total: len(violations)}
	for _, v := range violations {
		switch v.Level {
		case LevelError:
			s.Errors++
		case LevelWarning:
			s.Warnings++
		case LevelInfo:
			s.Infos++
		}
		if v.WireBreaking {
			s.WireBreaking++
		}
	}
	return s
}

func compatible(violations []Violation) bool {
	for _, v := range violations {
		if v.Level == LevelError {
			return false
		}
	}
	return true
}

// resultCache memoizes pairwise results by (hashNew, hashOld, mode), which is
// deterministic by construction (spec §4.4 "Result caching").
type resultCache struct {
	mu      sync.Mutex
	entries map[cacheKey]Result
}

type cacheKey struct {
	hashNew string
	hashOld string
	mode    Mode
}

func newResultCache() *resultCache {
	return &resultCache{entries: make(map[cacheKey]Result)}
}

func (c *resultCache) get(new, old *schema.Schema, mode Mode) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[cacheKey{new.ContentHash, old.ContentHash, mode}]
	return r, ok
}

func (c *resultCache) put(new, old *schema.Schema, mode Mode, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{new.ContentHash, old.ContentHash, mode}] = r
}

// Engine runs compatibility checks for a registry. It is safe for concurrent
// use: the result cache is the only mutable state, and it is guarded by its
// own mutex.
type Engine struct {
	cache *resultCache
}

func NewEngine() *Engine {
	return &Engine{cache: newResultCache()}
}

// Check evaluates new against old under mode. For non-transitive modes, old
// is the immediate predecessor. For transitive modes, use CheckTransitive.
func (e *Engine) Check(newS, oldS *schema.Schema, mode Mode) (*Result, error) {
	start := time.Now()
	if mode == ModeNone {
		return &Result{Compatible: true, Mode: mode}, nil
	}
	if cached, ok := e.cache.get(newS, oldS, mode); ok {
		return &cached, nil
	}

	var violations []Violation
	switch mode {
	case ModeBackward, ModeBackwardTransitive:
		v, err := e.pairwise(newS, oldS)
		if err != nil {
			return nil, err
		}
		violations = v
	case ModeForward, ModeForwardTransitive:
		v, err := e.pairwise(oldS, newS)
		if err != nil {
			return nil, err
		}
		violations = v
	case ModeFull, ModeFullTransitive:
		back, err := e.pairwise(newS, oldS)
		if err != nil {
			return nil, err
		}
		fwd, err := e.pairwise(oldS, newS)
		if err != nil {
			return nil, err
		}
		violations = append(append([]Violation{}, back...), fwd...)
	default:
		return nil, fmt.Errorf("unknown compatibility mode: %v", mode)
	}

	result := Result{
		Compatible:        compatible(violations),
		Mode:              mode,
		Violations:        violations,
		Summary:           summarize(violations),
		VersionsConsulted: []string{oldS.Version.String()},
		Duration:          time.Since(start),
	}
	e.cache.put(newS, oldS, mode, result)
	return &result, nil
}

// CheckTransitive evaluates newS against every predecessor in history
// (descending, most recent first). Non-transitive equivalents short-circuit
// on the first breaking violation; transitive modes accumulate violations
// from every predecessor so the response lists every historical break.
func (e *Engine) CheckTransitive(newS *schema.Schema, history []*schema.Schema, mode Mode) (*Result, error) {
	start := time.Now()
	if mode == ModeNone {
		return &Result{Compatible: true, Mode: mode}, nil
	}
	sorted := append([]*schema.Schema{}, history...)
	sort.Slice(sorted, func(i, j int) bool {
		return version.Compare(sorted[i].Version, sorted[j].Version) > 0
	})

	var allViolations []Violation
	var consulted []string
	for _, prior := range sorted {
		r, err := e.Check(newS, prior, nonTransitive(mode))
		if err != nil {
			return nil, err
		}
		consulted = append(consulted, prior.Version.String())
		allViolations = append(allViolations, r.Violations...)
		if !mode.isTransitive() && !r.Compatible {
			break
		}
	}

	result := Result{
		Compatible:        compatible(allViolations),
		Mode:              mode,
		Violations:        allViolations,
		Summary:           summarize(allViolations),
		VersionsConsulted: consulted,
		Duration:          time.Since(start),
	}
	return &result, nil
}

func nonTransitive(mode Mode) Mode {
	switch mode {
	case ModeBackwardTransitive:
		return ModeBackward
	case ModeForwardTransitive:
		return ModeForward
	case ModeFullTransitive:
		return ModeFull
	default:
		return mode
	}
}

// pairwise checks whether a reader on readerSchema can consume data written
// as writerSchema (Backward direction is (new, old); Forward swaps the args).
func (e *Engine) pairwise(readerSchema, writerSchema *schema.Schema) ([]Violation, error) {
	if readerSchema.Format != writerSchema.Format {
		return []Violation{
			NewViolation("FormatChanged").
				WithLevel(LevelError).
				WithCategory(CategoryFormatChange).
				WithMessage("schema format changed").
				WithChange(writerSchema.Format.String(), readerSchema.Format.String()).
				WithBreaking(true, true).
				Build(),
		}, nil
	}
	if readerSchema.ContentHash == writerSchema.ContentHash {
		return nil, nil // identical content, short-circuit
	}

	adapter, err := format.For(readerSchema.Format)
	if err != nil {
		return nil, err
	}
	readerParsed, err := adapter.Parse(readerSchema.Content)
	if err != nil {
		return nil, fmt.Errorf("parse reader schema: %w", err)
	}
	writerParsed, err := adapter.Parse(writerSchema.Content)
	if err != nil {
		return nil, fmt.Errorf("parse writer schema: %w", err)
	}
	if readerSchema.Format == schema.FormatProtobuf {
		return compareProtobufFields(adapter, readerParsed, writerParsed), nil
	}
	return compareFields(adapter, readerParsed, writerParsed), nil
}

// compareProtobufFields implements §4.3's field-number-primary rule: matching
// numbers compare types; matching names at differing numbers is a
// rename-with-move (warning); differing names at the same number is number
// reuse (breaking, Custom("FieldNumberReused")).
func compareProtobufFields(adapter format.Adapter, reader, writer *format.Parsed) []Violation {
	readerByNumber := indexByNumber(adapter.FieldInventory(reader))
	writerByNumber := indexByNumber(adapter.FieldInventory(writer))
	readerByName := indexFields(adapter.FieldInventory(reader))

	var violations []Violation
	seenReaderNumbers := map[int]bool{}
	for num, wf := range writerByNumber {
		rf, ok := readerByNumber[num]
		if ok {
			seenReaderNumbers[num] = true
			if rf.Name != wf.Name {
				violations = append(violations, NewViolation("FieldNumberReused").
					WithLevel(LevelError).
					WithCategory(CategoryFieldChange).
					WithPath(fmt.Sprintf("field.%d", num)).
					WithMessage(fmt.Sprintf("field number %d reused for %q, was %q", num, rf.Name, wf.Name)).
					WithChange(wf.Name, rf.Name).
					WithBreaking(true, true).
					Build())
				continue
			}
			if rf.Type != wf.Type && !adapter.TypesCompatible(wf.Type, rf.Type) {
				violations = append(violations, NewViolation("TypeChanged").
					WithLevel(LevelError).
					WithCategory(CategoryTypeChange).
					WithPath(fmt.Sprintf("field.%d", num)).
					WithMessage(fmt.Sprintf("field %q type changed %s -> %s", wf.Name, wf.Type, rf.Type)).
					WithChange(wf.Type, rf.Type).
					WithBreaking(true, true).
					Build())
			}
			continue
		}
		// No reader field at this number: renamed-with-move if the name survives
		// at a different number, otherwise a genuine removal.
		if rf2, ok := readerByName[wf.Name]; ok && rf2.Number != num {
			seenReaderNumbers[rf2.Number] = true
			violations = append(violations, NewViolation("FieldNumberMoved").
				WithLevel(LevelWarning).
				WithCategory(CategoryFieldChange).
				WithPath(fmt.Sprintf("field.%d", num)).
				WithMessage(fmt.Sprintf("field %q moved from number %d to %d", wf.Name, num, rf2.Number)).
				WithChange(fmt.Sprintf("%d", num), fmt.Sprintf("%d", rf2.Number)).
				WithBreaking(true, false).
				Build())
			continue
		}
		violations = append(violations, NewViolation("FieldRemoved").
			WithLevel(LevelError).
			WithCategory(CategoryFieldChange).
			WithPath(fmt.Sprintf("field.%d", num)).
			WithMessage(fmt.Sprintf("field %q (number %d) removed", wf.Name, num)).
			WithChange(wf.Type, "").
			WithBreaking(true, true).
			Build())
	}
	for num, rf := range readerByNumber {
		if seenReaderNumbers[num] {
			continue
		}
		if _, ok := writerByNumber[num]; ok {
			continue // handled above (reuse)
		}
		if rf.Required {
			violations = append(violations, NewViolation("RequiredAdded").
				WithLevel(LevelError).
				WithCategory(CategoryFieldChange).
				WithPath(fmt.Sprintf("field.%d", num)).
				WithMessage(fmt.Sprintf("required field %q added", rf.Name)).
				WithChange("", rf.Type).
				WithBreaking(true, true).
				Build())
			continue
		}
		violations = append(violations, NewViolation("FieldAdded").
			WithLevel(LevelInfo).
			WithCategory(CategoryFieldChange).
			WithPath(fmt.Sprintf("field.%d", num)).
			WithMessage(fmt.Sprintf("field %q added", rf.Name)).
			WithChange("", rf.Type).
			Build())
	}
	sort.Slice(violations, func(i, j int) bool { return violations[i].Path < violations[j].Path })
	return violations
}

func indexByNumber(fields []format.FieldInfo) map[int]format.FieldInfo {
	m := make(map[int]format.FieldInfo, len(fields))
	for _, f := range fields {
		m[f.Number] = f
	}
	return m
}

// compareFields is shared by JSON Schema and Avro because pkg/format already
// normalizes each into a flat FieldInfo list keyed by Path; Protobuf goes
// through compareProtobufFields instead.
func compareFields(adapter format.Adapter, reader, writer *format.Parsed) []Violation {
	readerByPath := indexFields(adapter.FieldInventory(reader))
	writerByPath := indexFields(adapter.FieldInventory(writer))

	var violations []Violation
	for path, wf := range writerByPath {
		rf, ok := readerByPath[path]
		if !ok {
			level := LevelError
			breaking := true
			if wf.HasDefault {
				level, breaking = LevelWarning, false
			}
			violations = append(violations, NewViolation("FieldRemoved").
				WithLevel(level).
				WithCategory(CategoryFieldChange).
				WithPath(path).
				WithMessage(fmt.Sprintf("field %q removed", wf.Name)).
				WithChange(wf.Type, "").
				WithBreaking(breaking, true).
				Build())
			continue
		}
		if rf.Name != wf.Name {
			violations = append(violations, NewViolation("NameChanged").
				WithLevel(LevelWarning).
				WithCategory(CategoryFieldChange).
				WithPath(path).
				WithMessage(fmt.Sprintf("field at %s renamed %q -> %q", path, wf.Name, rf.Name)).
				WithChange(wf.Name, rf.Name).
				WithBreaking(false, true).
				Build())
		}
		if rf.Type != wf.Type && !adapter.TypesCompatible(wf.Type, rf.Type) {
			violations = append(violations, NewViolation("TypeChanged").
				WithLevel(LevelError).
				WithCategory(CategoryTypeChange).
				WithPath(path).
				WithMessage(fmt.Sprintf("field %q type changed %s -> %s", wf.Name, wf.Type, rf.Type)).
				WithChange(wf.Type, rf.Type).
				WithBreaking(true, true).
				Build())
		}
	}
	for path, rf := range readerByPath {
		if _, ok := writerByPath[path]; ok {
			continue
		}
		if rf.Required && !rf.HasDefault {
			violations = append(violations, NewViolation("RequiredAdded").
				WithLevel(LevelError).
				WithCategory(CategoryFieldChange).
				WithPath(path).
				WithMessage(fmt.Sprintf("required field %q added with no default", rf.Name)).
				WithChange("", rf.Type).
				WithBreaking(true, true).
				Build())
		} else {
			violations = append(violations, NewViolation("FieldAdded").
				WithLevel(LevelInfo).
				WithCategory(CategoryFieldChange).
				WithPath(path).
				WithMessage(fmt.Sprintf("field %q added", rf.Name)).
				WithChange("", rf.Type).
				Build())
		}
	}
	sort.Slice(violations, func(i, j int) bool { return violations[i].Path < violations[j].Path })
	return violations
}

func indexFields(fields []format.FieldInfo) map[string]format.FieldInfo {
	m := make(map[string]format.FieldInfo, len(fields))
	for _, f := range fields {
		m[f.Path] = f
	}
	return m
}
