package migration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaforge/registry-core/pkg/version"
)

func sampleContext() *MigrationContext {
	return &MigrationContext{
		SchemaName:  "user",
		Namespace:   "com.example",
		FromVersion: version.New(1, 0, 0),
		ToVersion:   version.New(2, 0, 0),
		Changes: []SchemaChange{
			{Kind: ChangeFieldAdded, FieldName: "age", NewType: "integer", HasDefault: true, Default: 0},
			{Kind: ChangeFieldRemoved, FieldName: "legacy_id"},
			{Kind: ChangeFieldRenamed, FieldName: "full_name", OldName: "name"},
			{Kind: ChangeTypeChanged, FieldName: "amount", OldType: "integer", NewType: "string"},
		},
		GeneratedAt: time.Unix(0, 0).UTC(),
	}
}

func TestGeneratorProducesCodeForEveryLanguage(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	for _, lang := range []Language{LanguagePython, LanguageTypeScript, LanguageGo, LanguageJava, LanguageSQL} {
		code, err := gen.Generate(lang, sampleContext())
		require.NoError(t, err, lang)
		assert.NotEmpty(t, code.MigrationCode, lang)
		assert.NotEmpty(t, code.TestCode, lang)
		assert.NotEmpty(t, code.RollbackCode, lang)
	}
}

func TestGeneratorPythonRendersFieldOperations(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	code, err := gen.Generate(LanguagePython, sampleContext())
	require.NoError(t, err)

	assert.Contains(t, code.MigrationCode, `result.setdefault("age"`)
	assert.Contains(t, code.MigrationCode, `result.pop("legacy_id", None)`)
	assert.Contains(t, code.MigrationCode, `result.pop("name")`)
}

func TestGeneratorSQLRendersDDL(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	code, err := gen.Generate(LanguageSQL, sampleContext())
	require.NoError(t, err)

	assert.Contains(t, code.MigrationCode, "ALTER TABLE user ADD COLUMN age")
	assert.Contains(t, code.MigrationCode, "DROP COLUMN legacy_id")
}

func TestGeneratorRejectsUnknownLanguage(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	_, err = gen.Generate(Language(99), sampleContext())
	assert.Error(t, err)
}

func TestGenerateAllReturnsRequestedLanguagesOnly(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	out, err := gen.GenerateAll(sampleContext(), []Language{LanguageGo, LanguageJava})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Contains(t, out, LanguageGo)
	assert.Contains(t, out, LanguageJava)
}
