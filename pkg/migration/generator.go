package migration

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templatesByLanguage = map[Language]string{
	LanguagePython:     "python.tmpl",
	LanguageTypeScript: "typescript.tmpl",
	LanguageGo:         "go.tmpl",
	LanguageJava:       "java.tmpl",
	LanguageSQL:        "sql.tmpl",
}

// Generator renders migration, test, and rollback code from a MigrationContext
// for each requested target language, using one text/template file per
// language (each defining "migration", "test", and optionally "rollback"
// named templates).
type Generator struct {
	templates map[Language]*template.Template
}

func NewGenerator() (*Generator, error) {
	g := &Generator{templates: make(map[Language]*template.Template, len(templatesByLanguage))}
	for lang, file := range templatesByLanguage {
		tmpl, err := template.New(file).ParseFS(templateFS, "templates/"+file)
		if err != nil {
			return nil, fmt.Errorf("migration: parse template %s: %w", file, err)
		}
		g.templates[lang] = tmpl
	}
	return g, nil
}

// Generate renders migration and test code for lang from ctx.
func (g *Generator) Generate(lang Language, ctx *MigrationContext) (GeneratedCode, error) {
	tmpl, ok := g.templates[lang]
	if !ok {
		return GeneratedCode{}, &UnsupportedLanguageError{Language: lang.String()}
	}

	migrationCode, err := renderNamed(tmpl, "migration", ctx)
	if err != nil {
		return GeneratedCode{}, fmt.Errorf("migration: render %s migration code: %w", lang, err)
	}
	testCode, err := renderNamed(tmpl, "test", ctx)
	if err != nil {
		return GeneratedCode{}, fmt.Errorf("migration: render %s test code: %w", lang, err)
	}

	code := GeneratedCode{Language: lang, MigrationCode: migrationCode, TestCode: testCode}

	// Not every language template defines a separate rollback (Java reuses
	// its migration class, matching the convention the original Rust
	// generator documented for that language).
	if tmpl.Lookup("rollback") != nil {
		rollbackCode, err := renderNamed(tmpl, "rollback", ctx)
		if err != nil {
			return GeneratedCode{}, fmt.Errorf("migration: render %s rollback code: %w", lang, err)
		}
		code.RollbackCode = rollbackCode
	} else {
		code.RollbackCode = migrationCode
	}

	return code, nil
}

// GenerateAll renders GeneratedCode for every language in langs.
func (g *Generator) GenerateAll(ctx *MigrationContext, langs []Language) (map[Language]GeneratedCode, error) {
	out := make(map[Language]GeneratedCode, len(langs))
	for _, lang := range langs {
		code, err := g.Generate(lang, ctx)
		if err != nil {
			return nil, err
		}
		out[lang] = code
	}
	return out, nil
}

func renderNamed(tmpl *template.Template, name string, ctx *MigrationContext) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}
