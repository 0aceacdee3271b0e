package tasklist

import (
	"path"
	"strings"

	"github.com/ShayCichocki/shipline/pkg/models"
)

// DomainKeywords holds the signals used to classify a task into a domain.
type DomainKeywords struct {
	// Words are matched against whole lowercase words of the description.
	Words []string
	// Fragments are matched as substrings of the lowercase description.
	Fragments []string
	// Extensions are matched against the extension of declared scope paths.
	Extensions []string
}

// domainOrder is the precedence of domain checks. Tests win over everything
// because test files usually live inside backend or frontend trees.
var domainOrder = []models.Domain{
	models.DomainTests,
	models.DomainDatabase,
	models.DomainFrontend,
	models.DomainBackend,
}

// DefaultDomainKeywords is the single source of truth for domain inference.
var DefaultDomainKeywords = map[models.Domain]DomainKeywords{
	models.DomainTests: {
		Words:     []string{"test", "tests", "testing", "e2e", "coverage", "fixture", "fixtures"},
		Fragments: []string{"tests/", "__tests__", "_test.", ".test.", ".spec.", "/test_"},
	},
	models.DomainDatabase: {
		Words:      []string{"migration", "migrations", "schema", "database", "db", "sql", "table", "seed", "alembic", "prisma"},
		Fragments:  []string{"migrations/", "db/"},
		Extensions: []string{".sql"},
	},
	models.DomainFrontend: {
		Words:      []string{"component", "components", "page", "pages", "ui", "frontend", "css", "react", "form", "layout", "style", "styles"},
		Fragments:  []string{"frontend/", "components/", "pages/", "app/ui"},
		Extensions: []string{".tsx", ".jsx", ".vue", ".svelte", ".css", ".scss", ".html"},
	},
	models.DomainBackend: {
		Words:      []string{"api", "endpoint", "endpoints", "service", "services", "server", "backend", "handler", "controller", "route", "routes", "middleware"},
		Fragments:  []string{"backend/", "api/", "services/"},
		Extensions: []string{".py", ".go", ".rb", ".java", ".rs"},
	},
}

// knownExtensions is every extension that marks a token as a file path.
var knownExtensions = map[string]bool{
	".go": true, ".py": true, ".rb": true, ".java": true, ".rs": true,
	".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".vue": true, ".svelte": true,
	".css": true, ".scss": true, ".html": true, ".sql": true, ".md": true,
	".yaml": true, ".yml": true, ".json": true, ".toml": true,
}

// InferDomain classifies a description using DefaultDomainKeywords.
// Unmatched descriptions fall back to DomainGeneral.
func InferDomain(description string, scope []string) models.Domain {
	lower := strings.ToLower(description)
	words := make(map[string]bool)
	for _, w := range splitWords(lower) {
		words[w] = true
	}

	for _, d := range domainOrder {
		kw := DefaultDomainKeywords[d]
		for _, w := range kw.Words {
			if words[w] {
				return d
			}
		}
		for _, f := range kw.Fragments {
			if strings.Contains(lower, f) {
				return d
			}
		}
		for _, p := range scope {
			ext := strings.ToLower(path.Ext(p))
			for _, e := range kw.Extensions {
				if ext == e {
					return d
				}
			}
		}
	}
	return models.DomainGeneral
}

// ExtractScope returns the path-like tokens of a description in order of appearance.
func ExtractScope(description string) []string {
	var scope []string
	seen := make(map[string]bool)
	for _, field := range strings.Fields(description) {
		tok := strings.Trim(field, "`'\"(),;:")
		if tok == "" || seen[tok] {
			continue
		}
		if strings.Contains(tok, "/") || knownExtensions[strings.ToLower(path.Ext(tok))] {
			seen[tok] = true
			scope = append(scope, tok)
		}
	}
	return scope
}

// splitWords splits on anything that is not a letter or digit.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// scopesOverlap reports whether two scope lists share a path.
func scopesOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
