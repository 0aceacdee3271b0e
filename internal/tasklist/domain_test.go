package tasklist

import (
	"reflect"
	"testing"

	"github.com/ShayCichocki/shipline/pkg/models"
)

func TestInferDomain(t *testing.T) {
	tests := []struct {
		desc string
		want models.Domain
	}{
		{"Write failing test for Message.validate_content", models.DomainTests},
		{"Add fixtures in backend/tests/conftest.py", models.DomainTests},
		{"Create migration for uploads table", models.DomainDatabase},
		{"Add index in db/schema.sql", models.DomainDatabase},
		{"Create upload form component", models.DomainFrontend},
		{"Style the header in web/Header.tsx", models.DomainFrontend},
		{"Create upload endpoint", models.DomainBackend},
		{"Wire handler in internal/upload.go", models.DomainBackend},
		{"Implement Message.validate_content", models.DomainGeneral},
		{"Update the latest_version constant", models.DomainGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got := InferDomain(tt.desc, ExtractScope(tt.desc))
			if got != tt.want {
				t.Errorf("InferDomain(%q) = %q, want %q", tt.desc, got, tt.want)
			}
		})
	}
}

func TestExtractScope(t *testing.T) {
	got := ExtractScope("Refactor `src/app.py` and (config.yaml), see Message.validate_content and src/app.py")
	want := []string{"src/app.py", "config.yaml"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractScope() = %v, want %v", got, want)
	}
}
