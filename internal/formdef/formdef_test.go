package formdef

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/taskerco/complaintdesk/internal/domain"
)

func TestDefaultCoversEveryEditableField(t *testing.T) {
	def := Default()
	if def.Title != "Complaint" {
		t.Fatalf("unexpected title %q", def.Title)
	}
	for _, name := range domain.EditableFields() {
		if _, ok := def.Field(name); !ok {
			t.Fatalf("default form is missing %q", name)
		}
	}
	if got := len(def.Fields()); got != len(domain.EditableFields()) {
		t.Fatalf("expected %d fields, got %d", len(domain.EditableFields()), got)
	}
	status, _ := def.Field(domain.FieldStatus)
	if status.Kind != KindSelect || len(status.Options) != len(domain.ValidStatuses()) {
		t.Fatalf("unexpected status field %#v", status)
	}
	if def.SectionOf(domain.FieldRemarks) != 2 || def.SectionOf("nope") != -1 {
		t.Fatal("unexpected SectionOf results")
	}
}

func TestParseRejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]string{
		"unknown field": "sections:\n  - name: a\n    fields:\n      - {name: colour, kind: text}\n",
		"duplicate":     "sections:\n  - name: a\n    fields:\n      - {name: remarks, kind: text}\n      - {name: remarks, kind: text}\n",
		"bad kind":      "sections:\n  - name: a\n    fields:\n      - {name: remarks, kind: slider}\n",
		"no options":    "sections:\n  - name: a\n    fields:\n      - {name: status, kind: select}\n",
		"no sections":   "title: empty\n",
		"bad yaml":      "sections: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(content)); !errors.Is(err, ErrInvalidDefinition) {
				t.Fatalf("expected ErrInvalidDefinition, got %v", err)
			}
		})
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "form.yaml")
	content := "title: Quick intake\nsections:\n  - name: basics\n    fields:\n      - {name: customer_name, label: Name, kind: text, required: true}\n      - {name: remarks, kind: textarea}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if def.Title != "Quick intake" || len(def.Fields()) != 2 {
		t.Fatalf("unexpected definition %#v", def)
	}
	remarks, _ := def.Field("remarks")
	if remarks.DisplayLabel() != "remarks" {
		t.Fatalf("expected label fallback, got %q", remarks.DisplayLabel())
	}

	missing := def.MissingRequired(domain.NewComplaint())
	if len(missing) != 1 || missing[0] != "Name" {
		t.Fatalf("unexpected missing required %#v", missing)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if def, err := Load(""); err != nil || def.Title != "Complaint" {
		t.Fatalf("Load(\"\") = %#v, %v", def.Title, err)
	}
}
