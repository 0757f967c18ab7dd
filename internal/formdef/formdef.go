package formdef

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taskerco/complaintdesk/internal/domain"
)

//go:embed complaint_form.yaml
var defaultDefinition []byte

// Kind identifies how a field is edited.
type Kind string

// Kind values.
const (
	KindText     Kind = "text"
	KindTextarea Kind = "textarea"
	KindSelect   Kind = "select"
	KindNumber   Kind = "number"
	KindDate     Kind = "date"
)

var validKinds = []Kind{KindText, KindTextarea, KindSelect, KindNumber, KindDate}

// ErrInvalidDefinition reports a form definition that cannot be used.
var ErrInvalidDefinition = errors.New("invalid form definition")

// Field declares one editable form field.
type Field struct {
	Name        string   `yaml:"name"`
	Label       string   `yaml:"label"`
	Kind        Kind     `yaml:"kind"`
	Options     []string `yaml:"options,omitempty"`
	Required    bool     `yaml:"required,omitempty"`
	Markdown    bool     `yaml:"markdown,omitempty"`
	Placeholder string   `yaml:"placeholder,omitempty"`
}

// Section groups fields under one tab.
type Section struct {
	Name   string  `yaml:"name"`
	Label  string  `yaml:"label"`
	Fields []Field `yaml:"fields"`
}

// Definition is the complete form layout.
type Definition struct {
	Title    string    `yaml:"title"`
	Sections []Section `yaml:"sections"`
}

// Default returns the embedded complaint form.
func Default() Definition {
	def, err := Parse(defaultDefinition)
	if err != nil {
		panic(fmt.Sprintf("embedded form definition: %v", err))
	}
	return def
}

// Load reads a definition from path, or returns Default when path is empty.
func Load(path string) (Definition, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read form definition: %w", err)
	}
	return Parse(content)
}

// Parse decodes and validates a YAML definition.
func Parse(content []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(content, &def); err != nil {
		return Definition{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Validate checks that every field is a known, editable, uniquely declared record field.
func (d Definition) Validate() error {
	if len(d.Sections) == 0 {
		return fmt.Errorf("%w: no sections", ErrInvalidDefinition)
	}
	seen := map[string]struct{}{}
	for _, section := range d.Sections {
		if strings.TrimSpace(section.Name) == "" {
			return fmt.Errorf("%w: section name is required", ErrInvalidDefinition)
		}
		for _, field := range section.Fields {
			if !domain.IsEditableField(field.Name) {
				return fmt.Errorf("%w: section %q: %w: %q", ErrInvalidDefinition, section.Name, domain.ErrUnknownField, field.Name)
			}
			if _, ok := seen[field.Name]; ok {
				return fmt.Errorf("%w: field %q declared twice", ErrInvalidDefinition, field.Name)
			}
			seen[field.Name] = struct{}{}
			if !slices.Contains(validKinds, field.Kind) {
				return fmt.Errorf("%w: field %q has unknown kind %q", ErrInvalidDefinition, field.Name, field.Kind)
			}
			if field.Kind == KindSelect && len(field.Options) == 0 {
				return fmt.Errorf("%w: select field %q needs options", ErrInvalidDefinition, field.Name)
			}
		}
	}
	return nil
}

// Fields returns every field in display order.
func (d Definition) Fields() []Field {
	out := make([]Field, 0)
	for _, section := range d.Sections {
		out = append(out, section.Fields...)
	}
	return out
}

// Field looks up one field by name.
func (d Definition) Field(name string) (Field, bool) {
	for _, section := range d.Sections {
		for _, field := range section.Fields {
			if field.Name == name {
				return field, true
			}
		}
	}
	return Field{}, false
}

// SectionOf returns the section index holding name, or -1.
func (d Definition) SectionOf(name string) int {
	for i, section := range d.Sections {
		for _, field := range section.Fields {
			if field.Name == name {
				return i
			}
		}
	}
	return -1
}

// DisplayLabel returns Label, falling back to the field name.
func (f Field) DisplayLabel() string {
	if label := strings.TrimSpace(f.Label); label != "" {
		return label
	}
	return f.Name
}

// MissingRequired returns the labels of required fields left blank in record.
func (d Definition) MissingRequired(record domain.Complaint) []string {
	out := make([]string, 0)
	for _, field := range d.Fields() {
		if !field.Required {
			continue
		}
		value, err := record.FieldValue(field.Name)
		if err != nil || strings.TrimSpace(value) == "" {
			out = append(out, field.DisplayLabel())
		}
	}
	return out
}
