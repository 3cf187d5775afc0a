package store

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// settingIgnoreMalformed is the settings key that makes the cluster skip
// values that fail to parse instead of rejecting the whole document.
const settingIgnoreMalformed = "index.mapping.ignore_malformed"

// Template is a mapping document in the Elasticsearch create-index shape:
// index settings plus one mapping per document type.
type Template struct {
	Settings map[string]any         `json:"settings,omitempty"`
	Mappings map[string]TypeMapping `json:"mappings"`

	raw []byte
}

// TypeMapping is the mapping for one document type.
type TypeMapping struct {
	DynamicDateFormats []string                     `json:"dynamic_date_formats,omitempty"`
	DynamicTemplates   []map[string]DynamicTemplate `json:"dynamic_templates,omitempty"`
	Properties         map[string]Property          `json:"properties,omitempty"`
}

// DynamicTemplate maps fields whose name matches Match.
type DynamicTemplate struct {
	MatchPattern string   `json:"match_pattern,omitempty"`
	Match        string   `json:"match"`
	Mapping      Property `json:"mapping"`
}

// Property is an explicit field or object mapping.
type Property struct {
	Type       string              `json:"type,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
}

// NamedDynamicTemplate is a dynamic template with its compiled matcher.
type NamedDynamicTemplate struct {
	Name     string
	Template DynamicTemplate
	re       *regexp.Regexp
}

// ParseTemplate parses and validates a mapping document.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse mapping template: %w", err)
	}
	if len(t.Mappings) == 0 {
		return nil, fmt.Errorf("mapping template defines no document types")
	}
	for typeName := range t.Mappings {
		if _, err := t.DynamicTemplates(typeName); err != nil {
			return nil, err
		}
	}
	t.raw = append([]byte(nil), data...)
	return &t, nil
}

// Raw returns the document the template was parsed from.
func (t *Template) Raw() []byte {
	return t.raw
}

// IgnoreMalformed reports whether malformed field values are skipped.
func (t *Template) IgnoreMalformed() bool {
	v, ok := t.Settings[settingIgnoreMalformed]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return false
}

// Types returns the document type names, sorted.
func (t *Template) Types() []string {
	names := make([]string, 0, len(t.Mappings))
	for name := range t.Mappings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DynamicTemplates returns the compiled dynamic templates of a document type
// in declaration order.
func (t *Template) DynamicTemplates(typeName string) ([]NamedDynamicTemplate, error) {
	tm, ok := t.Mappings[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown document type %q", typeName)
	}
	var out []NamedDynamicTemplate
	for _, entry := range tm.DynamicTemplates {
		for name, dt := range entry {
			re, err := compileMatch(dt)
			if err != nil {
				return nil, fmt.Errorf("dynamic template %q: %w", name, err)
			}
			out = append(out, NamedDynamicTemplate{Name: name, Template: dt, re: re})
		}
	}
	return out, nil
}

// Matches reports whether a field name is covered by the template. Regex
// templates must match the whole field name.
func (d NamedDynamicTemplate) Matches(field string) bool {
	return d.re.MatchString(field)
}

func compileMatch(dt DynamicTemplate) (*regexp.Regexp, error) {
	switch dt.MatchPattern {
	case "regex":
		return regexp.Compile("^(?:" + dt.Match + ")$")
	case "", "simple":
		parts := strings.Split(dt.Match, "*")
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	default:
		return nil, fmt.Errorf("unsupported match_pattern %q", dt.MatchPattern)
	}
}
