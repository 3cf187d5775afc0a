package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/datetime/flexible"
	"github.com/blevesearch/bleve/v2/mapping"
)

const (
	// DynamicDateParserName is the date parser registered from a type's
	// dynamic_date_formats. Strings that parse with it are indexed as dates.
	DynamicDateParserName = "dynamic_date_formats"

	// templateInternalKey stores the mapping document inside each index.
	templateInternalKey = "_mapping_template"
)

// namedDateFormats are the built-in format names the template may use.
var namedDateFormats = map[string][]string{
	"strict_date_optional_time": {
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02",
	},
	"date_optional_time": {
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02",
	},
	"epoch_millis": nil,
}

// jodaTokens maps date pattern letters to Go layout elements.
var jodaTokens = map[string]string{
	"yyyy": "2006",
	"yy":   "06",
	"MM":   "01",
	"M":    "1",
	"dd":   "02",
	"d":    "2",
	"HH":   "15",
	"hh":   "03",
	"h":    "3",
	"mm":   "04",
	"m":    "4",
	"ss":   "05",
	"s":    "5",
	"SSS":  "000",
	"SS":   "00",
	"S":    "0",
	"Z":    "-0700",
	"ZZ":   "-07:00",
	"a":    "PM",
}

// BuildMapping turns an index definition into a bleve index mapping.
//
// Dynamic templates are expanded against def.Fields: every known field whose
// name matches gets an explicit field mapping under def.FieldRoot. Explicit
// properties are applied afterwards and take precedence.
func BuildMapping(def *IndexDefinition) (*mapping.IndexMappingImpl, error) {
	if def == nil || def.Template == nil {
		return nil, fmt.Errorf("index definition has no mapping template")
	}

	im := bleve.NewIndexMapping()
	for _, typeName := range def.Template.Types() {
		tm := def.Template.Mappings[typeName]

		if len(tm.DynamicDateFormats) > 0 {
			layouts, err := DateLayouts(tm.DynamicDateFormats)
			if err != nil {
				return nil, fmt.Errorf("type %s: %w", typeName, err)
			}
			if len(layouts) > 0 {
				if err := addDateParser(im, layouts); err != nil {
					return nil, fmt.Errorf("type %s: %w", typeName, err)
				}
			}
		}

		dm := bleve.NewDocumentMapping()
		dynamics, err := def.Template.DynamicTemplates(typeName)
		if err != nil {
			return nil, err
		}
		if len(dynamics) > 0 && len(def.Fields) > 0 {
			root := subDocument(dm, def.FieldRoot)
			for _, field := range def.Fields {
				for _, dt := range dynamics {
					if !dt.Matches(field) {
						continue
					}
					fm, err := fieldMapping(dt.Template.Mapping.Type)
					if err != nil {
						return nil, fmt.Errorf("dynamic template %s: %w", dt.Name, err)
					}
					root.AddFieldMappingsAt(field, fm)
					break
				}
			}
		}

		if err := applyProperties(dm, tm.Properties); err != nil {
			return nil, fmt.Errorf("type %s: %w", typeName, err)
		}
		im.AddDocumentMapping(typeName, dm)
	}

	if err := im.Validate(); err != nil {
		return nil, fmt.Errorf("invalid index mapping: %w", err)
	}
	return im, nil
}

func addDateParser(im *mapping.IndexMappingImpl, layouts []string) error {
	values := make([]interface{}, len(layouts))
	for i, l := range layouts {
		values[i] = l
	}
	err := im.AddCustomDateTimeParser(DynamicDateParserName, map[string]interface{}{
		"type":    flexible.Name,
		"layouts": values,
	})
	if err != nil {
		return fmt.Errorf("register date parser: %w", err)
	}
	im.DefaultDateTimeParser = DynamicDateParserName
	return nil
}

// subDocument walks a dotted path, creating sub-document mappings as needed.
func subDocument(dm *mapping.DocumentMapping, path string) *mapping.DocumentMapping {
	if path == "" {
		return dm
	}
	cur := dm
	for _, part := range strings.Split(path, ".") {
		next, ok := cur.Properties[part]
		if !ok {
			next = bleve.NewDocumentMapping()
			cur.AddSubDocumentMapping(part, next)
		}
		cur = next
	}
	return cur
}

func applyProperties(dm *mapping.DocumentMapping, props map[string]Property) error {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := props[name]
		if p.Type == "" || p.Type == "object" {
			if err := applyProperties(subDocument(dm, name), p.Properties); err != nil {
				return err
			}
			continue
		}
		fm, err := fieldMapping(p.Type)
		if err != nil {
			return fmt.Errorf("property %s: %w", name, err)
		}
		// An explicit property replaces whatever a dynamic template added.
		if existing, ok := dm.Properties[name]; ok {
			existing.Fields = nil
			existing.AddFieldMapping(fm)
			continue
		}
		dm.AddFieldMappingsAt(name, fm)
	}
	return nil
}

func fieldMapping(esType string) (*mapping.FieldMapping, error) {
	switch esType {
	case "keyword":
		return bleve.NewKeywordFieldMapping(), nil
	case "text":
		return bleve.NewTextFieldMapping(), nil
	case "date":
		fm := bleve.NewDateTimeFieldMapping()
		return fm, nil
	case "long", "integer", "short", "byte", "double", "float", "half_float", "scaled_float":
		return bleve.NewNumericFieldMapping(), nil
	case "boolean":
		return bleve.NewBooleanFieldMapping(), nil
	case "ip":
		return bleve.NewKeywordFieldMapping(), nil
	default:
		return nil, fmt.Errorf("unsupported field type %q", esType)
	}
}

// DateLayouts converts date format patterns into Go time layouts. Entries may
// hold several alternatives separated by "||". Named formats without a Go
// layout equivalent, such as epoch_millis, are skipped.
func DateLayouts(formats []string) ([]string, error) {
	var layouts []string
	for _, f := range formats {
		for _, alt := range strings.Split(f, "||") {
			alt = strings.TrimSpace(alt)
			if alt == "" {
				continue
			}
			if named, ok := namedDateFormats[alt]; ok {
				layouts = append(layouts, named...)
				continue
			}
			l, err := jodaToLayout(alt)
			if err != nil {
				return nil, err
			}
			layouts = append(layouts, l)
		}
	}
	return layouts, nil
}

func jodaToLayout(pattern string) (string, error) {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == '\'':
			end := i + 1
			for end < len(runes) && runes[end] != '\'' {
				end++
			}
			if end >= len(runes) {
				return "", fmt.Errorf("date format %q: unterminated quote", pattern)
			}
			b.WriteString(string(runes[i+1 : end]))
			i = end + 1
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			j := i
			for j < len(runes) && runes[j] == r {
				j++
			}
			token := string(runes[i:j])
			layout, ok := jodaTokens[token]
			if !ok {
				return "", fmt.Errorf("date format %q: unsupported pattern %q", pattern, token)
			}
			b.WriteString(layout)
			i = j
		default:
			b.WriteRune(r)
			i++
		}
	}
	return b.String(), nil
}

// CheckDocument returns an error for the first value in doc that a typed field
// of docType cannot parse. bleve drops such values silently, so indexes whose
// template does not set ignore_malformed run every document through this
// first. Empty strings count as absent.
func CheckDocument(im *mapping.IndexMappingImpl, docType string, doc any) error {
	dm, ok := im.TypeMapping[docType]
	if !ok {
		dm = im.DefaultMapping
	}
	if dm == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return checkFields(im, dm, fields, "")
}

func checkFields(im *mapping.IndexMappingImpl, dm *mapping.DocumentMapping, fields map[string]any, prefix string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sub, ok := dm.Properties[name]
		if !ok {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if nested, ok := fields[name].(map[string]any); ok {
			if err := checkFields(im, sub, nested, path); err != nil {
				return err
			}
			continue
		}
		for _, fm := range sub.Fields {
			if !valueParses(im, fm, fields[name]) {
				return fmt.Errorf("failed to parse field [%s] of type [%s]: %q", path, fm.Type, fields[name])
			}
		}
	}
	return nil
}

func valueParses(im *mapping.IndexMappingImpl, fm *mapping.FieldMapping, v any) bool {
	s, ok := v.(string)
	if !ok || s == "" {
		return true
	}
	switch fm.Type {
	case "datetime":
		name := im.DefaultDateTimeParser
		if fm.DateFormat != "" {
			name = fm.DateFormat
		}
		parser := im.DateTimeParserNamed(name)
		if parser == nil {
			return true
		}
		_, _, err := parser.ParseDateTime(s)
		return err == nil
	case "number":
		_, err := strconv.ParseFloat(s, 64)
		return err == nil
	case "boolean":
		_, err := strconv.ParseBool(s)
		return err == nil
	}
	return true
}
