package metadata

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/skewballfox/papermill/core"
)

// ReservedNames are query directives and hints that cannot be field names.
var ReservedNames = []string{"similar_to", "published_after", "published_before", "alpha", "limit", "text"}

// DefaultAliases maps raw metadata keys to the field they populate when the
// field's own key is absent.
var DefaultAliases = map[string]string{
	"authors":          "author",
	"creator":          "author",
	"published_date":   "date",
	"publication_date": "date",
	"published":        "date",
	"year":             "date",
	"keywords":         "tags",
	"subjects":         "tags",
	"categories":       "tags",
}

// Schema is the set of registered fields and the extractors for their types.
// It is safe for concurrent use.
type Schema struct {
	mu         sync.RWMutex
	fields     map[string]core.FieldType
	extractors map[core.FieldType]Extractor
	aliases    map[string]string
}

// NewSchema creates a schema with the built-in extractors and aliases.
func NewSchema() *Schema {
	aliases := make(map[string]string, len(DefaultAliases))
	for k, v := range DefaultAliases {
		aliases[k] = v
	}
	return &Schema{
		fields:     make(map[string]core.FieldType),
		extractors: DefaultExtractors(),
		aliases:    aliases,
	}
}

// NormalizeFieldName lowercases and trims a field name.
func NormalizeFieldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validFieldName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}

// RegisterField adds a field. Registering the same name and type twice is a no-op.
func (s *Schema) RegisterField(name string, ft core.FieldType) error {
	name = NormalizeFieldName(name)
	if !validFieldName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidFieldName, name)
	}
	if slices.Contains(ReservedNames, name) {
		return fmt.Errorf("%w: %q", ErrReservedField, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.extractors[ft]; !ok {
		return fmt.Errorf("%w: %q", ErrNoExtractor, ft)
	}
	if existing, ok := s.fields[name]; ok && existing != ft {
		return fmt.Errorf("%w: %q is %s", ErrFieldTypeConflict, name, existing)
	}
	s.fields[name] = ft
	return nil
}

// RegisterType installs or replaces the extractor for a field type.
func (s *Schema) RegisterType(ft core.FieldType, extractor Extractor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extractors[ft] = extractor
}

// RegisterAlias makes raw metadata key populate field when field's own key is absent.
func (s *Schema) RegisterAlias(key, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[NormalizeFieldName(key)] = NormalizeFieldName(field)
}

// FieldType returns the type of a registered field.
func (s *Schema) FieldType(name string) (core.FieldType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ft, ok := s.fields[NormalizeFieldName(name)]
	return ft, ok
}

// Fields returns the registered field names in sorted order.
func (s *Schema) Fields() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Extract converts raw into the typed value for field.
func (s *Schema) Extract(field string, raw any) (core.Value, error) {
	s.mu.RLock()
	ft, ok := s.fields[NormalizeFieldName(field)]
	extractor := s.extractors[ft]
	s.mu.RUnlock()

	if !ok {
		return core.Value{}, &core.UnknownFieldError{Field: field}
	}
	if extractor == nil {
		return core.Value{}, fmt.Errorf("%w: %q", ErrNoExtractor, ft)
	}
	return extractor.Extract(raw)
}

// ExtractAll extracts every registered field present in raw, directly or
// through an alias. Fields that fail extraction are reported in errs and skipped.
func (s *Schema) ExtractAll(raw map[string]any) (map[string]core.Value, map[string]error) {
	lowered := make(map[string]any, len(raw))
	for k, v := range raw {
		lowered[NormalizeFieldName(k)] = v
	}

	s.mu.RLock()
	aliasKeys := make([]string, 0, len(s.aliases))
	aliases := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		aliasKeys = append(aliasKeys, k)
		aliases[k] = v
	}
	s.mu.RUnlock()
	slices.Sort(aliasKeys)

	values := make(map[string]core.Value)
	var errs map[string]error
	for _, field := range s.Fields() {
		rawValue, ok := lowered[field]
		if !ok {
			for _, k := range aliasKeys {
				if aliases[k] != field {
					continue
				}
				if rawValue, ok = lowered[k]; ok {
					break
				}
			}
		}
		if !ok || rawValue == nil {
			continue
		}
		v, err := s.Extract(field, rawValue)
		if err != nil {
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[field] = err
			continue
		}
		values[field] = v
	}
	return values, errs
}
