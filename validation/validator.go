// Package validation checks preference values against the JSON schema
// registered for them and coerces near misses (numeric strings, "true")
// into the declared type.
package validation

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-prefs"
	"github.com/goliatone/go-prefs/layering"
	"github.com/rs/zerolog"
)

// Source provides the registered schemas and their effective defaults.
// *prefs.SchemaRegistry satisfies it.
type Source interface {
	Property(name string) (*prefs.PreferenceProperty, bool)
	DefaultValue(key, overrideIdentifier string) any
	Overrides() *prefs.OverrideService
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger logs rejected values at warn level.
func WithLogger(logger zerolog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithoutFallback makes rejected values resolve to nil instead of the
// preference default.
func WithoutFallback() Option {
	return func(v *Validator) {
		v.fallback = false
	}
}

// Validator implements prefs.Validator against a Source.
type Validator struct {
	source   Source
	logger   zerolog.Logger
	fallback bool
	patterns sync.Map
}

var _ prefs.StrictValidator = (*Validator)(nil)

func New(source Source, opts ...Option) *Validator {
	v := &Validator{source: source, logger: zerolog.Nop(), fallback: true}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// ValidateByName returns the value to store for name. Values of unknown
// preferences and nil are returned unchanged. A value that cannot be made
// to fit the schema is replaced by the preference default.
func (v *Validator) ValidateByName(name string, value any) (any, []string) {
	result, err := v.Validate(name, value)
	if err == nil {
		return result, nil
	}
	return result, err.(Messages)
}

// ValidateStrict is ValidateByName without the default fallback: a value
// that cannot be made to fit the schema resolves to nil.
func (v *Validator) ValidateStrict(name string, value any) (any, []string) {
	result, err := v.check(name, value, false)
	if err == nil {
		return result, nil
	}
	return result, err.(Messages)
}

// Validate is ValidateByName with the messages returned as an error.
func (v *Validator) Validate(name string, value any) (any, error) {
	return v.check(name, value, v.fallback)
}

func (v *Validator) check(name string, value any, fallback bool) (any, error) {
	if value == nil {
		return nil, nil
	}
	property, ok := v.source.Property(name)
	if !ok {
		return value, nil
	}

	var messages Messages
	result, valid := v.validate("", &property.JSONSchema, value, &messages)
	if valid {
		if len(messages) == 0 {
			return result, nil
		}
		return result, messages
	}

	v.logger.Warn().Str("preference", name).Strs("messages", messages).Msg("preference value rejected")
	if !fallback {
		return nil, messages
	}
	return v.defaultValue(name), messages
}

func (v *Validator) defaultValue(name string) any {
	if parsed, ok := v.source.Overrides().OverriddenPreferenceName(name); ok {
		return v.source.DefaultValue(parsed.PreferenceName, parsed.OverrideIdentifier)
	}
	return v.source.DefaultValue(name, "")
}

// validate returns the coerced value and whether it satisfies schema.
func (v *Validator) validate(path string, schema *prefs.JSONSchema, value any, messages *Messages) (any, bool) {
	if schema == nil {
		return value, true
	}

	if schema.Const != nil {
		if !layering.Equal(schema.Const, value) {
			messages.add(path, fmt.Sprintf("Value must be %s.", render(schema.Const)))
			return nil, false
		}
		return value, true
	}

	if len(schema.OneOf) > 0 {
		return v.validateAlternatives(path, schema.OneOf, value, messages)
	}
	if len(schema.AnyOf) > 0 {
		return v.validateAlternatives(path, schema.AnyOf, value, messages)
	}

	result, ok := v.validateTypes(path, schema, value, messages)
	if !ok {
		return nil, false
	}

	if len(schema.Enum) > 0 {
		for _, candidate := range schema.Enum {
			if layering.Equal(candidate, result) {
				return result, true
			}
		}
		valid := make([]string, len(schema.Enum))
		for i, candidate := range schema.Enum {
			valid[i] = render(candidate)
		}
		messages.add(path, fmt.Sprintf("Value is not accepted. Valid values: %s.", strings.Join(valid, ", ")))
		return nil, false
	}
	return result, true
}

// validateAlternatives accepts the first alternative the value satisfies.
// Messages of failed alternatives are only reported when none matches.
func (v *Validator) validateAlternatives(path string, alternatives []*prefs.JSONSchema, value any, messages *Messages) (any, bool) {
	var failures Messages
	for _, alternative := range alternatives {
		var local Messages
		if result, ok := v.validate(path, alternative, value, &local); ok {
			*messages = append(*messages, local...)
			return result, true
		}
		failures = append(failures, local...)
	}
	*messages = append(*messages, failures...)
	messages.add(path, "Value does not match any of the allowed schemas.")
	return nil, false
}

func (v *Validator) validateTypes(path string, schema *prefs.JSONSchema, value any, messages *Messages) (any, bool) {
	types := schema.Type
	if len(types) == 0 {
		types = inferTypes(schema)
	}
	if len(types) == 0 {
		return value, true
	}

	// Exact matches win over coercions so ["number","string"] keeps "3" a
	// string.
	for _, typ := range types {
		if matchesType(typ, value) {
			var local Messages
			result, ok := v.validateType(path, typ, schema, value, &local)
			*messages = append(*messages, local...)
			return result, ok
		}
	}
	for _, typ := range types {
		coerced, ok := coerce(typ, value)
		if !ok {
			continue
		}
		var local Messages
		result, valid := v.validateType(path, typ, schema, coerced, &local)
		if !valid {
			*messages = append(*messages, local...)
			return nil, false
		}
		messages.add(path, fmt.Sprintf("Value %s was coerced to %s.", render(value), typ))
		*messages = append(*messages, local...)
		return result, true
	}

	messages.add(path, fmt.Sprintf("Incorrect type. Expected %s.", expected(types)))
	return nil, false
}

func inferTypes(schema *prefs.JSONSchema) prefs.TypeList {
	switch {
	case schema.Properties != nil || schema.PatternProperties != nil || schema.AdditionalProperties != nil:
		return prefs.TypeList{prefs.TypeObject}
	case schema.Items != nil:
		return prefs.TypeList{prefs.TypeArray}
	}
	return nil
}

func (v *Validator) validateType(path, typ string, schema *prefs.JSONSchema, value any, messages *Messages) (any, bool) {
	switch typ {
	case prefs.TypeNumber, prefs.TypeInteger:
		return value, checkRange(path, schema, value, messages)
	case prefs.TypeString:
		return value, v.checkString(path, schema, value.(string), messages)
	case prefs.TypeArray:
		return v.validateArray(path, schema, toSlice(value), messages)
	case prefs.TypeObject:
		return v.validateObject(path, schema, toMap(value), messages)
	}
	return value, true
}

func checkRange(path string, schema *prefs.JSONSchema, value any, messages *Messages) bool {
	number, _ := toFloat(value)
	if schema.Minimum != nil && number < *schema.Minimum {
		messages.add(path, fmt.Sprintf("Value is below the minimum of %v.", *schema.Minimum))
		return false
	}
	if schema.Maximum != nil && number > *schema.Maximum {
		messages.add(path, fmt.Sprintf("Value is above the maximum of %v.", *schema.Maximum))
		return false
	}
	return true
}

func (v *Validator) checkString(path string, schema *prefs.JSONSchema, value string, messages *Messages) bool {
	length := len([]rune(value))
	if schema.MinLength != nil && length < *schema.MinLength {
		messages.add(path, fmt.Sprintf("String is shorter than the minimum length of %d.", *schema.MinLength))
		return false
	}
	if schema.MaxLength != nil && length > *schema.MaxLength {
		messages.add(path, fmt.Sprintf("String is longer than the maximum length of %d.", *schema.MaxLength))
		return false
	}
	if schema.Pattern == "" {
		return true
	}
	pattern, err := v.compile(schema.Pattern)
	if err != nil {
		messages.add(path, fmt.Sprintf("Invalid pattern %q: %v.", schema.Pattern, err))
		return false
	}
	if !pattern.MatchString(value) {
		messages.add(path, fmt.Sprintf("String does not match the pattern of %q.", schema.Pattern))
		return false
	}
	return true
}

func (v *Validator) compile(expr string) (*regexp.Regexp, error) {
	if cached, ok := v.patterns.Load(expr); ok {
		return cached.(*regexp.Regexp), nil
	}
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	v.patterns.Store(expr, pattern)
	return pattern, nil
}

// validateArray drops items that do not fit a uniform items schema. Tuples
// must match position by position.
func (v *Validator) validateArray(path string, schema *prefs.JSONSchema, items []any, messages *Messages) (any, bool) {
	out := make([]any, 0, len(items))
	switch {
	case schema.Items != nil && schema.Items.Tuple != nil:
		tuple := schema.Items.Tuple
		if len(items) != len(tuple) {
			messages.add(path, fmt.Sprintf("Array must have %d items.", len(tuple)))
			return nil, false
		}
		for i, item := range items {
			result, ok := v.validate(indexPath(path, i), tuple[i], item, messages)
			if !ok {
				return nil, false
			}
			out = append(out, result)
		}
	case schema.Items != nil && schema.Items.Schema != nil:
		for i, item := range items {
			var local Messages
			result, ok := v.validate(indexPath(path, i), schema.Items.Schema, item, &local)
			*messages = append(*messages, local...)
			if !ok {
				messages.add(indexPath(path, i), "Item removed.")
				continue
			}
			out = append(out, result)
		}
	default:
		out = append(out, items...)
	}

	if schema.MinItems != nil && len(out) < *schema.MinItems {
		messages.add(path, fmt.Sprintf("Array has too few items. Expected %d or more.", *schema.MinItems))
		return nil, false
	}
	if schema.MaxItems != nil && len(out) > *schema.MaxItems {
		messages.add(path, fmt.Sprintf("Array has too many items. Expected %d or fewer.", *schema.MaxItems))
		return nil, false
	}
	return out, true
}

// validateObject replaces invalid properties with their schema default, or
// drops them when there is none.
func (v *Validator) validateObject(path string, schema *prefs.JSONSchema, object map[string]any, messages *Messages) (any, bool) {
	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(object))
	for _, key := range keys {
		fieldPath := joinPath(path, key)
		fieldSchema, allowed := v.propertySchema(schema, key)
		if !allowed {
			messages.add(fieldPath, "Property is not allowed.")
			continue
		}
		var local Messages
		result, ok := v.validate(fieldPath, fieldSchema, object[key], &local)
		*messages = append(*messages, local...)
		if ok {
			out[key] = result
			continue
		}
		if fieldSchema != nil && fieldSchema.Default != nil {
			out[key] = layering.Clone(fieldSchema.Default)
		}
	}

	for _, required := range schema.Required {
		if _, ok := out[required]; !ok {
			messages.add(path, fmt.Sprintf("Missing property %q.", required))
			return nil, false
		}
	}
	return out, true
}

func (v *Validator) propertySchema(schema *prefs.JSONSchema, key string) (*prefs.JSONSchema, bool) {
	if property, ok := schema.Properties[key]; ok {
		return property, true
	}
	for expr, property := range schema.PatternProperties {
		pattern, err := v.compile(expr)
		if err == nil && pattern.MatchString(key) {
			return property, true
		}
	}
	additional := schema.AdditionalProperties
	if additional == nil {
		return nil, true
	}
	if additional.Schema != nil {
		return additional.Schema, true
	}
	return nil, additional.Allowed
}

func matchesType(typ string, value any) bool {
	switch typ {
	case prefs.TypeNull:
		return value == nil
	case prefs.TypeBoolean:
		_, ok := value.(bool)
		return ok
	case prefs.TypeString:
		_, ok := value.(string)
		return ok
	case prefs.TypeNumber:
		_, ok := toFloat(value)
		return ok
	case prefs.TypeInteger:
		number, ok := toFloat(value)
		return ok && number == math.Trunc(number) && !math.IsInf(number, 0)
	case prefs.TypeArray:
		return value != nil && reflect.TypeOf(value).Kind() == reflect.Slice && !isBytes(value)
	case prefs.TypeObject:
		if value == nil {
			return false
		}
		t := reflect.TypeOf(value)
		return t.Kind() == reflect.Map && t.Key().Kind() == reflect.String
	}
	return false
}

// coerce converts string encodings of scalars into typ.
func coerce(typ string, value any) (any, bool) {
	text, ok := value.(string)
	if !ok {
		return nil, false
	}
	text = strings.TrimSpace(text)
	switch typ {
	case prefs.TypeBoolean:
		switch text {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	case prefs.TypeNumber:
		if number, err := strconv.ParseFloat(text, 64); err == nil {
			return number, true
		}
	case prefs.TypeInteger:
		if number, err := strconv.ParseInt(text, 10, 64); err == nil {
			return int(number), true
		}
	}
	return nil, false
}

func toFloat(value any) (float64, bool) {
	if value == nil {
		return 0, false
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func isBytes(value any) bool {
	_, ok := value.([]byte)
	return ok
}

func toSlice(value any) []any {
	if items, ok := value.([]any); ok {
		return items
	}
	rv := reflect.ValueOf(value)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func toMap(value any) map[string]any {
	if object, ok := value.(map[string]any); ok {
		return object
	}
	rv := reflect.ValueOf(value)
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out
}

func expected(types prefs.TypeList) string {
	quoted := make([]string, len(types))
	for i, typ := range types {
		quoted[i] = strconv.Quote(typ)
	}
	return strings.Join(quoted, " | ")
}

func render(value any) string {
	if text, ok := value.(string); ok {
		return strconv.Quote(text)
	}
	return fmt.Sprint(value)
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}
