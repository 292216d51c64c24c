package model

import (
	"bytes"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/serialization"
)

// ParameterType is the declared type of a job parameter.
type ParameterType string

const (
	ParameterTypeString ParameterType = "STRING"
	ParameterTypeLong   ParameterType = "LONG"
	ParameterTypeDate   ParameterType = "DATE"
	ParameterTypeDouble ParameterType = "DOUBLE"
)

// ParseParameterType converts a (case-insensitive) type name to a ParameterType.
func ParseParameterType(name string) (ParameterType, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "STRING", "":
		return ParameterTypeString, nil
	case "LONG", "INT", "INTEGER":
		return ParameterTypeLong, nil
	case "DATE", "DATETIME", "TIMESTAMP":
		return ParameterTypeDate, nil
	case "DOUBLE", "FLOAT":
		return ParameterTypeDouble, nil
	}
	return "", fmt.Errorf("unknown job parameter type '%s'", name)
}

// dateLayouts are accepted when parsing DATE parameters, most specific first.
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// JobParameter is a single typed parameter value.
type JobParameter struct {
	typ ParameterType
	raw interface{} // string | int64 | time.Time | float64
}

// StringParameter creates a STRING parameter.
func StringParameter(v string) JobParameter { return JobParameter{typ: ParameterTypeString, raw: v} }

// LongParameter creates a LONG parameter.
func LongParameter(v int64) JobParameter { return JobParameter{typ: ParameterTypeLong, raw: v} }

// DateParameter creates a DATE parameter. The value is kept in UTC.
func DateParameter(v time.Time) JobParameter { return JobParameter{typ: ParameterTypeDate, raw: v.UTC()} }

// DoubleParameter creates a DOUBLE parameter.
func DoubleParameter(v float64) JobParameter { return JobParameter{typ: ParameterTypeDouble, raw: v} }

// ParseJobParameter parses text as a value of the given type.
func ParseJobParameter(typ ParameterType, text string) (JobParameter, error) {
	switch typ {
	case ParameterTypeString:
		return StringParameter(text), nil
	case ParameterTypeLong:
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return JobParameter{}, fmt.Errorf("invalid LONG value '%s': %w", text, err)
		}
		return LongParameter(n), nil
	case ParameterTypeDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return JobParameter{}, fmt.Errorf("invalid DOUBLE value '%s': %w", text, err)
		}
		return DoubleParameter(f), nil
	case ParameterTypeDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(text)); err == nil {
				return DateParameter(t), nil
			}
		}
		return JobParameter{}, fmt.Errorf("invalid DATE value '%s': expected RFC3339 or YYYY-MM-DD", text)
	}
	return JobParameter{}, fmt.Errorf("unknown job parameter type '%s'", typ)
}

// Type returns the declared type.
func (p JobParameter) Type() ParameterType { return p.typ }

// Raw returns the underlying value: string, int64, time.Time or float64.
func (p JobParameter) Raw() interface{} { return p.raw }

// String returns the canonical text of the value.
func (p JobParameter) String() string {
	switch v := p.raw.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	}
	return ""
}

// Equal compares type and canonical value.
func (p JobParameter) Equal(other JobParameter) bool {
	return p.typ == other.typ && p.String() == other.String()
}

type jobParameterJSON struct {
	Type  ParameterType `json:"type"`
	Value string        `json:"value"`
}

// MarshalJSON encodes the parameter as {"type": ..., "value": "<canonical text>"}.
func (p JobParameter) MarshalJSON() ([]byte, error) {
	return json.Marshal(jobParameterJSON{Type: p.typ, Value: p.String()})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (p *JobParameter) UnmarshalJSON(data []byte) error {
	var j jobParameterJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	parsed, err := ParseJobParameter(j.Type, j.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// JobParameters is an immutable mapping from parameter name to typed value.
// Two JobParameters are equal iff their mappings are equal; that equality defines the identity of a
// job instance together with the job name.
type JobParameters struct {
	params map[string]JobParameter
}

// NewJobParameters returns an empty parameter set.
func NewJobParameters() JobParameters {
	return JobParameters{params: map[string]JobParameter{}}
}

// Get returns the named parameter.
func (jp JobParameters) Get(key string) (JobParameter, bool) {
	p, ok := jp.params[key]
	return p, ok
}

// GetString returns a STRING parameter.
func (jp JobParameters) GetString(key string) (string, bool) {
	p, ok := jp.params[key]
	if !ok || p.typ != ParameterTypeString {
		return "", false
	}
	return p.raw.(string), true
}

// GetLong returns a LONG parameter.
func (jp JobParameters) GetLong(key string) (int64, bool) {
	p, ok := jp.params[key]
	if !ok || p.typ != ParameterTypeLong {
		return 0, false
	}
	return p.raw.(int64), true
}

// GetDate returns a DATE parameter.
func (jp JobParameters) GetDate(key string) (time.Time, bool) {
	p, ok := jp.params[key]
	if !ok || p.typ != ParameterTypeDate {
		return time.Time{}, false
	}
	return p.raw.(time.Time), true
}

// GetDouble returns a DOUBLE parameter. LONG values are widened.
func (jp JobParameters) GetDouble(key string) (float64, bool) {
	p, ok := jp.params[key]
	if !ok {
		return 0, false
	}
	switch v := p.raw.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// GetText returns any parameter as its canonical text.
func (jp JobParameters) GetText(key string) (string, bool) {
	p, ok := jp.params[key]
	if !ok {
		return "", false
	}
	return p.String(), true
}

// Keys returns the parameter names in sorted order.
func (jp JobParameters) Keys() []string {
	keys := make([]string, 0, len(jp.params))
	for k := range jp.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of parameters.
func (jp JobParameters) Len() int { return len(jp.params) }

// IsEmpty reports whether there are no parameters.
func (jp JobParameters) IsEmpty() bool { return len(jp.params) == 0 }

// Equal reports whether both sets hold the same names with equal typed values.
func (jp JobParameters) Equal(other JobParameters) bool {
	if len(jp.params) != len(other.params) {
		return false
	}
	for k, p := range jp.params {
		o, ok := other.params[k]
		if !ok || !p.Equal(o) {
			return false
		}
	}
	return true
}

// ToMap returns the raw values keyed by name.
func (jp JobParameters) ToMap() map[string]interface{} {
	m := make(map[string]interface{}, len(jp.params))
	for k, p := range jp.params {
		m[k] = p.raw
	}
	return m
}

type canonicalEntry struct {
	Key   string        `json:"k"`
	Type  ParameterType `json:"t"`
	Value string        `json:"v"`
}

// canonicalJSON serializes the parameters in key order with type tags.
func (jp JobParameters) canonicalJSON() ([]byte, error) {
	entries := make([]canonicalEntry, 0, len(jp.params))
	for _, k := range jp.Keys() {
		p := jp.params[k]
		entries = append(entries, canonicalEntry{Key: k, Type: p.typ, Value: p.String()})
	}
	return json.Marshal(entries)
}

// Hash returns a deterministic hex SHA-256 digest of the canonical form. Equal sets hash equally.
func (jp JobParameters) Hash() string {
	data, err := jp.canonicalJSON()
	if err != nil {
		// canonicalEntry holds only strings; encoding cannot fail.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// String renders the parameters with masked keys hidden.
func (jp JobParameters) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, k := range jp.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		p := jp.params[k]
		val := p.String()
		if serialization.IsMaskedKey(k) {
			val = serialization.MaskValue
		}
		fmt.Fprintf(&b, "%s=%s(%s)", k, val, strings.ToLower(string(p.typ)))
	}
	b.WriteString("}")
	return b.String()
}

// MarshalJSON encodes the parameters as an object of typed values.
func (jp JobParameters) MarshalJSON() ([]byte, error) {
	if jp.params == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(jp.params)
}

// UnmarshalJSON accepts typed values ({"type":"LONG","value":"3"}) and plain JSON scalars.
// Plain strings are STRING unless the key carries a type suffix such as "startDate(date)";
// integral numbers are LONG and other numbers DOUBLE.
func (jp *JobParameters) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	b := NewJobParametersBuilder()
	for key, msg := range raw {
		if err := b.addRawJSON(key, msg); err != nil {
			return err
		}
	}
	*jp = b.ToJobParameters()
	return nil
}

// Value implements driver.Valuer.
func (jp JobParameters) Value() (driver.Value, error) {
	data, err := jp.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (jp *JobParameters) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*jp = NewJobParameters()
		return nil
	case []byte:
		if len(v) == 0 {
			*jp = NewJobParameters()
			return nil
		}
		return jp.UnmarshalJSON(v)
	case string:
		if v == "" {
			*jp = NewJobParameters()
			return nil
		}
		return jp.UnmarshalJSON([]byte(v))
	}
	return fmt.Errorf("unsupported Scan type for JobParameters: %T", value)
}

// JobParametersBuilder accumulates parameters before freezing them into a JobParameters value.
type JobParametersBuilder struct {
	params map[string]JobParameter
	err    error
}

// NewJobParametersBuilder creates an empty builder.
func NewJobParametersBuilder() *JobParametersBuilder {
	return &JobParametersBuilder{params: map[string]JobParameter{}}
}

// NewJobParametersBuilderFrom starts a builder with a copy of existing parameters.
func NewJobParametersBuilderFrom(jp JobParameters) *JobParametersBuilder {
	b := NewJobParametersBuilder()
	for k, p := range jp.params {
		b.params[k] = p
	}
	return b
}

// Add sets a typed parameter.
func (b *JobParametersBuilder) Add(key string, p JobParameter) *JobParametersBuilder {
	b.params[key] = p
	return b
}

// AddString sets a STRING parameter.
func (b *JobParametersBuilder) AddString(key, v string) *JobParametersBuilder {
	return b.Add(key, StringParameter(v))
}

// AddLong sets a LONG parameter.
func (b *JobParametersBuilder) AddLong(key string, v int64) *JobParametersBuilder {
	return b.Add(key, LongParameter(v))
}

// AddDate sets a DATE parameter.
func (b *JobParametersBuilder) AddDate(key string, v time.Time) *JobParametersBuilder {
	return b.Add(key, DateParameter(v))
}

// AddDouble sets a DOUBLE parameter.
func (b *JobParametersBuilder) AddDouble(key string, v float64) *JobParametersBuilder {
	return b.Add(key, DoubleParameter(v))
}

// AddArg parses "key=value" or "key(type)=value".
func (b *JobParametersBuilder) AddArg(arg string) *JobParametersBuilder {
	name, text, ok := strings.Cut(arg, "=")
	if !ok {
		b.setErr(fmt.Errorf("invalid job parameter '%s': expected key=value", arg))
		return b
	}
	key, typ, err := splitTypedKey(name)
	if err != nil {
		b.setErr(err)
		return b
	}
	p, err := ParseJobParameter(typ, text)
	if err != nil {
		b.setErr(fmt.Errorf("job parameter '%s': %w", key, err))
		return b
	}
	return b.Add(key, p)
}

// Remove deletes a parameter.
func (b *JobParametersBuilder) Remove(key string) *JobParametersBuilder {
	delete(b.params, key)
	return b
}

// Err returns the first parse error recorded by AddArg.
func (b *JobParametersBuilder) Err() error { return b.err }

// ToJobParameters freezes the builder's content into an immutable JobParameters.
func (b *JobParametersBuilder) ToJobParameters() JobParameters {
	out := make(map[string]JobParameter, len(b.params))
	for k, p := range b.params {
		out[k] = p
	}
	return JobParameters{params: out}
}

// Build is ToJobParameters plus the first recorded error.
func (b *JobParametersBuilder) Build() (JobParameters, error) {
	return b.ToJobParameters(), b.err
}

func (b *JobParametersBuilder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *JobParametersBuilder) addRawJSON(name string, msg json.RawMessage) error {
	key, typ, err := splitTypedKey(name)
	if err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var p JobParameter
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return fmt.Errorf("job parameter '%s': %w", key, err)
		}
		b.Add(key, p)
		return nil
	}

	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("job parameter '%s': %w", key, err)
	}
	switch val := v.(type) {
	case string:
		p, err := ParseJobParameter(typ, val)
		if err != nil {
			return fmt.Errorf("job parameter '%s': %w", key, err)
		}
		b.Add(key, p)
	case json.Number:
		if typ == ParameterTypeString && !strings.HasSuffix(name, ")") {
			if i, err := val.Int64(); err == nil {
				b.AddLong(key, i)
				return nil
			}
			f, err := val.Float64()
			if err != nil {
				return fmt.Errorf("job parameter '%s': %w", key, err)
			}
			b.AddDouble(key, f)
			return nil
		}
		p, err := ParseJobParameter(typ, val.String())
		if err != nil {
			return fmt.Errorf("job parameter '%s': %w", key, err)
		}
		b.Add(key, p)
	case bool:
		b.AddString(key, strconv.FormatBool(val))
	default:
		return fmt.Errorf("job parameter '%s': unsupported value %s", key, string(trimmed))
	}
	return nil
}

// splitTypedKey splits "name(type)" into name and type. A bare name is STRING.
func splitTypedKey(name string) (string, ParameterType, error) {
	name = strings.TrimSpace(name)
	open := strings.LastIndex(name, "(")
	if open <= 0 || !strings.HasSuffix(name, ")") {
		if name == "" {
			return "", "", fmt.Errorf("job parameter name cannot be empty")
		}
		return name, ParameterTypeString, nil
	}
	typ, err := ParseParameterType(name[open+1 : len(name)-1])
	if err != nil {
		return "", "", err
	}
	return name[:open], typ, nil
}

// ParseJobParameterArgs builds parameters from "key(type)=value" arguments.
func ParseJobParameterArgs(args []string) (JobParameters, error) {
	b := NewJobParametersBuilder()
	for _, arg := range args {
		b.AddArg(arg)
	}
	return b.Build()
}

// isIntegral reports whether f has no fractional part. Used by callers that accept loosely typed numbers.
func isIntegral(f float64) bool {
	return f == math.Trunc(f) && !math.IsInf(f, 0)
}

// JobParametersFromMap converts loosely typed values (string, ints, floats, time.Time) into parameters.
func JobParametersFromMap(m map[string]interface{}) (JobParameters, error) {
	b := NewJobParametersBuilder()
	for k, v := range m {
		switch val := v.(type) {
		case string:
			b.AddString(k, val)
		case int:
			b.AddLong(k, int64(val))
		case int32:
			b.AddLong(k, int64(val))
		case int64:
			b.AddLong(k, val)
		case float64:
			if isIntegral(val) {
				b.AddLong(k, int64(val))
			} else {
				b.AddDouble(k, val)
			}
		case float32:
			b.AddDouble(k, float64(val))
		case time.Time:
			b.AddDate(k, val)
		case JobParameter:
			b.Add(k, val)
		default:
			return JobParameters{}, fmt.Errorf("job parameter '%s': unsupported type %T", k, v)
		}
	}
	return b.ToJobParameters(), nil
}
