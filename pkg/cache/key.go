package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// keyLength is the length of a Key in hex characters (SHA-256).
const keyLength = sha256.Size * 2

// Key is the opaque, fixed-length identifier of a cache entry.
type Key string

// String returns the key as a string.
func (k Key) String() string {
	return string(k)
}

// Valid reports whether k has the shape produced by DeriveKey.
func (k Key) Valid() bool {
	if len(k) != keyLength {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Param is a single named request parameter.
type Param struct {
	Name  string
	Value any
}

// P is shorthand for constructing a Param.
func P(name string, value any) Param {
	return Param{Name: name, Value: value}
}

// DeriveKey generates a deterministic cache key for a logical request.
//
// Parameters are canonicalized before hashing: they are sorted by name and
// value, and values are stringified by type, so the order in which the caller
// builds the parameter list does not affect the key.
//
// Example:
//
//	key, err := cache.DeriveKey("fixtures", cache.P("event", 12), cache.P("team", 3))
func DeriveKey(namespace string, params ...Param) (Key, error) {
	ns := strings.ToLower(strings.TrimSpace(namespace))
	if ns == "" {
		return "", fmt.Errorf("%w: namespace cannot be empty", ErrInvalidKeyInput)
	}

	type pair struct{ name, value string }
	pairs := make([]pair, 0, len(params))
	for _, p := range params {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return "", fmt.Errorf("%w: parameter name cannot be empty", ErrInvalidKeyInput)
		}
		value, err := canonicalValue(p.Value)
		if err != nil {
			return "", fmt.Errorf("%w: parameter %q: %v", ErrInvalidKeyInput, name, err)
		}
		pairs = append(pairs, pair{name: name, value: value})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].name != pairs[j].name {
			return pairs[i].name < pairs[j].name
		}
		return pairs[i].value < pairs[j].value
	})

	// Length-prefixed fields: no parameter value can forge a separator.
	var b strings.Builder
	writeField(&b, ns)
	for _, p := range pairs {
		writeField(&b, p.name)
		writeField(&b, p.value)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return Key(hex.EncodeToString(sum[:])), nil
}

// KeyForEndpoint derives the key of an upstream endpoint request.
// The endpoint path is normalized (surrounding slashes removed) and every
// query value becomes a parameter.
func KeyForEndpoint(endpoint string, query url.Values) (Key, error) {
	params := make([]Param, 0, len(query))
	for name, values := range query {
		params = append(params, P(name, values))
	}
	return DeriveKey(strings.Trim(endpoint, "/"), params...)
}

func writeField(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// canonicalValue converts a parameter value to its stable string form.
// Single values are tagged "s:" and lists "l<n>:" followed by their
// length-prefixed elements, so no list can encode to the same form as a
// single value or as a list of another length.
func canonicalValue(v any) (string, error) {
	if x, ok := v.([]string); ok {
		return canonicalList(len(x), func(i int) (string, error) { return "s:" + x[i], nil })
	}

	rv := reflect.ValueOf(v)
	if k := rv.Kind(); k == reflect.Slice || k == reflect.Array {
		return canonicalList(rv.Len(), func(i int) (string, error) {
			return canonicalValue(rv.Index(i).Interface())
		})
	}

	s, err := scalarValue(v)
	if err != nil {
		return "", err
	}
	return "s:" + s, nil
}

func canonicalList(n int, elem func(i int) (string, error)) (string, error) {
	var b strings.Builder
	b.WriteByte('l')
	b.WriteString(strconv.Itoa(n))
	b.WriteByte(':')
	for i := 0; i < n; i++ {
		s, err := elem(i)
		if err != nil {
			return "", err
		}
		writeField(&b, s)
	}
	return b.String(), nil
}

// scalarValue stringifies a single value by kind.
func scalarValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	case time.Duration:
		return x.String(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("non-finite float %v", f)
		}
		bits := 64
		if rv.Kind() == reflect.Float32 {
			bits = 32
		}
		return strconv.FormatFloat(f, 'g', -1, bits), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	}

	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}
