package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// OptionalFloat is a numeric field the upstream may omit, send as null, or encode
// as a string ("25", "25%", "N/A"). Unusable values decode as not Valid rather
// than failing the whole payload.
type OptionalFloat struct {
	Float64 float64
	Valid   bool
}

// Float returns a valid OptionalFloat.
func Float(v float64) OptionalFloat {
	return OptionalFloat{Float64: v, Valid: true}
}

func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	*o = OptionalFloat{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		if !math.IsNaN(n) && !math.IsInf(n, 0) {
			*o = Float(n)
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, ok := parseLooseFloat(s); ok {
			*o = Float(v)
		}
	}
	// Arrays, objects and junk strings are treated as absent.
	return nil
}

func (o OptionalFloat) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Float64)
}

// OptionalInt is a non-negative count the upstream may omit or mis-encode.
type OptionalInt struct {
	Int64 int64
	Valid bool
}

// Int returns a valid OptionalInt.
func Int(v int64) OptionalInt {
	return OptionalInt{Int64: v, Valid: true}
}

func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	var f OptionalFloat
	if err := f.UnmarshalJSON(data); err != nil {
		return err
	}
	*o = OptionalInt{}
	if f.Valid && validCount(f.Float64) {
		*o = Int(int64(f.Float64))
	}
	return nil
}

// validCount reports whether v is a whole number that fits a non-negative int64.
func validCount(v float64) bool {
	return v >= 0 && v < math.MaxInt64 && math.Trunc(v) == v
}

func (o OptionalInt) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Int64)
}

// parseLooseFloat accepts "25", " 25.5 ", "25%" and "25 %".
func parseLooseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
