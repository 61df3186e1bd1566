package upstream

import (
	"encoding/json"
	"strings"
)

// flexText handles text fields that the upstream sometimes serialises as
// numbers (wind speed "15" vs 15) or null. Other JSON types decode as empty.
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexText(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexText(n.String())
		return nil
	}
	*f = ""
	return nil
}
