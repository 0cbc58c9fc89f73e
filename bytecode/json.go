package bytecode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// jsonDouble always renders with a fraction or exponent so that integral
// doubles are not read back as integers.
type jsonDouble float64

func (d jsonDouble) MarshalJSON() ([]byte, error) {
	f := float64(d)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("cannot encode %v as JSON", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// MarshalJSON encodes p in the persisted document format.
func MarshalJSON(p *Program) ([]byte, error) {
	doc, err := toDocument(p, func(v any) (any, error) {
		if f, ok := v.(float64); ok {
			return jsonDouble(f), nil
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalJSON decodes and validates a persisted program.
func UnmarshalJSON(data []byte) (*Program, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("bytecode: decode json: %w", err)
	}
	return fromDocument(&doc)
}
