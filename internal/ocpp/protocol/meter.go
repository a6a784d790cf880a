package protocol

import (
	"bytes"
	"encoding/json"
	"time"
)

// SampledValue is one reading inside a MeterValue entry (OCPP 1.6 shape).
// Absent attributes default during normalization, not here.
type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Format    string `json:"format,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Phase     string `json:"phase,omitempty"`
}

// LegacyValue is the OCPP 1.5 reading shape: a bare scalar, or an object
// with an $attributes envelope around the value.
type LegacyValue struct {
	Attributes SampledValue `json:"$attributes"`
	Value      string       `json:"$value"`
}

// LegacyValues accepts the three wire shapes 1.5 devices produce for the
// "value" key: a single scalar, a single attributed object, or an array of
// either.
type LegacyValues []LegacyValue

// UnmarshalJSON implements the lenient 1.5 decoding.
func (v *LegacyValues) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = nil
		return nil
	}

	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(LegacyValues, 0, len(raw))
		for _, item := range raw {
			lv, err := decodeLegacyValue(item)
			if err != nil {
				return err
			}
			out = append(out, lv)
		}
		*v = out
		return nil
	}

	lv, err := decodeLegacyValue(data)
	if err != nil {
		return err
	}
	*v = LegacyValues{lv}
	return nil
}

func decodeLegacyValue(data []byte) (LegacyValue, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var lv LegacyValue
		if err := json.Unmarshal(data, &lv); err != nil {
			return LegacyValue{}, err
		}
		return lv, nil
	}

	// Bare scalar: quoted string or plain number.
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		return LegacyValue{Value: asString}, nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err != nil {
		return LegacyValue{}, err
	}
	return LegacyValue{Value: asNumber.String()}, nil
}

// MeterValue is one timestamped batch of readings. SampledValue carries the
// 1.6 shape, Value the 1.5 shape.
type MeterValue struct {
	Timestamp    time.Time      `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue,omitempty"`
	Value        LegacyValues   `json:"value,omitempty"`
}
