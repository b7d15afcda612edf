package payload

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// AIPayload is the structured data the model embeds in its answer.
// Every field is optional; an absent field has no effect on the game.
type AIPayload struct {
	Narrative         string         `json:"narrative,omitempty"`
	Effects           *Effects       `json:"effects,omitempty"`
	ObjectiveProgress ObjectiveIDs   `json:"objective_progress,omitempty"`
	Flags             *Flags         `json:"flags,omitempty"`
	Raw               map[string]any `json:"-"` // decoded object, unchanged
}

// Effects are additive stat changes.
type Effects struct {
	Morale *int `json:"morale,omitempty"`
	Intel  *int `json:"intel,omitempty"`
	Turns  *int `json:"turns,omitempty"`
}

// Flags carry out-of-band signals from the model.
type Flags struct {
	EndState string `json:"end_state,omitempty"` // "victory" or "defeat"
	Summary  string `json:"summary,omitempty"`
	Hint     string `json:"hint,omitempty"`
}

// IsEmpty reports whether the payload carries nothing to apply.
func (p *AIPayload) IsEmpty() bool {
	return p == nil || (p.Narrative == "" &&
		p.Effects.IsEmpty() &&
		len(p.ObjectiveProgress) == 0 &&
		p.Flags.IsEmpty())
}

// IsEmpty reports whether no effect is present.
func (e *Effects) IsEmpty() bool {
	return e == nil || (e.Morale == nil && e.Intel == nil && e.Turns == nil)
}

// IsEmpty reports whether no flag is set.
func (f *Flags) IsEmpty() bool {
	return f == nil || (f.EndState == "" && f.Summary == "" && f.Hint == "")
}

// ObjectiveIDs accepts either a single id string or a list of ids.
type ObjectiveIDs []string

func (o *ObjectiveIDs) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			*o = ObjectiveIDs{single}
		}
		return nil
	}

	var list []any
	if err := json.Unmarshal(data, &list); err != nil {
		// Not a string or list (null, number, object): treat as absent.
		*o = nil
		return nil
	}
	ids := make(ObjectiveIDs, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	*o = ids
	return nil
}

func (e *Effects) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*e = Effects{}
		return nil
	}
	*e = Effects{
		Morale: lenientInt(raw["morale"]),
		Intel:  lenientInt(raw["intel"]),
		Turns:  lenientInt(raw["turns"]),
	}
	return nil
}

func (f *Flags) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		*f = Flags{}
		return nil
	}
	*f = Flags{
		EndState: stringField(raw, "end_state"),
		Summary:  stringField(raw, "summary"),
		Hint:     stringField(raw, "hint"),
	}
	return nil
}

// lenientInt reads a JSON number (fraction truncated) or a numeric string.
// Anything else is absent.
func lenientInt(data json.RawMessage) *int {
	if len(data) == 0 {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	// Clamp before conversion so huge values cannot overflow.
	f = math.Max(math.Min(f, math.MaxInt32), math.MinInt32)
	n := int(f)
	return &n
}

func stringField(raw map[string]any, key string) string {
	if s, ok := raw[key].(string); ok {
		return s
	}
	return ""
}
