package services

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
)

// TriggerContext carries the event data supplied when a trigger fires. Well-known keys
// are typed; anything else lands in Extra and is still available to templates and
// conditions. A context decoded from a map also keeps the values exactly as supplied,
// and conditions compare against those rather than the coerced typed fields.
type TriggerContext struct {
	OrderNumber   string   `mapstructure:"orderNumber" json:"orderNumber,omitempty"`
	Status        string   `mapstructure:"status" json:"status,omitempty"`
	Total         *float64 `mapstructure:"total" json:"total,omitempty"`
	EstimatedTime string   `mapstructure:"estimatedTime" json:"estimatedTime,omitempty"`
	CustomerName  string   `mapstructure:"customerName" json:"customerName,omitempty"`
	ProductID     string   `mapstructure:"productId" json:"productId,omitempty"`
	ProductName   string   `mapstructure:"productName" json:"productName,omitempty"`
	DealID        string   `mapstructure:"dealId" json:"dealId,omitempty"`
	DealName      string   `mapstructure:"dealName" json:"dealName,omitempty"`
	Discount      string   `mapstructure:"discount" json:"discount,omitempty"`
	UserID        string   `mapstructure:"userId" json:"userId,omitempty"`

	Extra map[string]any `mapstructure:",remain" json:"-"`

	raw map[string]any
}

// DecodeTriggerContext builds a TriggerContext from an untyped map. Scalars are coerced
// into the typed fields ("42" into Total, 20 into Discount); the original values are
// kept for condition matching and rendering.
func DecodeTriggerContext(raw map[string]any) (TriggerContext, error) {
	var tc TriggerContext
	if len(raw) == 0 {
		return tc, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &tc,
	})
	if err != nil {
		return tc, err
	}
	if err := decoder.Decode(raw); err != nil {
		return tc, fmt.Errorf("trigger context: %w", err)
	}
	tc.raw = make(map[string]any, len(raw))
	for key, value := range raw {
		tc.raw[key] = value
	}
	return tc, nil
}

// UnmarshalJSON decodes a flat JSON object.
func (tc *TriggerContext) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := DecodeTriggerContext(raw)
	if err != nil {
		return err
	}
	*tc = decoded
	return nil
}

// MarshalJSON encodes the context as one flat object.
func (tc TriggerContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(tc.Variables())
}

// Variables flattens the context into the template variable mapping. Empty typed
// fields are omitted so their placeholders stay visible. Keys present in the decoded
// input keep their original value, including empty strings.
func (tc TriggerContext) Variables() map[string]any {
	vars := make(map[string]any, len(tc.Extra)+11)
	for key, value := range tc.Extra {
		vars[key] = value
	}

	set := func(key, value string) {
		if value != "" {
			vars[key] = value
		}
	}
	set("orderNumber", tc.OrderNumber)
	set("status", tc.Status)
	set("estimatedTime", tc.EstimatedTime)
	set("customerName", tc.CustomerName)
	set("productId", tc.ProductID)
	set("productName", tc.ProductName)
	set("dealId", tc.DealID)
	set("dealName", tc.DealName)
	set("discount", tc.Discount)
	set("userId", tc.UserID)
	if tc.Total != nil {
		vars["total"] = *tc.Total
	}
	for key, value := range tc.raw {
		vars[key] = value
	}
	return vars
}

// Lookup returns the value stored under key.
func (tc TriggerContext) Lookup(key string) (any, bool) {
	value, ok := tc.Variables()[key]
	return value, ok
}

// Matches reports whether every condition equals the same key in the context. Empty
// conditions always match; a missing key never does.
func (tc TriggerContext) Matches(conditions map[string]any) bool {
	if len(conditions) == 0 {
		return true
	}
	vars := tc.Variables()
	for key, want := range conditions {
		got, ok := vars[key]
		if !ok || !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

// scalarEqual is strict equality between scalars: numbers compare numerically whatever
// their Go type, everything else must share type and value. Maps and slices never match.
func scalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	af, aNum := asNumber(a)
	bf, bNum := asNumber(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}

	ka, kb := reflect.TypeOf(a).Kind(), reflect.TypeOf(b).Kind()
	switch ka {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Func, reflect.Struct:
		return false
	}
	if ka != kb {
		return false
	}
	return a == b
}

func asNumber(v any) (float64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		f := cast.ToFloat64(v)
		return f, !math.IsNaN(f)
	case json.Number:
		f, err := v.(json.Number).Float64()
		return f, err == nil
	}
	return 0, false
}
