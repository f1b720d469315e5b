package antrian

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// As converts a value produced by a Request or read from a cache tier into
// T. Values already of type T are returned as is; generic JSON shapes
// (map[string]any, []any) are decoded field by field using json tags.
func As[T any](v any) (T, error) {
	var out T
	if v == nil {
		return out, nil
	}
	if typed, ok := v.(T); ok {
		return typed, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(v); err != nil {
		return out, &ClientError{
			Type:      ErrorTypeParse,
			Message:   fmt.Sprintf("cannot decode %T into %T", v, out),
			Cause:     err,
			Timestamp: time.Now(),
		}
	}
	return out, nil
}

// GetAs runs r.Get and decodes the result into T.
func GetAs[T any](ctx context.Context, r *Request, opts ...CallOption) (T, error) {
	v, err := r.Get(ctx, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return As[T](v)
}
