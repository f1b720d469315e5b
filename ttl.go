package antrian

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Cache lifetime templates.
const (
	TTL1Min   = time.Minute
	TTL2Min   = 2 * time.Minute
	TTL5Min   = 5 * time.Minute
	TTL1Hour  = time.Hour
	TTL12Hour = 12 * time.Hour
	TTL1Day   = 24 * time.Hour
	TTL2Day   = 48 * time.Hour
	TTL7Day   = 7 * 24 * time.Hour

	// DefaultTTL applies when Cache.Get or Cache.Set receive no TTL.
	DefaultTTL = TTL1Min
	// DefaultRequestTTL applies to a CachePolicy without a TTL.
	DefaultRequestTTL = TTL2Min
)

var ttlTemplates = map[string]time.Duration{
	"1min":  TTL1Min,
	"2min":  TTL2Min,
	"5min":  TTL5Min,
	"1hr":   TTL1Hour,
	"12hr":  TTL12Hour,
	"1day":  TTL1Day,
	"2day":  TTL2Day,
	"7day":  TTL7Day,
	"1hour": TTL1Hour,
}

// ParseTTL accepts a template name ("1min", "1hr", "7day", ...) or any
// time.ParseDuration string.
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if d, ok := ttlTemplates[s]; ok {
		return d, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid ttl %q: must be positive", s)
	}
	return d, nil
}

func ttlOrDefault(ttl, def time.Duration) time.Duration {
	if ttl <= 0 {
		return def
	}
	return ttl
}

// isEmpty reports whether a generated value is too empty to cache: nil,
// "", false, a numeric zero, or a nil slice, map, pointer or interface.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.Len() == 0
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Slice, reflect.Map, reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
