package driver

import (
	"database/sql/driver"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/folkelib/elm/mapping"
)

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// ErrOutOfRange is returned for integers that do not fit a BIGINT column
// or the field they are read into.
var ErrOutOfRange = errors.New("integer out of range")

func reflectValue(v any) reflect.Value {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer && rv.IsValid() {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		return p
	}
	return rv
}

// parameterOf converts the value of property p for binding. JSON properties
// are encoded before the driver sees them.
func parameterOf(d Driver, p *mapping.PropertyMapping, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if p.IsJSON || p.Kind == mapping.KindJSON {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", p, err)
		}
		return string(b), nil
	}
	return d.ConvertValueToParameter(v)
}

// convertParameter reduces v to a value database/sql accepts: valuers and
// plain values pass through, times are normalized to UTC, text marshalers
// are stored by name and named scalar types are reduced to their kind.
func convertParameter(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return x.UTC(), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return x.UTC(), nil
	case uuid.UUID:
		return x.String(), nil
	case bool, string, []byte, int64, float64:
		return v, nil
	case driver.Valuer:
		return x, nil
	case encoding.TextMarshaler:
		b, err := x.MarshalText()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return convertParameter(rv.Elem().Interface())
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d does not fit BIGINT", ErrOutOfRange, u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("unsupported parameter type %T", v)
}

// uuidReader decodes a raw UUID column value.
type uuidReader func(raw any) (uuid.UUID, error)

func readUUID(raw any) (uuid.UUID, error) {
	switch x := raw.(type) {
	case uuid.UUID:
		return x, nil
	case string:
		return uuid.Parse(x)
	case []byte:
		if len(x) == 16 {
			return uuid.FromBytes(x)
		}
		return uuid.ParseBytes(x)
	}
	return uuid.Nil, fmt.Errorf("cannot read %T as uuid", raw)
}

// convertReader converts raw to the Go type of p. A nil result is SQL NULL.
func convertReader(raw any, p *mapping.PropertyMapping, readU uuidReader) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if p.IsReference() {
		if p.Reference.Key == nil {
			return nil, fmt.Errorf("%s references %s which has no key", p, p.Reference.Name)
		}
		return convertReader(raw, p.Reference.Key, readU)
	}
	if readU == nil {
		readU = readUUID
	}

	t := p.Type
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if p.IsJSON || p.Kind == mapping.KindJSON {
		return readJSON(raw, t)
	}

	var v any
	var err error
	switch p.Kind {
	case mapping.KindBool:
		v, err = readBool(raw)
	case mapping.KindInt8, mapping.KindInt16, mapping.KindInt32, mapping.KindInt64:
		v, err = readInt(raw)
	case mapping.KindFloat32, mapping.KindFloat64:
		v, err = readFloat(raw)
	case mapping.KindString:
		v, err = readString(raw)
	case mapping.KindText:
		return readText(raw, t)
	case mapping.KindTime:
		v, err = readTime(raw)
	case mapping.KindUUID:
		v, err = readU(raw)
	case mapping.KindBytes:
		v, err = readBytes(raw)
	default:
		v = raw
	}
	if err != nil {
		return nil, err
	}
	if t == nil {
		return v, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type() == t {
		return v, nil
	}
	if rv.Type().ConvertibleTo(t) {
		if err := fits(rv, t); err != nil {
			return nil, err
		}
		return rv.Convert(t).Interface(), nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", raw, t)
}

// fits checks that an int64 read from the database fits integer type t.
func fits(v reflect.Value, t reflect.Type) error {
	if v.Kind() != reflect.Int64 {
		return nil
	}
	n := v.Int()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		if reflect.Zero(t).OverflowInt(n) {
			return fmt.Errorf("%w: %d does not fit %s", ErrOutOfRange, n, t)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n < 0 || reflect.Zero(t).OverflowUint(uint64(n)) {
			return fmt.Errorf("%w: %d does not fit %s", ErrOutOfRange, n, t)
		}
	}
	return nil
}

func readBool(raw any) (bool, error) {
	switch x := raw.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case []byte:
		return strconv.ParseBool(string(x))
	case string:
		return strconv.ParseBool(x)
	}
	return false, fmt.Errorf("cannot read %T as bool", raw)
}

func readInt(raw any) (int64, error) {
	switch x := raw.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, fmt.Errorf("cannot read %T as integer", raw)
}

func readFloat(raw any) (float64, error) {
	switch x := raw.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return 0, fmt.Errorf("cannot read %T as float", raw)
}

func readString(raw any) (string, error) {
	switch x := raw.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case int64, float64, bool:
		return fmt.Sprint(x), nil
	}
	return "", fmt.Errorf("cannot read %T as string", raw)
}

func readBytes(raw any) ([]byte, error) {
	switch x := raw.(type) {
	case []byte:
		return append([]byte(nil), x...), nil
	case string:
		return []byte(x), nil
	}
	return nil, fmt.Errorf("cannot read %T as bytes", raw)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	"2006-01-02",
}

func readTime(raw any) (time.Time, error) {
	var s string
	switch x := raw.(type) {
	case time.Time:
		return x.UTC(), nil
	case []byte:
		s = string(x)
	case string:
		s = x
	default:
		return time.Time{}, fmt.Errorf("cannot read %T as time", raw)
	}
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

func readText(raw any, t reflect.Type) (any, error) {
	s, err := readString(raw)
	if err != nil {
		return nil, err
	}
	if t == nil || !reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return s, nil
	}
	v := reflect.New(t)
	if err := v.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return v.Elem().Interface(), nil
}

func readJSON(raw any, t reflect.Type) (any, error) {
	var b []byte
	switch x := raw.(type) {
	case []byte:
		b = x
	case string:
		b = []byte(x)
	default:
		return nil, fmt.Errorf("cannot read %T as json", raw)
	}
	if t == nil {
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	v := reflect.New(t)
	if err := json.Unmarshal(b, v.Interface()); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	return v.Elem().Interface(), nil
}
