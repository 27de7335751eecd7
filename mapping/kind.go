package mapping

import (
	"encoding"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Kind classifies the value stored in a column. Drivers translate a Kind
// into their own SQL type text.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	// KindText is a named type persisted through encoding.TextMarshaler,
	// used for enum-like values stored by name.
	KindText
	KindTime
	KindUUID
	KindBytes
	KindJSON
	KindReference
)

var kindNames = map[Kind]string{
	KindInvalid:   "invalid",
	KindBool:      "bool",
	KindInt8:      "int8",
	KindInt16:     "int16",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindString:    "string",
	KindText:      "text",
	KindTime:      "time",
	KindUUID:      "uuid",
	KindBytes:     "bytes",
	KindJSON:      "json",
	KindReference: "reference",
}

// String returns the descriptor name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsInteger reports whether the kind holds an integer.
func (k Kind) IsInteger() bool {
	return k >= KindInt8 && k <= KindInt64
}

// ParseKind parses a descriptor type name.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "int":
		return KindInt64, nil
	case "float":
		return KindFloat64, nil
	case "datetime", "timestamp":
		return KindTime, nil
	case "guid":
		return KindUUID, nil
	}
	for k, n := range kindNames {
		if n == name && k != KindInvalid && k != KindReference {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
}

var (
	timeType            = reflect.TypeOf(time.Time{})
	uuidType            = reflect.TypeOf(uuid.UUID{})
	bytesType           = reflect.TypeOf([]byte(nil))
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// kindOf classifies a scalar Go type. Pointers are unwrapped by the caller.
func kindOf(t reflect.Type) (Kind, error) {
	switch t {
	case timeType:
		return KindTime, nil
	case uuidType:
		return KindUUID, nil
	case bytesType:
		return KindBytes, nil
	}
	if t.Kind() != reflect.Struct && t.Implements(textMarshalerType) &&
		reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return KindText, nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return KindBool, nil
	case reflect.Int8:
		return KindInt8, nil
	case reflect.Int16, reflect.Uint8:
		return KindInt16, nil
	case reflect.Int32, reflect.Uint16:
		return KindInt32, nil
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return KindInt64, nil
	case reflect.Float32:
		return KindFloat32, nil
	case reflect.Float64:
		return KindFloat64, nil
	case reflect.String:
		return KindString, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes, nil
		}
	}
	return KindInvalid, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
}

// isScalarStruct reports struct types that are stored in a single column.
func isScalarStruct(t reflect.Type) bool {
	return t == timeType || t == uuidType
}
