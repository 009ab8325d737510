package dialect

import (
	"database/sql/driver"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/fabrimaciel/gda"
)

// Coerce converts a parameter value into a form the engine accepts:
//
//   - booleans become 1/0 without native boolean support
//   - named integer types (enums) are widened to int64/uint64
//   - GUIDs become their string form without native GUID support
//   - DateTimeOffset values lose their offset without time-zone support
func (r *Rules) Coerce(v any, t gda.DbType) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		if r.NativeBool {
			return x
		}
		if x {
			return int64(1)
		}
		return int64(0)
	case uuid.UUID:
		if r.NativeGUID {
			return x
		}
		return x.String()
	case *uuid.UUID:
		if x == nil {
			return nil
		}
		return r.Coerce(*x, t)
	case time.Time:
		if t == gda.DbDateTimeOffset && !r.TimeZone {
			return x.Local()
		}
		return x
	case driver.Valuer:
		return x
	}
	w := widen(v)
	if b, ok := w.(bool); ok {
		return r.Coerce(b, t)
	}
	return w
}

// widen converts values of named integer kinds to their underlying width.
func widen(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Type().PkgPath() == "" {
		return v
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}

// OutDest returns a pointer suitable as sql.Out destination for t.
func (r *Rules) OutDest(t gda.DbType) any {
	switch t {
	case gda.DbInt16, gda.DbInt32, gda.DbInt64:
		return new(int64)
	case gda.DbBoolean:
		if r.NativeBool {
			return new(bool)
		}
		return new(int64)
	case gda.DbString, gda.DbGuid:
		return new(string)
	case gda.DbDecimal, gda.DbDouble:
		return new(float64)
	case gda.DbDateTime, gda.DbDateTimeOffset:
		return new(time.Time)
	case gda.DbBinary:
		return new([]byte)
	}
	return new(any)
}

// Deref returns the value an OutDest pointer holds.
func Deref(p any) any {
	switch x := p.(type) {
	case *int64:
		return *x
	case *bool:
		return *x
	case *string:
		return *x
	case *float64:
		return *x
	case *time.Time:
		return *x
	case *[]byte:
		return *x
	case *any:
		return *x
	}
	return p
}
