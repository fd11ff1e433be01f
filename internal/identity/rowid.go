package identity

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RowID is a primary key value usable as a map key. Scalar and composite keys
// compare by their component sequence, so two []any keys with equal
// components are the same RowID. Integer kinds are normalized so that
// int(7) and int64(7) are equal, strings and numbers never are.
type RowID struct {
	key string
}

// NewRowID wraps a scalar primary key or a composite one given as []any.
// A composite key with a single component equals the scalar key.
func NewRowID(pk any) RowID {
	comps := PKComponents(pk)
	if len(comps) == 1 {
		return RowID{key: encodeComponent(comps[0])}
	}
	var sb strings.Builder
	sb.WriteByte('c')
	for _, c := range comps {
		enc := encodeComponent(c)
		sb.WriteString(strconv.Itoa(len(enc)))
		sb.WriteByte(':')
		sb.WriteString(enc)
	}
	return RowID{key: sb.String()}
}

// String returns the internal encoding, useful in logs.
func (id RowID) String() string {
	return id.key
}

// PKComponents returns the components of a primary key value.
func PKComponents(pk any) []any {
	if comps, ok := pk.([]any); ok {
		return comps
	}
	return []any{pk}
}

// PKValue packs components back into a scalar or composite key value.
func PKValue(comps []any) any {
	if len(comps) == 1 {
		return comps[0]
	}
	return comps
}

func encodeComponent(v any) string {
	switch x := v.(type) {
	case nil:
		return "n:"
	case string:
		return "s:" + x
	case []byte:
		return "s:" + string(x)
	case bool:
		return "b:" + strconv.FormatBool(x)
	case int:
		return "i:" + strconv.FormatInt(int64(x), 10)
	case int8:
		return "i:" + strconv.FormatInt(int64(x), 10)
	case int16:
		return "i:" + strconv.FormatInt(int64(x), 10)
	case int32:
		return "i:" + strconv.FormatInt(int64(x), 10)
	case int64:
		return "i:" + strconv.FormatInt(x, 10)
	case uint:
		return encodeUint(uint64(x))
	case uint8:
		return encodeUint(uint64(x))
	case uint16:
		return encodeUint(uint64(x))
	case uint32:
		return encodeUint(uint64(x))
	case uint64:
		return encodeUint(x)
	case float32:
		return encodeFloat(float64(x))
	case float64:
		return encodeFloat(x)
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("v:%T:%v", v, v)
	}
}

func encodeUint(u uint64) string {
	if u <= math.MaxInt64 {
		return "i:" + strconv.FormatInt(int64(u), 10)
	}
	return "u:" + strconv.FormatUint(u, 10)
}

// encodeFloat keeps integral floats equal to integers, some drivers return
// NUMBER columns as float64.
func encodeFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return "i:" + strconv.FormatInt(int64(f), 10)
	}
	return "f:" + strconv.FormatFloat(f, 'g', -1, 64)
}

// ValueString renders a column value the way natural keys are built from it.
// NULL becomes the empty string.
func ValueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05.999999999")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case []any:
		nk := NewNKBuilder()
		for _, c := range x {
			nk.Add(c)
		}
		return nk.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}
