// Package dialect provides a unified interface for rendering SQL literals and
// identifiers in all database dialects the toolkit talks to. It is used to
// substitute values into query templates and to build statements for a target
// database in a way the target accepts.
package dialect

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"jdbacl/internal/core"
)

// Renderer renders identifiers and literal values for one SQL dialect.
type Renderer interface {
	Dialect() core.Dialect
	QuoteIdentifier(name string) string
	QuoteString(value string) string
	Literal(value any) (string, error)
}

type boolStyle int

const (
	boolKeyword boolStyle = iota
	boolNumeric
)

type timeStyle int

const (
	timeQuoted timeStyle = iota
	timeTypedLiteral
	timeOracle
	timeMSSQL
)

type bytesStyle int

const (
	bytesHexQuoted bytesStyle = iota
	bytesHex0x
	bytesPostgres
	bytesOracle
)

// style describes the literal syntax of one dialect.
type style struct {
	dialect    core.Dialect
	identOpen  string
	identClose string
	backslash  bool
	bools      boolStyle
	times      timeStyle
	bytes      bytesStyle
}

var styles = map[core.Dialect]style{
	core.DialectOracle:     {dialect: core.DialectOracle, identOpen: `"`, identClose: `"`, bools: boolNumeric, times: timeOracle, bytes: bytesOracle},
	core.DialectPostgreSQL: {dialect: core.DialectPostgreSQL, identOpen: `"`, identClose: `"`, bools: boolKeyword, times: timeTypedLiteral, bytes: bytesPostgres},
	core.DialectMySQL:      {dialect: core.DialectMySQL, identOpen: "`", identClose: "`", backslash: true, bools: boolNumeric, times: timeQuoted, bytes: bytesHexQuoted},
	core.DialectMSSQL:      {dialect: core.DialectMSSQL, identOpen: "[", identClose: "]", bools: boolNumeric, times: timeMSSQL, bytes: bytesHex0x},
	core.DialectDB2:        {dialect: core.DialectDB2, identOpen: `"`, identClose: `"`, bools: boolNumeric, times: timeTypedLiteral, bytes: bytesHexQuoted},
	core.DialectH2:         {dialect: core.DialectH2, identOpen: `"`, identClose: `"`, bools: boolKeyword, times: timeTypedLiteral, bytes: bytesHexQuoted},
	core.DialectHSQL:       {dialect: core.DialectHSQL, identOpen: `"`, identClose: `"`, bools: boolKeyword, times: timeTypedLiteral, bytes: bytesHexQuoted},
	core.DialectDerby:      {dialect: core.DialectDerby, identOpen: `"`, identClose: `"`, bools: boolKeyword, times: timeTypedLiteral, bytes: bytesHexQuoted},
	core.DialectFirebird:   {dialect: core.DialectFirebird, identOpen: `"`, identClose: `"`, bools: boolKeyword, times: timeTypedLiteral, bytes: bytesHexQuoted},
	core.DialectCubrid:     {dialect: core.DialectCubrid, identOpen: `"`, identClose: `"`, bools: boolNumeric, times: timeTypedLiteral, bytes: bytesHexQuoted},
	core.DialectSQLite:     {dialect: core.DialectSQLite, identOpen: `"`, identClose: `"`, bools: boolNumeric, times: timeQuoted, bytes: bytesHexQuoted},
	core.DialectUnknown:    {dialect: core.DialectUnknown, identOpen: `"`, identClose: `"`, bools: boolKeyword, times: timeQuoted, bytes: bytesHexQuoted},
}

var (
	registry = make(map[core.Dialect]func() Renderer)
	mu       sync.RWMutex
)

func init() {
	for d, s := range styles {
		s := s
		Register(d, func() Renderer { return &renderer{style: s} })
	}
}

// Register creates a new registry entry for the specified dialect, replacing
// the built-in renderer if there is one.
func Register(d core.Dialect, ctor func() Renderer) {
	mu.Lock()
	defer mu.Unlock()
	registry[d] = ctor
}

// ForDialect returns the renderer for d. Dialects without a registered
// renderer get the generic ANSI renderer.
func ForDialect(d core.Dialect) Renderer {
	mu.RLock()
	ctor, ok := registry[d]
	if !ok {
		ctor = registry[core.DialectUnknown]
	}
	mu.RUnlock()
	return ctor()
}

type renderer struct {
	style style
}

func (r *renderer) Dialect() core.Dialect {
	return r.style.dialect
}

// QuoteIdentifier quotes a table or column name, doubling embedded closing quotes.
func (r *renderer) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, r.style.identClose, r.style.identClose+r.style.identClose)
	return r.style.identOpen + escaped + r.style.identClose
}

// QuoteString renders s as a string literal.
func (r *renderer) QuoteString(s string) string {
	if r.style.backslash {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Literal renders value as a SQL literal of the dialect.
func (r *renderer) Literal(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "NULL", nil
	case string:
		return r.QuoteString(v), nil
	case bool:
		return r.boolLiteral(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case *big.Int:
		return v.String(), nil
	case time.Time:
		return r.timeLiteral(v), nil
	case []byte:
		return r.bytesLiteral(v), nil
	case fmt.Stringer:
		return r.QuoteString(v.String()), nil
	default:
		return "", fmt.Errorf("dialect: cannot render %T as a %s literal", value, r.style.dialect)
	}
}

func (r *renderer) boolLiteral(v bool) string {
	if r.style.bools == boolNumeric {
		if v {
			return "1"
		}
		return "0"
	}
	if v {
		return "TRUE"
	}
	return "FALSE"
}

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05.999999999"
)

func (r *renderer) timeLiteral(t time.Time) string {
	isDate := t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
	switch r.style.times {
	case timeOracle:
		if isDate {
			return "TO_DATE('" + t.Format(dateLayout) + "', 'YYYY-MM-DD')"
		}
		return "TO_TIMESTAMP('" + t.Format("2006-01-02 15:04:05.000000") + "', 'YYYY-MM-DD HH24:MI:SS.FF')"
	case timeTypedLiteral:
		if isDate {
			return "DATE '" + t.Format(dateLayout) + "'"
		}
		return "TIMESTAMP '" + t.Format(timestampLayout) + "'"
	case timeMSSQL:
		if isDate {
			return "'" + t.Format("20060102") + "'"
		}
		return "'" + t.Format("2006-01-02T15:04:05.000") + "'"
	default:
		if isDate {
			return "'" + t.Format(dateLayout) + "'"
		}
		return "'" + t.Format(timestampLayout) + "'"
	}
}

func (r *renderer) bytesLiteral(b []byte) string {
	h := hex.EncodeToString(b)
	switch r.style.bytes {
	case bytesHex0x:
		return "0x" + h
	case bytesPostgres:
		return `'\x` + h + `'::bytea`
	case bytesOracle:
		return "HEXTORAW('" + h + "')"
	default:
		return "X'" + h + "'"
	}
}
