package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNoSuchColumn is returned when a row is indexed by a column name it does
// not carry.
var ErrNoSuchColumn = errors.New("no such column")

// columnSet is shared by every row of one result set.
type columnSet struct {
	names []string
	index map[string]int
}

func newColumnSet(names []string) *columnSet {
	cs := &columnSet{names: names, index: make(map[string]int, len(names))}
	for i, n := range names {
		key := strings.ToLower(n)
		// first occurrence wins, like positional lookup on duplicate names
		if _, ok := cs.index[key]; !ok {
			cs.index[key] = i
		}
	}
	return cs
}

// Row is one fetched record, addressable by column name or position.
// Values are normalized so both backends return the same Go types:
// text as string, integers as int64, NULL as nil.
type Row struct {
	cols   *columnSet
	values []interface{}
}

// NewRow builds a row from parallel column and value slices.
func NewRow(columns []string, values []interface{}) Row {
	return Row{cols: newColumnSet(columns), values: values}
}

// Columns returns the column names in result order.
func (r Row) Columns() []string {
	if r.cols == nil {
		return nil
	}
	return r.cols.names
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.values) }

// At returns the value at position i. It panics when i is out of range,
// like a slice index.
func (r Row) At(i int) interface{} { return r.values[i] }

// Get returns the value of the named column (case-insensitive).
func (r Row) Get(name string) (interface{}, error) {
	if r.cols == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchColumn, name)
	}
	i, ok := r.cols.index[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchColumn, name)
	}
	return r.values[i], nil
}

// Has reports whether the row carries the named column.
func (r Row) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// String returns the column as text. Missing columns and NULL yield "".
func (r Row) String(name string) string {
	v, _ := r.Get(name)
	return toString(v)
}

// NullString returns nil for NULL or missing columns.
func (r Row) NullString(name string) *string {
	v, err := r.Get(name)
	if err != nil || v == nil {
		return nil
	}
	s := toString(v)
	return &s
}

// Int64 returns the column as an integer, 0 when NULL, missing or unparsable.
func (r Row) Int64(name string) int64 {
	v, _ := r.Get(name)
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Bool reads a flag column. Historical schemas stored flags as 0/1 or as
// "yes"/"no" text; both are accepted.
func (r Row) Bool(name string) bool {
	v, _ := r.Get(name)
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case string:
		return ParseFlag(x)
	default:
		return false
	}
}

// ParseFlag interprets the textual flag spellings seen in older data.
func ParseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "true", "y", "t":
		return true
	default:
		return false
	}
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// normalize maps driver values onto the shared representation.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	default:
		return v
	}
}
