package store

import (
	"strconv"
	"strings"
)

// Dialect covers the few SQL differences between the supported drivers.
type Dialect interface {
	Name() string
	// Returning reports whether INSERT ... RETURNING id is needed to read
	// back generated keys.
	Returning() bool
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string    { return "sqlite" }
func (sqliteDialect) Returning() bool { return false }

type postgresDialect struct{}

func (postgresDialect) Name() string    { return "postgres" }
func (postgresDialect) Returning() bool { return true }

// upsert builds an ON CONFLICT clause; both drivers accept the same syntax.
func upsert(key string, cols ...string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = excluded." + c
	}
	return " ON CONFLICT (" + key + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// Rebind turns ? placeholders into $1, $2, ... outside of quoted strings.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
