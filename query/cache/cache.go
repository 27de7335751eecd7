// Package cache provides the per-session identity cache.
package cache

import (
	"fmt"
	"math"
	"reflect"

	"github.com/folkelib/elm/mapping"
)

// Stats represents cache statistics
type Stats struct {
	Hits    int64
	Misses  int64
	Size    int
	HitRate float64
}

type entryKey struct {
	typ mapping.TypeID
	key any
}

// Identity maps (type, primary key) to the single object materialized for
// it. An Identity belongs to one session and is not safe for concurrent use.
type Identity struct {
	data  map[entryKey]any
	stats Stats
}

// New creates an empty identity cache.
func New() *Identity {
	return &Identity{data: make(map[entryKey]any)}
}

// Get retrieves the object cached for key of type typ.
func (c *Identity) Get(typ mapping.TypeID, key any) (any, bool) {
	v, ok := c.data[entryKey{typ, Normalize(key)}]
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	return v, ok
}

// Put stores obj as the instance of key, replacing any previous one.
func (c *Identity) Put(typ mapping.TypeID, key, obj any) {
	c.data[entryKey{typ, Normalize(key)}] = obj
}

// Invalidate removes a single entry.
func (c *Identity) Invalidate(typ mapping.TypeID, key any) {
	delete(c.data, entryKey{typ, Normalize(key)})
}

// InvalidateType removes every entry of typ.
func (c *Identity) InvalidateType(typ mapping.TypeID) {
	for k := range c.data {
		if k.typ == typ {
			delete(c.data, k)
		}
	}
}

// Clear removes all entries from the cache
func (c *Identity) Clear() {
	c.data = make(map[entryKey]any)
	c.stats = Stats{}
}

// Len returns the number of cached objects.
func (c *Identity) Len() int { return len(c.data) }

// GetStats returns cache statistics
func (c *Identity) GetStats() Stats {
	s := c.stats
	s.Size = len(c.data)
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total) * 100
	}
	return s
}

// Normalize folds key values that compare equal in SQL onto one Go value:
// integers to int64 (unsigned values above MaxInt64 stay uint64) and byte
// slices to string. Keys of named types are
// reduced to their underlying kind.
func Normalize(key any) any {
	switch k := key.(type) {
	case nil, string, int64:
		return key
	case []byte:
		return string(k)
	}
	v := reflect.ValueOf(key)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := v.Uint(); u <= math.MaxInt64 {
			return int64(u)
		}
		return v.Uint()
	case reflect.String:
		return v.String()
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return Normalize(v.Elem().Interface())
	}
	if !v.Type().Comparable() {
		return fmt.Sprint(key)
	}
	return key
}
