package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// IntSet is a set of integers (e.g. Market.TagIDs) stored as a JSON array
// in the database and exposed as a Go set via Has.
type IntSet map[int]struct{}

// NewIntSet builds an IntSet from a slice, deduplicating as it goes.
func NewIntSet(ids ...int) IntSet {
	s := make(IntSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is a member of the set.
func (s IntSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the set's members in no particular order.
func (s IntSet) Slice() []int {
	out := make([]int, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// MarshalJSON encodes the set as a JSON array, in no particular order.
func (s IntSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes a JSON array of integers into the set.
func (s *IntSet) UnmarshalJSON(data []byte) error {
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIntSet(ids...)
	return nil
}

// Value implements driver.Valuer so IntSet can be stored as a JSON TEXT
// column without a separate join table.
func (s IntSet) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for reading the JSON TEXT column back.
func (s *IntSet) Scan(src interface{}) error {
	if src == nil {
		*s = NewIntSet()
		return nil
	}
	b, err := toBytes(src)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*s = NewIntSet()
		return nil
	}
	return json.Unmarshal(b, s)
}

// StrList is an ordered list of strings (e.g. Market.Outcomes,
// Market.TokenIDs) stored as a JSON array.
type StrList []string

func (l StrList) Value() (driver.Value, error) {
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StrList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	b, err := toBytes(src)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(b, l)
}

// JSONMap is an arbitrary JSON object (e.g. SignalEvent.Payload) stored as
// a JSON TEXT column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]interface{}(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}
	b, err := toBytes(src)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(b, m)
}

func toBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", src)
	}
}
