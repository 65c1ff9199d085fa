package pascalgt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ClassMap associates class names with non-negative class ids. Ids assigned by BuildClassMap are
// sequential and start at 0. Maps decoded from manifests may be sparse.
//
// A ClassMap is immutable once built. Use BuildClassMap to derive one from a batch.
type ClassMap struct {
	ids   map[string]int
	names map[int]string
	order []int // Ascending ids.
}

// BuildClassMap assigns ids to all class names in data by first occurrence, scanning images in
// slice order and boxes in annotation order.
func BuildClassMap(data []ImageAnnotationSet) *ClassMap {
	m := &ClassMap{ids: make(map[string]int), names: make(map[int]string)}
	for _, d := range data {
		for _, b := range d.Boxes {
			if _, ok := m.ids[b.ClassName]; !ok {
				m.add(len(m.order), b.ClassName)
			}
		}
	}
	return m
}

// NewClassMap builds a ClassMap from an id to name table, as embedded in manifest records. Ids
// must be non-negative and names unique. Ids need not be contiguous.
func NewClassMap(idToName map[int]string) (*ClassMap, error) {
	ids := make([]int, 0, len(idToName))
	for id := range idToName {
		if id < 0 {
			return nil, fmt.Errorf("negative class id %d", id)
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	m := &ClassMap{ids: make(map[string]int, len(ids)), names: make(map[int]string, len(ids))}
	for _, id := range ids {
		name := idToName[id]
		if other, dup := m.ids[name]; dup {
			return nil, fmt.Errorf("class %q is mapped to ids %d and %d", name, other, id)
		}
		m.add(id, name)
	}
	return m, nil
}

// add registers name under id. id must be larger than all ids already present.
func (m *ClassMap) add(id int, name string) {
	m.ids[name] = id
	m.names[id] = name
	m.order = append(m.order, id)
}

// Extend returns a copy of m with every name in names that m lacks appended, in the given order,
// after the largest id of m. m is left unchanged.
func (m *ClassMap) Extend(names []string) (*ClassMap, error) {
	ext := &ClassMap{
		ids:   make(map[string]int, len(m.ids)+len(names)),
		names: make(map[int]string, len(m.ids)+len(names)),
		order: make([]int, 0, len(m.order)+len(names)),
	}
	next := 0
	for _, id := range m.order {
		ext.add(id, m.names[id])
		next = id + 1
	}
	for _, name := range names {
		if _, ok := ext.ids[name]; ok {
			continue
		}
		if next < 0 {
			return nil, fmt.Errorf("no class id left for %q", name)
		}
		ext.add(next, name)
		next++
	}
	return ext, nil
}

// Len returns the number of classes.
func (m *ClassMap) Len() int {
	return len(m.ids)
}

// ID returns the id of the class name.
func (m *ClassMap) ID(name string) (int, bool) {
	id, ok := m.ids[name]
	return id, ok
}

// Name returns the class name for id.
func (m *ClassMap) Name(id int) (string, bool) {
	name, ok := m.names[id]
	return name, ok
}

// Names returns the class names in id order. Gaps in sparse maps are skipped.
func (m *ClassMap) Names() []string {
	out := make([]string, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.names[id])
	}
	return out
}

// MarshalJSON encodes the map as {"<id>": "<name>", ...} in ascending id order.
func (m *ClassMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range m.order {
		if i > 0 {
			buf.WriteByte(',')
		}

		enc, err := json.Marshal(m.names[id])
		if err != nil {
			return nil, err
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(id)))
		buf.WriteByte(':')
		buf.Write(enc)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the {"<id>": "<name>"} form.
func (m *ClassMap) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	idToName := make(map[int]string, len(raw))
	for k, v := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("invalid class id %q: %v", k, err)
		}
		idToName[id] = v
	}

	parsed, err := NewClassMap(idToName)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}
