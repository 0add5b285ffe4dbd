package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory implements Store entirely in memory. It is the implementation used
// by tests: same contract, deterministic lifecycle, no external process.
// Documents are stored as JSON-shaped maps so typed records round-trip the
// same way they do through a real driver.
type Memory struct {
	mu          sync.Mutex
	collections map[string]*memCollection
	lastNow     time.Time
}

type memCollection struct {
	docs  map[string]map[string]any
	order []string
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (s *Memory) collection(name string) *memCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]map[string]any)}
		s.collections[name] = c
	}
	return c
}

func (s *Memory) FindOne(ctx context.Context, collection string, filter Filter, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	for _, id := range c.order {
		doc, ok := c.docs[id]
		if ok && matches(doc, filter) {
			return decode(doc, dest)
		}
	}
	return ErrNotFound
}

func (s *Memory) FindByID(ctx context.Context, collection, id string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collection(collection).docs[id]
	if !ok {
		return ErrNotFound
	}
	return decode(doc, dest)
}

func (s *Memory) FindMany(ctx context.Context, collection string, filter Filter, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	found := make([]map[string]any, 0)
	for _, id := range c.order {
		doc, ok := c.docs[id]
		if ok && matches(doc, filter) {
			found = append(found, doc)
		}
	}
	return decode(found, dest)
}

func (s *Memory) Insert(ctx context.Context, collection string, doc any) (string, error) {
	m, err := toDocMap(doc)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	m["id"] = id

	c := s.collection(collection)
	c.docs[id] = m
	c.order = append(c.order, id)
	return id, nil
}

func (s *Memory) UpdateFields(ctx context.Context, collection, id string, fields Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyUpdate(collection, id, fields)
}

func (s *Memory) AtomicBatch(ctx context.Context, ops []Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate before mutating so a failing op leaves nothing applied.
	for _, op := range ops {
		if op.Type == OpUpdate {
			if _, ok := s.collection(op.Collection).docs[op.ID]; !ok {
				return fmt.Errorf("batch update %s/%s: %w", op.Collection, op.ID, ErrNotFound)
			}
		}
	}

	for _, op := range ops {
		switch op.Type {
		case OpUpdate:
			if err := s.applyUpdate(op.Collection, op.ID, op.Fields); err != nil {
				return err
			}
		case OpDelete:
			c := s.collection(op.Collection)
			if _, ok := c.docs[op.ID]; ok {
				delete(c.docs, op.ID)
				for i, docID := range c.order {
					if docID == op.ID {
						c.order = append(c.order[:i], c.order[i+1:]...)
						break
					}
				}
			}
		}
	}
	return nil
}

// Now is non-decreasing even when the wall clock resolution is too coarse to
// distinguish consecutive calls, which keeps message ordering stable.
func (s *Memory) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if !now.After(s.lastNow) {
		now = s.lastNow.Add(time.Microsecond)
	}
	s.lastNow = now
	return now
}

// applyUpdate assumes s.mu is held.
func (s *Memory) applyUpdate(collection, id string, fields Filter) error {
	doc, ok := s.collection(collection).docs[id]
	if !ok {
		return ErrNotFound
	}
	for path, value := range fields {
		setPath(doc, strings.Split(path, "."), normalize(value))
	}
	return nil
}

// setPath writes value at a dotted path, creating intermediate maps.
func setPath(doc map[string]any, path []string, value any) {
	for len(path) > 1 {
		child, ok := doc[path[0]].(map[string]any)
		if !ok {
			child = make(map[string]any)
			doc[path[0]] = child
		}
		doc = child
		path = path[1:]
	}
	doc[path[0]] = value
}

// matches applies field-equality predicates; a scalar predicate against an
// array field means "array contains".
func matches(doc map[string]any, filter Filter) bool {
	for field, want := range filter {
		got, ok := doc[field]
		if !ok {
			return false
		}
		w := normalize(want)
		if arr, isArr := got.([]any); isArr {
			if _, wantArr := w.([]any); !wantArr {
				if !containsValue(arr, w) {
					return false
				}
				continue
			}
		}
		if !reflect.DeepEqual(got, w) {
			return false
		}
	}
	return true
}

func containsValue(arr []any, want any) bool {
	for _, v := range arr {
		if reflect.DeepEqual(v, want) {
			return true
		}
	}
	return false
}

func toDocMap(doc any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// normalize converts an arbitrary value to its JSON shape so stored fields
// and predicate values compare consistently.
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func decode(src, dest any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
