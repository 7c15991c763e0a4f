// internal/store/memstore.go
package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemStore is an in-memory Store used as a test double. Documents round-trip
// through bson so the fake observes the same field names and types as the
// Mongo implementation.
type MemStore struct {
	mu          sync.Mutex
	collections map[string]map[string]bson.M

	// FailCreate and FailUpdate make writes to the named collections return
	// an error, used to exercise failure handling.
	FailCreate map[string]error
	FailUpdate map[string]error
}

func NewMemStore() *MemStore {
	return &MemStore{
		collections: make(map[string]map[string]bson.M),
		FailCreate:  make(map[string]error),
		FailUpdate:  make(map[string]error),
	}
}

func toDoc(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func fromDoc(doc bson.M, out interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time()
	}
	return time.Time{}
}

func (s *MemStore) coll(name string) map[string]bson.M {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]bson.M)
		s.collections[name] = c
	}
	return c
}

func (s *MemStore) Get(ctx context.Context, collection, id string, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.coll(collection)[id]
	if !ok {
		return ErrNotFound
	}
	return fromDoc(doc, out)
}

func (s *MemStore) Create(ctx context.Context, collection string, doc interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailCreate[collection]; err != nil {
		return err
	}

	d, err := toDoc(doc)
	if err != nil {
		return err
	}
	id, _ := d["_id"].(string)
	if id == "" {
		return fmt.Errorf("document missing _id")
	}
	s.coll(collection)[id] = d
	return nil
}

func (s *MemStore) UpdateFields(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return s.UpdateAndAppend(ctx, collection, id, nil, fields, "", nil)
}

func (s *MemStore) AppendToArray(ctx context.Context, collection, id, field string, entry interface{}) error {
	return s.UpdateAndAppend(ctx, collection, id, nil, nil, field, entry)
}

func (s *MemStore) UpdateAndAppend(ctx context.Context, collection, id string, guard, fields map[string]interface{}, field string, entry interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailUpdate[collection]; err != nil {
		return err
	}

	doc, ok := s.coll(collection)[id]
	if !ok {
		return ErrNotFound
	}
	for k, want := range guard {
		if fmt.Sprintf("%v", doc[k]) != fmt.Sprintf("%v", want) {
			return ErrStale
		}
	}

	for k, v := range fields {
		doc[k] = v
	}
	doc["updatedAt"] = time.Now().UTC()

	if field != "" {
		var appended interface{} = entry
		if e, err := toDoc(entry); err == nil {
			appended = e
		}
		arr, _ := doc[field].(bson.A)
		doc[field] = append(arr, appended)
	}
	return nil
}

func (s *MemStore) Find(ctx context.Context, collection string, q Query, out interface{}) error {
	q.Normalize()

	s.mu.Lock()
	var matched []bson.M
	for _, doc := range s.coll(collection) {
		if s.matches(doc, q) {
			matched = append(matched, doc)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		ti, tj := asTime(matched[i]["createdAt"]), asTime(matched[j]["createdAt"])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		idi, _ := matched[i]["_id"].(string)
		idj, _ := matched[j]["_id"].(string)
		return idi > idj
	})

	if int64(len(matched)) > q.Limit+1 {
		matched = matched[:q.Limit+1]
	}

	v := reflect.ValueOf(out).Elem()
	elemType := v.Type().Elem()
	result := reflect.MakeSlice(v.Type(), 0, len(matched))
	for _, doc := range matched {
		ev := reflect.New(elemType)
		if err := fromDoc(doc, ev.Interface()); err != nil {
			return err
		}
		result = reflect.Append(result, ev.Elem())
	}
	v.Set(result)
	return nil
}

func (s *MemStore) matches(doc bson.M, q Query) bool {
	for k, want := range q.Filters {
		if fmt.Sprintf("%v", doc[k]) != fmt.Sprintf("%v", want) {
			return false
		}
	}

	created := asTime(doc["createdAt"])
	if q.Since != nil && created.Before(q.Since.UTC()) {
		return false
	}
	if q.Until != nil && created.After(q.Until.UTC()) {
		return false
	}

	if q.Cursor != "" {
		ct, cid, err := DecodeCursor(q.Cursor)
		if err != nil {
			return false
		}
		id, _ := doc["_id"].(string)
		// strictly before the cursor position in (createdAt desc, _id desc) order
		if created.After(ct) || (created.Equal(ct) && id >= cid) {
			return false
		}
	}
	return true
}
