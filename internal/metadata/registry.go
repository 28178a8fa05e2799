package metadata

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

type Registry struct {
	mu        sync.RWMutex
	entities  map[string]*Entity       // keyed by entity name
	byType    map[reflect.Type]*Entity // keyed by struct type
	order     []string                 // registration order
	relations map[string]Relation      // keyed by entity name
}

func NewRegistry() *Registry {
	return &Registry{
		entities:  make(map[string]*Entity),
		byType:    make(map[reflect.Type]*Entity),
		relations: make(map[string]Relation),
	}
}

// Register reflects the prototype's type and records it. No DDL is issued;
// references are checked later by Validate so types can be registered in
// any order.
func (r *Registry) Register(prototype any) (*Entity, error) {
	t := baseType(reflect.TypeOf(prototype))
	if t == nil {
		return nil, ErrNotStruct
	}
	e, err := Reflect(t)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[e.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, e.Name)
	}
	r.entities[e.Name] = e
	r.byType[t] = e
	r.order = append(r.order, e.Name)
	return e, nil
}

// RegisterRelation adds a link table for an already registered entity.
func (r *Registry) RegisterRelation(prototype any) (Relation, error) {
	e, err := r.EntityFor(prototype)
	if err != nil {
		return Relation{}, fmt.Errorf("%w: %v", ErrRelationUnsupported, err)
	}
	rel := NewRelation(e)

	r.mu.Lock()
	r.relations[e.Name] = rel
	r.mu.Unlock()
	return rel, nil
}

// EntityFor returns the entity registered for the prototype's type.
func (r *Registry) EntityFor(prototype any) (*Entity, error) {
	t := baseType(reflect.TypeOf(prototype))
	if t == nil {
		return nil, ErrNotStruct
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byType[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregistered, t.Name())
	}
	return e, nil
}

// GetEntity returns the entity with the given name or table name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entities[name]; ok {
		return e
	}
	for _, e := range r.entities {
		if e.Table == strings.ToLower(name) {
			return e
		}
	}
	return nil
}

// AllEntities returns all registered entities in registration order.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		entities = append(entities, r.entities[name])
	}
	return entities
}

// GetRelation returns the relation kept for the entity.
func (r *Registry) GetRelation(entity string) (Relation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.relations[entity]
	return rel, ok
}

// AllRelations returns all registered relations sorted by table.
func (r *Registry) AllRelations() []Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rels := make([]Relation, 0, len(r.relations))
	for _, rel := range r.relations {
		rels = append(rels, rel)
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].Table < rels[j].Table })
	return rels
}

// Validate checks that every reference targets a registered entity.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		e := r.entities[name]
		for _, f := range e.References() {
			if _, ok := r.entities[f.Ref]; !ok {
				return fmt.Errorf("%s.%s -> %s: %w", e.Name, f.Name, f.Ref, ErrUnknownReference)
			}
		}
	}
	return nil
}

// Ordered returns the entities so that every referenced table precedes the
// tables pointing at it. Self references are allowed.
func (r *Registry) Ordered() ([]*Entity, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.entities))
	ordered := make([]*Entity, 0, len(r.entities))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrReferenceCycle, strings.Join(append(path, name), " -> "))
		}
		state[name] = visiting
		e := r.entities[name]
		for _, f := range e.References() {
			if f.Ref == name {
				continue
			}
			if err := visit(f.Ref, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		ordered = append(ordered, e)
		return nil
	}

	for _, name := range r.order {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func baseType(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return t
}
