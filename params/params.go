package params

import (
	"errors"
	"fmt"
	"reflect"

	deadlock "github.com/sasha-s/go-deadlock"
)

var (
	// ErrUnknownParam is returned when an operation references a name that
	// was never declared on the set.
	ErrUnknownParam = errors.New("unknown parameter")

	// ErrTypeMismatch is returned when an assigned value is not assignable
	// to the declared slot type.
	ErrTypeMismatch = errors.New("parameter type mismatch")

	// ErrOutOfBounds is returned when a numeric value violates the slot's
	// declared bounds.
	ErrOutOfBounds = errors.New("parameter out of bounds")

	// ErrDuplicateParam is returned when a name is declared twice.
	ErrDuplicateParam = errors.New("parameter already declared")
)

// Spec declares a single typed parameter slot.
// The slot type is taken from Type when set, otherwise from the concrete
// type of Default. One of the two must be provided.
type Spec struct {
	// Name is the unique slot name within a set.
	Name string
	// Default is the initial value of the slot. May be nil when Type is set.
	Default any
	// Type fixes the slot type explicitly. Required when Default is nil.
	Type reflect.Type
	// Doc is a human-readable description of the parameter.
	Doc string
	// Min and Max bound numeric slots (inclusive). Ignored for other kinds.
	Min *float64
	Max *float64
}

// WatchFunc receives value-change notifications for a watched slot.
type WatchFunc func(name string, old, new any)

type slot struct {
	spec  Spec
	typ   reflect.Type
	kind  reflect.Kind
	value any
}

type watcher struct {
	name string
	fn   WatchFunc
}

// Set is a threadsafe collection of declared, typed parameter slots.
// Slots must be declared before they can be assigned or read; assignment is
// type-checked against the declared slot type and, for numeric slots,
// against the declared bounds.
type Set struct {
	mu       deadlock.RWMutex
	order    []string
	slots    map[string]*slot
	watchers []*watcher
}

// NewSet constructs an empty parameter set.
func NewSet() *Set {
	return &Set{slots: make(map[string]*slot)}
}

// NewSetOf constructs a set and declares every given spec, panicking on the
// first invalid declaration. Intended for package-level stage definitions
// where a bad spec is a programming error.
func NewSetOf(specs ...Spec) *Set {
	s := NewSet()
	for _, spec := range specs {
		if err := s.Declare(spec); err != nil {
			panic(fmt.Sprintf("params: declare %q: %v", spec.Name, err))
		}
	}
	return s
}

// Declare registers a new slot on the set. The slot's initial value is the
// declared default (which must itself satisfy the declared bounds).
func (s *Set) Declare(spec Spec) error {
	if spec.Name == "" {
		return errors.New("parameter name cannot be empty")
	}

	typ := spec.Type
	if typ == nil {
		if spec.Default == nil {
			return fmt.Errorf("parameter %q: either Type or a non-nil Default is required", spec.Name)
		}
		typ = reflect.TypeOf(spec.Default)
	}
	kind := typ.Kind()

	if (spec.Min != nil || spec.Max != nil) && !isNumericKind(kind) {
		return fmt.Errorf("parameter %q: bounds declared on non-numeric type %v", spec.Name, typ)
	}

	if spec.Default != nil {
		if err := checkAssignable(typ, spec.Default); err != nil {
			return fmt.Errorf("parameter %q default: %w", spec.Name, err)
		}
		if err := checkBounds(spec, spec.Default); err != nil {
			return fmt.Errorf("parameter %q default: %w", spec.Name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.slots[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateParam, spec.Name)
	}
	s.slots[spec.Name] = &slot{spec: spec, typ: typ, kind: kind, value: spec.Default}
	s.order = append(s.order, spec.Name)
	return nil
}

// Has reports whether a slot with the given name is declared.
func (s *Set) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.slots[name]
	return ok
}

// Names returns the slot names in declaration order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// SpecOf returns the declaration for a slot.
func (s *Set) SpecOf(name string) (Spec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[name]
	if !ok {
		return Spec{}, false
	}
	return sl.spec, true
}

// Set assigns a value to a declared slot. The value must be assignable to
// the declared type and satisfy any declared bounds. Watchers are notified
// synchronously when the stored value actually changes.
func (s *Set) Set(name string, value any) error {
	s.mu.Lock()
	sl, ok := s.slots[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}

	if value == nil {
		if !isNilableKind(sl.kind) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s: nil is not a valid %v", ErrTypeMismatch, name, sl.typ)
		}
	} else {
		if err := checkAssignable(sl.typ, value); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := checkBounds(sl.spec, value); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	old := sl.value
	sl.value = value
	changed := !reflect.DeepEqual(old, value)

	var notify []*watcher
	if changed {
		for _, w := range s.watchers {
			if w.name == name {
				notify = append(notify, w)
			}
		}
	}
	s.mu.Unlock()

	for _, w := range notify {
		w.fn(name, old, value)
	}
	return nil
}

// Value returns the current raw value of a slot.
func (s *Set) Value(name string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	return sl.value, nil
}

// Get retrieves the value of a slot as type T. The stored value's type must
// be assignable to T.
func Get[T any](s *Set, name string) (T, error) {
	var zero T

	v, err := s.Value(name)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	result, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s: wanted %v, got %T",
			ErrTypeMismatch, name, reflect.TypeOf((*T)(nil)).Elem(), v)
	}
	return result, nil
}

// GetOr retrieves the value of a slot as type T, falling back to the given
// value when the slot is unknown, holds nil, or holds another type.
func GetOr[T any](s *Set, name string, fallback T) T {
	raw, err := s.Value(name)
	if err != nil || raw == nil {
		return fallback
	}
	v, ok := raw.(T)
	if !ok {
		return fallback
	}
	return v
}

// Values returns a snapshot of every slot's current value, keyed by name.
func (s *Set) Values() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.slots))
	for name, sl := range s.slots {
		out[name] = sl.value
	}
	return out
}

// Apply assigns every entry whose name matches a declared slot, ignoring the
// rest. It returns the names that were applied. The first failing assignment
// aborts the application and is returned as the error.
func (s *Set) Apply(values map[string]any) ([]string, error) {
	applied := make([]string, 0, len(values))
	// Deterministic order: walk declared names, not the incoming map.
	for _, name := range s.Names() {
		v, ok := values[name]
		if !ok {
			continue
		}
		if err := s.Set(name, v); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// Watch registers fn to be called whenever the named slot's value changes.
// It returns a cancel function that removes the registration.
func (s *Set) Watch(name string, fn WatchFunc) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	w := &watcher{name: name, fn: fn}
	s.watchers = append(s.watchers, w)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, cur := range s.watchers {
			if cur == w {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				return
			}
		}
	}, nil
}

func checkAssignable(typ reflect.Type, value any) error {
	vt := reflect.TypeOf(value)
	if typ.Kind() == reflect.Interface {
		if !vt.Implements(typ) {
			return fmt.Errorf("%w: %v does not implement %v", ErrTypeMismatch, vt, typ)
		}
		return nil
	}
	if !vt.AssignableTo(typ) {
		return fmt.Errorf("%w: wanted %v, got %v", ErrTypeMismatch, typ, vt)
	}
	return nil
}

func checkBounds(spec Spec, value any) error {
	if spec.Min == nil && spec.Max == nil {
		return nil
	}
	f, ok := toFloat(value)
	if !ok {
		return nil
	}
	if spec.Min != nil && f < *spec.Min {
		return fmt.Errorf("%w: %v < minimum %v", ErrOutOfBounds, f, *spec.Min)
	}
	if spec.Max != nil && f > *spec.Max {
		return fmt.Errorf("%w: %v > maximum %v", ErrOutOfBounds, f, *spec.Max)
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	default:
		return 0, false
	}
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func isNilableKind(k reflect.Kind) bool {
	switch k {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return true
	default:
		return false
	}
}
