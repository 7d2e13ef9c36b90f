package registry

import (
	"reflect"
	"slices"
	"strings"

	"github.com/MrEthical07/goMFA/method"
	"github.com/cockroachdb/errors"
)

// ErrConfiguration is returned when the configured method list is unusable.
var ErrConfiguration = errors.New("invalid mfa method configuration")

// Constructor builds one method instance.
type Constructor func() (method.Method, error)

// Catalogue maps configuration names to method constructors.
type Catalogue map[string]Constructor

// Registry is an ordered, immutable index of methods.
//
//	r, err := registry.New(basicmath.New(), backupcodes.New(hasher))
type Registry struct {
	methods   []method.Method
	bySegment map[string]method.Method
}

// New indexes methods in the given order.
func New(methods ...method.Method) (*Registry, error) {
	r := &Registry{
		methods:   make([]method.Method, 0, len(methods)),
		bySegment: make(map[string]method.Method, len(methods)),
	}

	for i, m := range methods {
		if m == nil || isNilValue(m) {
			return nil, configError(errors.Newf("method at position %d is nil", i),
				"remove the empty entry from the method list")
		}

		segment := m.URLSegment()
		if err := method.ValidateSegment(segment); err != nil {
			return nil, configError(errors.Wrapf(err, "method %T", m),
				"url segments must be lower-case words joined by single hyphens")
		}
		if isNilValue(m.LoginHandler()) {
			return nil, configError(errors.Newf("method %q has no login handler", segment),
				"every method must provide a login handler")
		}
		if isNilValue(m.RegisterHandler()) {
			return nil, configError(errors.Newf("method %q has no register handler", segment),
				"every method must provide a register handler")
		}

		if existing, ok := r.bySegment[segment]; ok {
			if reflect.TypeOf(existing) == reflect.TypeOf(m) {
				continue
			}
			return nil, configError(
				errors.Newf("methods %T and %T both use url segment %q", existing, m, segment),
				"give each method a unique url segment or remove one of them")
		}

		r.bySegment[segment] = m
		r.methods = append(r.methods, m)
	}

	return r, nil
}

// Resolve builds the methods named in names through catalogue. Repeated
// names are constructed once.
func Resolve(names []string, catalogue Catalogue) ([]method.Method, error) {
	seen := make(map[string]struct{}, len(names))
	methods := make([]method.Method, 0, len(names))

	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		build, ok := catalogue[name]
		if !ok || build == nil {
			return nil, configError(errors.Newf("unknown method %q", name),
				"known methods: "+joinNames(catalogue))
		}
		m, err := build()
		if err != nil {
			return nil, configError(errors.Wrapf(err, "build method %q", name),
				"check the settings of this method")
		}
		methods = append(methods, m)
	}

	return methods, nil
}

// FromNames resolves names through catalogue and indexes the result.
func FromNames(names []string, catalogue Catalogue) (*Registry, error) {
	methods, err := Resolve(names, catalogue)
	if err != nil {
		return nil, err
	}
	return New(methods...)
}

// All returns the methods in configuration order.
func (r *Registry) All() []method.Method {
	return slices.Clone(r.methods)
}

// ByURLSegment looks up a method. The boolean is false when no configured
// method uses segment.
func (r *Registry) ByURLSegment(segment string) (method.Method, bool) {
	m, ok := r.bySegment[segment]
	return m, ok
}

// Default picks the method to offer first at login: preferred when it is
// both registered and configured, otherwise the first configured method,
// in registry order, that is registered.
func (r *Registry) Default(preferred string, registered []method.RegisteredMethod) (method.Method, bool) {
	isRegistered := func(segment string) bool {
		return slices.ContainsFunc(registered, func(rm method.RegisteredMethod) bool {
			return rm.Method == segment
		})
	}

	if preferred != "" && isRegistered(preferred) {
		if m, ok := r.bySegment[preferred]; ok {
			return m, true
		}
	}
	for _, m := range r.methods {
		if isRegistered(m.URLSegment()) {
			return m, true
		}
	}
	return nil, false
}

// Segments returns the configured URL segments in order.
func (r *Registry) Segments() []string {
	out := make([]string, len(r.methods))
	for i, m := range r.methods {
		out[i] = m.URLSegment()
	}
	return out
}

// Len returns the number of configured methods.
func (r *Registry) Len() int {
	return len(r.methods)
}

func configError(err error, hint string) error {
	return errors.WithHint(errors.Mark(err, ErrConfiguration), hint)
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

func joinNames(catalogue Catalogue) string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}
