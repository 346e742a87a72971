// Package functions implements scalar function references, CombineFn
// reducers, the builtin function set and the per-compilation catalog.
//
// Scalar functions are referenced either by a method on a type (MethodRef),
// by a callable object whose Apply method is invoked (NewCallableRef) or by
// a plain Go func (FuncRef). Method-based references never hold an instance:
// a fresh receiver is constructed for every invocation.
package functions

import (
	"fmt"
	gotoken "go/token"
	"reflect"
	"strings"
	"time"

	"github.com/leapstack-labs/flowsql/pkg/core"
)

// Well-known method names.
const (
	DefaultMethod  = "Eval"
	CallableMethod = "Apply"
)

// Ref is a resolved reference to a scalar function implementation.
type Ref interface {
	// Invoke calls the implementation with normalized SQL values.
	Invoke(args []any) (any, error)
	// Arity returns the number of fixed parameters and whether more may follow.
	Arity() (n int, variadic bool)
	// ReturnType is the SQL type of the result, TypeAny when unknown.
	ReturnType() core.Type
	String() string
}

// Callable is any value whose type has an exported Apply method. Only the
// dynamic type of the value is retained.
type Callable any

// Initializer is implemented by function types that need setup after their
// zero value is constructed.
type Initializer interface {
	Init() error
}

var (
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
	initializerType = reflect.TypeOf((*Initializer)(nil)).Elem()
)

// MethodRef references an exported method on a type. The receiver is
// instantiated anew for every invocation.
type MethodRef struct {
	typ      reflect.Type // element type, never a pointer
	method   reflect.Method
	callable bool
	sig      signature
}

// NewMethodRef resolves method on the type of typ. typ may be a value or a
// (nil) pointer of the implementing type. An empty method selects Eval.
func NewMethodRef(typ any, method string) (*MethodRef, error) {
	return newMethodRef(typ, method, false)
}

// NewCallableRef resolves the Apply method of c's dynamic type.
func NewCallableRef(c Callable) (*MethodRef, error) {
	return newMethodRef(c, CallableMethod, true)
}

func newMethodRef(typ any, method string, callable bool) (*MethodRef, error) {
	const op = "resolve function reference"
	if typ == nil {
		return nil, &core.ConfigError{Op: op, Message: "implementation type is nil"}
	}
	if method == "" {
		method = DefaultMethod
	}
	if !gotoken.IsExported(method) {
		return nil, &core.ConfigError{Op: op, Message: fmt.Sprintf("method %q is not exported", method)}
	}

	t := reflect.TypeOf(typ)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return nil, &core.ConfigError{Op: op, Message: fmt.Sprintf("type %s cannot be instantiated", t)}
	}

	m, ok := reflect.PointerTo(t).MethodByName(method)
	if !ok {
		return nil, &core.ConfigError{Op: op, Message: fmt.Sprintf("type %s has no method %s", t, method)}
	}

	// In(0) is the receiver.
	sig, err := newSignature(m.Type, 1)
	if err != nil {
		return nil, &core.ConfigError{Op: op, Message: fmt.Sprintf("%s.%s: %v", t, method, err)}
	}
	return &MethodRef{typ: t, method: m, callable: callable, sig: sig}, nil
}

// Type returns the implementing type.
func (r *MethodRef) Type() reflect.Type { return r.typ }

// Method returns the resolved method name.
func (r *MethodRef) Method() string { return r.method.Name }

// Callable reports whether the reference was created from a callable object.
func (r *MethodRef) Callable() bool { return r.callable }

// Invoke constructs a fresh receiver and calls the method.
func (r *MethodRef) Invoke(args []any) (any, error) {
	in, isNull, err := r.sig.convertArgs(args)
	if err != nil || isNull {
		return nil, err
	}
	recv, err := r.instantiate()
	if err != nil {
		return nil, err
	}
	out := r.method.Func.Call(append([]reflect.Value{recv}, in...))
	return r.sig.result(out)
}

// instantiate builds the receiver. Init failures and panics surface as
// ConstructionError; the function name is filled in by the catalog.
func (r *MethodRef) instantiate() (recv reflect.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &core.ConstructionError{Type: r.typ.String(), Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	recv = reflect.New(r.typ)
	if recv.Type().Implements(initializerType) {
		if ierr := recv.Interface().(Initializer).Init(); ierr != nil {
			return reflect.Value{}, &core.ConstructionError{Type: r.typ.String(), Err: ierr}
		}
	}
	return recv, nil
}

// Arity implements Ref.
func (r *MethodRef) Arity() (int, bool) { return r.sig.arity() }

// ReturnType implements Ref.
func (r *MethodRef) ReturnType() core.Type { return r.sig.returnType() }

func (r *MethodRef) String() string {
	return fmt.Sprintf("%s.%s%s", r.typ, r.method.Name, r.sig)
}

// FuncRef references a plain Go function value.
type FuncRef struct {
	fn  reflect.Value
	sig signature
}

// NewFuncRef validates fn, which must be a func returning a value and
// optionally an error.
func NewFuncRef(fn any) (*FuncRef, error) {
	const op = "resolve function reference"
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, &core.ConfigError{Op: op, Message: fmt.Sprintf("%T is not a function", fn)}
	}
	sig, err := newSignature(v.Type(), 0)
	if err != nil {
		return nil, &core.ConfigError{Op: op, Message: err.Error()}
	}
	return &FuncRef{fn: v, sig: sig}, nil
}

// MustFuncRef is like NewFuncRef but panics on error. Used for builtins.
func MustFuncRef(fn any) *FuncRef {
	r, err := NewFuncRef(fn)
	if err != nil {
		panic(err)
	}
	return r
}

// Invoke implements Ref.
func (r *FuncRef) Invoke(args []any) (any, error) {
	in, isNull, err := r.sig.convertArgs(args)
	if err != nil || isNull {
		return nil, err
	}
	return r.sig.result(r.fn.Call(in))
}

// Arity implements Ref.
func (r *FuncRef) Arity() (int, bool) { return r.sig.arity() }

// ReturnType implements Ref.
func (r *FuncRef) ReturnType() core.Type { return r.sig.returnType() }

func (r *FuncRef) String() string { return "func" + r.sig.String() }

// ---------- signatures ----------

type signature struct {
	params   []reflect.Type
	variadic bool
	out      reflect.Type
	hasErr   bool
}

func newSignature(ft reflect.Type, skip int) (signature, error) {
	var sig signature
	for i := skip; i < ft.NumIn(); i++ {
		sig.params = append(sig.params, ft.In(i))
	}
	sig.variadic = ft.IsVariadic()

	switch ft.NumOut() {
	case 1:
		sig.out = ft.Out(0)
	case 2:
		if ft.Out(1) != errorType {
			return sig, fmt.Errorf("second result must be error, got %s", ft.Out(1))
		}
		sig.out, sig.hasErr = ft.Out(0), true
	default:
		return sig, fmt.Errorf("must return a value or (value, error), got %d results", ft.NumOut())
	}
	if sig.out == errorType {
		return sig, fmt.Errorf("first result must not be error")
	}
	return sig, nil
}

func (s signature) arity() (int, bool) {
	if s.variadic {
		return len(s.params) - 1, true
	}
	return len(s.params), false
}

// convertArgs converts SQL values to the parameter types. A NULL passed to a
// parameter that cannot hold nil makes the whole call NULL.
func (s signature) convertArgs(args []any) ([]reflect.Value, bool, error) {
	fixed, variadic := s.arity()
	if len(args) < fixed || (!variadic && len(args) > fixed) {
		return nil, false, fmt.Errorf("expected %s arguments, got %d", s.arityText(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		pt := s.paramType(i)
		if a == nil && !nillable(pt) {
			return nil, true, nil
		}
		v, err := convertValue(a, pt)
		if err != nil {
			return nil, false, fmt.Errorf("argument %d: %w", i+1, err)
		}
		in[i] = v
	}
	return in, false, nil
}

func (s signature) paramType(i int) reflect.Type {
	fixed, variadic := s.arity()
	if variadic && i >= fixed {
		return s.params[len(s.params)-1].Elem()
	}
	return s.params[i]
}

func (s signature) arityText() string {
	fixed, variadic := s.arity()
	if variadic {
		return fmt.Sprintf("at least %d", fixed)
	}
	return fmt.Sprintf("%d", fixed)
}

func (s signature) result(out []reflect.Value) (any, error) {
	if s.hasErr && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	v := out[0]
	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
		return nil, nil
	}
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return core.NormalizeValue(v.Interface()), nil
}

func (s signature) returnType() core.Type {
	return kindType(s.out)
}

func (s signature) String() string {
	parts := make([]string, len(s.params))
	for i, p := range s.params {
		if s.variadic && i == len(s.params)-1 {
			parts[i] = "..." + p.Elem().String()
			continue
		}
		parts[i] = p.String()
	}
	res := s.out.String()
	if s.hasErr {
		res = "(" + res + ", error)"
	}
	return "(" + strings.Join(parts, ", ") + ") " + res
}

var timeType = reflect.TypeOf(time.Time{})

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map:
		return true
	}
	return false
}

func kindType(t reflect.Type) core.Type {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return core.TypeTimestamp
	}
	switch t.Kind() {
	case reflect.Bool:
		return core.TypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return core.TypeInt
	case reflect.Float32, reflect.Float64:
		return core.TypeFloat
	case reflect.String:
		return core.TypeString
	}
	return core.TypeAny
}

// convertValue converts a normalized SQL value to t.
func convertValue(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	if t.Kind() == reflect.Pointer {
		inner, err := convertValue(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		return p, nil
	}
	if t == timeType {
		ts, err := core.Cast(v, core.TypeTimestamp)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(ts), nil
	}

	var (
		out any
		ok  = true
	)
	switch t.Kind() {
	case reflect.Interface:
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(t) {
			return reflect.Value{}, fmt.Errorf("cannot use %s as %s", core.TypeOf(v), t)
		}
		return rv, nil
	case reflect.Bool:
		out, ok = core.ToBool(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		out, ok = core.ToInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n int64
		if n, ok = core.ToInt(v); ok && n < 0 {
			return reflect.Value{}, fmt.Errorf("cannot use negative value %d as %s", n, t)
		}
		out = n
	case reflect.Float32, reflect.Float64:
		out, ok = core.ToFloat(v)
	case reflect.String:
		out = core.ToString(v)
	default:
		rv := reflect.ValueOf(v)
		if rv.Type().AssignableTo(t) {
			return rv, nil
		}
		ok = false
	}
	if !ok {
		return reflect.Value{}, fmt.Errorf("cannot convert %s value %q to %s", core.TypeOf(v), core.ToString(v), t)
	}
	return reflect.ValueOf(out).Convert(t), nil
}
