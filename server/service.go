package server

import (
	"context"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// Sink receives the items of a stream method.
type Sink interface {
	Send(v any) error
}

type methodType struct {
	method  reflect.Method
	route   string
	ArgType reflect.Type
	raw     bool // reply is []byte, sent without JSON encoding
	stream  bool
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	sinkType    = reflect.TypeOf((*Sink)(nil)).Elem()
	bytesType   = reflect.TypeOf([]byte(nil))
)

// newService 扫描 rcvr 的导出方法，按 name 前缀生成路由
func newService(name string, rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %s", typ.Kind())
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	srv := &service{
		name:   name,
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	srv.registerMethods()
	if len(srv.method) == 0 {
		return nil, fmt.Errorf("rpc: %s has no methods with a handler signature", typ)
	}
	return srv, nil
}

// registerMethods keeps methods of one of two shapes:
//
//	func (s *T) GetById(ctx context.Context, args *A) (R, error)        single reply
//	func (s *T) StreamMessages(ctx context.Context, args *A, out Sink) error  stream
//
// GetById on service "users" becomes route "users.getById".
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumIn() < 3 || mt.In(1) != contextType || mt.In(2).Kind() != reflect.Ptr {
			continue
		}

		m := &methodType{
			method:  method,
			route:   s.name + "." + lowerFirst(method.Name),
			ArgType: mt.In(2).Elem(),
		}
		switch {
		case mt.NumIn() == 3 && mt.NumOut() == 2 && mt.Out(1) == errorType:
			m.raw = mt.Out(0) == bytesType
		case mt.NumIn() == 4 && mt.In(3) == sinkType && mt.NumOut() == 1 && mt.Out(0) == errorType:
			m.stream = true
		default:
			continue
		}
		s.method[m.route] = m
	}
}

// call invokes a single-reply method. A nil pointer, slice or map reply is
// reported as (nil, nil): the request completes without a value.
func (s *service) call(ctx context.Context, m *methodType, argv reflect.Value) (any, error) {
	results := m.method.Func.Call([]reflect.Value{s.rcvr, reflect.ValueOf(ctx), argv})
	if err, _ := results[1].Interface().(error); err != nil {
		return nil, err
	}
	reply := results[0]
	switch reply.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		if reply.IsNil() {
			return nil, nil
		}
	}
	return reply.Interface(), nil
}

func (s *service) stream(ctx context.Context, m *methodType, argv reflect.Value, out Sink) error {
	results := m.method.Func.Call([]reflect.Value{s.rcvr, reflect.ValueOf(ctx), argv, reflect.ValueOf(&out).Elem()})
	err, _ := results[0].Interface().(error)
	return err
}

func lowerFirst(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(r)) + name[size:]
}
