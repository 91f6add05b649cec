package server

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// HandlerFunc answers one method call. Returning a *message.Fault sends that
// fault verbatim; any other error becomes a fault with code -1000.
type HandlerFunc func(ctx context.Context, params []any) (any, error)

// service is the method table of a server.
type service struct {
	mu      sync.RWMutex
	methods map[string]HandlerFunc
}

func newService() *service {
	return &service{methods: make(map[string]HandlerFunc)}
}

func (s *service) register(name string, fn HandlerFunc) {
	s.mu.Lock()
	s.methods[name] = fn
	s.mu.Unlock()
}

func (s *service) lookup(name string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.methods[name]
	return fn, ok
}

func (s *service) names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
	anyType    = reflect.TypeOf((*any)(nil)).Elem()
	paramsType = reflect.TypeOf([]any(nil))
)

// registerReceiver scans rcvr for exported methods shaped like
//
//	func (r *T) GetVersion(params []any) (any, error)
//
// and registers each one under its Go method name.
func (s *service) registerReceiver(rcvr any) (int, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		return 0, fmt.Errorf("gbxremote: receiver must be a pointer to a struct, got %T", rcvr)
	}
	val := reflect.ValueOf(rcvr)

	n := 0
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		mt := method.Type
		if mt.NumIn() != 2 || mt.In(1) != paramsType ||
			mt.NumOut() != 2 || mt.Out(0) != anyType || mt.Out(1) != errorType {
			continue
		}
		fn := val.Method(i)
		s.register(method.Name, func(_ context.Context, params []any) (any, error) {
			out := fn.Call([]reflect.Value{reflect.ValueOf(params)})
			var err error
			if !out[1].IsNil() {
				err = out[1].Interface().(error)
			}
			return out[0].Interface(), err
		})
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("gbxremote: %s has no method of the form func([]any) (any, error)", typ)
	}
	return n, nil
}
