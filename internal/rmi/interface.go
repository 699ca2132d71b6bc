package rmi

import (
	"fmt"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// MethodSignature describes one method of a remote interface in terms
// the wire protocol can compare: its parameter type names and return
// type name (the Request/Response's ParamTypes/ReturnType).
type MethodSignature struct {
	Name       string
	ParamTypes []string
	ReturnType string
}

// InterfaceDescriptor describes a remote interface: its name and the
// signatures of its exported methods, keyed by name. Both Skeleton and
// the per-interface Stub constructors use it to validate a call before
// it ever touches the network or the server object.
type InterfaceDescriptor struct {
	Name    string
	methods map[string]MethodSignature
}

func (d *InterfaceDescriptor) Signature(name string) (MethodSignature, bool) {
	s, ok := d.methods[name]
	return s, ok
}

// Describe builds an InterfaceDescriptor for ifaceType, which must be
// a Go interface type, and validates that it is a remote interface:
// every method's last declared return value must be (or embed) the
// error type, the Go rendition of "every method lists the transport
// error kind among its declared errors" (spec.md §4.2). A non-remote
// interface is rejected with a configuration error, exactly as the
// spec requires of both the Skeleton and Stub factories.
func Describe(ifaceType reflect.Type) (*InterfaceDescriptor, error) {
	if ifaceType.Kind() != reflect.Interface {
		return nil, fmt.Errorf("rmi: %s is not an interface type", ifaceType)
	}
	d := &InterfaceDescriptor{
		Name:    ifaceType.Name(),
		methods: make(map[string]MethodSignature, ifaceType.NumMethod()),
	}
	for i := 0; i < ifaceType.NumMethod(); i++ {
		m := ifaceType.Method(i)
		if m.Type.NumOut() == 0 || !m.Type.Out(m.Type.NumOut()-1).Implements(errorType) {
			return nil, fmt.Errorf("rmi: %s.%s is not a remote method: its last return value must be error", ifaceType, m.Name)
		}
		sig := MethodSignature{Name: m.Name}
		for j := 0; j < m.Type.NumIn(); j++ {
			sig.ParamTypes = append(sig.ParamTypes, m.Type.In(j).String())
		}
		sig.ReturnType = m.Type.Out(m.Type.NumOut() - 1).String()
		if m.Type.NumOut() == 2 {
			sig.ReturnType = m.Type.Out(0).String()
		}
		d.methods[m.Name] = sig
	}
	return d, nil
}

func sameParamTypes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
