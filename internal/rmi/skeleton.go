package rmi

import (
	"fmt"
	"net"
	"reflect"
	"sync"

	"github.com/lowmarsh/dfs/internal/netutil"
	"github.com/lowmarsh/dfs/internal/rmierr"
	log "github.com/sirupsen/logrus"
)

// State is one of the Skeleton life-cycle states from spec.md §4.3.
type State int

const (
	New State = iota
	Started
	Running
	Interrupted
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case New:
		return "NEW"
	case Started:
		return "STARTED"
	case Running:
		return "RUNNING"
	case Interrupted:
		return "INTERRUPTED"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Skeleton is the server side of RMI: a listening thread plus an
// unbounded worker pool dispatching into a bound server object by
// reflection, restricted to the methods of one remote interface.
type Skeleton struct {
	descriptor *InterfaceDescriptor
	impl       reflect.Value

	// ListenError is called when Accept fails for a reason other than
	// the listener being closed by Stop. It returns whether the
	// listener should keep accepting. The default is to stop.
	ListenError func(error) bool
	// ServiceError is advisory: called whenever a worker fails to
	// decode, dispatch, or encode a request/response.
	ServiceError func(error)
	// Stopped is invoked exactly once when the listener goroutine
	// exits, with the cause (nil for a clean Stop).
	Stopped func(error)

	mu       sync.Mutex
	state    State
	listener net.Listener
	network  string
	address  string
	wg       sync.WaitGroup
}

// NewSkeleton binds ifaceType (which must describe a remote interface,
// see Describe) to impl, the object that will service invocations.
// network/address follow net.Listen's conventions; address may be
// ":0" or "" for a system-chosen TCP port, matching spec.md's "address
// is null" case.
func NewSkeleton(ifaceType reflect.Type, impl interface{}, network, address string) (*Skeleton, error) {
	if impl == nil {
		return nil, fmt.Errorf("rmi.NewSkeleton: %w: impl", rmierr.ErrNullArgument)
	}
	descriptor, err := Describe(ifaceType)
	if err != nil {
		return nil, err
	}
	implValue := reflect.ValueOf(impl)
	if !implValue.Type().Implements(ifaceType) {
		return nil, fmt.Errorf("rmi.NewSkeleton: %T does not implement %s", impl, ifaceType)
	}
	return &Skeleton{
		descriptor:   descriptor,
		impl:         implValue,
		network:      network,
		address:      address,
		ListenError:  func(error) bool { return false },
		ServiceError: func(err error) { log.WithField("interface", descriptor.Name).Warn(err) },
		Stopped:      func(error) {},
	}, nil
}

// Start binds a new listening socket (a prior Start/Stop cycle's
// socket was closed by Stop) and launches the listener goroutine. It fails with ErrIllegalState unless the skeleton is NEW
// or STOPPED.
func (s *Skeleton) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != New && s.state != Stopped {
		return fmt.Errorf("rmi.Skeleton.Start: %w: already started (state=%s)", rmierr.ErrIllegalState, s.state)
	}
	listener, err := netutil.Listen(s.network, s.address)
	if err != nil {
		return fmt.Errorf("rmi.Skeleton.Start: listen %s/%s: %w", s.network, s.address, err)
	}
	s.listener = listener
	s.state = Started
	s.wg.Add(1)
	go s.listen()
	return nil
}

// Stop interrupts the listener. In-flight workers are allowed to
// finish naturally; Stopped fires once the listener goroutine exits.
// Stop is a no-op unless the skeleton is STARTED or RUNNING.
func (s *Skeleton) Stop() {
	s.mu.Lock()
	if s.state != Started && s.state != Running {
		s.mu.Unlock()
		return
	}
	s.state = Interrupted
	listener := s.listener
	s.mu.Unlock()
	_ = listener.Close()
	s.wg.Wait()
}

// Address returns the bound network and address. It fails with
// ErrIllegalState if the skeleton has never been started.
func (s *Skeleton) Address() (network, address string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return "", "", fmt.Errorf("rmi.Skeleton.Address: %w: not bound", rmierr.ErrIllegalState)
	}
	return s.network, s.listener.Addr().String(), nil
}

func (s *Skeleton) listen() {
	defer s.wg.Done()

	s.mu.Lock()
	if s.state == Started {
		s.state = Running
	}
	listener := s.listener
	s.mu.Unlock()

	var cause error
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			interrupted := s.state == Interrupted
			s.mu.Unlock()
			if interrupted {
				break
			}
			if s.ListenError(err) {
				continue
			}
			cause = err
			break
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}

	s.mu.Lock()
	s.state = Stopping
	s.state = Stopped
	s.mu.Unlock()
	s.Stopped(cause)
}

func (s *Skeleton) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	var req Request
	if err := readFrame(conn, &req); err != nil {
		s.ServiceError(fmt.Errorf("rmi: read request: %w", err))
		return
	}

	resp := s.dispatch(req)
	if err := writeFrame(conn, resp); err != nil {
		s.ServiceError(fmt.Errorf("rmi: write response: %w", err))
	}
}

func (s *Skeleton) dispatch(req Request) Response {
	if req.InterfaceName != s.descriptor.Name {
		err := fmt.Errorf("rmi: interface %q not served here (serving %q)", req.InterfaceName, s.descriptor.Name)
		s.ServiceError(err)
		return Response{Tag: RMIException, Err: encodeError(rmierr.NewTransportError(err))}
	}
	sig, ok := s.descriptor.Signature(req.MethodName)
	if !ok || !sameParamTypes(sig.ParamTypes, req.ParamTypes) || sig.ReturnType != req.ReturnType {
		err := fmt.Errorf("rmi: no method %s(%v) %s on %s", req.MethodName, req.ParamTypes, req.ReturnType, s.descriptor.Name)
		s.ServiceError(err)
		return Response{Tag: RMIException, Err: encodeError(rmierr.NewTransportError(err))}
	}

	method := s.impl.MethodByName(req.MethodName)
	methodType := method.Type()
	if len(req.Args) != methodType.NumIn() {
		err := fmt.Errorf("rmi: %s: got %d args, want %d", req.MethodName, len(req.Args), methodType.NumIn())
		s.ServiceError(err)
		return Response{Tag: RMIException, Err: encodeError(rmierr.NewTransportError(err))}
	}

	args := make([]reflect.Value, methodType.NumIn())
	for i := range args {
		expected := methodType.In(i)
		raw := req.Args[i]
		if raw == nil {
			args[i] = reflect.Zero(expected)
			continue
		}
		v := reflect.ValueOf(raw)
		if v.Type().AssignableTo(expected) {
			args[i] = v
		} else if v.Type().ConvertibleTo(expected) {
			args[i] = v.Convert(expected)
		} else {
			err := fmt.Errorf("rmi: %s: arg %d: got %s, want %s", req.MethodName, i, v.Type(), expected)
			s.ServiceError(err)
			return Response{Tag: RMIException, Err: encodeError(rmierr.NewTransportError(err))}
		}
	}

	results, dispatchErr := s.call(method, args)
	if dispatchErr != nil {
		s.ServiceError(dispatchErr)
		return Response{Tag: RMIException, Err: encodeError(rmierr.NewTransportError(dispatchErr))}
	}

	errResult := results[len(results)-1]
	if !errResult.IsNil() {
		methodErr := errResult.Interface().(error)
		return Response{Tag: MethodException, Err: encodeError(methodErr)}
	}
	if len(results) == 2 {
		return Response{Tag: ReturnValue, Value: results[0].Interface()}
	}
	return Response{Tag: ReturnValue}
}

// call invokes method, converting a panic (e.g. from a misbehaving
// server object) into a dispatch error rather than crashing the
// worker goroutine.
func (s *Skeleton) call(method reflect.Value, args []reflect.Value) (results []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rmi: panic invoking method: %v", r)
		}
	}()
	results = method.Call(args)
	return results, nil
}
