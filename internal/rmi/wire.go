// Package rmi implements the transparent remote-method-invocation
// runtime: a length-prefixed request/response transport (this file), a
// server-side Skeleton that dispatches to a bound object by
// reflection, and client-side Stub plumbing that per-interface stub
// types build on.
//
// Every call opens one TCP connection, sends one Request, reads one
// Response, and closes the connection. There is no pipelining and no
// keep-alive, matching spec.md §4.2.
package rmi

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/lowmarsh/dfs/internal/rmierr"
)

// maxFrameBytes bounds a single request or response frame, guarding
// against a corrupt or hostile length prefix driving an unbounded
// allocation.
const maxFrameBytes = 64 << 20

// Request is sent by a Stub and dispatched by a Skeleton.
type Request struct {
	// InterfaceName identifies the remote interface the method
	// belongs to, e.g. "Storage" or "Command". A Skeleton only
	// answers requests naming the interface it was bound with.
	InterfaceName string

	MethodName string

	// ParamTypes are the declared parameter type names from the
	// remote interface's method signature, not the dynamic types of
	// Args. They let the Skeleton detect a Stub compiled against a
	// stale or mismatched interface before ever touching the server
	// object.
	ParamTypes []string
	ReturnType string

	Args []interface{}
}

// ResponseTag is the tagged union discriminant of Response.
type ResponseTag uint8

const (
	// ReturnValue means the call completed normally.
	ReturnValue ResponseTag = iota
	// MethodException means the invoked method returned a
	// user-declared error.
	MethodException
	// RMIException means the transport or dispatch failed: unknown
	// method/signature, deserialization failure, or any other
	// non-user failure.
	RMIException
)

// Response is the tagged union returned by a Skeleton to a Stub.
type Response struct {
	Tag   ResponseTag
	Value interface{}
	Err   *wireError
}

// wireError is the gob-safe envelope for an error crossing the wire.
// Plain "error" values cannot be gob-decoded without a concrete
// registered type, so every error kind this runtime knows about is
// flattened to a (kind, message) pair and reconstituted as a
// *remoteError on the receiving side, preserving errors.Is against the
// rmierr sentinels; the transport kind is reconstituted as a
// *rmierr.TransportError instead.
type wireError struct {
	Kind    errorKind
	Message string
}

type errorKind uint8

const (
	kindGeneric errorKind = iota
	kindNotFound
	kindOutOfBounds
	kindInvalidArgument
	kindIllegalState
	kindNullArgument
	kindTransport
)

func encodeError(err error) *wireError {
	if err == nil {
		return nil
	}
	kind := kindGeneric
	switch {
	case errIs(err, rmierr.ErrNotFound):
		kind = kindNotFound
	case errIs(err, rmierr.ErrOutOfBounds):
		kind = kindOutOfBounds
	case errIs(err, rmierr.ErrInvalidArgument):
		kind = kindInvalidArgument
	case errIs(err, rmierr.ErrIllegalState):
		kind = kindIllegalState
	case errIs(err, rmierr.ErrNullArgument):
		kind = kindNullArgument
	case rmierr.IsTransportError(err):
		kind = kindTransport
	}
	return &wireError{Kind: kind, Message: err.Error()}
}

// remoteError is reconstituted from a wireError on the receiving end.
type remoteError struct {
	kind    errorKind
	message string
}

func (e *remoteError) Error() string { return e.message }

// Is implements the errors.Is protocol so that a method-declared error
// kind from spec.md §7 survives the RMI boundary: a caller can test
// errors.Is(err, rmierr.ErrNotFound) against a value that was actually
// constructed on the remote peer.
func (e *remoteError) Is(target error) bool {
	switch target {
	case rmierr.ErrNotFound:
		return e.kind == kindNotFound
	case rmierr.ErrOutOfBounds:
		return e.kind == kindOutOfBounds
	case rmierr.ErrInvalidArgument:
		return e.kind == kindInvalidArgument
	case rmierr.ErrIllegalState:
		return e.kind == kindIllegalState
	case rmierr.ErrNullArgument:
		return e.kind == kindNullArgument
	}
	return false
}

func (w *wireError) decode() error {
	if w == nil {
		return nil
	}
	if w.Kind == kindTransport {
		return rmierr.NewTransportError(fmt.Errorf("%s", w.Message))
	}
	return &remoteError{kind: w.Kind, message: w.Message}
}

func errIs(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// RegisterType registers a concrete type that will cross the wire as
// part of a Request's Args or a Response's Value, e.g. a Path or a
// Stub returned from getStorage. It must be called (typically from an
// init function) before any value of that type is sent or received.
func RegisterType(v interface{}) {
	gob.Register(v)
}

// writeFrame gob-encodes v and writes it as one length-prefixed frame.
func writeFrame(w io.Writer, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("rmi: encode frame: %w", err)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("rmi: write length prefix: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("rmi: write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame and gob-decodes it into v.
func readFrame(r io.Reader, v interface{}) error {
	br := bufio.NewReader(r)
	var lenPrefix [4]byte
	if _, err := io.ReadFull(br, lenPrefix[:]); err != nil {
		return fmt.Errorf("rmi: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameBytes {
		return fmt.Errorf("rmi: frame of %d bytes exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(br, body); err != nil {
		return fmt.Errorf("rmi: read frame body: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(v); err != nil {
		return fmt.Errorf("rmi: decode frame: %w", err)
	}
	return nil
}

func init() {
	// Concrete types gob needs to know about whenever they flow
	// through a Request.Args or Response.Value interface{} slot.
	// Domain-specific types (Path, stub DTOs, ...) are registered by
	// their own packages' init functions.
	RegisterType("")
	RegisterType(int(0))
	RegisterType(int64(0))
	RegisterType(uint32(0))
	RegisterType(uint64(0))
	RegisterType(false)
	RegisterType([]byte(nil))
	RegisterType([]string(nil))
}
