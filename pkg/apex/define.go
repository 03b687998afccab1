// Package apex is the runtime shared by endpoint handlers and the client
// wrappers generated from them.
//
// Server side, an endpoint file registers its handler with Define:
//
//	var _ = apex.Define[ListInput](func(ctx context.Context, in ListInput) ([]User, error) {
//		return store.List(ctx, in.Page)
//	})
//
// Client side, generated functions call Client.Do and wrap the call in a
// Future for the asynchronous variant.
package apex

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// Handler is a registered endpoint function with its payload and response
// types erased.
type Handler struct {
	in   reflect.Type
	out  reflect.Type
	call func(ctx context.Context, payload any) (any, error)
}

// Define registers fn as an endpoint handler. The payload type P is what
// clients send; R is what they receive.
func Define[P, R any](fn func(context.Context, P) (R, error)) Handler {
	return Handler{
		in:  reflect.TypeFor[P](),
		out: reflect.TypeFor[R](),
		call: func(ctx context.Context, payload any) (any, error) {
			p, ok := payload.(P)
			if !ok {
				return nil, fmt.Errorf("payload has type %T, want %v", payload, reflect.TypeFor[P]())
			}
			return fn(ctx, p)
		},
	}
}

// In returns the payload type.
func (h Handler) In() reflect.Type { return h.in }

// Out returns the response type.
func (h Handler) Out() reflect.Type { return h.out }

// Call invokes the handler with an already typed payload.
func (h Handler) Call(ctx context.Context, payload any) (any, error) {
	if h.call == nil {
		return nil, fmt.Errorf("apex: handler not defined")
	}
	return h.call(ctx, payload)
}

// Decode unmarshals a JSON payload into a new value of the payload type and
// invokes the handler with it. Empty input yields the zero payload.
func (h Handler) Decode(ctx context.Context, raw []byte) (any, error) {
	if h.in == nil {
		return nil, fmt.Errorf("apex: handler not defined")
	}
	ptr := reflect.New(h.in)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}
	}
	return h.Call(ctx, ptr.Elem().Interface())
}
