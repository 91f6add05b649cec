package transport

import (
	"context"
	"fmt"

	"gbxremote/codec"
	"gbxremote/message"
	"gbxremote/metrics"
	"gbxremote/protocol"
)

// AddCall queues a call for the next MultiQuery.
func (t *ClientTransport) AddCall(method string, params []any) {
	if params == nil {
		params = []any{}
	}
	t.mu.Lock()
	t.multicall = append(t.multicall, &message.Call{MethodName: method, Params: params})
	t.mu.Unlock()
}

// Pending returns the number of queued calls.
func (t *ClientTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.multicall)
}

// TakeCalls empties the queue and returns what it held.
func (t *ClientTransport) TakeCalls() []*message.Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	calls := t.multicall
	t.multicall = nil
	return calls
}

// MultiQuery sends every queued call and returns one result per call, in
// queue order. The queue is emptied before anything is sent, so a failed
// batch is never replayed by the next MultiQuery.
//
//   - no queued call: empty result, no I/O
//   - one queued call: a plain Query; its fault is returned as the error
//   - otherwise: one system.multicall; a call that faulted yields a
//     *fault.Error in its slot and does not affect the others
func (t *ClientTransport) MultiQuery(ctx context.Context) ([]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	calls := t.multicall
	t.multicall = nil
	return t.multiQuery(ctx, calls)
}

// Multicall sends calls the way MultiQuery sends the queue, leaving the
// queue alone.
func (t *ClientTransport) Multicall(ctx context.Context, calls []*message.Call) ([]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.multiQuery(ctx, calls)
}

func (t *ClientTransport) multiQuery(ctx context.Context, calls []*message.Call) ([]any, error) {
	switch len(calls) {
	case 0:
		return []any{}, nil
	case 1:
		v, err := t.query(ctx, calls[0].MethodName, calls[0].Params)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}

	res, err := t.query(ctx, protocol.MulticallMethod, []any{Batch(calls)})
	if err != nil {
		return nil, err
	}
	list, ok := res.([]any)
	if !ok {
		return nil, &codec.DecodeError{Reason: fmt.Sprintf("multicall returned %T, want a list", res)}
	}
	if len(list) != len(calls) {
		return nil, &codec.DecodeError{Reason: fmt.Sprintf("multicall returned %d results for %d calls", len(list), len(calls))}
	}
	return t.unpackMulticall(list), nil
}

// Batch is the system.multicall argument carrying calls.
func Batch(calls []*message.Call) []any {
	batch := make([]any, len(calls))
	for i, c := range calls {
		batch[i] = c
	}
	return batch
}

// unpackMulticall maps every entry to its value or its classified fault.
// Successful entries are one-element lists wrapping the return value.
func (t *ClientTransport) unpackMulticall(list []any) []any {
	out := make([]any, len(list))
	for i, item := range list {
		if f, ok := codec.FaultFromValue(item); ok {
			ferr := t.opts.Faults.Classify(f.Message, f.Code)
			metrics.ObserveFault(ferr.Kind.String())
			out[i] = ferr
			continue
		}
		if wrapped, ok := item.([]any); ok {
			if len(wrapped) > 0 {
				out[i] = wrapped[0]
			}
			continue
		}
		out[i] = item
	}
	return out
}

// splittable reports the entries of a multicall batch that can be bisected.
func splittable(method string, params []any) ([]any, bool) {
	if method != protocol.MulticallMethod || len(params) != 1 {
		return nil, false
	}
	calls, ok := params[0].([]any)
	if !ok || len(calls) < 2 {
		return nil, false
	}
	return calls, true
}

// splitMulticall sends both halves of an oversized batch, recursing through
// query until every part fits, and concatenates the raw results in order.
func (t *ClientTransport) splitMulticall(ctx context.Context, calls []any) (any, error) {
	metrics.MulticallSplit()
	mid := len(calls) >> 1
	t.log.Debug().Int("calls", len(calls)).Int("mid", mid).Msg("splitting oversized multicall")

	first, err := t.query(ctx, protocol.MulticallMethod, []any{calls[:mid]})
	if err != nil {
		return nil, err
	}
	second, err := t.query(ctx, protocol.MulticallMethod, []any{calls[mid:]})
	if err != nil {
		return nil, err
	}

	a, okA := first.([]any)
	b, okB := second.([]any)
	if !okA || !okB {
		return nil, &codec.DecodeError{Reason: "multicall part did not return a list"}
	}
	out := make([]any, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...), nil
}
