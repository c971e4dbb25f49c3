package core

import "github.com/dkeye/mediaflow/internal/domain"

// Callback receives the outcome of an asynchronous operation; nil means success.
type Callback func(err error)

func (cb Callback) call(err error) {
	if cb != nil {
		cb(err)
	}
}

// Transport applies sanitized configuration deltas to an active connection.
// Owned by the session; the stream only calls UpdateSpec.
type Transport interface {
	UpdateSpec(update domain.Update, cb Callback)
	Close()
}
