// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package boundary wraps host-facing operations so that neither errors nor
// panics escape as anything other than a sentinel return value paired with
// one pending error on the host's error channel.
package boundary

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Call runs fn and returns its value.  If fn returns an error or panics, Call
// returns sentinel and throws the error on env.  A panic is reported as an
// ErrFault carrying the panic message.
func Call[T any](env *Env, op string, sentinel T,
	fn func() (T, error)) (result T) {

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s: recovered from panic: %v\n%s", op, r,
				debug.Stack())

			env.Throw(newError(ErrFault, op+": unexpected failure",
				panicError(r)))
			result = sentinel
		}
	}()

	v, err := fn()
	if err != nil {
		log.Debugf("%s failed: %v", op, err)
		env.Throw(classify(op, err))
		return sentinel
	}
	return v
}

// CallVoid is Call for operations that return no value.
func CallVoid(env *Env, op string, fn func() error) {
	Call(env, op, struct{}{}, func() (struct{}, error) {
		return struct{}{}, fn()
	})
}

// panicError converts a recovered value into an error carrying its message.
func panicError(r interface{}) error {
	switch v := r.(type) {
	case error:
		return v
	case string:
		return errors.New(v)
	default:
		return fmt.Errorf("%v", v)
	}
}
