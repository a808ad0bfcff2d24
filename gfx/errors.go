// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "github.com/pkg/errors"

// package errors
var (
	ErrUnsupportedTransition = errors.New("unsupported layout transition")
	ErrLayoutMismatch        = errors.New("image is not in the expected layout")
	ErrUnmappedBuffer        = errors.New("buffer is not mapped")
	ErrFormatNotBlittable    = errors.New("format does not support linear blitting")
	ErrNoSuitableDevice      = errors.New("no suitable physical device")
	ErrNoMemoryType          = errors.New("suitable memory type not found")
	ErrMissingLayer          = errors.New("required validation layer is not available")
	ErrDeviceLost            = errors.New("device lost")
	ErrUnknownHandle         = errors.New("handle does not refer to a live object")
)
