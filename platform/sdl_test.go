// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package platform

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/veandco/go-sdl2/sdl"
)

func newTestWindow() *Window {
	log, _ := test.NewNullLogger()
	return &Window{log: log}
}

func TestWindowResizeFlag(t *testing.T) {
	c := qt.New(t)

	w := newTestWindow()
	c.Assert(w.ResizePending(), qt.Equals, false)

	w.handle(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_MOVED})
	c.Assert(w.ResizePending(), qt.Equals, false)

	w.handle(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESIZED, Data1: 1024, Data2: 768})
	c.Assert(w.ResizePending(), qt.Equals, true)
	w.AcknowledgeResize()
	c.Assert(w.ResizePending(), qt.Equals, false)

	w.handle(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_MINIMIZED})
	c.Assert(w.ResizePending(), qt.Equals, true)
}

func TestWindowQuit(t *testing.T) {
	c := qt.New(t)

	w := newTestWindow()
	w.handle(&sdl.KeyboardEvent{Keysym: sdl.Keysym{Sym: sdl.K_SPACE}})
	c.Assert(w.Quit(), qt.Equals, false)
	w.handle(&sdl.KeyboardEvent{Keysym: sdl.Keysym{Sym: sdl.K_ESCAPE}})
	c.Assert(w.Quit(), qt.Equals, true)

	w = newTestWindow()
	w.handle(&sdl.QuitEvent{})
	c.Assert(w.Quit(), qt.Equals, true)
}
