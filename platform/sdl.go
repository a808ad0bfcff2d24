// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package platform provides the SDL2 window frames are presented to.
// Everything in here has to run on the main OS thread.
package platform

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/korender/config"
	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/render"
)

var _ render.Surface = (*Window)(nil)

// Window is a resizable SDL window with Vulkan support.
type Window struct {
	window *sdl.Window
	log    logrus.FieldLogger

	resized bool
	quit    bool
}

// NewWindow initialises SDL, loads the Vulkan library and opens a window.
func NewWindow(cfg config.WindowConfiguration, log logrus.FieldLogger) (*Window, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, errors.Wrap(err, "sdl.Init()")
	}
	if err := sdl.VulkanLoadLibrary(""); err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "sdl.VulkanLoadLibrary()")
	}

	window, err := sdl.CreateWindow(cfg.Title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width),
		int32(cfg.Height),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.VulkanUnloadLibrary()
		sdl.Quit()
		return nil, errors.Wrap(err, "sdl.CreateWindow()")
	}

	return &Window{
		window: window,
		log:    log.WithField("component", "window"),
	}, nil
}

// InstanceExtensions returns the instance extensions the window needs.
func (w *Window) InstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

// ProcAddr returns vkGetInstanceProcAddr of the library SDL loaded.
func (w *Window) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

// CreateSurface creates a Vulkan surface for instance, which is the
// vk.Instance wrapped in an interface.
func (w *Window) CreateSurface(instance interface{}) (unsafe.Pointer, error) {
	surface, err := w.window.VulkanCreateSurface(instance)
	if err != nil {
		return nil, errors.Wrap(err, "sdl.VulkanCreateSurface()")
	}
	return surface, nil
}

// DrawableSize implements render.Surface. A minimized window reports a
// zero size.
func (w *Window) DrawableSize() gfx.Extent2D {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return gfx.Extent2D{}
	}
	width, height := w.window.VulkanGetDrawableSize()
	if width < 0 || height < 0 {
		return gfx.Extent2D{}
	}
	return gfx.Extent2D{Width: uint32(width), Height: uint32(height)}
}

// ResizePending implements render.Surface
func (w *Window) ResizePending() bool {
	return w.resized
}

// AcknowledgeResize implements render.Surface
func (w *Window) AcknowledgeResize() {
	w.resized = false
}

// WaitEvents implements render.Surface. It blocks for one event and then
// handles whatever else is queued.
func (w *Window) WaitEvents() {
	if event := sdl.WaitEvent(); event != nil {
		w.handle(event)
	}
	w.PollEvents()
}

// PollEvents handles queued events without blocking and reports whether
// the user asked to quit.
func (w *Window) PollEvents() bool {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		w.handle(event)
	}
	return w.quit
}

// Quit reports whether a quit was requested, by closing the window or
// pressing escape.
func (w *Window) Quit() bool {
	return w.quit
}

func (w *Window) handle(event sdl.Event) {
	switch et := event.(type) {
	case *sdl.QuitEvent:
		w.quit = true
	case *sdl.KeyboardEvent:
		if et.Keysym.Sym == sdl.K_ESCAPE {
			w.quit = true
		}
	case *sdl.WindowEvent:
		switch et.Event {
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			w.resized = true
			w.log.WithFields(logrus.Fields{
				"width":  et.Data1,
				"height": et.Data2,
			}).Debug("window resized")
		case sdl.WINDOWEVENT_MINIMIZED, sdl.WINDOWEVENT_RESTORED:
			w.resized = true
		}
	}
}

// Destroy closes the window and shuts SDL down.
func (w *Window) Destroy() {
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	sdl.VulkanUnloadLibrary()
	sdl.Quit()
}
