// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config holds the viewer configuration and loads it from
// a .env file and KORU_* environment variables.
package config

import (
	"github.com/pkg/errors"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Window   WindowConfiguration
	Renderer RendererConfiguration
	Time     TimeConfiguration
	Assets   AssetConfiguration

	// LogLevel is a logrus level name.
	LogLevel string
}

// WindowConfiguration is used to configure the window
type WindowConfiguration struct {
	Title  string
	Width  uint32
	Height uint32
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	SwapchainSize    uint32
	DeviceExtensions []string

	// FramesInFlight is the number of frames the CPU may record ahead
	// of the GPU.
	FramesInFlight int

	// StagingCapacity is the size in bytes of each frame's staging buffer.
	StagingCapacity uint64

	// Validation enables the Khronos validation layer.
	Validation bool

	ClearColor [4]float32
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the event loop period in milliseconds
	EventPollDelay int
}

// AssetConfiguration locates the assets to show
type AssetConfiguration struct {
	// Location is a directory or a .kar archive.
	Location string

	// Scene is the Collada file to load, relative to Location.
	Scene string
}

// Default returns the configuration used when nothing overrides it.
func Default() Configuration {
	return Configuration{
		Window: WindowConfiguration{
			Title:  "Koru3D",
			Width:  800,
			Height: 600,
		},
		Renderer: RendererConfiguration{
			SwapchainSize: 3,
			DeviceExtensions: []string{
				"VK_KHR_swapchain",
			},
			FramesInFlight:  2,
			StagingCapacity: 64 << 20,
			ClearColor:      [4]float32{0.1, 0.1, 0.1, 1},
		},
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  10,
		},
		Assets: AssetConfiguration{
			Location: "./assets",
			Scene:    "scene.dae",
		},
		LogLevel: "info",
	}
}

// Validate rejects configurations the renderer cannot start with.
func (c Configuration) Validate() error {
	switch {
	case c.Window.Width == 0 || c.Window.Height == 0:
		return errors.Errorf("window size %dx%d is degenerate", c.Window.Width, c.Window.Height)
	case c.Renderer.FramesInFlight < 1:
		return errors.Errorf("frames in flight must be at least 1, got %d", c.Renderer.FramesInFlight)
	case c.Renderer.SwapchainSize < 2:
		return errors.Errorf("swapchain size must be at least 2, got %d", c.Renderer.SwapchainSize)
	case c.Renderer.StagingCapacity == 0:
		return errors.New("staging capacity must not be zero")
	case c.Time.FramesPerSecond < 0:
		return errors.Errorf("negative frames per second %d", c.Time.FramesPerSecond)
	case c.Time.EventPollDelay <= 0:
		return errors.Errorf("event poll delay must be positive, got %d", c.Time.EventPollDelay)
	}
	return nil
}
