// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Koru is the scene viewer: it loads a Collada scene from a directory
// or a kar archive and draws it spinning until the window is closed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/devblok/korender/asset"
	"github.com/devblok/korender/config"
	"github.com/devblok/korender/gfx/vkr"
	"github.com/devblok/korender/model"
	"github.com/devblok/korender/platform"
	"github.com/devblok/korender/render"
	"github.com/devblok/korender/scene"
	"github.com/devblok/korender/shaders"
)

func init() {
	runtime.LockOSThread()
}

var frameCounter int64

// Profiling
var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
)

var (
	envFile = flag.String("env", ".env", "Environment file with KORU_* settings")
	assets  = flag.String("assets", "", "Asset directory or .kar archive")
	sceneF  = flag.String("scene", "", "Collada scene inside the assets")
	fps     = flag.Int("fps", -1, "Frames per second cap, 0 for uncapped")
	debug   = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	spin    = flag.Float64("spin", 0.5, "Scene rotation in radians per second")
)

// ShaderBox holds the compiled scene shaders
var ShaderBox = packr.NewBox("../../shaders")

func loadConfiguration() (config.Configuration, error) {
	cfg, err := config.Load(*envFile)
	if err != nil {
		return cfg, err
	}
	if *assets != "" {
		cfg.Assets.Location = *assets
	}
	if *sceneF != "" {
		cfg.Assets.Scene = *sceneF
	}
	if *fps >= 0 {
		cfg.Time.FramesPerSecond = *fps
	}
	if *debug {
		cfg.Renderer.Validation = true
	}
	return cfg, cfg.Validate()
}

func main() {
	flag.Parse()

	cfg, err := loadConfiguration()
	if err != nil {
		logrus.WithError(err).Fatal("configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	log := logrus.StandardLogger()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := trace.Start(f); err != nil {
			log.Fatal(err)
		}
		defer trace.Stop()
	}

	runErr := run(cfg, log)

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			log.Fatal(err)
		}
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		f.Close()
	}

	if runErr != nil {
		pprof.StopCPUProfile()
		trace.Stop()
		log.WithError(runErr).Fatal("exiting")
	}
}

func run(cfg config.Configuration, log *logrus.Logger) error {
	window, err := platform.NewWindow(cfg.Window, log)
	if err != nil {
		return err
	}
	defer window.Destroy()

	instance, err := vkr.NewInstance(vkr.DefaultApplicationInfo, vkr.InstanceConfiguration{
		Extensions: window.InstanceExtensions(),
		Validation: cfg.Renderer.Validation,
		ProcAddr:   window.ProcAddr(),
	})
	if err != nil {
		return err
	}
	defer instance.Destroy()

	surface, err := window.CreateSurface(instance.Inner())
	if err != nil {
		return err
	}
	instance.SetSurface(surface)

	device, err := vkr.NewDevice(instance, vkr.DeviceConfiguration{
		Extensions: cfg.Renderer.DeviceExtensions,
		Log:        log,
	})
	if err != nil {
		return err
	}
	defer device.Release()

	pipeline, err := newPipeline(device)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	loader, err := asset.Open(cfg.Assets.Location)
	if err != nil {
		return err
	}
	defer loader.Close()

	contents, err := loader.Load(cfg.Assets.Scene)
	if err != nil {
		return err
	}
	m, err := model.ImportCollada(contents)
	if err != nil {
		return errors.Wrap(err, cfg.Assets.Scene)
	}

	scn, err := scene.Load(device, pipeline, m, scene.Options{
		FramesInFlight: cfg.Renderer.FramesInFlight,
		Textures:       asset.Sub(loader, path.Dir(cfg.Assets.Scene)),
		MipMaps:        true,
		Log:            log,
	})
	if err != nil {
		return err
	}
	defer scn.Release()
	scn.Spin = float32(*spin)

	renderer, err := render.NewRenderer(device, window, scn, render.Configuration{
		FramesInFlight:  cfg.Renderer.FramesInFlight,
		StagingCapacity: cfg.Renderer.StagingCapacity,
		SwapchainSize:   cfg.Renderer.SwapchainSize,
		DepthFormat:     render.DefaultDepthFormat,
		ClearColor:      cfg.Renderer.ClearColor,
		Log:             log,
	})
	if err != nil {
		return err
	}
	defer renderer.Release()

	timeService := config.NewTime(cfg.Time)
	defer timeService.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	programSync := sync.WaitGroup{}

	/* Frame counter loop */
	programSync.Add(1)
	go func(ctx context.Context, wg *sync.WaitGroup) {
		defer wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				fmt.Println()
				return
			case <-ticker.C:
				currentCount := atomic.SwapInt64(&frameCounter, 0)
				fmt.Printf("\r\033[2KFrame count: %d\tCGO calls: %d", currentCount, runtime.NumCgoCall())
			}
		}
	}(ctx, &programSync)

	/* Draw and event loop, both on the main thread */
	var loopErr error
EventLoop:
	for {
		select {
		case <-timeService.FpsTicker().C:
			drawn, err := renderer.DrawFrame()
			if err != nil {
				loopErr = err
				break EventLoop
			}
			if drawn {
				atomic.AddInt64(&frameCounter, 1)
			}
		case <-timeService.EventTicker().C:
			if window.PollEvents() {
				break EventLoop
			}
		}
	}

	cancel()
	programSync.Wait()

	stats := renderer.Stats()
	log.WithFields(logrus.Fields{
		"frames":      stats.Frames,
		"skipped":     stats.Skipped,
		"recreations": stats.Recreations,
	}).Info("event loop exited")
	return loopErr
}

func newPipeline(device *vkr.Device) (*vkr.Pipeline, error) {
	vert, err := ShaderBox.Find(shaders.Vertex)
	if err != nil {
		return nil, errors.Wrap(err, shaders.Vertex)
	}
	frag, err := ShaderBox.Find(shaders.Fragment)
	if err != nil {
		return nil, errors.Wrap(err, shaders.Fragment)
	}
	return vkr.NewPipeline(device, vkr.PipelineConfiguration{
		VertexShader:     vert,
		FragmentShader:   frag,
		Vertex:           model.VertexLayout(),
		PushConstantSize: uint32(model.PushConstantsSize),
		ColorFormat:      device.SurfaceFormat(),
		DepthFormat:      render.DefaultDepthFormat,
	})
}
