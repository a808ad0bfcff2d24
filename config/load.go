// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Environment variables read by Load
const (
	EnvWidth           = "KORU_WIDTH"
	EnvHeight          = "KORU_HEIGHT"
	EnvFPS             = "KORU_FPS"
	EnvSwapchainSize   = "KORU_SWAPCHAIN_SIZE"
	EnvFramesInFlight  = "KORU_FRAMES_IN_FLIGHT"
	EnvStagingCapacity = "KORU_STAGING_CAPACITY"
	EnvValidation      = "KORU_VALIDATION"
	EnvAssets          = "KORU_ASSETS"
	EnvScene           = "KORU_SCENE"
	EnvLogLevel        = "KORU_LOG_LEVEL"
)

// Load applies the variables of envFile and of the environment on top
// of Default. Variables already set in the environment win over the
// file. A missing envFile is not an error.
func Load(envFile string) (Configuration, error) {
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil && !os.IsNotExist(errors.Cause(err)) {
			return Configuration{}, errors.Wrapf(err, "read %s", envFile)
		}
		for k, v := range values {
			if _, err := envy.MustGet(k); err != nil {
				envy.Set(k, v)
			}
		}
	}

	cfg := Default()
	p := parser{}
	p.parseUint32(EnvWidth, &cfg.Window.Width)
	p.parseUint32(EnvHeight, &cfg.Window.Height)
	p.parseInt(EnvFPS, &cfg.Time.FramesPerSecond)
	p.parseUint32(EnvSwapchainSize, &cfg.Renderer.SwapchainSize)
	p.parseInt(EnvFramesInFlight, &cfg.Renderer.FramesInFlight)
	p.parseBytes(EnvStagingCapacity, &cfg.Renderer.StagingCapacity)
	p.parseBool(EnvValidation, &cfg.Renderer.Validation)
	cfg.Assets.Location = envy.Get(EnvAssets, cfg.Assets.Location)
	cfg.Assets.Scene = envy.Get(EnvScene, cfg.Assets.Scene)
	cfg.LogLevel = envy.Get(EnvLogLevel, cfg.LogLevel)
	if p.err != nil {
		return Configuration{}, p.err
	}
	return cfg, cfg.Validate()
}

// parser keeps the first conversion error.
type parser struct {
	err error
}

func (p *parser) lookup(key string) (string, bool) {
	v, err := envy.MustGet(key)
	if err != nil || p.err != nil {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (p *parser) fail(key, value string, err error) {
	p.err = errors.Wrapf(err, "%s=%q", key, value)
}

func (p *parser) parseUint32(key string, dst *uint32) {
	if v, ok := p.lookup(key); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = uint32(n)
	}
}

func (p *parser) parseInt(key string, dst *int) {
	if v, ok := p.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (p *parser) parseBool(key string, dst *bool) {
	if v, ok := p.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = b
	}
}

var byteSuffixes = []struct {
	suffix string
	shift  uint
}{
	{"GiB", 30},
	{"MiB", 20},
	{"KiB", 10},
}

// parseBytes accepts a plain byte count or one suffixed with KiB, MiB or GiB.
func (p *parser) parseBytes(key string, dst *uint64) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	num, shift := v, uint(0)
	for _, s := range byteSuffixes {
		if strings.HasSuffix(v, s.suffix) {
			num, shift = strings.TrimSpace(strings.TrimSuffix(v, s.suffix)), s.shift
			break
		}
	}
	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = n << shift
}
