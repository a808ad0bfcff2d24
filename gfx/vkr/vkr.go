// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements gfx.Driver on top of Vulkan.
package vkr

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// DefaultApplicationInfo describes the application to the Vulkan loader
var DefaultApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   safeString("Koru3D"),
	PEngineName:        safeString("Koru3D"),
}

// ValidationLayer is enabled when validation is requested.
const ValidationLayer = "VK_LAYER_KHRONOS_validation"

// check turns a failed result into an error naming the call.
func check(res vk.Result, call string) error {
	if err := vk.Error(res); err != nil {
		return errors.Wrap(err, call+"()")
	}
	return nil
}
