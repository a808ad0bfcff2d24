// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Korucli prints the Vulkan capable devices as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/devblok/korender/gfx/vkr"
)

var (
	debug  = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	indent = flag.Bool("indent", false, "Indent the output")
)

func main() {
	flag.Parse()

	instance, err := vkr.NewInstance(vkr.DefaultApplicationInfo, vkr.InstanceConfiguration{
		Validation: *debug,
	})
	if err != nil {
		logrus.WithError(err).Fatal("create instance")
	}
	defer instance.Destroy()

	var bytes []byte
	if *indent {
		bytes, err = json.MarshalIndent(instance.PhysicalDevicesInfo(), "", "  ")
	} else {
		bytes, err = json.Marshal(instance.PhysicalDevicesInfo())
	}
	if err != nil {
		logrus.WithError(err).Fatal("marshal")
	}
	fmt.Printf("%s\n", bytes)
}
