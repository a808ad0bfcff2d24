// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/devblok/korender/gfx"
)

type kind int

const (
	kindBuffer kind = iota
	kindImage
	kindImageView
	kindFence
	kindSemaphore
	kindCommandBuffer
	kindSwapchain
	kindPipeline
	kindPipelineLayout
	kindDescriptorSet
)

var kindNames = [...]string{
	kindBuffer:         "buffer",
	kindImage:          "image",
	kindImageView:      "image view",
	kindFence:          "fence",
	kindSemaphore:      "semaphore",
	kindCommandBuffer:  "command buffer",
	kindSwapchain:      "swapchain",
	kindPipeline:       "pipeline",
	kindPipelineLayout: "pipeline layout",
	kindDescriptorSet:  "descriptor set",
}

func (k kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

type entry struct {
	kind   kind
	object interface{}
}

// registry hands out gfx handles for Vulkan objects. Handles are never
// reused within one registry.
type registry struct {
	mu      sync.Mutex
	next    gfx.Handle
	entries map[gfx.Handle]entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[gfx.Handle]entry)}
}

func (r *registry) add(k kind, object interface{}) gfx.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.entries[r.next] = entry{kind: k, object: object}
	return r.next
}

func (r *registry) get(k kind, h gfx.Handle) (interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[h]
	if !ok || e.kind != k {
		return nil, errors.Wrapf(gfx.ErrUnknownHandle, "%s %d", k, h)
	}
	return e.object, nil
}

// must is get for callers that have no error to return. An unknown
// handle there is a programming error.
func (r *registry) must(k kind, h gfx.Handle) interface{} {
	object, err := r.get(k, h)
	if err != nil {
		panic(err)
	}
	return object
}

func (r *registry) remove(k kind, h gfx.Handle) (interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[h]
	if !ok || e.kind != k {
		return nil, false
	}
	delete(r.entries, h)
	return e.object, true
}

// live counts the objects still registered, per kind.
func (r *registry) live() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, e := range r.entries {
		counts[e.kind.String()]++
	}
	return counts
}

// reportLeaks warns about every kind that still has live objects.
func (r *registry) reportLeaks(log logrus.FieldLogger) int {
	counts := r.live()
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	total := 0
	for _, k := range kinds {
		log.WithFields(logrus.Fields{
			"kind":  k,
			"count": counts[k],
		}).Warn("device objects leaked")
		total += counts[k]
	}
	return total
}
