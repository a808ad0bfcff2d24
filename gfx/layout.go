// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"sort"

	"github.com/pkg/errors"
)

// Layout is the way memory backing an image is currently organized.
type Layout int

// Image layouts known to the renderer
const (
	LayoutUndefined Layout = iota
	LayoutTransferSrc
	LayoutTransferDst
	LayoutShaderReadOnly
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutPresentSrc
)

var layoutNames = [...]string{
	LayoutUndefined:       "undefined",
	LayoutTransferSrc:     "transfer-src",
	LayoutTransferDst:     "transfer-dst",
	LayoutShaderReadOnly:  "shader-read-only",
	LayoutColorAttachment: "color-attachment",
	LayoutDepthAttachment: "depth-attachment",
	LayoutPresentSrc:      "present-src",
}

func (l Layout) String() string {
	if l < 0 || int(l) >= len(layoutNames) {
		return "invalid"
	}
	return layoutNames[l]
}

// Layouts returns every layout value, in declaration order.
func Layouts() []Layout {
	ls := make([]Layout, len(layoutNames))
	for idx := range ls {
		ls[idx] = Layout(idx)
	}
	return ls
}

// Transition is an (old, new) layout pair.
type Transition struct {
	Old Layout
	New Layout
}

func (t Transition) String() string {
	return t.Old.String() + " -> " + t.New.String()
}

// TransitionMasks are the access and stage masks a barrier needs
// to perform one layout transition.
type TransitionMasks struct {
	SrcAccess Access
	DstAccess Access
	SrcStage  Stage
	DstStage  Stage
}

// Every legal transition is listed here. Anything else is rejected.
var transitionTable = map[Transition]TransitionMasks{
	{LayoutUndefined, LayoutTransferDst}: {
		DstAccess: AccessTransferWrite,
		SrcStage:  StageTopOfPipe,
		DstStage:  StageTransfer,
	},
	{LayoutTransferDst, LayoutShaderReadOnly}: {
		SrcAccess: AccessTransferWrite,
		DstAccess: AccessShaderRead,
		SrcStage:  StageTransfer,
		DstStage:  StageFragmentShader,
	},
	{LayoutColorAttachment, LayoutPresentSrc}: {
		SrcAccess: AccessColorAttachmentWrite,
		SrcStage:  StageColorAttachmentOutput,
		DstStage:  StageBottomOfPipe,
	},
	{LayoutUndefined, LayoutColorAttachment}: {
		DstAccess: AccessColorAttachmentRead | AccessColorAttachmentWrite,
		SrcStage:  StageColorAttachmentOutput,
		DstStage:  StageColorAttachmentOutput,
	},
	{LayoutUndefined, LayoutDepthAttachment}: {
		DstAccess: AccessDepthStencilAttachmentRead | AccessDepthStencilAttachmentWrite,
		SrcStage:  StageTopOfPipe,
		DstStage:  StageEarlyFragmentTests | StageLateFragmentTests,
	},
	// Mip chain generation moves single levels through these two.
	{LayoutTransferDst, LayoutTransferSrc}: {
		SrcAccess: AccessTransferWrite,
		DstAccess: AccessTransferRead,
		SrcStage:  StageTransfer,
		DstStage:  StageTransfer,
	},
	{LayoutTransferSrc, LayoutShaderReadOnly}: {
		SrcAccess: AccessTransferRead,
		DstAccess: AccessShaderRead,
		SrcStage:  StageTransfer,
		DstStage:  StageFragmentShader,
	},
}

// LookupTransition returns the barrier masks for moving an image from
// old to new. Pairs outside the table fail with ErrUnsupportedTransition.
func LookupTransition(old, new Layout) (TransitionMasks, error) {
	masks, ok := transitionTable[Transition{old, new}]
	if !ok {
		return TransitionMasks{}, errors.Wrapf(ErrUnsupportedTransition, "%s -> %s", old, new)
	}
	return masks, nil
}

// SupportedTransitions lists the table's keys in a stable order.
func SupportedTransitions() []Transition {
	ts := make([]Transition, 0, len(transitionTable))
	for t := range transitionTable {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Old != ts[j].Old {
			return ts[i].Old < ts[j].Old
		}
		return ts[i].New < ts[j].New
	})
	return ts
}
