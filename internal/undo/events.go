/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import "airunner/internal/domain"

// Kind names an event variant for logging and diagnostics.
type Kind string

const (
	KindDraw        Kind = "draw"
	KindErase       Kind = "erase"
	KindNewLayer    Kind = "new_layer"
	KindMoveLayer   Kind = "move_layer"
	KindDeleteLayer Kind = "delete_layer"
	KindSetImage    Kind = "set_image"
)

// Event is a recorded, invertible description of one canvas mutation.
// The set of variants is closed: *Draw, *Erase, *NewLayer, *MoveLayer, *DeleteLayer, *SetImage.
// Appliers rewrite the payload in place when an event crosses between the undo and redo stacks.
type Event interface {
	Kind() Kind
	event()
}

// Draw records a run of strokes appended to a layer, occupying [Start, End).
// Lines is empty while the strokes are on the layer and holds them while undone.
type Draw struct {
	Layer domain.LayerID
	Start int
	End   int
	Lines []domain.Stroke
}

// Erase records a wholesale replacement of a layer's strokes. Lines holds the sequence that is
// not currently on the layer.
type Erase struct {
	Layer domain.LayerID
	Lines []domain.Stroke
}

// NewLayer records a layer inserted at the top of the stack. PrevCurrent is the current-layer
// index to restore on undo and NextCurrent the one to restore on redo.
// Detached owns the layer while it is removed from the canvas and is nil otherwise.
type NewLayer struct {
	Layer       domain.LayerID
	PrevCurrent int
	NextCurrent int
	Detached    *domain.Layer
}

// MoveLayer records a reorder. Order is the layer order to restore on the next apply and
// Current the current-layer index that goes with it.
type MoveLayer struct {
	Order   []domain.LayerID
	Current int
}

// DeleteLayer records the removal of the layer at LayerIndex. Order is the layer order to
// restore on the next apply, Current the matching current-layer index. Detached owns the
// removed layer while it is off the canvas.
type DeleteLayer struct {
	Order      []domain.LayerID
	LayerIndex int
	Current    int
	Layer      domain.LayerID
	Detached   *domain.Layer
}

// SetImage records a change to a layer's placed images together with the alignment points.
// Images, RootPoint and PivotPoint hold the values to restore on the next apply.
type SetImage struct {
	Layer      domain.LayerID
	Images     []domain.PlacedImage
	RootPoint  domain.Point
	PivotPoint domain.Point
}

func (*Draw) Kind() Kind        { return KindDraw }
func (*Erase) Kind() Kind       { return KindErase }
func (*NewLayer) Kind() Kind    { return KindNewLayer }
func (*MoveLayer) Kind() Kind   { return KindMoveLayer }
func (*DeleteLayer) Kind() Kind { return KindDeleteLayer }
func (*SetImage) Kind() Kind    { return KindSetImage }

func (*Draw) event()        {}
func (*Erase) event()       {}
func (*NewLayer) event()    {}
func (*MoveLayer) event()   {}
func (*DeleteLayer) event() {}
func (*SetImage) event()    {}
