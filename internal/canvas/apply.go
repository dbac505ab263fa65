/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"fmt"

	"airunner/internal/domain"
	"airunner/internal/undo"
)

// ApplyUndo reverts ev on the canvas and rewrites its payload for redo.
// An event that references state the canvas no longer has means the canvas was mutated behind
// the history's back; that is a programming error and panics.
func (c *Canvas) ApplyUndo(ev undo.Event) {
	switch e := ev.(type) {
	case *undo.Draw:
		l := c.mustLayer(e.Layer)
		if e.Start < 0 || e.End > len(l.Strokes) || e.Start > e.End {
			panic(fmt.Sprintf("canvas: draw range [%d,%d) outside %d strokes of layer %s", e.Start, e.End, len(l.Strokes), e.Layer))
		}
		e.Lines = append([]domain.Stroke(nil), l.Strokes[e.Start:e.End]...)
		l.Strokes = append(l.Strokes[:e.Start:e.Start], l.Strokes[e.End:]...)
	case *undo.Erase:
		c.swapStrokes(e)
	case *undo.NewLayer:
		i := c.mustIndex(e.Layer)
		e.Detached = c.layers[e.Layer]
		delete(c.layers, e.Layer)
		c.order = append(c.order[:i:i], c.order[i+1:]...)
		e.NextCurrent, c.current = c.current, e.PrevCurrent
		c.clampCurrent()
	case *undo.MoveLayer:
		c.swapOrder(&e.Order, &e.Current)
	case *undo.DeleteLayer:
		c.attach(e.Layer, &e.Detached)
		c.swapOrder(&e.Order, &e.Current)
	case *undo.SetImage:
		c.swapImages(e)
	default:
		panic(fmt.Sprintf("canvas: unknown event %T", ev))
	}
	c.redraw()
}

// ApplyRedo reapplies ev on the canvas and rewrites its payload for the next undo.
func (c *Canvas) ApplyRedo(ev undo.Event) {
	switch e := ev.(type) {
	case *undo.Draw:
		l := c.mustLayer(e.Layer)
		e.Start = len(l.Strokes)
		l.Strokes = append(l.Strokes, e.Lines...)
		e.End = len(l.Strokes)
		e.Lines = nil
	case *undo.Erase:
		c.swapStrokes(e)
	case *undo.NewLayer:
		if e.Detached == nil {
			panic(fmt.Sprintf("canvas: redo of new layer %s without detached layer", e.Layer))
		}
		c.layers[e.Layer] = e.Detached
		e.Detached = nil
		c.order = append([]domain.LayerID{e.Layer}, c.order...)
		e.PrevCurrent, c.current = c.current, e.NextCurrent
		c.clampCurrent()
	case *undo.MoveLayer:
		c.swapOrder(&e.Order, &e.Current)
	case *undo.DeleteLayer:
		c.detach(e.Layer, &e.Detached)
		c.swapOrder(&e.Order, &e.Current)
	case *undo.SetImage:
		c.swapImages(e)
	default:
		panic(fmt.Sprintf("canvas: unknown event %T", ev))
	}
	c.redraw()
}

func (c *Canvas) mustLayer(id domain.LayerID) *domain.Layer {
	l, ok := c.layers[id]
	if !ok {
		panic(fmt.Sprintf("canvas: event references missing layer %s", id))
	}
	return l
}

func (c *Canvas) mustIndex(id domain.LayerID) int {
	i := c.IndexOf(id)
	if i < 0 {
		panic(fmt.Sprintf("canvas: event references missing layer %s", id))
	}
	return i
}

func (c *Canvas) swapStrokes(e *undo.Erase) {
	l := c.mustLayer(e.Layer)
	l.Strokes, e.Lines = e.Lines, l.Strokes
}

func (c *Canvas) swapImages(e *undo.SetImage) {
	l := c.mustLayer(e.Layer)
	l.Images, e.Images = e.Images, l.Images
	c.root, e.RootPoint = e.RootPoint, c.root
	c.pivot, e.PivotPoint = e.PivotPoint, c.pivot
}

// swapOrder rebuilds the stack in the stored order and stores the previous order (and current
// index) back into the event.
func (c *Canvas) swapOrder(order *[]domain.LayerID, current *int) {
	prev := c.Order()
	c.resort(*order)
	*order = prev
	c.current, *current = *current, c.current
	c.clampCurrent()
}

// resort reassembles the stack by matching stored identifiers against the arena. The stored
// order must name exactly the layers currently on the canvas.
func (c *Canvas) resort(order []domain.LayerID) {
	if len(order) != len(c.layers) {
		panic(fmt.Sprintf("canvas: stored order has %d layers, canvas has %d", len(order), len(c.layers)))
	}
	seen := make(map[domain.LayerID]struct{}, len(order))
	for _, id := range order {
		if _, ok := c.layers[id]; !ok {
			panic(fmt.Sprintf("canvas: stored order references missing layer %s", id))
		}
		if _, dup := seen[id]; dup {
			panic(fmt.Sprintf("canvas: stored order repeats layer %s", id))
		}
		seen[id] = struct{}{}
	}
	c.order = append(c.order[:0:0], order...)
}

// attach hands a detached layer back to the arena. Ordering is left to the caller.
func (c *Canvas) attach(id domain.LayerID, detached **domain.Layer) {
	if *detached == nil {
		panic(fmt.Sprintf("canvas: layer %s has no detached owner", id))
	}
	if _, ok := c.layers[id]; ok {
		panic(fmt.Sprintf("canvas: layer %s is already attached", id))
	}
	c.layers[id] = *detached
	*detached = nil
}

// detach removes a layer from the arena and gives ownership to the event. Ordering is left to
// the caller.
func (c *Canvas) detach(id domain.LayerID, detached **domain.Layer) {
	l := c.mustLayer(id)
	delete(c.layers, id)
	*detached = l
}
