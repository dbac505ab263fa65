/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package session

import (
	"airunner/internal/canvas"
	"airunner/internal/domain"
	"airunner/internal/undo"
)

// gesture is the pointer interaction in progress between PointerDown and PointerUp.
type gesture struct {
	active    bool
	secondary bool
	last      domain.Point
	origin    domain.Point // region origin at PointerDown
	start     domain.Point
	moved     bool
	draw      *undo.Draw // brush run drawn so far, recorded at PointerUp
}

// PointerDown starts a gesture at canvas point p. secondary selects the secondary colour for
// the brush.
func (s *Session) PointerDown(p domain.Point, secondary bool) {
	s.finishGesture()
	s.gesture = gesture{active: true, secondary: secondary, last: p, start: p, origin: s.canvas.ActiveRegion().Origin()}
	if s.tool == ToolEraser {
		s.eraseAt(p)
	}
}

// PointerMove continues the gesture. Moves without a preceding PointerDown are ignored.
func (s *Session) PointerMove(p domain.Point) {
	g := &s.gesture
	if !g.active || p == g.last {
		return
	}
	switch s.tool {
	case ToolBrush:
		s.extendStroke(g.last, p)
	case ToolEraser:
		s.eraseAt(p)
	case ToolActiveRegion:
		s.dragRegion(p)
	case ToolMove:
		s.canvas.Pan(p.X-g.last.X, p.Y-g.last.Y)
	}
	g.last = p
	g.moved = true
}

// PointerUp ends the gesture. A brush click without movement paints a dot.
func (s *Session) PointerUp(p domain.Point) {
	if !s.gesture.active {
		return
	}
	s.PointerMove(p)
	if s.tool == ToolBrush && !s.gesture.moved {
		s.extendStroke(p, p)
	}
	s.finishGesture()
}

// finishGesture records the brush run of an open gesture as one undo step.
func (s *Session) finishGesture() {
	g := s.gesture
	s.gesture = gesture{}
	if g.draw != nil {
		s.record(g.draw)
	}
}

func (s *Session) brushColor(secondary bool) domain.Color {
	if secondary {
		return s.settings.Secondary
	}
	return s.settings.Primary
}

// extendStroke appends one segment to the current layer and folds it into the gesture's run.
func (s *Session) extendStroke(from, to domain.Point) {
	st := domain.Stroke{
		Start: from,
		End:   to,
		Color: s.brushColor(s.gesture.secondary),
		Width: max(1, s.settings.BrushSize),
		Tool:  domain.ToolBrush,
	}
	ev := s.canvas.Draw(s.canvas.CurrentIndex(), st)
	if ev == nil {
		return
	}
	if d := s.gesture.draw; d != nil && d.Layer == ev.Layer && d.End == ev.Start {
		d.End = ev.End
		return
	}
	// the current layer changed under the gesture
	if s.gesture.draw != nil {
		s.record(s.gesture.draw)
	}
	s.gesture.draw = ev
}

func (s *Session) eraseAt(p domain.Point) {
	s.record(s.canvas.EraseAt(s.canvas.CurrentIndex(), p, max(1, s.settings.BrushSize/2)))
}

// dragRegion moves the active region by the pointer offset since PointerDown.
func (s *Session) dragRegion(p domain.Point) {
	g := s.gesture
	r := s.canvas.ActiveRegion()
	o := domain.Point{X: g.origin.X + p.X - g.start.X, Y: g.origin.Y + p.Y - g.start.Y}
	if s.settings.SnapToGrid {
		o = canvas.Snap(o, s.settings.GridSize)
	}
	r.X, r.Y = o.X, o.Y
	s.canvas.SetActiveRegion(r)
}
