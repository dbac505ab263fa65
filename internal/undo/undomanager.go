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

// Config controls depth caps.
type Config struct {
	// MaxDepth bounds the undo stack; the oldest entries are dropped when exceeded (0 means unlimited).
	MaxDepth int
}

// Applier mutates document state for an event and rewrites the event payload so that it can be
// applied in the opposite direction. canvas.Canvas is the implementation.
type Applier interface {
	ApplyUndo(ev Event)
	ApplyRedo(ev Event)
}

// History is a linear two-stack command log. It belongs to exactly one document and is not
// safe for concurrent use; all calls happen on the control thread.
type History struct {
	cfg  Config
	undo []Event
	redo []Event
}

func NewHistory(cfg Config) *History {
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	return &History{cfg: cfg}
}

// Record pushes ev onto the undo stack and discards the redo stack.
// Nil events (no-op mutations) are ignored and reported as false.
func (h *History) Record(ev Event) bool {
	if isNil(ev) {
		return false
	}
	h.undo = append(h.undo, ev)
	h.redo = nil
	h.enforceCaps()
	return true
}

// Undo pops the latest event, applies its inverse through a and moves it to the redo stack.
// It reports false when there is nothing to undo.
func (h *History) Undo(a Applier) bool {
	if len(h.undo) == 0 {
		return false
	}
	ev := h.undo[len(h.undo)-1]
	h.undo[len(h.undo)-1] = nil
	h.undo = h.undo[:len(h.undo)-1]
	a.ApplyUndo(ev)
	h.redo = append(h.redo, ev)
	return true
}

// Redo pops the latest undone event, reapplies it through a and moves it back to the undo stack.
func (h *History) Redo(a Applier) bool {
	if len(h.redo) == 0 {
		return false
	}
	ev := h.redo[len(h.redo)-1]
	h.redo[len(h.redo)-1] = nil
	h.redo = h.redo[:len(h.redo)-1]
	a.ApplyRedo(ev)
	h.undo = append(h.undo, ev)
	h.enforceCaps()
	return true
}

// PeekUndo returns the event the next Undo would apply.
func (h *History) PeekUndo() (Event, bool) {
	if len(h.undo) == 0 {
		return nil, false
	}
	return h.undo[len(h.undo)-1], true
}

// PeekRedo returns the event the next Redo would apply.
func (h *History) PeekRedo() (Event, bool) {
	if len(h.redo) == 0 {
		return nil, false
	}
	return h.redo[len(h.redo)-1], true
}

func (h *History) CanUndo() bool { return len(h.undo) > 0 }
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Len returns the number of undoable events.
func (h *History) Len() int { return len(h.undo) }

// Clear drops both stacks. Call it whenever the document behind the history is replaced.
func (h *History) Clear() {
	h.undo = nil
	h.redo = nil
}

// SetMaxDepth changes the undo cap; 0 removes it. The oldest events beyond the new cap are
// dropped immediately.
func (h *History) SetMaxDepth(n int) {
	h.cfg.MaxDepth = max(n, 0)
	h.enforceCaps()
}

// Stats returns current stack depths for diagnostics.
func (h *History) Stats() (undoDepth, redoDepth int) {
	return len(h.undo), len(h.redo)
}

func (h *History) enforceCaps() {
	if h.cfg.MaxDepth <= 0 || len(h.undo) <= h.cfg.MaxDepth {
		return
	}
	toDrop := len(h.undo) - h.cfg.MaxDepth
	h.undo = append([]Event{}, h.undo[toDrop:]...)
}

func isNil(ev Event) bool {
	switch e := ev.(type) {
	case nil:
		return true
	case *Draw:
		return e == nil
	case *Erase:
		return e == nil
	case *NewLayer:
		return e == nil
	case *MoveLayer:
		return e == nil
	case *DeleteLayer:
		return e == nil
	case *SetImage:
		return e == nil
	}
	return false
}
