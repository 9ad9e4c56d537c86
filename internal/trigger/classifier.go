package trigger

import (
	"time"

	hook "github.com/robotn/gohook"

	"github.com/piotrostr/ezwhisper/internal/config"
)

// classifier decodes raw hook events into trigger signals. Debouncing is done
// by tracking held state per source rather than by time thresholds: a press
// emits exactly one Down no matter how long it is held, and a release always
// emits one Up even when the matching Down was never observed (the
// orchestrator ignores orphan Ups).
type classifier struct {
	mouseButtons   map[uint16]bool
	gestureKeycode uint16
	rightOptRaw    uint16

	buttonHeld  map[uint16]bool
	gestureHeld bool
	rightOpt    bool
}

func newClassifier(cfg config.TriggerConfig) *classifier {
	buttons := make(map[uint16]bool, len(cfg.MouseButtons))
	for _, b := range cfg.MouseButtons {
		buttons[uint16(b)] = true
	}
	return &classifier{
		mouseButtons:   buttons,
		gestureKeycode: uint16(cfg.GestureKeycode),
		rightOptRaw:    uint16(cfg.RightOptionRawcode),
		buttonHeld:     make(map[uint16]bool),
	}
}

// classify returns the semantic signal for a hook event, if any. Only called
// from the single listener goroutine, so held state needs no locking.
func (c *classifier) classify(ev hook.Event) (Signal, bool) {
	switch ev.Kind {
	case hook.MouseDown:
		if !c.mouseButtons[ev.Button] {
			return Signal{}, false
		}
		if c.buttonHeld[ev.Button] {
			// Repeat while physically held; one Down per press.
			return Signal{}, false
		}
		c.buttonHeld[ev.Button] = true
		return signal(Down, SourceGestureButton), true

	case hook.MouseUp:
		if !c.mouseButtons[ev.Button] {
			return Signal{}, false
		}
		c.buttonHeld[ev.Button] = false
		return signal(Up, SourceGestureButton), true

	case hook.KeyDown:
		switch ev.Rawcode {
		case c.gestureKeycode:
			if c.gestureHeld {
				return Signal{}, false
			}
			c.gestureHeld = true
			return signal(Down, SourceGestureButton), true
		case c.rightOptRaw:
			if c.rightOpt {
				return Signal{}, false
			}
			c.rightOpt = true
			return signal(Down, SourceRightOption), true
		}

	case hook.KeyHold:
		// OS key repeat while held; never a new press.
		return Signal{}, false

	case hook.KeyUp:
		switch ev.Rawcode {
		case c.gestureKeycode:
			c.gestureHeld = false
			return signal(Up, SourceGestureButton), true
		case c.rightOptRaw:
			c.rightOpt = false
			return signal(Up, SourceRightOption), true
		}
	}

	return Signal{}, false
}

func signal(kind Kind, source Source) Signal {
	return Signal{Kind: kind, Source: source, At: time.Now()}
}
