package domain

import (
	"fmt"
	"time"
)

// EventKind tags a RawInteractionEvent variant.
type EventKind string

const (
	EventPointerMove EventKind = "pointer_move"
	EventClick       EventKind = "click"
	EventKeyDown     EventKind = "key_down"
	EventKeyUp       EventKind = "key_up"
	EventScroll      EventKind = "scroll"
	EventTouch       EventKind = "touch"
	EventOrientation EventKind = "orientation"
	EventFocusChange EventKind = "focus_change"
	EventVisibility  EventKind = "visibility"
	EventCopyPaste   EventKind = "copy_paste"
	EventResize      EventKind = "resize"
	EventGeoFix      EventKind = "geo_fix"
)

// EventKinds lists every known kind in a stable order.
var EventKinds = []EventKind{
	EventPointerMove, EventClick, EventKeyDown, EventKeyUp, EventScroll, EventTouch,
	EventOrientation, EventFocusChange, EventVisibility, EventCopyPaste, EventResize, EventGeoFix,
}

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Point is a pointer position in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// KeyPayload identifies a key. Only the key identity is captured, never the
// typed text.
type KeyPayload struct {
	Key string `json:"key"`
}

// ScrollPayload carries the absolute scroll offset after the scroll.
type ScrollPayload struct {
	ScrollTop float64 `json:"scrollTop"`
}

// TouchPayload is one touch point.
type TouchPayload struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure"`
}

// OrientationPayload is a device orientation sample in degrees.
type OrientationPayload struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// FocusPayload records the window gaining or losing focus.
type FocusPayload struct {
	Focused bool `json:"focused"`
}

// VisibilityPayload records the page visibility state.
type VisibilityPayload struct {
	State string `json:"state"`
}

// ClipboardPayload records a copy, cut or paste action.
type ClipboardPayload struct {
	Action string `json:"action"`
}

// ResizePayload is the viewport size after a resize.
type ResizePayload struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// GeoPayload is a geolocation fix.
type GeoPayload struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty" validate:"gte=0"`
}

// RawInteractionEvent is one captured interaction. Exactly one payload field
// matching Kind is set.
type RawInteractionEvent struct {
	Kind        EventKind           `json:"kind"`
	Timestamp   time.Time           `json:"t"`
	Pointer     *Point              `json:"pointer,omitempty"`
	Key         *KeyPayload         `json:"key,omitempty"`
	Scroll      *ScrollPayload      `json:"scroll,omitempty"`
	Touch       *TouchPayload       `json:"touch,omitempty"`
	Orientation *OrientationPayload `json:"orientation,omitempty"`
	Focus       *FocusPayload       `json:"focus,omitempty"`
	Visibility  *VisibilityPayload  `json:"visibility,omitempty"`
	Clipboard   *ClipboardPayload   `json:"clipboard,omitempty"`
	Resize      *ResizePayload      `json:"resize,omitempty"`
	Geo         *GeoPayload         `json:"geo,omitempty"`
}

// Validate checks that the payload matches the kind.
func (e RawInteractionEvent) Validate() error {
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event %q: missing timestamp", e.Kind)
	}
	var ok bool
	switch e.Kind {
	case EventPointerMove, EventClick:
		ok = e.Pointer != nil
	case EventKeyDown, EventKeyUp:
		ok = e.Key != nil && e.Key.Key != ""
	case EventScroll:
		ok = e.Scroll != nil
	case EventTouch:
		ok = e.Touch != nil
	case EventOrientation:
		ok = e.Orientation != nil
	case EventFocusChange:
		ok = e.Focus != nil
	case EventVisibility:
		ok = e.Visibility != nil
	case EventCopyPaste:
		ok = e.Clipboard != nil
	case EventResize:
		ok = e.Resize != nil
	case EventGeoFix:
		ok = e.Geo != nil
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if !ok {
		return fmt.Errorf("event %q: missing payload", e.Kind)
	}
	return nil
}

// HoverRecord is the time spent over one element, from enter to leave.
type HoverRecord struct {
	Element  string  `json:"element"`
	Duration float64 `json:"duration"` // milliseconds
}
