// Package guard implements the two enforcement policies in front of the
// session store: an action guard around a single interactive control and a
// region guard around a whole view subtree.
package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/rentops/rentops/internal/session"
)

// ErrDenied is returned when a gated execution is blocked.
var ErrDenied = errors.New("guard: permission denied")

// Source is the synchronous session state a guard consults. Implemented by
// *session.Store.
type Source interface {
	Active() bool
	Kind() (session.Kind, bool)
	HasGrant(module, action string) bool
}

// Notifier surfaces a user-visible denial. Denials must be observable, not
// silently swallowed; the transport (toast, banner) is the caller's concern.
type Notifier interface {
	Denied(module, action, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(module, action, message string)

// Denied implements Notifier.
func (f NotifierFunc) Denied(module, action, message string) { f(module, action, message) }

// RenderMode selects how an unauthorized control is presented.
type RenderMode int

const (
	// ModeOmit hides the control entirely (default).
	ModeOmit RenderMode = iota
	// ModeDisable renders the control disabled with an explanatory tooltip.
	ModeDisable
)

// Visibility is the render-time decision for a guarded control.
type Visibility int

const (
	// ControlHidden omits the control.
	ControlHidden Visibility = iota
	// ControlDisabled renders it inert, with Tooltip explaining why.
	ControlDisabled
	// ControlEnabled renders it normally.
	ControlEnabled
)

// Action guards exactly one interactive control and the module/action pair
// it requires. The decision is made twice: once when rendering and again,
// synchronously, when the control fires. A control rendered before a
// permission change must not execute after it.
type Action struct {
	Source   Source
	Module   string
	Required string
	Mode     RenderMode
	Notifier Notifier
}

// Decision bundles visibility with the disabled-state tooltip.
type Decision struct {
	Visibility Visibility
	Tooltip    string
}

// Render decides how the control is presented. Uses only in-memory session
// state; no network round trip.
func (g Action) Render() Decision {
	if g.Source != nil && g.Source.HasGrant(g.Module, g.Required) {
		return Decision{Visibility: ControlEnabled}
	}
	if g.Mode == ModeDisable {
		return Decision{
			Visibility: ControlDisabled,
			Tooltip:    fmt.Sprintf("requires %s:%s", g.Module, g.Required),
		}
	}
	return Decision{Visibility: ControlHidden}
}

// Execute re-checks the grant and only then forwards to fn. On denial the
// notifier fires, fn is never invoked, and ErrDenied is returned. The check
// reads the in-memory snapshot: current enough for a single click, by the
// same contract that lets revalidation commit between clicks.
func (g Action) Execute(ctx context.Context, fn func(context.Context) error) error {
	if g.Source == nil || !g.Source.HasGrant(g.Module, g.Required) {
		message := fmt.Sprintf("you do not have permission for %s:%s", g.Module, g.Required)
		if g.Notifier != nil {
			g.Notifier.Denied(g.Module, g.Required, message)
		}
		return fmt.Errorf("%w: %s:%s", ErrDenied, g.Module, g.Required)
	}
	return fn(ctx)
}
