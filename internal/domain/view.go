package domain

import "context"

// Props are the properties a host passes to a view. Wrapping views forward
// them unchanged.
type Props map[string]any

// View is a host-rendered component.
type View interface {
	Render(ctx context.Context, props Props) error
}

// ViewFunc adapts a plain function to View.
type ViewFunc func(ctx context.Context, props Props) error

// Render implements View.
func (f ViewFunc) Render(ctx context.Context, props Props) error { return f(ctx, props) }

// PluginMode describes how a plugin attaches to its target view.
type PluginMode string

const (
	PluginModeWrap PluginMode = "wrap"
	PluginModeAdd  PluginMode = "add"
)

// PluginManifest describes a viewer plugin's registration.
type PluginManifest struct {
	Name   string     `json:"name"   yaml:"name"`
	Target string     `json:"target" yaml:"target"`
	Mode   PluginMode `json:"mode"   yaml:"mode"`
}
