package plugin

import (
	"log/slog"
	"sync"

	"wa-resolver/internal/domain"
)

// Manager holds the viewer's registered plugins and attaches them to their
// target views.
type Manager struct {
	mu      sync.RWMutex
	plugins []Plugin
	names   map[string]struct{}
	logger  *slog.Logger
}

// NewManager creates a plugin manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		names:  make(map[string]struct{}),
		logger: logger,
	}
}

// Load registers a plugin. Names must be unique and the mode must be known.
func (m *Manager) Load(p Plugin) error {
	manifest := p.Manifest()
	switch manifest.Mode {
	case domain.PluginModeWrap, domain.PluginModeAdd:
	default:
		return domain.NewSubSystemError("plugin", "Manager.Load", domain.ErrInvalidInput,
			"unknown mode "+string(manifest.Mode))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.names[manifest.Name]; exists {
		return domain.NewSubSystemError("plugin", "Manager.Load", domain.ErrDuplicate, manifest.Name)
	}
	m.names[manifest.Name] = struct{}{}
	m.plugins = append(m.plugins, p)

	m.logger.Info("plugin loaded", "name", manifest.Name, "target", manifest.Target, "mode", manifest.Mode)
	return nil
}

// Unload removes a plugin by name. Already attached components are unaffected.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.names[name]; !ok {
		return domain.NewSubSystemError("plugin", "Manager.Unload", domain.ErrNotFound, name)
	}
	delete(m.names, name)
	for i, p := range m.plugins {
		if p.Manifest().Name == name {
			m.plugins = append(m.plugins[:i], m.plugins[i+1:]...)
			break
		}
	}
	m.logger.Info("plugin unloaded", "name", name)
	return nil
}

// List returns the manifests of registered plugins in load order.
func (m *Manager) List() []domain.PluginManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.PluginManifest, len(m.plugins))
	for i, p := range m.plugins {
		out[i] = p.Manifest()
	}
	return out
}

// Attach wraps inner with every plugin targeting target, in load order, so
// the first loaded plugin ends up innermost. The returned components must be
// mounted by the caller; the outermost view is returned alongside.
func (m *Manager) Attach(target string, inner domain.View) (domain.View, []Component) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	view := inner
	var comps []Component
	for _, p := range m.plugins {
		manifest := p.Manifest()
		if manifest.Target != target || manifest.Mode != domain.PluginModeWrap {
			continue
		}
		c := p.Wrap(view)
		comps = append(comps, c)
		view = c
	}
	return view, comps
}
