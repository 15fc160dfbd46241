package plugin

import "fmt"

// PluginType identifies which chain stages a plugin takes part in.
type PluginType string

const (
	// PluginTypeResolver contributes only resolvers.
	PluginTypeResolver PluginType = "resolver"

	// PluginTypeBuilder contributes only builders.
	PluginTypeBuilder PluginType = "builder"

	// PluginTypeExtension contributes both, typically for one asset kind.
	PluginTypeExtension PluginType = "extension"
)

// IsValid returns true if the plugin type is recognized.
func (t PluginType) IsValid() bool {
	switch t {
	case PluginTypeResolver, PluginTypeBuilder, PluginTypeExtension:
		return true
	default:
		return false
	}
}

func (t PluginType) String() string {
	return string(t)
}

// Chain stages, used in logs, metrics and errors.
const (
	StageInit    = "init"
	StageResolve = "resolve"
	StageBuild   = "build"
)

// PluginError represents an error that occurred within a plugin.
type PluginError struct {
	PluginName string
	Stage      string
	Err        error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s failed during %s: %v", e.PluginName, e.Stage, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// NewPluginError creates a new plugin error.
func NewPluginError(pluginName, stage string, err error) *PluginError {
	return &PluginError{PluginName: pluginName, Stage: stage, Err: err}
}
