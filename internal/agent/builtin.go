package agent

import (
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/llm"
)

// RegisterBuiltins wires every built-in agent into the registry. The
// completer may be nil; report synthesis then runs on its template fallback.
func RegisterBuiltins(registry *Registry, completer llm.Completer) error {
	builtins := map[string]Factory{
		CapabilityStatistical: NewStatisticalAgent,
		CapabilitySpectral:    NewSpectralAgent,
		CapabilityCartel:      NewCartelAgent,
		CapabilityTemporal:    NewTemporalAgent,
		CapabilityStructuring: NewStructuringAgent,
		CapabilityLegal:       NewLegalAgent,
		CapabilityReport:      NewReportAgent(completer),
	}
	for capability, factory := range builtins {
		if err := registry.Register(capability, factory); err != nil {
			return err
		}
	}
	return nil
}
