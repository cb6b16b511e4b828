package dispatch

import (
	"time"

	"github.com/stegverse/stegagents/internal/registry"
)

// AgentPlan is an agent's standing at a given time.
type AgentPlan struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Provider string `json:"provider"`
	Dir      string `json:"output_dir"`
	Format   string `json:"format"`
	Enabled  bool   `json:"enabled"`
	Due      bool   `json:"due"`
	Reason   string `json:"reason,omitempty"`
}

// Plan loads the registry and reports which agents would run at at.
// Nothing is generated or written.
func (d *Dispatcher) Plan(at time.Time) ([]AgentPlan, error) {
	reg, err := registry.Load(d.registryPath)
	if err != nil {
		return nil, err
	}
	at = at.UTC().Truncate(time.Second)

	plans := make([]AgentPlan, 0, len(reg.Agents))
	for _, def := range reg.Agents {
		reason := d.skipReason(def, at, nil)
		plans = append(plans, AgentPlan{
			Name:     def.Name,
			Schedule: def.Schedule,
			Provider: def.Provider,
			Dir:      def.Dir(),
			Format:   string(def.Format),
			Enabled:  def.Enabled,
			Due:      reason == "",
			Reason:   reason,
		})
	}
	return plans, nil
}
