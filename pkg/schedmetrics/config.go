// Package schedmetrics exposes Prometheus instrumentation for the Turn
// Scheduler and Prompt Assembly cores: how many runs are queued right now,
// how long a round takes start-to-finish, and how much the Trimmer evicts
// under budget pressure. A *Metrics holds lazily-initialized
// CounterVec/GaugeVec/HistogramVec fields registered against a private
// prometheus.Registry, with nil-receiver methods that no-op when metrics
// are disabled, generalized from a per-agent/per-LLM/per-tool metrics
// surface to this module's scheduler/trimmer/lore subsystems.
package schedmetrics

// Config configures the metrics subsystem.
type Config struct {
	// Enabled turns on metrics collection. Default: false.
	Enabled bool

	// Namespace prefixes every metric name. Default: "tavernkit".
	Namespace string
}

// SetDefaults applies default values to Config.
func (c *Config) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "tavernkit"
	}
}
