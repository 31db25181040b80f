package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// buildInfo is a constant 1 labelled with the binary's version and commit.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fapigw_build_info",
			Help: "FAPI gateway build information.",
		},
		[]string{"version", "commit"},
	)
)

// InitBuildInfo registers fapigw_build_info in the default registry on first
// use and publishes the given version and commit. Empty values are reported
// as "unknown".
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	if version == "" {
		version = "unknown"
	}
	if commit == "" {
		commit = "unknown"
	}
	buildInfo.WithLabelValues(version, commit).Set(1)
}
