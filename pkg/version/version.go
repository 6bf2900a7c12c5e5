package version

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/newtron-network/karabo/pkg/version.Version=v1.0.0 \
//	  -X github.com/newtron-network/karabo/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/karabo/pkg/version.BuildDate=2026-07-29"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info renders a one-line human-readable version string for --version
// flags and startup log lines.
func Info() string {
	return "karabo " + Version + " (" + GitCommit + ", built " + BuildDate + ")"
}
