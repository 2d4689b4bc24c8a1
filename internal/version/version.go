// Package version provides build-time version information. The version is reported to the
// relay in the CONNECT handshake and to token issuers in the User-Agent header.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/wire/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/wire/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/wire/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

// Name is the client name sent to the relay when none is configured.
const Name = "wire-go"

// Build-time variables (set via ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Commit is the git commit hash (short form)
	Commit = "unknown"

	// BuildTime is the UTC build timestamp (ISO 8601)
	BuildTime = "unknown"
)

// String returns a formatted version string.
func String() string {
	return Name + " " + Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent returns the HTTP User-Agent value.
func UserAgent() string {
	return Name + "/" + Version
}
