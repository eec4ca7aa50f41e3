package version

// Set at build time via -ldflags "-X github.com/sydlexius/scanarr/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
)
