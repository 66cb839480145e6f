package version

// Stamped at build time via
// -ldflags "-X github.com/platformbuilds/pstated/internal/version.version=...".
var (
	version   = "unknown"
	commit    = "unknown"
	buildDate = "unknown"
)

func Version() string   { return version }
func Commit() string    { return commit }
func BuildDate() string { return buildDate }
