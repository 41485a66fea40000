package version

import "fmt"

// Set at build time with -ldflags "-X".
var (
	CLIName    = "chedda"
	CLIVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

func Long() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", CLIVersion, Commit, BuildDate)
}

// UserAgent identifies chedda to RPC nodes and the Safe Transaction Service.
func UserAgent() string {
	return CLIName + "/" + CLIVersion
}

// Origin is the origin field attached to Safe proposals.
func Origin() string {
	return fmt.Sprintf(`{"url":"https://chedda.io","name":"%s %s"}`, CLIName, CLIVersion)
}
