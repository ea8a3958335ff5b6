package config

var (
	// Version is the gatewaybench version number, which is injected during build time.
	Version = "0.0.0"

	// CommitHash is the gatewaybench git commit hash, which is injected during build time.
	CommitHash = ""

	// BuildTimestamp is the timestamp at which gatewaybench was built, injected during build time.
	BuildTimestamp = ""

	// Branch is the git branch from which gatewaybench was built, injected during build time.
	Branch = ""
)
