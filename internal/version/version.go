// Package version holds build metadata, set with -ldflags at build time.
package version

var (
	AppName        = "pipebot"
	AppDescription = "Relays commands read line by line from a file or pipe to Discord"
	Version        = "dev"
	BuildDate      = ""
	GoVersion      = ""
)

// String is the one-line version banner.
func String() string {
	s := AppName + " " + Version
	if BuildDate != "" {
		s += " (built " + BuildDate + ")"
	}
	if GoVersion != "" {
		s += " " + GoVersion
	}
	return s
}
