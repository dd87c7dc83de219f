package version

import "runtime/debug"

// Name identifies the server to MCP clients.
const Name = "crcalc"

var version = "dev"

// Version returns the build string embedded via -ldflags when available,
// then the module version recorded in build info.
func Version() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

// Set assigns the exported version when ldflags are not provided (e.g. local dev).
func Set(v string) {
	if v != "" {
		version = v
	}
}
