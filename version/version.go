// Package version tells which build of trackline is running.
package version

import "runtime/debug"

// Version can be set at build time with something like:
// go build -ldflags "-X github.com/trackline/trackline/version.Version=$(git describe --dirty)"
var Version string

// Revision is the short VCS revision of the build, with "-dirty" appended
// when the working tree had local modifications.
var Revision = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var revision string
	dirty := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if revision != "" && dirty {
		revision += "-dirty"
	}
	return revision
}()

// String returns Version if it was set, the VCS revision otherwise, and
// "dev" when neither is known.
func String() string {
	switch {
	case Version != "":
		return Version
	case Revision != "":
		return Revision
	}
	return "dev"
}
