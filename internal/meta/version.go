package meta

import (
	"fmt"
	"runtime"

	"github.com/tidwall/sjson"
)

// Info describes how a redisclient binary was built. Most of it is stamped
// in by the Go linker, see the vars below.
type Info struct {
	Version   string
	Build     string
	Branch    string
	BuildTime string
	Platform  string
	GoVersion string
	GoTag     string
}

// These will be filled in using the linker -X flag
var (
	// Version as an arbitrary string
	Version string

	// Build is the Git sha from when we are building
	Build string

	// Branch is the Git branch that we are building from
	Branch string

	// BuildTimeUTC is the build time in UTC (year/month/day hour:min:sec)
	BuildTimeUTC string

	// GoTag is the Go build tags, see https://golang.org/pkg/go/build/#hdr-Build_Constraints
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns an Info struct populated with the build information.
func GetInfo() Info {
	return Info{
		GoVersion: runtime.Version(),
		Version:   Version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		GoTag:     GoTag,
		Platform:  platform,
	}
}

// String is the version, or "dev" for unstamped builds, plus the build sha
// when there is one.
func (i Info) String() string {
	version := i.Version
	if version == "" {
		version = "dev"
	}

	if i.Build == "" {
		return version
	}

	return version + " (" + i.Build + ")"
}

// JSON renders the info for `redisclient version --json`.
func (i Info) JSON() ([]byte, error) {
	doc := []byte("{}")

	var err error
	for _, field := range []struct{ key, value string }{
		{"version", i.Version},
		{"build", i.Build},
		{"branch", i.Branch},
		{"buildTime", i.BuildTime},
		{"platform", i.Platform},
		{"goVersion", i.GoVersion},
		{"goTag", i.GoTag},
	} {
		if doc, err = sjson.SetBytes(doc, field.key, field.value); err != nil {
			return nil, err
		}
	}

	return doc, nil
}
