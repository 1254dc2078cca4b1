// SPDX-License-Identifier: MIT
//
// Package build exposes metadata injected at link time, for example:
//
//	go build -ldflags "-X fxengine/internal/build.buildName=fxengine \
//	    -X fxengine/internal/build.buildVersion=0.1.0 ..."
package build

import (
	"errors"
	"fmt"
)

// ErrMissing is returned by Initialize when a link-time value is absent.
var ErrMissing = errors.New("build flag is required")

// Info holds the link-time metadata.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var buildInfo = devInfo()

func devInfo() *Info {
	return &Info{
		Name:        "fxengine",
		Description: "Real-time audio effects engine",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the link-time values into the Info returned by Get. If
// any value is missing the development defaults stay in place and an error
// naming the first missing flag is returned.
func Initialize() error {
	for _, f := range []struct{ name, v string }{
		{"BuildName", buildName},
		{"BuildTime", buildTime},
		{"BuildCommit", buildCommit},
		{"BuildVersion", buildVersion},
	} {
		if f.v == "" {
			return fmt.Errorf("%s: %w", f.name, ErrMissing)
		}
	}

	buildInfo.Name = buildName
	buildInfo.Time = buildTime
	buildInfo.Commit = buildCommit
	buildInfo.Version = buildVersion
	return nil
}

// Get returns the current build information.
func Get() *Info {
	return buildInfo
}

// String renders the version line printed by --version.
func (i *Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}
