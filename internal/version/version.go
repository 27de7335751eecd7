// Package version describes the elm build: its version, the revision it was
// built from and the database drivers linked into it.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Set with -ldflags "-X". Commit and Date fall back to the VCS stamp of
// the build.
var (
	Version = "0.1.0"
	Commit  = ""
	Date    = ""
)

// drivers lists the database/sql driver module behind each dialect.
var drivers = []Driver{
	{Dialect: "mysql", Module: "github.com/go-sql-driver/mysql"},
	{Dialect: "postgres", Module: "github.com/lib/pq"},
	{Dialect: "sqlserver", Module: "github.com/microsoft/go-mssqldb"},
	{Dialect: "sqlite", Module: "github.com/mattn/go-sqlite3"},
}

// Driver is a supported dialect and the driver module serving it.
type Driver struct {
	Dialect string
	Module  string
	Version string
}

// Info describes the running build.
type Info struct {
	Version  string
	Commit   string
	Date     string
	Modified bool
	Go       string
	Drivers  []Driver
}

// Get collects the build information.
func Get() Info {
	i := Info{Version: Version, Commit: Commit, Date: Date, Go: runtime.Version()}
	deps := map[string]string{}
	if bi, ok := debug.ReadBuildInfo(); ok {
		i.stamp(bi.Settings)
		for _, d := range bi.Deps {
			deps[d.Path] = d.Version
		}
	}
	for _, d := range drivers {
		d.Version = deps[d.Module]
		i.Drivers = append(i.Drivers, d)
	}
	return i
}

func (i *Info) stamp(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "" {
				i.Commit = s.Value
			}
		case "vcs.time":
			if i.Date == "" {
				i.Date = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
}

func (i Info) shortCommit() string {
	if len(i.Commit) > 7 {
		return i.Commit[:7]
	}
	return i.Commit
}

// String returns "elm version X", with the short commit when known.
func (i Info) String() string {
	if c := i.shortCommit(); c != "" {
		return fmt.Sprintf("elm version %s (%s)", i.Version, c)
	}
	return "elm version " + i.Version
}

// FullString adds the build stamp, the Go version and the dialects.
func (i Info) FullString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "elm version %s\n", i.Version)
	if i.Commit != "" {
		dirty := ""
		if i.Modified {
			dirty = " (modified)"
		}
		fmt.Fprintf(&b, "commit:   %s%s\n", i.Commit, dirty)
	}
	if i.Date != "" {
		fmt.Fprintf(&b, "built:    %s\n", i.Date)
	}
	fmt.Fprintf(&b, "go:       %s %s/%s\n", i.Go, runtime.GOOS, runtime.GOARCH)
	b.WriteString("dialects:")
	for _, d := range i.Drivers {
		v := d.Version
		if v == "" {
			v = "not linked"
		}
		fmt.Fprintf(&b, "\n  %-9s %s %s", d.Dialect, d.Module, v)
	}
	return b.String()
}

// Satisfies reports whether the CLI version meets constraint, such as
// ">= 0.1, < 1.0".
func (i Info) Satisfies(constraint string) (bool, error) {
	v, err := goversion.NewVersion(i.Version)
	if err != nil {
		return false, fmt.Errorf("invalid version format: %w", err)
	}
	c, err := goversion.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid constraint: %w", err)
	}
	return c.Check(v), nil
}
