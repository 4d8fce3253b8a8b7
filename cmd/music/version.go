package main

import "runtime/debug"

// resolveVersion prefers the ldflags version and falls back to the module
// version recorded by go install.
func resolveVersion(version string, bi *debug.BuildInfo) string {
	if version != "dev" {
		return version
	}
	if bi == nil {
		return version
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	return version
}
