// Package buildinfo provides build information for autosave-server and
// autosave-cli.
//
// Values are injected via ldflags and fall back to the module build
// information embedded by the Go toolchain:
//
//	go build -ldflags "-X github.com/yndnr/autosave-go/internal/infra/buildinfo.Version=v1.0.0"
package buildinfo
