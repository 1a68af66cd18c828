// Package version хранит сведения о сборке, заданные через -ldflags.
package version

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
// Если commit не задан, используется vcs.revision из debug.BuildInfo.
func Info() (v, c, d string) {
	c = commit
	if c == "unknown" {
		if revision := vcsRevision(); revision != "" {
			c = revision
		}
	}
	return version, c, date
}

// String форматирует сведения о сборке для логов и флага -version.
func String() string {
	v, c, d := Info()
	return fmt.Sprintf("version=%s commit=%s date=%s", v, c, d)
}

// Fields возвращает сведения о сборке как поля logrus.
func Fields() log.Fields {
	v, c, d := Info()
	return log.Fields{
		"version": v,
		"commit":  c,
		"date":    d,
	}
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return ""
}
