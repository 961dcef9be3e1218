package persona

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed all:defaults
var defaultsFS embed.FS

// Defaults returns the built-in persona definitions.
func Defaults() fs.FS {
	sub, err := fs.Sub(defaultsFS, "defaults")
	if err != nil {
		panic("persona: failed to create sub filesystem: " + err.Error())
	}
	return sub
}

// Source returns the definition filesystem to load: dir when set, otherwise
// the built-in definitions.
func Source(dir string) fs.FS {
	if dir == "" {
		return Defaults()
	}
	return os.DirFS(dir)
}
