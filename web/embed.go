// Package web embeds the browser chat page and serves it for every path the
// API does not claim.
package web

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"
)

//go:embed static
var staticFS embed.FS

// Handler serves embedded assets by name and the chat page for any other
// path.
func Handler() http.Handler {
	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	page, err := fs.ReadFile(assets, "index.html")
	if err != nil {
		panic("web: chat page missing: " + err.Error())
	}
	files := http.FileServerFS(assets)
	loaded := time.Now()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if name != "." && name != "index.html" {
			if st, err := fs.Stat(assets, name); err == nil && !st.IsDir() {
				files.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, "index.html", loaded, bytes.NewReader(page))
	})
}
