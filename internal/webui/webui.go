// Package webui embeds the summarization page served at /.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var embedded embed.FS

// Files holds the page assets keyed by the path they are served under.
var Files fs.FS = mustSub(embedded, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

func StaticFS() http.FileSystem {
	return http.FS(Files)
}
