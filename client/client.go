// Package client embeds the demo browser client. The server mounts it at
// the root route; it is a development aid, not part of the wire protocol.
package client

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed dist
var distFS embed.FS

// IndexHTML is the embedded demo page.
var IndexHTML []byte

func init() {
	var err error
	IndexHTML, err = distFS.ReadFile("dist/index.html")
	if err != nil {
		panic("client: embedded index.html missing: " + err.Error())
	}
}

// Handler serves the embedded demo client.
func Handler() http.Handler {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("client: embedded dist missing: " + err.Error())
	}
	return http.FileServer(http.FS(sub))
}
