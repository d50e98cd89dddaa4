package main

import (
	"embed"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

//go:embed dist
var webappContent embed.FS

// contentTypeFor prefers the extension and falls back to sniffing the file
func contentTypeFor(name string, data []byte) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return mimetype.Detect(data).String()
}

// serveEmbeddedFile serves a file of the embedded UI below dist/<prefix>
func serveEmbeddedFile(c *gin.Context, prefix string, name string) {
	if name == "" || strings.HasSuffix(name, "/") {
		name = path.Join(name, "index.html")
	}

	fullPath := path.Join("dist", prefix, name)
	data, err := fs.ReadFile(webappContent, fullPath)
	if err != nil {
		log.Debugf("File not found: %s", fullPath)
		c.Status(http.StatusNotFound)
		return
	}

	c.Data(http.StatusOK, contentTypeFor(fullPath, data), data)
}
