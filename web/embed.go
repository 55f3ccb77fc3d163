// Package web embeds the control panel's HTML templates and static assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Templates returns the template tree rooted at templates/, so pages are
// addressed as "layout.html" and "pages/overview.html".
func Templates() (fs.FS, error) {
	return fs.Sub(templateFS, "templates")
}

// Static returns the asset tree served under /static/.
func Static() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
