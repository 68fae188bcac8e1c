package api

import (
	_ "embed"
	"net/http"
)

//go:embed widget.js
var widgetJS []byte

// WidgetHandler serves the embeddable chat widget script. Customers drop a
// script tag with a data-token attribute onto their site.
func WidgetHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(widgetJS)
}
