// Package site serves the embedded live viewer.
package site

import (
	"context"
	"net/http"
)

// Register attaches the viewer at / to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("/", http.FileServer(FS()))
}
