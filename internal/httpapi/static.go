package httpapi

import (
	"net/http"
	"os"
	"strings"
)

// newStaticHandler serves the browser frontend from dir. It returns nil when the
// directory is not there so the router can skip mounting it.
func newStaticHandler(dir string) http.Handler {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}
	return http.FileServer(http.FS(os.DirFS(dir)))
}
