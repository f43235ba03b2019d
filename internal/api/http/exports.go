package http

import (
	"io"
	"strings"

	nethttp "net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-surveys/internal/storage"
)

// MountExports serves stored export documents: GET /{key...}.
func MountExports(r chi.Router, bs storage.BlobStore) {
	r.Get("/*", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := bs.Get(key)
		if err != nil {
			writeFailure(w, nethttp.StatusNotFound, "Export not found", nil)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="`+key[strings.LastIndex(key, "/")+1:]+`"`)
		_, _ = io.Copy(w, rc)
	})
}
