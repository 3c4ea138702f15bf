package capacity

import (
	"encoding/json"
	"net/http"

	"github.com/marmos91/vidforge/internal/logger"
)

// ServeHTTP reports the current Stats as JSON.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := g.Stats(r.Context())
	if err != nil {
		logger.Warn("Storage stats request failed: %v", err)
		http.Error(w, "storage root cannot be scanned", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
