package server

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// jsonFloat encodes NaN and ±Inf as null, which encoding/json rejects.
// Diverging runs without bounds can reach infinite fitness.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// writeJSON writes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes {"error": msg} with the given status code
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// splitPath returns the ID and optional sub-resource after prefix,
// e.g. "/api/v1/jobs/abc/status" -> ("abc", "status").
func splitPath(path, prefix string) (id, sub string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	id, sub, _ = strings.Cut(rest, "/")
	return id, sub
}
