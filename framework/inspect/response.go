package inspect

import (
	"encoding/json"
	"net/http"
)

// ── Response ─────────────────────────────────────────────────────────────────

// response wraps http.ResponseWriter with the JSON envelope helpers.
type response struct {
	w http.ResponseWriter
}

func (res response) json(status int, data any) {
	res.w.Header().Set("Content-Type", "application/json")
	res.w.WriteHeader(status)
	_ = json.NewEncoder(res.w).Encode(data)
}

// success sends 200 JSON: {"data": v}
func (res response) success(v any) {
	res.json(http.StatusOK, envelope{"data": v})
}

// error sends {"message": message} with status.
func (res response) error(status int, message string) {
	res.json(status, envelope{"message": message})
}

func (res response) notFound(message ...string) {
	res.error(http.StatusNotFound, first(message, "Not found."))
}

type envelope map[string]any

func first(ss []string, fallback string) string {
	if len(ss) > 0 && ss[0] != "" {
		return ss[0]
	}
	return fallback
}
