package api

import (
	"encoding/json"
	"net/http"

	"nordctl/internal/servers"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func listLocalServers(bundleDir string) ([]string, error) {
	return servers.ListLocal(bundleDir)
}
