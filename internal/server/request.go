package server

import (
	"net/http"
	"strconv"
	"strings"

	"handbook-rag/internal/models"
)

// RequestInfo reads caller metadata from proxy and Vercel geo headers
func RequestInfo(r *http.Request) models.RequestInfo {
	h := r.Header
	ip := ""
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip == "" {
		ip = h.Get("X-Real-Ip")
	}
	return models.RequestInfo{
		IPAddress: ip,
		UserAgent: h.Get("User-Agent"),
		Referer:   h.Get("Referer"),
		Country:   h.Get("X-Vercel-Ip-Country"),
		City:      h.Get("X-Vercel-Ip-City"),
		Region:    h.Get("X-Vercel-Ip-Country-Region"),
		Latitude:  parseCoord(h.Get("X-Vercel-Ip-Latitude")),
		Longitude: parseCoord(h.Get("X-Vercel-Ip-Longitude")),
	}
}

// zero and unparsable coordinates are treated as absent
func parseCoord(v string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f == 0 {
		return nil
	}
	return &f
}
