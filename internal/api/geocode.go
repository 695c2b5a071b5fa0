package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rain2recharge/r2r/internal/geocoding"
)

func handleGeocodeSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		places := deps.Geocoder.Search(r.Context(), q)
		if places == nil {
			places = []geocoding.Place{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"provider": deps.Geocoder.Provider(),
			"results":  places,
		})
	}
}

func handleGeocodeReverse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
		if err != nil || lat < -90 || lat > 90 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "lat must be a number between -90 and 90")
			return
		}
		lng, err := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
		if err != nil || lng < -180 || lng > 180 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "lng must be a number between -180 and 180")
			return
		}
		writeJSON(w, http.StatusOK, deps.Geocoder.Reverse(r.Context(), lat, lng))
	}
}
