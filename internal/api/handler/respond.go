package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/iconidentify/tikgrab/internal/domain"
)

var mobileUA = regexp.MustCompile(`(?i)android|iphone|ipad|ipod|mobile|opera mini|iemobile`)

// isMobile reports whether the request comes from a phone or tablet browser.
func isMobile(r *http.Request) bool {
	return mobileUA.MatchString(r.UserAgent())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	var upErr *domain.UpstreamError
	var archiveErr *domain.ArchiveEmptyError
	var transportErr *domain.TransportError
	switch {
	case errors.Is(err, domain.ErrInvalidURL), errors.Is(err, domain.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoRecord), errors.Is(err, domain.ErrMediaNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoImages):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStorageFull):
		return http.StatusInsufficientStorage
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// nginx's "client closed request"
		return 499
	case errors.As(err, &archiveErr), errors.As(err, &upErr), errors.As(err, &transportErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
