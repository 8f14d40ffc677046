package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// ScanHandler triggers library scans over the API.
type ScanHandler struct {
	engine Engine
}

// NewScanHandler creates a scan handler.
func NewScanHandler(eng Engine) *ScanHandler {
	return &ScanHandler{engine: eng}
}

// Register registers the scan operation with the API.
func (h *ScanHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "trigger-scan",
		Method:      http.MethodPost,
		Path:        "/api/v1/scan",
		Summary:     "Trigger scan",
		Description: "Walks the given paths, or the configured library when omitted, and enqueues eligible media files.",
		Tags:        []string{"Scan"},
	}, h.Trigger)
}

// ScanRequest narrows a scan to specific roots.
type ScanRequest struct {
	Paths []string `json:"paths,omitempty" doc:"Roots to scan; omit to scan the configured library and enabled watch dirs"`
}

// ScanInput carries the optional scan request body.
type ScanInput struct {
	Body *ScanRequest
}

// ScanOutput reports how many files were enqueued.
type ScanOutput struct {
	Body struct {
		Enqueued int `json:"enqueued"`
	}
}

// Trigger runs a scan and enqueues the results.
func (h *ScanHandler) Trigger(ctx context.Context, input *ScanInput) (*ScanOutput, error) {
	var paths []string
	if input.Body != nil {
		paths = input.Body.Paths
	}

	enqueued, err := h.engine.ScanAndEnqueue(ctx, paths, "api")
	if err != nil {
		if strings.Contains(err.Error(), "no scan roots") {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error500InternalServerError("scanning library", err)
	}

	resp := &ScanOutput{}
	resp.Body.Enqueued = enqueued
	return resp, nil
}
