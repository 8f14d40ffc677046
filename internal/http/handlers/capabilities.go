package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alchemist-av/alchemist/internal/ffmpeg"
)

// CapabilitiesHandler exposes the detected ffmpeg and hardware surface.
type CapabilitiesHandler struct {
	caps *ffmpeg.Capabilities
}

// NewCapabilitiesHandler creates a capabilities handler. Capabilities are
// detected once at startup and never change while the process runs.
func NewCapabilitiesHandler(caps *ffmpeg.Capabilities) *CapabilitiesHandler {
	return &CapabilitiesHandler{caps: caps}
}

// Register registers the capabilities operation with the API.
func (h *CapabilitiesHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/v1/capabilities",
		Summary:     "Get capabilities",
		Description: "Returns the detected ffmpeg version, available encoders and hardware acceleration surface.",
		Tags:        []string{"System"},
	}, h.Get)
}

// CapabilitiesOutput wraps the detected capabilities.
type CapabilitiesOutput struct {
	Body *ffmpeg.Capabilities
}

// Get returns the startup capability snapshot.
func (h *CapabilitiesHandler) Get(ctx context.Context, _ *struct{}) (*CapabilitiesOutput, error) {
	return &CapabilitiesOutput{Body: h.caps}, nil
}
