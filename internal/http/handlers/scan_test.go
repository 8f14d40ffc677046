package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanHandler_Trigger_DefaultRoots(t *testing.T) {
	eng := &fakeEngine{enqueued: 7}
	h := NewScanHandler(eng)

	resp, err := h.Trigger(context.Background(), &ScanInput{})
	require.NoError(t, err)
	assert.Equal(t, 7, resp.Body.Enqueued)
	assert.Nil(t, eng.scanPaths, "no body means configured roots")
}

func TestScanHandler_Trigger_ExplicitPaths(t *testing.T) {
	eng := &fakeEngine{enqueued: 2}
	h := NewScanHandler(eng)

	input := &ScanInput{Body: &ScanRequest{Paths: []string{"/media/movies"}}}
	resp, err := h.Trigger(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Body.Enqueued)
	assert.Equal(t, []string{"/media/movies"}, eng.scanPaths)
}

func TestScanHandler_Trigger_NoRootsConfigured(t *testing.T) {
	eng := &fakeEngine{scanErr: errors.New("no scan roots configured")}
	h := NewScanHandler(eng)

	_, err := h.Trigger(context.Background(), &ScanInput{})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestScanHandler_Trigger_ScanFailure(t *testing.T) {
	eng := &fakeEngine{scanErr: errors.New("walk /media: permission denied")}
	h := NewScanHandler(eng)

	_, err := h.Trigger(context.Background(), &ScanInput{})
	assertStatus(t, err, http.StatusInternalServerError)
}
