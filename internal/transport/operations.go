package transport

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/example/scriptrun-bridge/internal/models"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type savePPCRequest struct {
	Payload    any    `json:"payload"`
	ActiveUser string `json:"activeUser"`
}

// Login posts the credentials to the backend.
func (c *Client) Login(ctx context.Context, username, password string) models.Outcome {
	return c.postJSON(ctx, routeLogin, loginRequest{Username: username, Password: password})
}

// FetchSheetData reads one sheet by name.
func (c *Client) FetchSheetData(ctx context.Context, sheet string) models.Outcome {
	return c.get(ctx, routeSheetData, url.Values{"sheet": []string{sheet}})
}

// SavePPC stores payload on behalf of activeUser. A nil payload is sent as
// an empty list.
func (c *Client) SavePPC(ctx context.Context, payload any, activeUser string) models.Outcome {
	if payload == nil {
		payload = []any{}
	}
	return c.postJSON(ctx, routeSavePPC, savePPCRequest{Payload: payload, ActiveUser: activeUser})
}

// SystemConfig fetches the departments, staff and modules visible to role.
func (c *Client) SystemConfig(ctx context.Context, role string) models.Outcome {
	return c.get(ctx, routeSystemConfig, url.Values{"role": []string{role}})
}

// NextSequence predicts the next work order sequence without consuming it.
// The backend answers with a bare JSON string such as "1001".
func (c *Client) NextSequence(ctx context.Context) models.Outcome {
	return c.get(ctx, routeNextSequence, nil)
}

// TranscribeAndAnalyze uploads an audio recording for transcription and
// field extraction. apiKey is optional; the backend falls back to its own.
func (c *Client) TranscribeAndAnalyze(ctx context.Context, filename string, audio []byte, apiKey string) models.Outcome {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		filename = "audio.webm"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return models.ConnectionFailure(models.FailureInvalidCall, fmt.Errorf("encode upload: %w", err))
	}
	if _, err := part.Write(audio); err != nil {
		return models.ConnectionFailure(models.FailureInvalidCall, fmt.Errorf("encode upload: %w", err))
	}
	if strings.TrimSpace(apiKey) != "" {
		if err := w.WriteField("apiKey", apiKey); err != nil {
			return models.ConnectionFailure(models.FailureInvalidCall, fmt.Errorf("encode upload: %w", err))
		}
	}
	if err := w.Close(); err != nil {
		return models.ConnectionFailure(models.FailureInvalidCall, fmt.Errorf("encode upload: %w", err))
	}

	return c.do(ctx, request{route: routeTranscribe, body: buf.Bytes(), contentType: w.FormDataContentType()})
}

// Ping checks that the backend is online.
func (c *Client) Ping(ctx context.Context) models.Outcome {
	return c.get(ctx, routePing, nil)
}
