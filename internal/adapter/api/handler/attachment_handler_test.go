package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"kurir/internal/adapter/api"
	"kurir/internal/usecase"
)

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func TestUploadStoresAttachmentForParticipant(t *testing.T) {
	rooms, _ := newUseCases(t)
	store := &fakeAttachmentStore{}
	h := NewAttachmentHandler(store, rooms)

	room, _, err := rooms.OpenOrCreate(context.Background(), "alice", "bob", usecase.SendMessageInput{Content: "hi"})
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}

	body, contentType := multipartBody(t, "file", "pic.png", []byte("png-bytes"))
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(room.ID)
	c.Set("uid", "alice")

	if err := h.Upload(c); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201", rec.Code)
	}

	var resp struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(resp.Data["url"], room.ID) {
		t.Errorf("url %q does not reference the room", resp.Data["url"])
	}
}

func TestUploadRejectsNonParticipants(t *testing.T) {
	rooms, _ := newUseCases(t)
	h := NewAttachmentHandler(&fakeAttachmentStore{}, rooms)

	room, _, err := rooms.OpenOrCreate(context.Background(), "alice", "bob", usecase.SendMessageInput{Content: "hi"})
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}

	body, contentType := multipartBody(t, "file", "pic.png", []byte("png-bytes"))
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(room.ID)
	c.Set("uid", "mallory")

	if err := h.Upload(c); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status %d, want 403", rec.Code)
	}
}

func TestSignedUploadURL(t *testing.T) {
	rooms, _ := newUseCases(t)
	store := &fakeAttachmentStore{}
	h := NewAttachmentHandler(store, rooms)

	room, _, err := rooms.OpenOrCreate(context.Background(), "alice", "bob", usecase.SendMessageInput{Content: "hi"})
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}

	e := echo.New()
	e.Validator = api.NewValidator()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"content_type":"image/png"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(room.ID)
	c.Set("uid", "bob")

	if err := h.SignedUploadURL(c); err != nil {
		t.Fatalf("SignedUploadURL: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	if store.lastFileType != "image/png" {
		t.Errorf("content type %q not forwarded", store.lastFileType)
	}

	// A missing content type fails validation.
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(room.ID)
	c.Set("uid", "bob")

	if err := h.SignedUploadURL(c); err != nil {
		t.Fatalf("SignedUploadURL: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}
