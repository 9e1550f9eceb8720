package httpjson

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apierrors "github.com/dlemaire/picofeed/internal/errors"
)

type echoRequest struct {
	ID   uint64 `path:"id" json:"-"`
	Name string `json:"name"`
}

type echoResponse struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

func echo(_ context.Context, in echoRequest) (*echoResponse, error) {
	return &echoResponse{ID: in.ID, Name: in.Name}, nil
}

func TestWrap(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("POST /things/{id}", Wrap(echo))

	t.Run("body and path params", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/things/42", strings.NewReader(`{"name":"x"}`))
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp echoResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.ID != 42 || resp.Name != "x" {
			t.Errorf("Unexpected response: %+v", resp)
		}
	})

	t.Run("empty body is allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/things/7", nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
	})

	t.Run("non-numeric path param is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/things/notanumber", strings.NewReader(`{"name":"x"}`))
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d: %s", rr.Code, rr.Body.String())
		}
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Error.Code != string(apierrors.ErrValidationFailed) {
			t.Errorf("Unexpected error code %q", body.Error.Code)
		}
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/things/7", strings.NewReader(`{"bogus":1}`))
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rr.Code)
		}
	})

	t.Run("handler errors keep their status", func(t *testing.T) {
		h := Wrap(func(_ context.Context, _ struct{}) (*echoResponse, error) {
			return nil, apierrors.NotFound("thing")
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("Expected 404, got %d", rr.Code)
		}
		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Error.Code != string(apierrors.ErrNotFound) {
			t.Errorf("Unexpected error code %q", body.Error.Code)
		}
	})

	t.Run("plain errors become 500", func(t *testing.T) {
		h := Wrap(func(_ context.Context, _ struct{}) (*echoResponse, error) {
			return nil, context.DeadlineExceeded
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", rr.Code)
		}
	})
}
