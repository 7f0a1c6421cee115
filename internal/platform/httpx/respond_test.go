package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("task: %w", ErrConflict), http.StatusConflict},
		{ErrUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("pivot: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d got %d", tc.err, tc.status, rec.Code)
		}
		var body ProblemDetail
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode problem: %v", err)
		}
		if body.Status != tc.status {
			t.Fatalf("problem status mismatch: %+v", body)
		}
		if tc.status == http.StatusInternalServerError && body.Detail != "" {
			t.Fatalf("internal errors must not leak detail: %q", body.Detail)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	var p payload

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	if err := DecodeJSON(req, &p); err != nil || p.Name != "ok" {
		t.Fatalf("unexpected decode result %+v %v", p, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok","extra":1}`))
	if err := DecodeJSON(req, &p); err == nil {
		t.Fatalf("expected unknown field error")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	if err := DecodeJSON(req, &p); err != ErrEmptyBody {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}{"name":"b"}`))
	if err := DecodeJSON(req, &p); err == nil {
		t.Fatalf("expected trailing document error")
	}
}
