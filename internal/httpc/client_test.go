package httpc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"active"}`)
	}))
	defer srv.Close()

	var got struct {
		Status string `json:"status"`
	}
	if err := GetJSON(context.Background(), srv.URL+"/stream_status", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.Status != "active" {
		t.Errorf("status = %q, want active", got.Status)
	}

	if err := GetJSON(context.Background(), srv.URL+"/missing", &got); err == nil {
		t.Error("expected error for 404")
	}
}

func TestPostJSON(t *testing.T) {
	var gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody, gotType = string(b), r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"status":"error","message":"Unknown preset: x"}`)
			return
		}
		io.WriteString(w, `{"status":"success","message":"ok"}`)
	}))
	defer srv.Close()

	type reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	ctx := context.Background()

	var got reply
	code, err := PostJSON(ctx, srv.URL+"/apply_preset", map[string]string{"preset": "low_light"}, &got)
	if err != nil || code != http.StatusOK {
		t.Fatalf("PostJSON = %d, %v", code, err)
	}
	if gotBody != `{"preset":"low_light"}` || gotType != "application/json" {
		t.Errorf("request body %q, content type %q", gotBody, gotType)
	}
	if got.Status != "success" {
		t.Errorf("reply = %+v", got)
	}

	got = reply{}
	code, err = PostJSON(ctx, srv.URL+"/bad", struct{}{}, &got)
	if err != nil || code != http.StatusBadRequest {
		t.Fatalf("PostJSON = %d, %v", code, err)
	}
	if got.Message != "Unknown preset: x" {
		t.Errorf("error reply = %+v", got)
	}
}

func TestPostJSONUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var out map[string]any
	if _, err := PostJSON(context.Background(), url, struct{}{}, &out); err == nil {
		t.Error("expected error for closed server")
	}
}
