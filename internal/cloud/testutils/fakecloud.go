// Package cloudtestutils provides an in-memory fake of the device management cloud for tests.
package cloudtestutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Request is a request received by the fake cloud.
type Request struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

type attachment struct {
	ID         string         `json:"id"`
	Identifier string         `json:"identifier"`
	For        string         `json:"for"`
	Payload    map[string]any `json:"payload"`
}

type failure struct {
	status int
	body   string
}

// FakeCloud serves the devices and attachments endpoints of the cloud from memory.
type FakeCloud struct {
	server *httptest.Server

	appID    string
	appToken string

	mu          sync.Mutex
	devices     string
	attachments map[string]attachment
	requests    []Request
	failures    map[string]failure
	nextID      int
}

// New starts a fake cloud accepting the given credentials. It is closed when the test ends.
func New(t *testing.T, appID, appToken string) *FakeCloud {
	t.Helper()

	f := &FakeCloud{
		appID:       appID,
		appToken:    appToken,
		devices:     "[]",
		attachments: make(map[string]attachment),
		failures:    make(map[string]failure),
		nextID:      1,
	}

	r := chi.NewRouter()
	r.Use(f.record, f.authenticate, f.injectFailures)
	r.Get("/v2/devices", f.listDevices)
	r.Get("/v3/attachments", f.findAttachments)
	r.Post("/v3/attachments", f.createAttachment)
	r.Patch("/v3/attachments/{id}", f.updateAttachment)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)

	return f
}

// URL returns the base URL of the fake cloud.
func (f *FakeCloud) URL() string {
	return f.server.URL
}

// SetDevices sets the raw JSON document returned by the devices listing.
func (f *FakeCloud) SetDevices(devices string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = devices
}

// SeedAttachment stores an existing attachment for the device.
func (f *FakeCloud) SeedAttachment(deviceID, attachmentID string, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachments[deviceID] = attachment{ID: attachmentID, Identifier: deviceID, For: "device", Payload: payload}
}

// FailWith makes the fake answer status and body to every request matching method and path.
func (f *FakeCloud) FailWith(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+path] = failure{status: status, body: body}
}

// Attachment returns the payload currently stored for the device.
func (f *FakeCloud) Attachment(deviceID string) (payload map[string]any, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachments[deviceID]
	return a.Payload, ok
}

// Requests returns the requests received so far.
func (f *FakeCloud) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// Writes returns the POST and PATCH requests received so far.
func (f *FakeCloud) Writes() []Request {
	var writes []Request
	for _, r := range f.Requests() {
		if r.Method == http.MethodPost || r.Method == http.MethodPatch {
			writes = append(writes, r)
		}
	}
	return writes
}

func (f *FakeCloud) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		f.mu.Lock()
		f.requests = append(f.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		f.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (f *FakeCloud) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, token, ok := r.BasicAuth()
		if !ok || id != f.appID || token != f.appToken {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeCloud) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail, ok := f.failures[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if ok {
			w.WriteHeader(fail.status)
			fmt.Fprint(w, fail.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeCloud) listDevices(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, f.devices)
}

func (f *FakeCloud) findAttachments(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := []attachment{}
	if a, ok := f.attachments[r.URL.Query().Get("identifiers")]; ok {
		data = append(data, a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (f *FakeCloud) createAttachment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data attachment `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Data.Identifier == "" || req.Data.For != "device" {
		http.Error(w, `{"error":"invalid attachment"}`, http.StatusUnprocessableEntity)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	req.Data.ID = "a" + strconv.Itoa(f.nextID)
	f.nextID++
	f.attachments[req.Data.Identifier] = req.Data
	writeJSON(w, http.StatusOK, map[string]any{"data": req.Data})
}

func (f *FakeCloud) updateAttachment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data struct {
			Payload map[string]any `json:"payload"`
		} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := chi.URLParam(r, "id")
	for device, a := range f.attachments {
		if a.ID != id {
			continue
		}
		a.Payload = req.Data.Payload
		f.attachments[device] = a
		writeJSON(w, http.StatusOK, map[string]any{"data": a})
		return
	}
	http.Error(w, `{"error":"attachment not found"}`, http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
