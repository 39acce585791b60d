// Copyright (C) 2021 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package rest

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/stainlight/internal/img"
)

func init() { gin.SetMode(gin.TestMode) }

func post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	s := &Server{MaxThreads: 1}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	s := &Server{}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pong") {
		t.Errorf("got %d %s", w.Code, w.Body.String())
	}
}

func TestBadRequests(t *testing.T) {
	tests := []struct {
		path, body string
	}{
		{"/api/v1/normalize", `not json`},
		{"/api/v1/normalize", `{"normalize":{"target":"t.png"}}`},
		{"/api/v1/normalize", `{"filePatterns":["*.png"]}`},
		{"/api/v1/reinhard", `{"filePatterns":["/etc/*.png"],"reinhard":{}}`},
		{"/api/v1/augment", `{"filePatterns":["../*.png"],"augment":{}}`},
		{"/api/v1/augment", `{"filePatterns":["*.png"],"augment":{"method":"bogus"}}`},
		{"/api/v1/run", `{"filePatterns":["*.png"]}`},
		{"/api/v1/run", `{"filePatterns":["*.png"],"operator":{"type":"noSuchOperator"}}`},
	}
	for _, tt := range tests {
		if w := post(t, tt.path, tt.body); w.Code != http.StatusBadRequest {
			t.Errorf("%s %s: got %d", tt.path, tt.body, w.Code)
		}
	}
}

func TestRunStreamsLog(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	f := img.NewImage(4, 4, nil)
	for i := 0; i < f.Pixels(); i++ {
		if i%2 == 0 {
			f.SetRGB(i, 150, 90, 160)
		} else {
			f.SetRGB(i, 255, 255, 255)
		}
	}
	if err := f.WriteFile("patch.png"); err != nil {
		t.Fatal(err)
	}

	w := post(t, "/api/v1/run", `{"filePatterns":["patch*.png"],"operator":
		{"type":"seq","active":true,"steps":[
			{"type":"tissueMask"},
			{"type":"hematoxylin","method":"fixed"},
			{"type":"save","active":true,"filePattern":"hema_%d.png"}]}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	log := w.Body.String()
	for _, want := range []string{"Arguments:", "Tissue covers 8 of 16 pixels", "Hematoxylin", "Done."} {
		if !strings.Contains(log, want) {
			t.Errorf("log lacks %q:\n%s", want, log)
		}
	}
	if _, err := os.Stat("hema_0.png"); err != nil {
		t.Errorf("result not saved: %v", err)
	}

	w = post(t, "/api/v1/stains", `{"filePatterns":["none*.png"]}`)
	if !strings.Contains(w.Body.String(), "error:") {
		t.Errorf("missing files not reported:\n%s", w.Body.String())
	}
}
