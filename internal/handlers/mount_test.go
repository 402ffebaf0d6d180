package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"mount_modeling/internal/alignment"
	"mount_modeling/internal/imaging"
	"mount_modeling/internal/models"
	"mount_modeling/internal/mount"
	"mount_modeling/internal/service"
)

func TestMountHandlers_StatusRequiresAuth(t *testing.T) {
	mon := &mockMonitoring{status: models.MountStatus{Connected: true, RaJNow: 12.5, Pierside: models.PierWest}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseErr: errors.New("expired")}, Monitoring: mon})

	if w := doAuthed(r, http.MethodGet, "/api/v1/mount/status"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a rejected token, got %d", w.Code)
	}

	r = newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 7}, Monitoring: mon})
	w := doAuthed(r, http.MethodGet, "/api/v1/mount/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var st models.MountStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if !st.Connected || st.RaJNow != 12.5 || st.Pierside != models.PierWest {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestMountHandlers_StatusError(t *testing.T) {
	mon := &mockMonitoring{err: errors.New("boom")}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Monitoring: mon})

	w := doAuthed(r, http.MethodGet, "/api/v1/mount/status")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", w.Code)
	}
	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out["error"] != errGetStatus {
		t.Fatalf("internal error text leaked: %q", out["error"])
	}
}

func TestMountHandlers_Alignment(t *testing.T) {
	model := models.AlignmentModel{
		Points:        []models.AlignmentPoint{{Index: 1, RMSError: 12}, {Index: 2, RMSError: 30}},
		Names:         []string{"BASE"},
		ReportedCount: 2,
		Consistent:    true,
	}
	mon := &mockMonitoring{alignment: model}
	al := &mockAlignment{}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Monitoring: mon, Alignment: al})

	w := doAuthed(r, http.MethodGet, "/api/v1/mount/alignment")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got models.AlignmentModel
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Points) != 2 || !got.Consistent || got.Names[0] != "BASE" {
		t.Fatalf("unexpected model: %+v", got)
	}

	if w := doAuthed(r, http.MethodDelete, "/api/v1/mount/alignment/1"); w.Code != http.StatusOK {
		t.Fatalf("delete status=%d, body=%s", w.Code, w.Body.String())
	}
	if len(al.deleted) != 1 || al.deleted[0] != 1 {
		t.Fatalf("DeletePoint calls = %v", al.deleted)
	}

	for _, bad := range []string{"-1", "x"} {
		if w := doAuthed(r, http.MethodDelete, "/api/v1/mount/alignment/"+bad); w.Code != http.StatusBadRequest {
			t.Fatalf("index %q: want 400, got %d", bad, w.Code)
		}
	}
}

func TestMountHandlers_DeleteErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: 9 (have 3)", alignment.ErrIndexOutOfRange), http.StatusNotFound},
		{fmt.Errorf("delete star 1: %w", mount.ErrNotConnected), http.StatusServiceUnavailable},
		{fmt.Errorf("delete star 1: %w", mount.ErrReplyTimeout), http.StatusServiceUnavailable},
		{fmt.Errorf("delete star 1: %w", mount.ErrUnexpectedReply), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			al := &mockAlignment{err: tc.err}
			r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Monitoring: &mockMonitoring{}, Alignment: al})
			if w := doAuthed(r, http.MethodDelete, "/api/v1/mount/alignment/0"); w.Code != tc.want {
				t.Fatalf("want %d, got %d (%s)", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestMountHandlers_ImagingStatus(t *testing.T) {
	mon := &mockMonitoring{imaging: imaging.DeviceStatus{Backend: "sgpro", Camera: "IDLE", Solver: "IDLE"}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Monitoring: mon})

	w := doAuthed(r, http.MethodGet, "/api/v1/imaging/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var st imaging.DeviceStatus
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Backend != "sgpro" {
		t.Fatalf("unexpected status: %+v", st)
	}

	mon.imgErr = imaging.ErrTimeout
	if w := doAuthed(r, http.MethodGet, "/api/v1/imaging/status"); w.Code != http.StatusBadGateway {
		t.Fatalf("want 502 when the backend fails, got %d", w.Code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	r := newTestRouter(&service.Service{})
	w := doAuthed(r, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("health status=%d", w.Code)
	}
}

func TestMountHandlers_LoadModel(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "loaded", want: http.StatusOK},
		{name: "bad name", err: fmt.Errorf("%w: %q", service.ErrInvalidModelName, "A#"), want: http.StatusBadRequest},
		{name: "unknown", err: fmt.Errorf("%w: OTHER", service.ErrModelNotFound), want: http.StatusNotFound},
		{name: "run active", err: service.ErrRunInProgress, want: http.StatusConflict},
		{name: "mount offline", err: fmt.Errorf("load model BASE: %w", mount.ErrNotConnected), want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			al := &mockAlignment{err: tc.err}
			mon := &mockMonitoring{alignment: models.AlignmentModel{Names: []string{mount.ModelRefine}}}
			r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Monitoring: mon, Alignment: al})

			w := doAuthed(r, http.MethodPost, "/api/v1/mount/model/REFINE/load")
			if w.Code != tc.want {
				t.Fatalf("want %d, got %d (%s)", tc.want, w.Code, w.Body.String())
			}
			if len(al.loaded) != 1 || al.loaded[0] != mount.ModelRefine {
				t.Fatalf("LoadModel calls = %v", al.loaded)
			}
		})
	}
}
