package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/switchboard/internal/postgres"
	"github.com/linnemanlabs/switchboard/internal/ticket"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

func TestNotifySystemd_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error when NOTIFY_SOCKET is empty")
	}
	if !strings.Contains(err.Error(), "NOTIFY_SOCKET not set") {
		t.Errorf("error = %q, want substring %q", err, "NOTIFY_SOCKET not set")
	}
}

func TestNotifySystemd_InvalidPath(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "nonexistent.sock"))

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error for nonexistent socket")
	}
	if !strings.Contains(err.Error(), "dial failed") {
		t.Errorf("error = %q, want substring %q", err, "dial failed")
	}
}

func TestNotifySystemd_Success(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")

	// Create a real unixgram listener.
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(context.Background(), "unixgram", sockPath)
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	defer func() { _ = conn.Close() }()

	t.Setenv("NOTIFY_SOCKET", sockPath)

	if err := notifySystemd(); err != nil {
		t.Fatalf("notifySystemd() = %v, want nil", err)
	}

	buf := make([]byte, 256)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read from socket: %v", err)
	}

	got := string(buf[:n])
	if got != "READY=1" {
		t.Errorf("payload = %q, want %q", got, "READY=1")
	}
}

func TestOpenStores_InMemoryDefaultSeed(t *testing.T) {
	t.Parallel()

	st, err := openStores(context.Background(), log.Nop(), "", "", time.Now())
	if err != nil {
		t.Fatalf("openStores: %v", err)
	}
	defer st.close()

	c, err := st.dir.Profile(context.Background(), "CUST001")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if c.CustomerID != "CUST001" {
		t.Errorf("CustomerID = %q, want CUST001", c.CustomerID)
	}

	list, err := st.decisions.List(context.Background())
	if err != nil || len(list) != 0 {
		t.Errorf("fresh decision store: len=%d err=%v", len(list), err)
	}
}

func TestOpenStores_MissingSeedFile(t *testing.T) {
	t.Parallel()

	_, err := openStores(context.Background(), log.Nop(), "", filepath.Join(t.TempDir(), "seed.yaml"), time.Now())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestQueryStats_AttachesStats(t *testing.T) {
	t.Parallel()

	var seen bool
	h := queryStats(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, ok := postgres.QueryStatsFromContext(r.Context())
		if ok {
			seen = true
			stats.Add(3*time.Millisecond, nil)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/decisions", nil))

	if !seen {
		t.Error("handler context has no query stats")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

type stubService struct{}

func (stubService) Submit(context.Context, []ticket.RawTicket) (*triage.SubmitResult, error) {
	return &triage.SubmitResult{Decisions: []ticket.FinalDecision{}, Rejected: []ticket.Rejection{}}, nil
}

func (stubService) Get(context.Context, string) (*triage.Result, bool, error) {
	return nil, false, nil
}

func (stubService) List(context.Context) ([]*triage.Result, error) {
	return nil, nil
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAPIHandler_Routes(t *testing.T) {
	t.Parallel()

	h := newAPIHandler(apiDeps{
		logger:   log.Nop(),
		svc:      stubService{},
		apiToken: "s3cret",
		healthy:  okHandler,
		ready:    okHandler,
	})

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"healthy without token", http.MethodGet, healthyPath, "", http.StatusOK},
		{"ready without token", http.MethodGet, readyPath, "", http.StatusOK},
		{"api without token", http.MethodGet, "/api/v1/decisions", "", http.StatusUnauthorized},
		{"api wrong token", http.MethodGet, "/api/v1/decisions", "nope", http.StatusUnauthorized},
		{"api with token", http.MethodGet, "/api/v1/decisions", "s3cret", http.StatusOK},
		{"missing decision", http.MethodGet, "/api/v1/decisions/TKT-404", "s3cret", http.StatusNotFound},
		{"unknown route", http.MethodGet, "/nope", "s3cret", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestParseConfig_Version(t *testing.T) {
	t.Parallel()

	c, err := parseConfig(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-V"}, io.Discard)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if !c.showVersion {
		t.Error("showVersion = false, want true")
	}
}

func TestParseConfig_InvalidMode(t *testing.T) {
	t.Parallel()

	c, err := parseConfig(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-mode", "bogus"}, io.Discard)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	err = c.validate()
	if err == nil || !strings.Contains(err.Error(), "invalid MODE") {
		t.Errorf("validate() = %v, want invalid MODE error", err)
	}
}

func TestParseConfig_UnknownFlag(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := parseConfig(fs, []string{"-no-such-flag"}, io.Discard); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestStopList_RunsNewestFirstOnce(t *testing.T) {
	t.Parallel()

	var order []string
	record := func(name string, err error) func(context.Context) error {
		return func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Errorf("%s: context has no deadline", name)
			}
			order = append(order, name)
			return err
		}
	}

	var s stopList
	s.add("otel", record("otel", nil))
	s.add("skipped", nil)
	s.add("ops", record("ops", errors.New("already closed")))
	s.add("api", record("api", nil))

	s.run(log.Nop(), time.Second)
	s.run(log.Nop(), time.Second)

	want := []string{"api", "ops", "otel"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
}
