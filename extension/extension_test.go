package extension

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/tally/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{BasePath: "/billing"})
	if cfg.BasePath != "/billing" {
		t.Errorf("BasePath = %q, want /billing", cfg.BasePath)
	}
	if cfg.PluginTimeout != 5*time.Second {
		t.Errorf("PluginTimeout = %v, want 5s", cfg.PluginTimeout)
	}
	if cfg.StoreDriver != DriverMemory {
		t.Errorf("StoreDriver = %q, want memory", cfg.StoreDriver)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yamlCfg := Config{BasePath: "/from-yaml", PluginTimeout: time.Second}
	prog := Config{BasePath: "/from-code", DisableMigrate: true, StoreDriver: DriverSQLite}

	cfg := mergeConfigurations(yamlCfg, prog)
	if cfg.BasePath != "/from-yaml" {
		t.Errorf("BasePath = %q, want yaml value", cfg.BasePath)
	}
	if !cfg.DisableMigrate {
		t.Error("DisableMigrate should carry over from code")
	}
	if cfg.StoreDriver != DriverSQLite {
		t.Errorf("StoreDriver = %q, want sqlite", cfg.StoreDriver)
	}
	if cfg.PluginTimeout != time.Second {
		t.Errorf("PluginTimeout = %v, want 1s", cfg.PluginTimeout)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want default", cfg.RequestTimeout)
	}
}

func TestBuildStore(t *testing.T) {
	tests := []struct {
		driver  string
		wantErr string
	}{
		{"", ""},
		{DriverMemory, ""},
		{DriverPostgres, "needs a grove.DB"},
		{DriverMongo, "needs a grove.DB"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			s, err := buildStore(tt.driver, nil)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("buildStore: %v", err)
				}
				if _, ok := s.(*memory.Store); !ok {
					t.Errorf("store = %T, want *memory.Store", s)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestHandlerMountsUnderBasePath(t *testing.T) {
	e := New(WithStore(memory.New()))
	e.config = mergeWithDefaults(e.config)
	if err := e.init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := e.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = e.engine.Stop() })

	srv := httptest.NewServer(e.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/tally/invoices/count")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	e.config.DisableRoutes = true
	if e.Handler() != nil {
		t.Error("Handler should be nil when routes are disabled")
	}
}
