package observability

import (
	"testing"

	"github.com/fairyhunter13/autobank-supervisor/internal/config"
)

func TestSetupLogger_DevAndProd(t *testing.T) {
	lg := SetupLogger(config.Config{AppEnv: "dev", LogLevel: "debug"})
	if lg == nil {
		t.Fatalf("nil logger")
	}
	lg2 := SetupLogger(config.Config{AppEnv: "prod", LogLevel: "info"})
	if lg2 == nil {
		t.Fatalf("nil logger prod")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]bool{"debug": true, "warn": true, "error": true, "": true, "bogus": true}
	for level := range cases {
		lg := SetupLogger(config.Config{LogLevel: level})
		if lg == nil {
			t.Fatalf("nil logger for level %q", level)
		}
	}
}
