package config

import "testing"

func TestDefaults(t *testing.T) {
	t.Run("server defaults validate", func(t *testing.T) {
		if err := DefaultServer().Validate(); err != nil {
			t.Fatalf("default server config invalid: %v", err)
		}
	})

	t.Run("client defaults validate", func(t *testing.T) {
		if err := DefaultClient().Validate(); err != nil {
			t.Fatalf("default client config invalid: %v", err)
		}
	})

	t.Run("world dimensions flow into the simulation bounds", func(t *testing.T) {
		cfg := DefaultServer()
		cfg.WorldWidth = 1024
		cfg.WorldHeight = 768
		w := cfg.World()
		if w.Width != 1024 || w.Height != 768 {
			t.Fatalf("unexpected world: %+v", w)
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("unknown transport is rejected", func(t *testing.T) {
		cfg := DefaultServer()
		cfg.Transport = "pigeon"
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected error for unknown transport")
		}
	})

	t.Run("out of range port is rejected", func(t *testing.T) {
		cfg := DefaultClient()
		cfg.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected error for port 70000")
		}
	})

	t.Run("memory transport ignores the port", func(t *testing.T) {
		cfg := DefaultClient()
		cfg.Transport = TransportMemory
		cfg.Port = 0
		if err := cfg.Validate(); err != nil {
			t.Fatalf("memory transport should not need a port: %v", err)
		}
	})

	t.Run("tiny world is rejected", func(t *testing.T) {
		cfg := DefaultServer()
		cfg.WorldWidth = 10
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected error for a world too small for an entity")
		}
	})

	t.Run("empty client host is rejected", func(t *testing.T) {
		cfg := DefaultClient()
		cfg.Host = "  "
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected error for blank host")
		}
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("EMBERFALL_PORT", "9999")
		t.Setenv("EMBERFALL_TRANSPORT", "ws")
		t.Setenv("EMBERFALL_DEBUG", "true")

		cfg := DefaultServer()
		cfg.ApplyEnv()
		if cfg.Port != 9999 || cfg.Transport != TransportWS || !cfg.Debug {
			t.Fatalf("env not applied: %+v", cfg)
		}
	})

	t.Run("invalid numeric values are ignored", func(t *testing.T) {
		t.Setenv("EMBERFALL_PORT", "not-a-port")

		cfg := DefaultServer()
		cfg.ApplyEnv()
		if cfg.Port != DefaultServer().Port {
			t.Fatalf("invalid env value applied: %d", cfg.Port)
		}
	})

	t.Run("unset variables change nothing", func(t *testing.T) {
		for _, key := range []string{"EMBERFALL_HOST", "EMBERFALL_PORT", "EMBERFALL_TRANSPORT", "EMBERFALL_LOG", "EMBERFALL_DEBUG"} {
			t.Setenv(key, "")
		}
		cfg := DefaultClient()
		before := cfg
		cfg.ApplyEnv()
		if cfg != before {
			t.Fatalf("ApplyEnv mutated config without env: %+v", cfg)
		}
	})
}
