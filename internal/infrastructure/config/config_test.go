package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
homeassistant:
  url: "http://ha.local:8123"
  token: "ha-token"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  port: 8099
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
entries:
  - name: "Living room scenes"
    entities:
      - select.tv_mode
      - input_select.lamp_mode
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HomeAssistant.Token != "ha-token" {
		t.Errorf("HomeAssistant.Token = %q, want %q", cfg.HomeAssistant.Token, "ha-token")
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
	if cfg.MQTT.DiscoveryPrefix != "homeassistant" {
		t.Errorf("MQTT.DiscoveryPrefix = %q, want default %q", cfg.MQTT.DiscoveryPrefix, "homeassistant")
	}
	if len(cfg.Entries) != 1 || len(cfg.Entries[0].Entities) != 2 {
		t.Fatalf("Entries = %+v, want one entry with two entities", cfg.Entries)
	}
	if got := cfg.GetResetDelay(); got != 250*time.Millisecond {
		t.Errorf("GetResetDelay() = %v, want 250ms", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
homeassistant:
  url: "http://ha.local:8123"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	t.Setenv("SYNCEDSELECT_HA_TOKEN", "")

	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for missing token, got nil")
	}
	if !strings.Contains(err.Error(), "homeassistant.token") {
		t.Errorf("error = %v, want mention of homeassistant.token", err)
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.HomeAssistant.Token = "token"
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: false},
		{name: "missing HA url", mutate: func(c *Config) { c.HomeAssistant.URL = "" }, wantErr: true},
		{name: "unsupported HA scheme", mutate: func(c *Config) { c.HomeAssistant.URL = "ftp://ha" }, wantErr: true},
		{name: "missing HA token", mutate: func(c *Config) { c.HomeAssistant.Token = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "missing discovery prefix", mutate: func(c *Config) { c.MQTT.DiscoveryPrefix = "" }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: true},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
		{name: "zero reset delay", mutate: func(c *Config) { c.Select.ResetDelayMS = 0 }, wantErr: true},
		{
			name:    "seed entry without name",
			mutate:  func(c *Config) { c.Entries = []EntryConfig{{Entities: []string{"select.a"}}} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_HomeAssistantWebSocketURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "http://ha.local:8123", want: "ws://ha.local:8123/api/websocket"},
		{in: "https://ha.example.com/", want: "wss://ha.example.com/api/websocket"},
		{in: "ws://10.0.0.2:8123/api/websocket", want: "ws://10.0.0.2:8123/api/websocket"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg := &Config{HomeAssistant: HomeAssistantConfig{URL: tt.in}}
			got, err := cfg.HomeAssistantWebSocketURL()
			if err != nil {
				t.Fatalf("HomeAssistantWebSocketURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HomeAssistantWebSocketURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
		Select:        SelectConfig{DispatchTimeout: 7},
		HomeAssistant: HomeAssistantConfig{CallTimeout: 3},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetDispatchTimeout().Seconds(); got != 7 {
		t.Errorf("GetDispatchTimeout() = %v, want 7", got)
	}
	if got := cfg.GetCallTimeout().Seconds(); got != 3 {
		t.Errorf("GetCallTimeout() = %v, want 3", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SYNCEDSELECT_HA_URL", "https://ha.example.com")
	t.Setenv("SYNCEDSELECT_HA_TOKEN", "ha-secret")
	t.Setenv("SYNCEDSELECT_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SYNCEDSELECT_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SYNCEDSELECT_MQTT_PORT", "8883")
	t.Setenv("SYNCEDSELECT_MQTT_USERNAME", "testuser")
	t.Setenv("SYNCEDSELECT_MQTT_PASSWORD", "testpass")
	t.Setenv("SYNCEDSELECT_API_HOST", "192.168.1.1")
	t.Setenv("SYNCEDSELECT_INFLUXDB_TOKEN", "influx-token")
	t.Setenv("SYNCEDSELECT_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	checks := map[string][2]string{
		"HomeAssistant.URL":   {cfg.HomeAssistant.URL, "https://ha.example.com"},
		"HomeAssistant.Token": {cfg.HomeAssistant.Token, "ha-secret"},
		"Database.Path":       {cfg.Database.Path, "/custom/path.db"},
		"MQTT.Broker.Host":    {cfg.MQTT.Broker.Host, "mqtt.example.com"},
		"MQTT.Auth.Username":  {cfg.MQTT.Auth.Username, "testuser"},
		"MQTT.Auth.Password":  {cfg.MQTT.Auth.Password, "testpass"},
		"API.Host":            {cfg.API.Host, "192.168.1.1"},
		"InfluxDB.Token":      {cfg.InfluxDB.Token, "influx-token"},
		"Security.JWT.Secret": {cfg.Security.JWT.Secret, "jwt-secret"},
	}
	for field, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", field, c[0], c[1])
		}
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Select.ResetDelayMS != 250 {
		t.Errorf("defaultConfig Select.ResetDelayMS = %d, want 250", cfg.Select.ResetDelayMS)
	}
	if cfg.MQTT.TopicPrefix != "syncedselect" {
		t.Errorf("defaultConfig MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "syncedselect")
	}
}
