package main

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/carematch/carematch/internal/config"
)

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		cfg := &config.Config{Env: "production", LogLevel: tt.level}
		if got := newLogger(cfg).GetLevel(); got != tt.want {
			t.Errorf("newLogger(%q) level = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestSlotsCmd_RequiresProviderID(t *testing.T) {
	cmd := slotsCmd()
	cmd.SetArgs([]string{})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without provider id")
	}
}

func TestSlotsCmd_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad id", []string{"not-a-uuid"}},
		{"bad zone", []string{"6f1c5a9e-3f55-4b8e-9d1a-0c8e1b3f2a11", "--tz", "Mars/Olympus"}},
		{"bad start", []string{"6f1c5a9e-3f55-4b8e-9d1a-0c8e1b3f2a11", "--start", "03/04/2026"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := slotsCmd()
			cmd.SetArgs(tt.args)
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true
			if err := cmd.Execute(); err == nil {
				t.Errorf("expected error for %v", tt.args)
			}
		})
	}
}

func TestMigrateCmd_Subcommands(t *testing.T) {
	cmd := migrateCmd()
	want := map[string]bool{"up": false, "down": false, "status": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("migrate is missing subcommand %q", name)
		}
	}
}
