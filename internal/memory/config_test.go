package memory

import (
	"runtime/debug"
	"testing"
)

func restoreLimit(t *testing.T) {
	t.Helper()
	old := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(old) })
}

func TestConfigureFromEnvNoVariables(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "")
	t.Setenv("MEMORY_RATIO", "")

	result := ConfigureFromEnv()

	if result.Configured {
		t.Error("Expected Configured to be false when no env vars set")
	}
	if result.Source != sourceNone {
		t.Errorf("Source = %q, want %q", result.Source, sourceNone)
	}
	if result.GoMemLimit != 0 || result.ContainerLimit != 0 {
		t.Errorf("limits = %d/%d, want 0/0", result.GoMemLimit, result.ContainerLimit)
	}
}

func TestConfigureFromEnvMemoryLimit(t *testing.T) {
	restoreLimit(t)
	t.Setenv("GOMEMLIMIT", "")

	const gib = int64(1 << 30)

	tests := []struct {
		name      string
		ratio     string
		wantRatio float64
	}{
		{"default ratio", "", DefaultMemoryRatio},
		{"custom ratio", "0.25", 0.25},
		{"ratio above one", "1.5", DefaultMemoryRatio},
		{"ratio zero", "0", DefaultMemoryRatio},
		{"ratio not a number", "half", DefaultMemoryRatio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MEMORY_LIMIT", "1073741824")
			t.Setenv("MEMORY_RATIO", tt.ratio)

			result := ConfigureFromEnv()

			if !result.Configured {
				t.Fatal("Expected Configured to be true")
			}
			if result.Source != sourceMemoryLimit {
				t.Errorf("Source = %q, want %q", result.Source, sourceMemoryLimit)
			}
			if result.ContainerLimit != gib {
				t.Errorf("ContainerLimit = %d, want %d", result.ContainerLimit, gib)
			}
			if result.Ratio != tt.wantRatio {
				t.Errorf("Ratio = %v, want %v", result.Ratio, tt.wantRatio)
			}
			want := int64(float64(gib) * tt.wantRatio)
			if result.GoMemLimit != want {
				t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, want)
			}
			if got := debug.SetMemoryLimit(-1); got != want {
				t.Errorf("runtime limit = %d, want %d", got, want)
			}
		})
	}
}

func TestConfigureFromEnvInvalidLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")

	for _, value := range []string{"lots", "-5", "0"} {
		t.Setenv("MEMORY_LIMIT", value)
		result := ConfigureFromEnv()
		if result.Configured {
			t.Errorf("MEMORY_LIMIT=%q: Configured = true, want false", value)
		}
		if result.Source != sourceNone {
			t.Errorf("MEMORY_LIMIT=%q: Source = %q, want %q", value, result.Source, sourceNone)
		}
	}
}

func TestConfigureFromEnvGOMEMLIMITWins(t *testing.T) {
	restoreLimit(t)
	t.Setenv("GOMEMLIMIT", "500MiB")
	t.Setenv("MEMORY_LIMIT", "1073741824")

	// GOMEMLIMIT is only read at process start, so simulate its effect.
	debug.SetMemoryLimit(500 << 20)

	result := ConfigureFromEnv()

	if result.Source != sourceGOMEMLIMIT {
		t.Errorf("Source = %q, want %q", result.Source, sourceGOMEMLIMIT)
	}
	if result.GoMemLimit != 500<<20 {
		t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, int64(500<<20))
	}
	if result.ContainerLimit != 0 {
		t.Errorf("ContainerLimit = %d, want 0 when GOMEMLIMIT is set", result.ContainerLimit)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 30, "1.0 GiB"},
		{3 * (1 << 29), "1.5 GiB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
