package telemetry

import (
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSamplerFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rate float64
		want string
	}{
		{name: "zero never samples", rate: 0, want: sdktrace.NeverSample().Description()},
		{name: "negative never samples", rate: -0.5, want: sdktrace.NeverSample().Description()},
		{name: "one always samples", rate: 1.0, want: sdktrace.AlwaysSample().Description()},
		{name: "above one always samples", rate: 2.5, want: sdktrace.AlwaysSample().Description()},
		{
			name: "fraction is parent-based ratio",
			rate: 0.25,
			want: sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := samplerFor(tt.rate).Description(); got != tt.want {
				t.Errorf("samplerFor(%v) = %q, want %q", tt.rate, got, tt.want)
			}
		})
	}
}
