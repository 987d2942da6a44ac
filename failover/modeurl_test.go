package failover

import "testing"

func TestTextModeURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "replace mode and strip bypass",
			in:   "/app?mode=immersive&disablePerformanceFailover=1&x=1",
			want: "/app?mode=text&x=1",
		},
		{
			name: "bare path",
			in:   "/app",
			want: "/app?mode=text",
		},
		{
			name: "preserve unrelated params and order",
			in:   "/p?b=2&a=1",
			want: "/p?b=2&a=1&mode=text",
		},
		{
			name: "preserve percent encoding byte for byte",
			in:   "/p?q=%D0%A1&mode=immersive",
			want: "/p?q=%D0%A1&mode=text",
		},
		{
			name: "preserve fragment",
			in:   "/app?mode=immersive#section-2",
			want: "/app?mode=text#section-2",
		},
		{
			name: "collapse duplicate mode params",
			in:   "/app?mode=immersive&mode=immersive&y=2",
			want: "/app?mode=text&y=2",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := TextModeURL(tc.in); got != tc.want {
				t.Fatalf("TextModeURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestImmersiveURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "sets override and bypass",
			in:   "/app",
			want: "/app?mode=immersive&disablePerformanceFailover=1",
		},
		{
			name: "replaces text override in place",
			in:   "/app?mode=text&y=2#top",
			want: "/app?mode=immersive&y=2&disablePerformanceFailover=1#top",
		},
		{
			name: "keeps unrelated params",
			in:   "/app?x=1",
			want: "/app?x=1&mode=immersive&disablePerformanceFailover=1",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := ImmersiveURL(tc.in); got != tc.want {
				t.Fatalf("ImmersiveURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseModeParams(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		in         string
		wantMode   string
		wantBypass bool
	}{
		{"empty", "", "", false},
		{"immersive with bypass", "mode=immersive&disablePerformanceFailover=1", "immersive", true},
		{"leading question mark", "?mode=text", "text", false},
		{"unknown mode ignored", "mode=vr", "", false},
		{"bypass true literal", "disablePerformanceFailover=true", "", true},
		{"bypass zero ignored", "disablePerformanceFailover=0", "", false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			mode, bypass := ParseModeParams(tc.in)
			if mode != tc.wantMode || bypass != tc.wantBypass {
				t.Fatalf("ParseModeParams(%q) = (%q, %v), want (%q, %v)",
					tc.in, mode, bypass, tc.wantMode, tc.wantBypass)
			}
		})
	}
}
