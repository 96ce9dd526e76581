package permission

import "testing"

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{InputMonitoring, "input monitoring"},
		{ScreenCapture, "screen recording"},
		{Microphone, "microphone"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestErrorMentionsKind(t *testing.T) {
	err := &Error{Kind: ScreenCapture}
	if err.Error() != "screen recording permission denied" {
		t.Errorf("unexpected error text: %q", err.Error())
	}
}

func TestRemediationNamesAPane(t *testing.T) {
	for _, k := range []Kind{InputMonitoring, ScreenCapture, Microphone} {
		if remediation(k) == "" {
			t.Errorf("empty remediation for %s", k)
		}
	}
}
