package privilege

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"
)

func TestIsRoot(t *testing.T) {
	expected := os.Geteuid() == 0
	if result := IsRoot(); result != expected {
		t.Errorf("IsRoot() = %v, expected %v (euid=%d)", result, expected, os.Geteuid())
	}
}

func TestIsRunningUnderSudo(t *testing.T) {
	tests := []struct {
		name     string
		sudoUser string
		wantSudo bool
	}{
		{name: "not running under sudo", sudoUser: "", wantSudo: false},
		{name: "running under sudo", sudoUser: "operator", wantSudo: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SUDO_USER", tt.sudoUser)

			if got := IsRunningUnderSudo(); got != tt.wantSudo {
				t.Errorf("IsRunningUnderSudo() = %v, want %v", got, tt.wantSudo)
			}
		})
	}
}

func TestDetectOriginalUser(t *testing.T) {
	current, err := user.Current()
	if err != nil {
		t.Skipf("cannot resolve current user: %v", err)
	}

	tests := []struct {
		name     string
		sudoUser string
		sudoUID  string
		sudoGID  string
		wantErr  bool
		wantUID  int
	}{
		{
			name:     "not running under sudo",
			sudoUser: "",
			wantUID:  os.Getuid(),
		},
		{
			name:     "valid sudo environment",
			sudoUser: current.Username,
			sudoUID:  "1000",
			sudoGID:  "1000",
			wantUID:  1000,
		},
		{
			name:     "sudo user without UID",
			sudoUser: current.Username,
			sudoGID:  "1000",
			wantErr:  true,
		},
		{
			name:     "invalid GID format",
			sudoUser: current.Username,
			sudoUID:  "1000",
			sudoGID:  "invalid",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SUDO_USER", tt.sudoUser)
			t.Setenv("SUDO_UID", tt.sudoUID)
			t.Setenv("SUDO_GID", tt.sudoGID)

			userCtx, err := DetectOriginalUser()
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectOriginalUser() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if userCtx.UID != tt.wantUID {
				t.Errorf("UID = %d, want %d", userCtx.UID, tt.wantUID)
			}
			if userCtx.HomeDir == "" {
				t.Error("DetectOriginalUser() returned empty home directory")
			}
		})
	}
}

func TestHomeDir(t *testing.T) {
	t.Setenv("SUDO_USER", "")

	home, err := HomeDir()
	if err != nil {
		t.Fatalf("HomeDir() error = %v", err)
	}
	if home == "" {
		t.Error("HomeDir() returned empty path")
	}
}

func TestCurrent(t *testing.T) {
	t.Setenv("SUDO_USER", "")

	st := Current()
	if st.Sudo {
		t.Error("Current().Sudo = true without SUDO_USER")
	}
	if st.Root != IsRoot() {
		t.Errorf("Current().Root = %v, want %v", st.Root, IsRoot())
	}
}

func TestFixFileOwnership(t *testing.T) {
	if IsRoot() {
		t.Skip("ownership changes are only a no-op for unprivileged users")
	}

	tmpFile := filepath.Join(t.TempDir(), "session.csv")
	if err := os.WriteFile(tmpFile, []byte("timestamp\n"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if err := FixFileOwnership(tmpFile); err != nil {
		t.Errorf("FixFileOwnership() error = %v, want nil when not root", err)
	}
}
