// Package privilege detects elevated execution and keeps files written by a
// root-owned recording readable by the operator who invoked sudo.
package privilege

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// UserContext represents the identity of the original user when running under
// privilege escalation.
type UserContext struct {
	Username string
	UID      int
	GID      int
	HomeDir  string
}

// Status summarises how the current process was launched.
type Status struct {
	Root         bool
	Sudo         bool
	OriginalUser string
}

// Current reports the privilege status of this process.
func Current() Status {
	st := Status{Root: IsRoot(), Sudo: IsRunningUnderSudo()}
	if u, err := DetectOriginalUser(); err == nil {
		st.OriginalUser = u.Username
	}
	return st
}

// DetectOriginalUser extracts user identity, accounting for sudo execution.
// Under sudo the SUDO_USER/SUDO_UID/SUDO_GID variables describe the operator;
// otherwise the current user is returned.
func DetectOriginalUser() (*UserContext, error) {
	sudoUser := os.Getenv("SUDO_USER")
	if sudoUser == "" {
		return currentUser()
	}

	uidStr := os.Getenv("SUDO_UID")
	gidStr := os.Getenv("SUDO_GID")
	if uidStr == "" || gidStr == "" {
		return nil, fmt.Errorf("SUDO_USER set but SUDO_UID or SUDO_GID missing")
	}

	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SUDO_UID: %w", err)
	}

	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SUDO_GID: %w", err)
	}

	u, err := user.Lookup(sudoUser)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup user %s: %w", sudoUser, err)
	}

	return &UserContext{
		Username: sudoUser,
		UID:      uid,
		GID:      gid,
		HomeDir:  u.HomeDir,
	}, nil
}

func currentUser() (*UserContext, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	return &UserContext{
		Username: u.Username,
		UID:      os.Getuid(),
		GID:      os.Getgid(),
		HomeDir:  u.HomeDir,
	}, nil
}

// HomeDir returns the operator's home directory, which under sudo is the
// invoking user's home rather than root's.
func HomeDir() (string, error) {
	u, err := DetectOriginalUser()
	if err == nil && u.HomeDir != "" {
		return u.HomeDir, nil
	}
	return os.UserHomeDir()
}

// IsRoot checks if the current process is running with root privileges (euid
// == 0). powermetrics refuses to run otherwise.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// IsRunningUnderSudo checks if the process is running under sudo by checking
// for the SUDO_USER environment variable.
func IsRunningUnderSudo() bool {
	return os.Getenv("SUDO_USER") != ""
}

// FixFileOwnership changes the ownership of a file to the original user when
// running under sudo. If not running as root, this is a no-op.
func FixFileOwnership(path string) error {
	if !IsRoot() {
		return nil
	}

	userCtx, err := DetectOriginalUser()
	if err != nil {
		return fmt.Errorf("failed to detect original user: %w", err)
	}

	if err := os.Chown(path, userCtx.UID, userCtx.GID); err != nil {
		return fmt.Errorf("failed to chown %s to %d:%d: %w", path, userCtx.UID, userCtx.GID, err)
	}

	return nil
}
