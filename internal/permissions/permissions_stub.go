//go:build !darwin

package permissions

// EnsurePermissions is a no-op on non-macOS platforms. Missing capture
// rights surface when the watchdog is armed.
func EnsurePermissions() error {
	return nil
}
