//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework Cocoa
#import <Cocoa/Cocoa.h>

int checkAccessibilityPermission() {
    NSDictionary *options = @{(__bridge id)kAXTrustedCheckOptionPrompt: @YES};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CheckAccessibility checks if the app has accessibility permissions (needed for hotkeys)
func CheckAccessibility() (bool, error) {
	status := int(C.checkAccessibilityPermission())
	return status == 1, nil
}

// CheckCapture reports whether a BPF device can be opened for packet capture.
func CheckCapture() (bool, error) {
	devices, err := filepath.Glob("/dev/bpf*")
	if err != nil {
		return false, err
	}
	if len(devices) == 0 {
		return false, fmt.Errorf("no BPF devices found")
	}
	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDWR, 0)
		if err == nil {
			f.Close()
			return true, nil
		}
		if errors.Is(err, os.ErrPermission) {
			return false, nil
		}
		// busy devices are skipped
	}
	return false, nil
}

// EnsurePermissions checks and requests all required permissions
func EnsurePermissions() error {
	// Check accessibility
	axGranted, _ := CheckAccessibility()
	if !axGranted {
		fmt.Println("⚠️  Accessibility permission required for hotkeys")
		fmt.Println("   Go to: System Settings → Privacy & Security → Accessibility")
		return fmt.Errorf("accessibility permission not granted")
	}

	// Check packet capture
	capture, err := CheckCapture()
	if err != nil {
		return fmt.Errorf("failed to check capture access: %w", err)
	}
	if !capture {
		fmt.Println("⚠️  Packet capture needs read access to /dev/bpf*")
		fmt.Println("   Install the ChmodBPF helper or run with sudo")
		return fmt.Errorf("capture permission not granted")
	}

	return nil
}
