//go:build windows

// pkg/config/policy_windows.go - machine-wide policy overrides from the registry.

package config

import (
	"fmt"
	"log"
	"strconv"

	"golang.org/x/sys/windows/registry"
)

// loadPolicyOverrides applies values an administrator placed under
// HKLM\SOFTWARE\AviUtl2Catalog\Config. A missing key is not an error.
func loadPolicyOverrides(config *Configuration) error {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, PolicyRegistryPath, registry.READ)
	if err == registry.ErrNotExist {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open policy registry key %s: %v", PolicyRegistryPath, err)
	}
	defer key.Close()

	loadStringFromRegistry(key, "AviUtl2Root", &config.AviUtl2Root)
	loadStringFromRegistry(key, "TelemetryEndpoint", &config.TelemetryEndpoint)
	loadStringFromRegistry(key, "LogLevel", &config.LogLevel)
	loadBoolFromRegistry(key, "PortableMode", &config.PortableMode)
	loadBoolFromRegistry(key, "TelemetryOptOut", &config.TelemetryOptOut)
	return nil
}

// loadStringFromRegistry loads a string value from registry if it exists.
func loadStringFromRegistry(key registry.Key, valueName string, target *string) {
	if val, _, err := key.GetStringValue(valueName); err == nil && val != "" {
		*target = val
		log.Printf("Policy: Loaded %s = %s", valueName, val)
	}
}

// loadBoolFromRegistry loads a boolean value from registry if it exists.
// Accepts "true"/"false", "1"/"0" and DWORD 1/0.
func loadBoolFromRegistry(key registry.Key, valueName string, target *bool) {
	if val, _, err := key.GetStringValue(valueName); err == nil {
		if parsed, parseErr := strconv.ParseBool(val); parseErr == nil {
			*target = parsed
			return
		}
	}
	if val, _, err := key.GetIntegerValue(valueName); err == nil {
		*target = val != 0
	}
}
