package config

import (
	"fmt"
	"os"
	"regexp"
)

// validIPPattern mirrors the original server's startup IP validation regex.
var validIPPattern = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])\.){3}(?:25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])\b`)

// IsValidIP reports whether ip matches a dotted-quad IPv4 address.
func IsValidIP(ip string) bool {
	return validIPPattern.MatchString(ip)
}

// CheckIP returns an error describing why ip is invalid, or nil.
func CheckIP(ip string) error {
	if ip == "" {
		return nil
	}
	if !IsValidIP(ip) {
		return fmt.Errorf("invalid IP address: [%s] - regex mismatch", ip)
	}
	return nil
}

// CheckFactotumBin verifies the configured runner binary exists on disk
// before the server starts accepting jobs.
func CheckFactotumBin(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("invalid path for factotum binary at: '%s'", path)
	}
	return nil
}

// Validate runs every startup precondition check against cfg.
func (c *Config) Validate() error {
	if err := CheckFactotumBin(c.FactotumBin); err != nil {
		return err
	}
	if err := CheckIP(c.IP); err != nil {
		return err
	}
	if err := CheckIP(c.ConsulIP); err != nil {
		return err
	}
	return nil
}
