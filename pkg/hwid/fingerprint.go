// Package hwid derives the hardware id the agent presents when validating a
// license. The id is stable across restarts and reveals nothing about the
// machine beyond equality.
package hwid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// DefaultMachineIDPaths are tried in order on Linux.
var DefaultMachineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// ErrNoMachineID is returned when no machine identity source answered.
var ErrNoMachineID = errors.New("no machine identity available")

// Collector gathers the inputs of the fingerprint. The zero value reads the
// platform sources.
type Collector struct {
	MachineIDPaths []string
	Hostname       func() (string, error)
	// platformID overrides the non-Linux lookup in tests.
	platformID func() string
}

// Fingerprint returns a hex SHA-256 over the machine id and hostname.
func (c Collector) Fingerprint() (string, error) {
	id := c.machineID()
	if id == "" {
		return "", ErrNoMachineID
	}
	hostnameFn := c.Hostname
	if hostnameFn == nil {
		hostnameFn = os.Hostname
	}
	hostname, _ := hostnameFn()

	sum := sha256.Sum256([]byte(id + "\n" + strings.ToLower(strings.TrimSpace(hostname))))
	return hex.EncodeToString(sum[:]), nil
}

func (c Collector) machineID() string {
	paths := c.MachineIDPaths
	if paths == nil && runtime.GOOS == "linux" {
		paths = DefaultMachineIDPaths
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	if c.platformID != nil {
		return c.platformID()
	}
	return platformMachineID()
}

func platformMachineID() string {
	switch runtime.GOOS {
	case "darwin":
		out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
		if err != nil {
			return ""
		}
		return valueAfter(string(out), `"IOPlatformUUID" = "`, `"`)
	case "windows":
		out, err := exec.Command("reg", "query", `HKLM\SOFTWARE\Microsoft\Cryptography`, "/v", "MachineGuid").Output()
		if err != nil {
			return ""
		}
		fields := strings.Fields(valueAfter(string(out), "MachineGuid", "\n"))
		if len(fields) == 0 {
			return ""
		}
		return fields[len(fields)-1]
	default:
		return ""
	}
}

func valueAfter(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	rest := s[i+len(start):]
	if j := strings.Index(rest, end); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}
