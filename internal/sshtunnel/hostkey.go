package sshtunnel

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // required by the OpenSSH hashed-hostname format
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// hostEntry is one (matcher, key-type, key) line parsed from a known_hosts
// file. Matchers are additive: duplicates for one (hostname, key-type) are
// permitted and any match succeeds.
type hostEntry struct {
	Matcher string
	KeyType string
	KeyB64  string
}

// VerifyResult is the outcome of a single host-key verification.
type VerifyResult struct {
	Verified bool
	Reason   string
}

// HostKeyVerifier parses a known_hosts file eagerly at construction and
// verifies presented host keys against it, optionally trusting and
// persisting unknown hosts on first use.
type HostKeyVerifier struct {
	mu      sync.Mutex
	path    string
	tofu    bool
	entries []hostEntry
}

// NewHostKeyVerifier loads path (if it exists; a missing file is treated
// as empty) and returns a verifier. tofu controls whether an unknown host
// is trusted and appended on first use.
func NewHostKeyVerifier(path string, tofu bool) (*HostKeyVerifier, error) {
	v := &HostKeyVerifier{path: path, tofu: tofu}
	if err := v.load(); err != nil {
		return nil, fmt.Errorf("load known_hosts %q: %w", path, err)
	}
	return v, nil
}

func (v *HostKeyVerifier) load() error {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "@") {
			slog.Warn("skipping marked known_hosts entry", "line", line)
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		keyType, keyB64 := fields[1], fields[2]
		for _, m := range strings.Split(fields[0], ",") {
			v.entries = append(v.entries, hostEntry{
				Matcher: normalizeMatcher(m),
				KeyType: keyType,
				KeyB64:  keyB64,
			})
		}
	}
	return nil
}

// normalizeMatcher collapses the default-port bracketed form [h]:22 into
// plain h; other bracketed and hashed matchers are kept verbatim.
func normalizeMatcher(m string) string {
	if strings.HasPrefix(m, "[") {
		if idx := strings.Index(m, "]:"); idx >= 0 {
			host, port := m[1:idx], m[idx+2:]
			if port == "22" {
				return host
			}
		}
	}
	return m
}

func probesFor(host string, port int) []string {
	if port == 22 {
		return []string{host}
	}
	return []string{fmt.Sprintf("[%s]:%d", host, port), host}
}

func hostLabel(host string, port int) string {
	if port == 22 {
		return host
	}
	return fmt.Sprintf("[%s]:%d", host, port)
}

func matchesProbe(matcher, probe string) bool {
	if strings.HasPrefix(matcher, "|1|") {
		parts := strings.SplitN(matcher, "|", 4)
		if len(parts) != 4 {
			return false
		}
		return hashedMatch(parts[2], parts[3], probe)
	}
	return matcher == probe
}

func hashedMatch(saltB64, hashB64, host string) bool {
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, salt)
	mac.Write([]byte(host))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)) == hashB64
}

// Verify checks a presented host key against the loaded known_hosts
// entries. Mismatch always overrides trust-on-first-use: once any entry
// matches the host but none matches the presented key, the result is a
// mismatch regardless of the tofu setting.
func (v *HostKeyVerifier) Verify(host string, port int, keyType string, keyBytes []byte) VerifyResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	keyB64 := base64.StdEncoding.EncodeToString(keyBytes)
	probes := probesFor(host, port)

	matchedHost := false
	for _, e := range v.entries {
		for _, probe := range probes {
			if !matchesProbe(e.Matcher, probe) {
				continue
			}
			matchedHost = true
			if e.KeyType == keyType && e.KeyB64 == keyB64 {
				return VerifyResult{Verified: true}
			}
		}
	}

	if matchedHost {
		return VerifyResult{Verified: false, Reason: fmt.Sprintf(
			"HOST KEY MISMATCH for %s: presented %s key does not match any known_hosts entry", host, keyType)}
	}

	if !v.tofu {
		return VerifyResult{Verified: false, Reason: fmt.Sprintf(
			"UNKNOWN HOST %s: no known_hosts entry and trust-on-first-use is disabled", host)}
	}

	line := fmt.Sprintf("%s %s %s\n", hostLabel(host, port), keyType, keyB64)
	if err := v.appendLine(line); err != nil {
		return VerifyResult{Verified: false, Reason: fmt.Sprintf(
			"FAILED TO SAVE host key for %s: %v", host, err)}
	}
	v.entries = append(v.entries, hostEntry{Matcher: hostLabel(host, port), KeyType: keyType, KeyB64: keyB64})
	return VerifyResult{Verified: true}
}

func (v *HostKeyVerifier) appendLine(line string) error {
	f, err := os.OpenFile(v.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}

// Callback adapts Verify into an ssh.HostKeyCallback bound to the target
// host and port dialed by the tunnel client.
func (v *HostKeyVerifier) Callback(targetHost string, targetPort int) ssh.HostKeyCallback {
	return func(_ string, _ net.Addr, key ssh.PublicKey) error {
		res := v.Verify(targetHost, targetPort, key.Type(), key.Marshal())
		if !res.Verified {
			return errors.New(res.Reason)
		}
		return nil
	}
}
