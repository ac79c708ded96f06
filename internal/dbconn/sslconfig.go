package dbconn

// SSLDecision is the resolved outcome of the three-way SSL configuration
// rule: explicitly enabled, explicitly disabled, or inferred from the
// target host when left unset.
type SSLDecision struct {
	Enabled            bool
	CAPath             string
	RejectUnauthorized bool
}

// DecideSSL implements the connection-manager SSL rule: an explicit
// setting always wins; when unset, SSL is disabled only for loopback
// hosts (the tunnel's local endpoint or a directly-local database) and
// enabled with default verification otherwise.
func DecideSSL(explicit *bool, rejectUnauthorized bool, caPath, host string) SSLDecision {
	if explicit != nil {
		if !*explicit {
			return SSLDecision{Enabled: false}
		}
		return SSLDecision{Enabled: true, CAPath: caPath, RejectUnauthorized: rejectUnauthorized}
	}
	if isLoopbackHost(host) {
		return SSLDecision{Enabled: false}
	}
	return SSLDecision{Enabled: true, RejectUnauthorized: true}
}

func isLoopbackHost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
