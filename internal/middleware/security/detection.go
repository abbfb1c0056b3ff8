package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
)

// Reason says why a request was flagged. The empty Reason means clean.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonPath      Reason = "path"      // outside the API surface or traversal
	ReasonParam     Reason = "param"     // unknown or malformed API parameter
	ReasonInjection Reason = "injection" // script or SQL fragments in a value
	ReasonAgent     Reason = "agent"     // known scanner
	ReasonMethod    Reason = "method"
	ReasonOversize  Reason = "oversize"
)

const maxTargetLength = 2048

// DetectionMetrics counts flagged requests, in total and per reason.
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
	ByReason           map[Reason]int64
}

// Detector classifies requests against the fintrack API surface and resolves client addresses.
type Detector struct {
	suspicious     atomic.Int64
	invalidIP      atomic.Int64
	mu             sync.Mutex
	byReason       map[Reason]int64
	trustedProxies []*net.IPNet
}

// apiParams lists the query parameters each API path understands. Paths not
// listed here and not under /api/v1/ are outside the surface.
var apiParams = map[string][]string{
	"/api/v1/transactions":           {"userid", "frequency", "type", "transactionId"},
	"/api/v1/transactions/analytics": {"userid", "frequency", "type"},
	"/api/v1/transactions/events":    {"userid", "transactionId"},
	"/api/v1/users/register":         nil,
	"/api/v1/users/login":            nil,
	"/healthz":                       nil,
	"/readyz":                        nil,
	"/metrics":                       nil,
}

var (
	// user and transaction ids are uuids in practice; allow any short token.
	idValue        = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	frequencyValue = regexp.MustCompile(`^(all|custom|[0-9]{1,5})?$`)
	typeValue      = regexp.MustCompile(`^(?i)(all|income|expense)?$`)

	injectionMarkers = []string{
		"<script", "javascript:", "union select", "' or ", "\" or ", "--", ";", "/*", "../",
	}
	scannerAgents = []string{"sqlmap", "nikto", "nmap", "gobuster", "dirb", "masscan", "zgrab", "nuclei"}
)

func NewDetector() *Detector {
	d := &Detector{byReason: make(map[Reason]int64)}
	for _, cidr := range []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		if err := d.AddTrustedProxy(cidr); err != nil {
			panic(err)
		}
	}
	return d
}

// Inspect returns the first reason r looks like a scan, or ReasonNone. It
// never rejects; the caller decides what to do with a flagged request.
func (d *Detector) Inspect(r *http.Request) Reason {
	reason := classify(r)
	if reason != ReasonNone {
		d.suspicious.Add(1)
		d.mu.Lock()
		d.byReason[reason]++
		d.mu.Unlock()
	}
	return reason
}

func classify(r *http.Request) Reason {
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodHead, http.MethodOptions:
	default:
		return ReasonMethod
	}
	if len(r.URL.RequestURI()) > maxTargetLength {
		return ReasonOversize
	}

	ua := strings.ToLower(r.UserAgent())
	for _, agent := range scannerAgents {
		if strings.Contains(ua, agent) {
			return ReasonAgent
		}
	}

	path := r.URL.Path
	if strings.Contains(path, "..") {
		return ReasonPath
	}
	allowed, known := apiParams[path]
	if !known && !strings.HasPrefix(path, "/api/v1/") {
		return ReasonPath
	}

	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return ReasonParam
	}
	for name, values := range query {
		if known && !contains(allowed, name) {
			return ReasonParam
		}
		for _, v := range values {
			if hasInjection(v) {
				return ReasonInjection
			}
			if !validParam(name, v) {
				return ReasonParam
			}
		}
	}
	return ReasonNone
}

func validParam(name, v string) bool {
	switch name {
	case "userid", "transactionId":
		return v == "" || idValue.MatchString(v)
	case "frequency":
		return frequencyValue.MatchString(v)
	case "type":
		return typeValue.MatchString(v)
	}
	return true
}

func hasInjection(v string) bool {
	v = strings.ToLower(v)
	for _, m := range injectionMarkers {
		if strings.Contains(v, m) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the caller's address. Forwarding headers are only
// honoured when the direct peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	direct, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		direct = r.RemoteAddr
	}
	peer := net.ParseIP(direct)
	if peer == nil {
		d.invalidIP.Add(1)
		return direct
	}
	if !d.trusted(peer) {
		return direct
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
		d.invalidIP.Add(1)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return direct
}

func (d *Detector) trusted(ip net.IP) bool {
	for _, n := range d.trustedProxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns a snapshot of the detection counters.
func (d *Detector) GetMetrics() DetectionMetrics {
	d.mu.Lock()
	byReason := make(map[Reason]int64, len(d.byReason))
	for k, v := range d.byReason {
		byReason[k] = v
	}
	d.mu.Unlock()
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidIPAttempts:  d.invalidIP.Load(),
		ByReason:           byReason,
	}
}

// AddTrustedProxy trusts forwarding headers from peers in cidr.
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}
