package category

import "strings"

// protocolTable maps upper-cased telemetry protocol names to the rule
// category that covers them. Keep in sync with deployed rule sets.
var protocolTable = map[string]string{
	"HTTP":         "http",
	"HTTPS":        "tls",
	"TLS":          "tls",
	"DNS":          "dns",
	"SSH":          "ssh",
	"FTP":          "ftp",
	"SMTP":         "smtp",
	"POP3":         "pop3",
	"IMAP":         "imap",
	"MDNS":         "mdns",
	"SMB":          "smb",
	"NTP":          "ntp",
	"DHCP":         "dhcp",
	"ICMPV6":       "icmp",
	"ICMP":         "icmp",
	"NETBIOS":      "netbios",
	"MICROSOFT365": "http",
	"MQTT":         "mqtt",
}

// TableLookup returns the fixed category for a protocol name.
func TableLookup(protocol string) (string, bool) {
	c, ok := protocolTable[strings.ToUpper(protocol)]
	return c, ok
}

// Rule identifies which matching rule resolved a protocol.
type Rule string

const (
	RuleTable     Rule = "table"
	RuleExact     Rule = "exact"
	RuleSubstring Rule = "substring"
	RuleNone      Rule = "none"
)

// Resolution records how one protocol name was mapped.
type Resolution struct {
	Protocol string
	Category string
	Rule     Rule
}

// Resolve maps one protocol name to at most one category, trying in order:
// the fixed protocol table, a case-insensitive exact match against sorted,
// then a substring match in either direction against sorted, first hit wins.
// sorted must be the discovered categories in ascending order.
func Resolve(protocol string, cats Set, sorted []string) Resolution {
	r := Resolution{Protocol: protocol, Rule: RuleNone}

	name := strings.TrimSpace(protocol)
	if name == "" {
		return r
	}

	if c, ok := TableLookup(name); ok {
		r.Category, r.Rule = c, RuleTable
		return r
	}

	lower := strings.ToLower(name)
	if cats.Has(lower) {
		r.Category, r.Rule = lower, RuleExact
		return r
	}

	for _, c := range sorted {
		if strings.Contains(lower, c) || strings.Contains(c, lower) {
			r.Category, r.Rule = c, RuleSubstring
			return r
		}
	}
	return r
}

// MapDetailed resolves every active protocol and returns the per-protocol
// resolutions in input order.
func MapDetailed(active []string, cats Set) []Resolution {
	sorted := cats.Sorted()
	out := make([]Resolution, 0, len(active))
	for _, p := range active {
		out = append(out, Resolve(p, cats, sorted))
	}
	return out
}

// Map returns the set of categories enabled by the active protocols.
// Protocols that match nothing contribute nothing.
func Map(active []string, cats Set) Set {
	enabled := make(Set)
	for _, r := range MapDetailed(active, cats) {
		if r.Rule != RuleNone {
			enabled.Add(r.Category)
		}
	}
	return enabled
}
