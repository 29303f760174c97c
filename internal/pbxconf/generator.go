// Package pbxconf generates the two Asterisk configuration artifacts the
// portal owns: the PJSIP endpoint definitions and the internal dialplan
// routing rules. Generation is a pure function of the tenant's provisioned
// extensions; it never consults a previous artifact version, so repeated
// generation over unchanged state is byte-identical and atomic replacement
// (see writer.go) is safe and sufficient.
package pbxconf

import (
	"fmt"
	"sort"
	"strings"
)

// Fixed endpoint and routing policy. The portal deliberately emits one codec
// pair, one context, and one registration slot per extension; anything more
// is hand-managed outside the generated files.
const (
	// InternalContext is the dialplan context every generated endpoint and
	// routing rule belongs to.
	InternalContext = "synergy-internal"

	// EndpointTransport is the PJSIP transport each endpoint registers over.
	EndpointTransport = "transport-udp"

	// AllowedCodecs is the single audio codec pair offered to endpoints.
	AllowedCodecs = "ulaw,alaw"

	// MaxContacts limits each address-of-record to one concurrent
	// registration.
	MaxContacts = 1

	// RingTimeoutSeconds is how long a dialed endpoint rings before the
	// call leg is terminated.
	RingTimeoutSeconds = 20
)

// header is prepended to every generated artifact. It carries no timestamp:
// artifacts must be byte-identical across repeated generation over unchanged
// state.
const header = `; Generated by the PBX control portal.
; DO NOT EDIT MANUALLY - changes are overwritten on the next apply.
`

// Entry is one provisioned extension to render: the number, its SIP
// credential, and the owner's display name for caller ID.
type Entry struct {
	Number      int
	Secret      string
	DisplayName string
}

// Endpoints renders the endpoint artifact: per extension, three linked
// declarations (endpoint, auth, aor) keyed by the extension number, in
// ascending numeric order.
func Endpoints(entries []Entry) string {
	var b strings.Builder
	b.WriteString(header)

	for _, e := range sortedByNumber(entries) {
		fmt.Fprintf(&b, "\n[%d]\n", e.Number)
		b.WriteString("type=endpoint\n")
		fmt.Fprintf(&b, "transport=%s\n", EndpointTransport)
		fmt.Fprintf(&b, "context=%s\n", InternalContext)
		b.WriteString("disallow=all\n")
		fmt.Fprintf(&b, "allow=%s\n", AllowedCodecs)
		fmt.Fprintf(&b, "auth=%d\n", e.Number)
		fmt.Fprintf(&b, "aors=%d\n", e.Number)
		fmt.Fprintf(&b, "callerid=%q <%d>\n", e.DisplayName, e.Number)

		fmt.Fprintf(&b, "\n[%d]\n", e.Number)
		b.WriteString("type=auth\n")
		b.WriteString("auth_type=userpass\n")
		fmt.Fprintf(&b, "username=%d\n", e.Number)
		fmt.Fprintf(&b, "password=%s\n", e.Secret)

		fmt.Fprintf(&b, "\n[%d]\n", e.Number)
		b.WriteString("type=aor\n")
		fmt.Fprintf(&b, "max_contacts=%d\n", MaxContacts)
	}

	return b.String()
}

// Routing renders the routing artifact: one named context containing, per
// extension in ascending numeric order, a dial rule with the fixed ring
// timeout followed by a hangup rule for unanswered legs.
func Routing(entries []Entry) string {
	var b strings.Builder
	b.WriteString(header)
	fmt.Fprintf(&b, "\n[%s]\n", InternalContext)

	for _, e := range sortedByNumber(entries) {
		fmt.Fprintf(&b, "exten => %d,1,Dial(PJSIP/%d,%d)\n", e.Number, e.Number, RingTimeoutSeconds)
		fmt.Fprintf(&b, "exten => %d,n,Hangup()\n", e.Number)
	}

	return b.String()
}

// sortedByNumber returns a copy of entries in ascending numeric order.
// Numbers are unique per tenant, so the order is total.
func sortedByNumber(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
