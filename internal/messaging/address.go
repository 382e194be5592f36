package messaging

import "strings"

const (
	userJIDSuffix  = "@s.whatsapp.net"
	groupJIDSuffix = "@g.us"
)

// Digits strips everything but ASCII digits.
func Digits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AddressFromJID turns "5511999990000@s.whatsapp.net" into "5511999990000".
func AddressFromJID(jid string) string {
	jid = strings.TrimSpace(jid)
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	return Digits(jid)
}

// IsGroupJID reports whether the chat is a group.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(strings.TrimSpace(jid), groupJIDSuffix)
}

// PhonesMatch compares two addresses ignoring formatting, a missing Brazilian
// country code and the Brazilian mobile ninth digit.
func PhonesMatch(a, b string) bool {
	da, db := Digits(a), Digits(b)
	if da == "" || db == "" {
		return false
	}
	if da == db {
		return true
	}
	return canonicalBR(da) == canonicalBR(db)
}

// canonicalBR maps Brazilian numbers to 55 + area code + 8-digit subscriber.
func canonicalBR(d string) string {
	if (len(d) == 10 || len(d) == 11) && !strings.HasPrefix(d, "55") {
		d = "55" + d
	}
	if strings.HasPrefix(d, "55") && len(d) == 13 && d[4] == '9' {
		d = d[:4] + d[5:]
	}
	return d
}
