package registry

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// NormalizePhone extrai o número de um JID ("5511999990000:12@s.whatsapp.net")
// e devolve em E.164 sem o "+". Números que a libphonenumber não reconhece
// voltam só com os dígitos.
func NormalizePhone(raw string) string {
	user, _, _ := strings.Cut(raw, "@")
	user, _, _ = strings.Cut(user, ":")
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, user)
	if digits == "" {
		return ""
	}

	num, err := libphonenumber.Parse("+"+digits, "")
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return digits
	}
	return strings.TrimPrefix(libphonenumber.Format(num, libphonenumber.E164), "+")
}
