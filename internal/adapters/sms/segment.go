package sms

import "unicode/utf8"

// Single and concatenated part sizes, in characters, for the two alphabets a
// handset picks between.
const (
	gsmSingleLimit  = 160
	gsmPartLimit    = 153
	ucs2SingleLimit = 70
	ucs2PartLimit   = 67
)

// gsmBasic is the GSM 03.38 default alphabet (basic table, without the
// escape extension).
const gsmBasic = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"

var gsmSet = func() map[rune]struct{} {
	set := make(map[rune]struct{}, utf8.RuneCountInString(gsmBasic))
	for _, r := range gsmBasic {
		set[r] = struct{}{}
	}
	return set
}()

// IsGSM7 reports whether every rune of body fits the GSM basic alphabet.
func IsGSM7(body string) bool {
	for _, r := range body {
		if _, ok := gsmSet[r]; !ok {
			return false
		}
	}
	return true
}

// Divide splits body into the parts a handset would transmit. A body that
// fits a single message is returned as one part; an empty body yields one
// empty part.
func Divide(body string) []string {
	single, part := gsmSingleLimit, gsmPartLimit
	if !IsGSM7(body) {
		single, part = ucs2SingleLimit, ucs2PartLimit
	}

	runes := []rune(body)
	if len(runes) <= single {
		return []string{body}
	}

	parts := make([]string, 0, (len(runes)+part-1)/part)
	for start := 0; start < len(runes); start += part {
		end := start + part
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
