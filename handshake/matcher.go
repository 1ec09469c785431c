package handshake

import "github.com/user/aurapair/radio"

// MatchAdvertisement reports whether adv was broadcast by the expected peer.
// The comparison is exact and case-sensitive with no trimming; an
// advertisement without a name never matches.
func MatchAdvertisement(adv radio.Advertisement, expected string) bool {
	return adv.HasName && adv.Name == expected
}
