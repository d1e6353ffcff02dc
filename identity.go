package showdown

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// BlankRank is the rank of a user without any auth group.
const BlankRank = ' '

// Identity is a protocol participant: a display name, the auth rank it was
// announced with and the canonical id derived from the name.
//
// Identities compare by ID only, so "~Zarel" and "zarel" are the same user.
type Identity struct {
	Name string
	Rank rune
	ID   string
}

// ParseIdentity builds an Identity from a raw "rank+name" wire token such as
// "~Zarel", "+Script Kitty" or " balto".
//
// The first character is taken as the rank when it is not an ASCII letter.
func ParseIdentity(token string) Identity {
	if token == "" {
		return Identity{Rank: BlankRank}
	}
	first, size := utf8.DecodeRuneInString(token)
	if !isASCIILetter(first) {
		return NewIdentity(token[size:], first)
	}
	return NewIdentity(token, BlankRank)
}

// NewIdentity builds an Identity from an already separated name and rank.
func NewIdentity(name string, rank rune) Identity {
	return Identity{Name: name, Rank: rank, ID: Canonicalize(name)}
}

// Canonicalize lowercases name and strips every character that is not a
// letter or a digit. The result is the key used for every name comparison.
//
//	Canonicalize("~Zarel ^_^") == "zarel"
func Canonicalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Matches reports whether rawName canonicalizes to this identity's ID.
func (i Identity) Matches(rawName string) bool {
	return i.ID == Canonicalize(rawName)
}

// Equal reports whether both identities share the same canonical id.
func (i Identity) Equal(other Identity) bool {
	return i.ID == other.ID
}

// IsZero reports whether the identity carries no name at all.
func (i Identity) IsZero() bool {
	return i.Name == "" && i.ID == ""
}

// String renders the identity the way the server displays it, e.g. "~Zarel".
func (i Identity) String() string {
	if i.Rank == BlankRank || i.Rank == 0 {
		return i.Name
	}
	return string(i.Rank) + i.Name
}

// StripRank removes a leading non-letter rank character, e.g. "~lobby" -> "lobby".
func StripRank(s string) string {
	if s == "" {
		return s
	}
	first, size := utf8.DecodeRuneInString(s)
	if isASCIILetter(first) {
		return s
	}
	return s[size:]
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
