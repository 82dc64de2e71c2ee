package common

import (
	"fmt"
	"regexp"
)

func NewRegexp(plain string) (result Regexp, err error) {
	err = result.Set(plain)
	return result, err
}

func MustNewRegexp(plain string) Regexp {
	result, err := NewRegexp(plain)
	if err != nil {
		panic(err)
	}
	return result
}

// Regexp is a regular expression usable as flag value and inside of yaml.
// The empty Regexp matches nothing.
type Regexp struct {
	v *regexp.Regexp
}

func (this *Regexp) Set(plain string) error {
	if plain == "" {
		*this = Regexp{}
		return nil
	}

	v, err := regexp.Compile(plain)
	if err != nil {
		return fmt.Errorf("cannot compile regexp %q: %w", plain, err)
	}
	*this = Regexp{v}
	return nil
}

func (this Regexp) String() string {
	if this.v == nil {
		return ""
	}
	return this.v.String()
}

func (this Regexp) MatchString(s string) bool {
	return this.v != nil && this.v.MatchString(s)
}

// MatchAny reports whether at least one of the candidates matches.
func (this Regexp) MatchAny(candidates ...string) bool {
	for _, candidate := range candidates {
		if this.MatchString(candidate) {
			return true
		}
	}
	return false
}

func (this Regexp) MarshalText() (text []byte, err error) {
	return []byte(this.String()), nil
}

func (this *Regexp) UnmarshalText(text []byte) error {
	return this.Set(string(text))
}

func (this Regexp) IsZero() bool {
	return this.v == nil
}

func (this Regexp) HasContent() bool {
	return !this.IsZero()
}

// Accepts reports whether one of the candidates matches included and none of
// them matches excluded. An empty included accepts everything, an empty
// excluded rejects nothing.
func Accepts(included, excluded Regexp, candidates ...string) bool {
	if included.HasContent() && !included.MatchAny(candidates...) {
		return false
	}
	return !excluded.MatchAny(candidates...)
}
