package descriptor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// bareVersion matches a constraint that is just a version, which pins it:
	// an optional epoch, dotted numbers, at most one PEP 440 pre, post and
	// dev segment each, then an optional revision or build suffix.
	bareVersion = regexp.MustCompile(`^v?([0-9]+:)?[0-9]+(\.[0-9]+)*` +
		`(\.?(a|b|c|rc|alpha|beta|pre)\.?[0-9]*)?(\.?(post|rev|r)\.?[0-9]*)?(\.?dev\.?[0-9]*)?` +
		`([-+~][0-9A-Za-z]+([.+~_-][0-9A-Za-z]+)*)?$`)
	leadingVersion = regexp.MustCompile(`^v?[0-9]`)
	wildcard       = regexp.MustCompile(`(^|\.)[xX*](\.|$)`)
)

// Constraint is a parsed version constraint. A constraint is either an exact
// pin ("4.9.3", "==4.9.3") or a semver range (">=1.0", "~2.9", "^1.2, !=1.3.0").
type Constraint struct {
	raw   string
	exact string
	rng   *semver.Constraints
}

// ParseConstraint parses raw. Range syntax follows Masterminds/semver; "=="
// is accepted as an alias for "=".
func ParseConstraint(raw string) (*Constraint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty version constraint")
	}

	pin := strings.TrimSpace(strings.TrimPrefix(raw, "=="))
	if bareVersion.MatchString(pin) {
		if _, err := Coerce(pin); err != nil {
			return nil, fmt.Errorf("malformed version constraint %q: %w", raw, err)
		}
		return &Constraint{raw: raw, exact: pin}, nil
	}
	if leadingVersion.MatchString(pin) && !wildcard.MatchString(pin) && !strings.ContainsAny(pin, " ,|") {
		return nil, fmt.Errorf("malformed version constraint %q", raw)
	}

	rng, err := semver.NewConstraint(strings.ReplaceAll(raw, "==", "="))
	if err != nil {
		return nil, fmt.Errorf("malformed version constraint %q: %w", raw, err)
	}
	return &Constraint{raw: raw, rng: rng}, nil
}

func (c *Constraint) String() string { return c.raw }

// Pin returns the pinned version for exact constraints and "" for ranges.
func (c *Constraint) Pin() string { return c.exact }

// IsExact reports whether the constraint pins a single version.
func (c *Constraint) IsExact() bool { return c.exact != "" }

// Check reports whether installed satisfies the constraint. Versions that
// cannot be coerced to semver never satisfy a range.
func (c *Constraint) Check(installed string) bool {
	installed = strings.TrimSpace(installed)
	if installed == "" {
		return false
	}

	if c.IsExact() {
		if installed == c.exact {
			return true
		}
		if !sameRelease(c.exact, installed) {
			return false
		}
		want, err1 := Coerce(c.exact)
		have, err2 := Coerce(installed)
		if err1 != nil || err2 != nil {
			return false
		}
		return want.Equal(have)
	}

	v, err := Coerce(installed)
	if err != nil {
		return false
	}
	return c.rng.Check(v)
}

var (
	debianEpoch   = regexp.MustCompile(`^[0-9]+:`)
	pep440Pre     = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)*)\.?(alpha|beta|dev|pre|rc|a|b|c)\.?([0-9]*)`)
	pep440Post    = regexp.MustCompile(`\.?(post|rev|r)[0-9]*$`)
	numericPrefix = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)*`)
)

// Coerce turns a package manager version string into a semver version.
// Debian epochs, distro revisions ("-5ubuntu1", "-3.el9") and build
// suffixes ("+dfsg") are dropped; PEP 440 pre-releases become semver
// pre-releases and post-releases are dropped.
func Coerce(version string) (*semver.Version, error) {
	v := strings.TrimSpace(version)
	v = strings.TrimPrefix(v, "v")
	v = debianEpoch.ReplaceAllString(v, "")

	if i := strings.IndexAny(v, "+~"); i >= 0 {
		v = v[:i]
	}

	if m := pep440Pre.FindStringSubmatch(v); m != nil {
		tag := m[2]
		if m[3] != "" {
			tag += "." + m[3]
		}
		v = truncate(m[1]) + "-" + tag
		return semver.NewVersion(v)
	}

	if i := strings.Index(v, "-"); i >= 0 {
		v = v[:i]
	}
	v = pep440Post.ReplaceAllString(v, "")

	num := numericPrefix.FindString(v)
	if num == "" {
		return nil, fmt.Errorf("cannot interpret version %q", version)
	}
	return semver.NewVersion(truncate(num))
}

// sameRelease compares every numeric release component and the post-release
// tag, which Coerce drops. Trailing zero components are ignored, so 4.9
// and 4.9.0 are the same release.
func sameRelease(a, b string) bool {
	an, ap := release(a)
	bn, bp := release(b)
	if ap != bp || len(an) != len(bn) {
		return false
	}
	for i := range an {
		if an[i] != bn[i] {
			return false
		}
	}
	return true
}

func release(version string) ([]string, string) {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	v = debianEpoch.ReplaceAllString(v, "")
	if i := strings.IndexAny(v, "+~-"); i >= 0 {
		v = v[:i]
	}

	post := strings.TrimPrefix(pep440Post.FindString(v), ".")
	var nums []string
	for _, n := range strings.Split(numericPrefix.FindString(v), ".") {
		if n = strings.TrimLeft(n, "0"); n == "" {
			n = "0"
		}
		nums = append(nums, n)
	}
	for len(nums) > 1 && nums[len(nums)-1] == "0" {
		nums = nums[:len(nums)-1]
	}
	return nums, post
}

// truncate keeps at most major.minor.patch.
func truncate(num string) string {
	parts := strings.Split(num, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, ".")
}
