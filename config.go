package jarshade

import (
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Default relocation settings for shading ASM into a plugin namespace.
const (
	DefaultTargetPrefix = "com/nasller/asm/libs/"
	DefaultRoot         = "org/objectweb/asm/"
)

// formatVersion changes whenever the same input and Config would produce
// different output bytes. It is part of every cache key.
const formatVersion = "jarshade/v1"

// ResourceMode selects which resource entries are renamed.
type ResourceMode uint8

const (
	// ResourcesUnderRoots renames path-shaped resources that live under one
	// of the always-relocated roots.
	ResourcesUnderRoots ResourceMode = iota

	// ResourcesAll renames every path-shaped resource outside META-INF/.
	ResourcesAll
)

// String returns the mode name accepted by ParseResourceMode.
func (m ResourceMode) String() string {
	switch m {
	case ResourcesUnderRoots:
		return "roots"
	case ResourcesAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseResourceMode parses "roots" or "all".
func ParseResourceMode(s string) (ResourceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "roots":
		return ResourcesUnderRoots, nil
	case "all":
		return ResourcesAll, nil
	default:
		return 0, fmt.Errorf("%w: unknown resource mode %q", ErrInvalidConfig, s)
	}
}

// Config is the static relocation configuration.
type Config struct {
	// TargetPrefix is prepended to relocated names, e.g. "com/nasller/asm/libs/".
	TargetPrefix string

	// Roots are package prefixes that are always relocated, whether or not
	// the archive being shaded defines them, e.g. "org/objectweb/asm/".
	Roots []string

	// Resources selects which resource entries are renamed.
	Resources ResourceMode
}

// DefaultConfig returns the configuration for shading ASM.
func DefaultConfig() Config {
	return Config{
		TargetPrefix: DefaultTargetPrefix,
		Roots:        []string{DefaultRoot},
		Resources:    ResourcesUnderRoots,
	}
}

// Validate checks that prefixes are slash-separated internal-name prefixes.
func (c Config) Validate() error {
	if err := validatePrefix("target prefix", c.TargetPrefix); err != nil {
		return err
	}
	for _, r := range c.Roots {
		if err := validatePrefix("root", r); err != nil {
			return err
		}
	}
	if c.Resources > ResourcesAll {
		return fmt.Errorf("%w: resource mode %d", ErrInvalidConfig, c.Resources)
	}
	return nil
}

func validatePrefix(what, p string) error {
	switch {
	case p == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, what)
	case strings.HasPrefix(p, "/"):
		return fmt.Errorf("%w: %s %q starts with /", ErrInvalidConfig, what, p)
	case !strings.HasSuffix(p, "/"):
		return fmt.Errorf("%w: %s %q must end with /", ErrInvalidConfig, what, p)
	case strings.ContainsAny(p, ".;[\\"):
		return fmt.Errorf("%w: %s %q is not an internal name prefix", ErrInvalidConfig, what, p)
	case strings.HasPrefix(p, metaInf):
		return fmt.Errorf("%w: %s %q is under %s", ErrInvalidConfig, what, p, metaInf)
	}
	return nil
}

// Digest fingerprints the configuration for cache keys.
func (c Config) Digest() digest.Digest {
	var b strings.Builder
	b.WriteString(formatVersion)
	b.WriteString("\ntarget=")
	b.WriteString(c.TargetPrefix)
	for _, r := range c.Roots {
		b.WriteString("\nroot=")
		b.WriteString(r)
	}
	b.WriteString("\nresources=")
	b.WriteString(c.Resources.String())
	return digest.FromString(b.String())
}
