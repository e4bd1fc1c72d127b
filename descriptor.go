// This file contains code adapted from pulumictl (https://github.com/pulumi/pulumictl)
// which is licensed under the Apache License 2.0. See NOTICE file for full attribution.

package gitver

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/blang/semver"
)

// Descriptor is a parsed `git describe --long` result
type Descriptor struct {
	Tag       string
	Distance  int
	ShortHash string
}

// ParseDescriptor splits <tag>-<distance>-g<hash>. The tag may itself contain
// dashes, so the string is split from the right.
func ParseDescriptor(text string) (*Descriptor, error) {
	text = strings.TrimSpace(text)

	hashAt := strings.LastIndex(text, "-")
	if hashAt <= 0 {
		return nil, fmt.Errorf("descriptor %q: missing commit id", text)
	}
	hash := text[hashAt+1:]
	if !strings.HasPrefix(hash, "g") || len(hash) < 2 {
		return nil, fmt.Errorf("descriptor %q: commit id must start with \"g\"", text)
	}

	rest := text[:hashAt]
	distanceAt := strings.LastIndex(rest, "-")
	if distanceAt <= 0 {
		return nil, fmt.Errorf("descriptor %q: missing commit distance", text)
	}
	distance, err := strconv.Atoi(rest[distanceAt+1:])
	if err != nil || distance < 0 {
		return nil, fmt.Errorf("descriptor %q: invalid commit distance %q", text, rest[distanceAt+1:])
	}

	return &Descriptor{
		Tag:       rest[:distanceAt],
		Distance:  distance,
		ShortHash: hash[1:],
	}, nil
}

// String renders the descriptor in long form
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s-%d-g%s", d.Tag, d.Distance, d.ShortHash)
}

// IsFallback reports whether d is one of the sentinels returned for
// repositories without a matching tag
func (d *Descriptor) IsFallback() bool {
	s := d.String()
	return s == NoCommitsVersion || s == UntaggedVersion
}

// Semver parses the tag as a semantic version after removing any module path
// component and the given prefix
func (d *Descriptor) Semver(prefix string) (semver.Version, error) {
	version := stripTagPrefix(d.Tag, prefix)
	v, err := semver.Parse(version)
	if err != nil {
		return semver.Version{}, fmt.Errorf("parsing tag %q: %w", d.Tag, err)
	}
	return v, nil
}

func stripTagPrefix(tag, prefix string) string {
	_, versionComponent := path.Split(tag)
	if strings.HasPrefix(tag, prefix) {
		versionComponent = strings.TrimPrefix(tag, prefix)
	}
	return strings.TrimPrefix(versionComponent, "v")
}
