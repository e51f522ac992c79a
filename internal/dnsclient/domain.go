// Copyright (c) 2026 wavvs
// Licensed under the MIT License. See LICENSE for terms.
package dnsclient

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var (
	labelRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)
	asciiRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

const maxLabelDepth = 127

// DomainToASCII converts an IDN to its lower-case ASCII form. Plain ASCII names that the
// IDNA profile rejects (underscores, for example) are accepted as long as the labels are sane.
func DomainToASCII(domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimRight(domain, ".")

	p := idna.New(idna.MapForLookup(), idna.Transitional(false))
	ascii, err := p.ToASCII(domain)
	if err != nil {
		if !asciiRegex.MatchString(domain) {
			return "", err
		}
		for _, label := range strings.Split(domain, ".") {
			if label == "" || len(label) > 63 || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
				return "", err
			}
		}
		ascii = domain
	}
	return strings.ToLower(ascii), nil
}

// CanonicalName folds case and drops surrounding space and a trailing dot, so that two
// spellings of the same DNS name compare equal. It does not validate the name.
func CanonicalName(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// Normalize returns the canonical form used as a record key, or an error for names that
// cannot be queried.
func Normalize(domain string) (string, error) {
	ascii, err := DomainToASCII(domain)
	if err != nil {
		return "", fmt.Errorf("invalid domain %q: %w", domain, err)
	}
	if ascii == "" || len(ascii) > 253 {
		return "", fmt.Errorf("invalid domain %q: bad length", domain)
	}

	labels := strings.Split(ascii, ".")
	if len(labels) < 2 || len(labels) > maxLabelDepth {
		return "", fmt.Errorf("invalid domain %q: need at least two labels", domain)
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 || !labelRegex.MatchString(label) ||
			strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return "", fmt.Errorf("invalid domain %q: bad label %q", domain, label)
		}
	}
	return ascii, nil
}
