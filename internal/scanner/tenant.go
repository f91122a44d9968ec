package scanner

import (
	"errors"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrNotFound is returned when a tenant has no directory for the requested scan.
var ErrNotFound = errors.New("tenant directory not found")

const (
	failedDir        = "Failed"
	transcodedSuffix = "-transcoded"
)

var (
	landingDirPattern = regexp.MustCompile(`(?i)^\w+(-\w+)*-landing-?dir-\w+$`)
	validEnvs         = []string{"dev", "int", "prod"}
)

// TenantDir is a landing directory name split into its tenant and env.
type TenantDir struct {
	DirName string
	Tenant  string
	Env     string
}

// ParseDirName recognizes "<tenant>-landing-dir-<env>" directory names. The
// tenant may itself contain dashes; env must be dev, int or prod.
func ParseDirName(name string) (TenantDir, bool) {
	if name == "" || !landingDirPattern.MatchString(name) {
		return TenantDir{}, false
	}
	parts := strings.Split(name, "-")
	landing := slices.IndexFunc(parts, func(p string) bool { return strings.EqualFold(p, "landing") })
	if landing <= 0 {
		return TenantDir{}, false
	}
	env := parts[len(parts)-1]
	if !slices.ContainsFunc(validEnvs, func(v string) bool { return strings.EqualFold(v, env) }) {
		return TenantDir{}, false
	}
	return TenantDir{
		DirName: name,
		Tenant:  strings.Join(parts[:landing], "-"),
		Env:     env,
	}, true
}

// DisplayName upper-cases the first letter of tenant. It is the form used
// in metric labels.
func DisplayName(tenant string) string {
	r, size := utf8.DecodeRuneInString(tenant)
	if r == utf8.RuneError {
		return tenant
	}
	return string(unicode.ToUpper(r)) + tenant[size:]
}
