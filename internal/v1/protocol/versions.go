package protocol

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// SupportedVersions is the server's ordered preference list of protocol
// ranges, most preferred first.
var SupportedVersions = []string{"^0.4.0", "^0.3.0", "^0.2.0", "^0.1.0"}

// defaultClientVersions is assumed when a client offers no versions.
var defaultClientVersions = []string{"^0.1.0"}

// versionToken matches the version literals inside a range expression.
var versionToken = regexp.MustCompile(`\d+(?:\.(?:\d+|[xX*]))?(?:\.(?:\d+|[xX*]))?`)

// SelectProtocolVersion returns the first server range that intersects any
// client-offered range, or ok=false when no ranges intersect. An empty
// client list is treated as ["^0.1.0"].
func SelectProtocolVersion(clientVersions []string) (string, bool) {
	if len(clientVersions) == 0 {
		clientVersions = defaultClientVersions
	}

	for _, serverRange := range SupportedVersions {
		serverConstraint, err := semver.NewConstraint(serverRange)
		if err != nil {
			continue
		}
		for _, clientRange := range clientVersions {
			clientConstraint, err := semver.NewConstraint(clientRange)
			if err != nil {
				continue
			}
			if rangesIntersect(serverConstraint, clientConstraint, serverRange, clientRange) {
				return serverRange, true
			}
		}
	}

	return "", false
}

// rangesIntersect reports whether two ranges admit a common version. A
// semver range is a union of intervals whose bounds come from the versions
// it mentions, so the probe set of both ranges' literals (and the versions
// just above them, for open bounds like ">0.4.0") covers every way the two
// can overlap.
func rangesIntersect(a, b *semver.Constraints, aRaw, bRaw string) bool {
	for _, v := range candidateVersions(aRaw + " " + bRaw) {
		if a.Check(v) && b.Check(v) {
			return true
		}
	}
	return false
}

// candidateVersions expands the version literals in a range expression into
// probe points: each literal plus its next patch and next minor, with
// wildcard segments lowered to zero.
func candidateVersions(raw string) []*semver.Version {
	var out []*semver.Version
	for _, token := range versionToken.FindAllString(raw, -1) {
		normalized := strings.NewReplacer("x", "0", "X", "0", "*", "0").Replace(token)
		base, err := semver.NewVersion(normalized)
		if err != nil {
			continue
		}
		patch := base.IncPatch()
		minor := base.IncMinor()
		out = append(out, base, &patch, &minor)
	}
	return out
}

// UnsupportedVersionMessage composes the connect error body echoing both
// version lists.
func UnsupportedVersionMessage(clientVersions []string) string {
	quoted := make([]string, len(clientVersions))
	for i, v := range clientVersions {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return fmt.Sprintf("Unsupported client protocol. Server: [%s]. Client: [%s]",
		strings.Join(SupportedVersions, ","), strings.Join(quoted, ","))
}
