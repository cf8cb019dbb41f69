package sqlscript

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// maxNamespaceLen matches PostgreSQL's identifier limit.
const maxNamespaceLen = 63

var (
	// deniedPatterns are never permitted regardless of the caller.
	deniedPatterns = []struct {
		re   *regexp.Regexp
		desc string
	}{
		{regexp.MustCompile(`(?is)^(CREATE|DROP)\s+(DATABASE|SCHEMA)\b`), "database/schema creation or removal"},
		{regexp.MustCompile(`(?is)^(CREATE|ALTER|DROP)\s+(ROLE|USER|GROUP)\b`), "role management"},
		{regexp.MustCompile(`(?is)^(GRANT|REVOKE)\b`), "privilege management"},
		{regexp.MustCompile(`(?is)^(DROP|REASSIGN)\s+OWNED\b`), "role management"},
	}

	deleteRe    = regexp.MustCompile(`(?is)^DELETE\s+FROM\b`)
	updateRe    = regexp.MustCompile(`(?is)^UPDATE\s+`)
	whereRe     = regexp.MustCompile(`(?i)\bWHERE\b`)
	dropRe      = regexp.MustCompile(`(?is)^DROP\s+([A-Za-z_]+)`)
	truncateRe  = regexp.MustCompile(`(?is)^TRUNCATE\b`)
	alterDropRe = regexp.MustCompile(`(?is)^ALTER\b.*\bDROP\b`)

	namespaceRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Validate splits script and rejects it when it is empty or when any
// statement matches the deny-list.
func Validate(script string) error {
	stmts, err := Split(script)
	if err != nil {
		return err
	}
	for i, stmt := range stmts {
		for _, p := range deniedPatterns {
			if p.re.MatchString(stmt) {
				return errors.Wrapf(ErrDisallowedOperation, "statement %d (%s): %s",
					i+1, p.desc, Abbreviate(stmt, 60))
			}
		}
	}
	return nil
}

// ClassifyRisk returns a reason when any statement is destructive: an unscoped
// DELETE or UPDATE, a DROP of anything other than an index, a TRUNCATE, or an
// ALTER ... DROP. The second return value is false when nothing was flagged.
func ClassifyRisk(script string) (string, bool) {
	stmts, err := Split(script)
	if err != nil {
		return "", false
	}
	for i, stmt := range stmts {
		if reason := statementRisk(stmt); reason != "" {
			return fmt.Sprintf("statement %d: %s", i+1, reason), true
		}
	}
	return "", false
}

func statementRisk(stmt string) string {
	switch {
	case deleteRe.MatchString(stmt) && !whereRe.MatchString(stmt):
		return "DELETE without WHERE clause"
	case updateRe.MatchString(stmt) && !whereRe.MatchString(stmt):
		return "UPDATE without WHERE clause"
	case truncateRe.MatchString(stmt):
		return "TRUNCATE"
	case alterDropRe.MatchString(stmt):
		return "ALTER ... DROP"
	}
	if m := dropRe.FindStringSubmatch(stmt); m != nil && !strings.EqualFold(m[1], "INDEX") {
		return "DROP " + strings.ToUpper(m[1])
	}
	return ""
}

// ValidateNamespace checks a schema search path against the allow-list of
// letters, digits, underscore and hyphen.
func ValidateNamespace(ns string) error {
	if ns == "" || len(ns) > maxNamespaceLen || !namespaceRe.MatchString(ns) {
		return errors.Wrapf(ErrInvalidNamespace, "%q", ns)
	}
	return nil
}
