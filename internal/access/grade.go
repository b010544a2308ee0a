// Package access decides which policy chunks a grade may see.
package access

import (
	"strings"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

// GradePrefix starts every normalized grade token.
const GradePrefix = "G"

// NormalizeGrade trims and uppercases raw and prefixes it with G when
// missing, so "3" and "g3" both become "G3". Empty input stays empty.
// NormalizeGrade(NormalizeGrade(g)) == NormalizeGrade(g).
func NormalizeGrade(raw string) string {
	g := strings.ToUpper(strings.TrimSpace(raw))
	if g == "" || strings.HasPrefix(g, GradePrefix) {
		return g
	}
	return GradePrefix + g
}

// rolePrefix marks app roles that carry a grade, e.g. "Grade.Cabin_Crew".
const rolePrefix = "grade."

// ResolveGrade picks the requester's grade: the principal's own grade,
// else the first Grade.* role (underscores read as spaces), else fallback.
// The result is normalized.
func ResolveGrade(p model.Principal, fallback string) string {
	if g := strings.TrimSpace(p.Grade); g != "" {
		return NormalizeGrade(g)
	}
	for _, r := range p.Roles {
		r = strings.TrimSpace(r)
		if len(r) > len(rolePrefix) && strings.EqualFold(r[:len(rolePrefix)], rolePrefix) {
			g := strings.TrimSpace(strings.ReplaceAll(r[len(rolePrefix):], "_", " "))
			if g != "" {
				return NormalizeGrade(g)
			}
		}
	}
	return NormalizeGrade(fallback)
}
