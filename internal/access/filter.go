package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

// IsVisible reports whether a requester with grade may see chunk. Chunks
// that are not restricted are visible to everyone; restricted chunks only
// to grades listed in AllowedGrades. Grades are compared normalized.
func IsVisible(chunk model.PolicyChunk, grade string) bool {
	if !IsRestricted(chunk) {
		return true
	}
	g := NormalizeGrade(grade)
	if g == "" {
		return false
	}
	for _, allowed := range chunk.AllowedGrades {
		if NormalizeGrade(allowed) == g {
			return true
		}
	}
	return false
}

// IsRestricted reports whether chunk is marked restricted. An empty
// visibility reads as public.
func IsRestricted(chunk model.PolicyChunk) bool {
	return strings.EqualFold(strings.TrimSpace(string(chunk.Visibility)), string(model.Restricted))
}

// Filter is handed to every search backend. Backends that filter
// server-side translate it with Expression; all others call Allows.
type Filter struct {
	Grade string
	// RestrictedOnly selects restricted chunks regardless of grade. It is
	// only used for the restricted-match peek, which never returns text.
	RestrictedOnly bool
}

// ForGrade builds the visibility filter for grade.
func ForGrade(grade string) Filter {
	return Filter{Grade: NormalizeGrade(grade)}
}

// Allows reports whether chunk passes the filter.
func (f Filter) Allows(chunk model.PolicyChunk) bool {
	if f.RestrictedOnly {
		return IsRestricted(chunk)
	}
	return IsVisible(chunk, f.Grade)
}

// restrictedSpellings are the stored visibility values IsRestricted
// accepts. Indexes holding other casings or padded values are still
// post-filtered by Allows but lose recall server-side.
var restrictedSpellings = []string{"restricted", "Restricted", "RESTRICTED"}

// gradeSpellings lists the stored allowed_grades values that normalize
// to g: "G3", "g3" and "3".
func gradeSpellings(g string) []string {
	bare := strings.TrimPrefix(g, "G")
	out := []string{g, "g" + bare}
	if bare != "" {
		out = append(out, bare)
	}
	return out
}

// Expression renders the filter as an OData expression for search
// services that filter server-side. It admits every stored spelling that
// Allows treats as equal, so both sides select the same chunks.
func (f Filter) Expression() string {
	if f.RestrictedOnly {
		return joinTerms("visibility eq '%s'", restrictedSpellings, " or ")
	}
	public := "(" + joinTerms("visibility ne '%s'", restrictedSpellings, " and ") + ")"
	g := NormalizeGrade(f.Grade)
	if g == "" {
		return public
	}
	return public + " or allowed_grades/any(x: " + joinTerms("x eq '%s'", gradeSpellings(g), " or ") + ")"
}

func joinTerms(format string, values []string, sep string) string {
	terms := make([]string, len(values))
	for i, v := range values {
		terms[i] = fmt.Sprintf(format, strings.ReplaceAll(v, "'", "''"))
	}
	return strings.Join(terms, sep)
}

// Apply keeps the chunks that pass the filter, preserving order.
func (f Filter) Apply(chunks []model.PolicyChunk) []model.PolicyChunk {
	out := make([]model.PolicyChunk, 0, len(chunks))
	for _, c := range chunks {
		if f.Allows(c) {
			out = append(out, c)
		}
	}
	return out
}

// Searcher is the search backend as seen by the peek.
type Searcher interface {
	Search(ctx context.Context, query string, filter Filter, top int) ([]model.PolicyChunk, error)
}

// PeekLimit bounds how many restricted matches the peek counts.
const PeekLimit = 20

// CountRestrictedMatches counts restricted chunks matching query and
// returns only their policy/clause ids, never their text.
func CountRestrictedMatches(ctx context.Context, s Searcher, query string) (int, []model.ClauseRef, error) {
	chunks, err := s.Search(ctx, query, Filter{RestrictedOnly: true}, PeekLimit)
	if err != nil {
		return 0, nil, err
	}
	refs := make([]model.ClauseRef, 0, len(chunks))
	for _, c := range chunks {
		if !IsRestricted(c) {
			continue
		}
		refs = append(refs, c.Ref())
	}
	return len(refs), refs, nil
}
