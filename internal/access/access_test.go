package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

func TestNormalizeGrade(t *testing.T) {
	tests := []struct{ in, want string }{
		{"3", "G3"},
		{" g3 ", "G3"},
		{"G3", "G3"},
		{"", ""},
		{"   ", ""},
		{"cabin crew", "GCABIN CREW"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeGrade(tt.in), tt.in)
	}
}

func TestNormalizeGradeIdempotent(t *testing.T) {
	for _, g := range []string{"3", "g12", "G", "x", "", " 7 ", "Grade4"} {
		once := NormalizeGrade(g)
		assert.Equal(t, once, NormalizeGrade(once), g)
	}
}

func TestVisibilityMatrix(t *testing.T) {
	restricted := model.PolicyChunk{PolicyID: "HR", ClauseID: "1", Visibility: model.Restricted, AllowedGrades: []string{"G3"}}
	public := model.PolicyChunk{PolicyID: "HR", ClauseID: "2", Visibility: model.Public}
	unset := model.PolicyChunk{PolicyID: "HR", ClauseID: "3"}

	assert.True(t, IsVisible(restricted, "G3"))
	assert.True(t, IsVisible(restricted, "3"))
	assert.False(t, IsVisible(restricted, "G2"))
	assert.False(t, IsVisible(restricted, ""))

	for _, g := range []string{"G3", "G2", ""} {
		assert.True(t, IsVisible(public, g))
		assert.True(t, IsVisible(unset, g))
	}

	shouting := restricted
	shouting.Visibility = "RESTRICTED"
	assert.False(t, IsVisible(shouting, "G2"))
}

func TestFilterDelegatesToIsVisible(t *testing.T) {
	chunks := []model.PolicyChunk{
		{ClauseID: "a", Visibility: model.Public},
		{ClauseID: "b", Visibility: model.Restricted, AllowedGrades: []string{"G3"}},
		{ClauseID: "c", Visibility: model.Restricted, AllowedGrades: []string{"G5"}},
	}
	for _, g := range []string{"G3", "G5", "G1", ""} {
		f := ForGrade(g)
		for _, c := range chunks {
			assert.Equal(t, IsVisible(c, g), f.Allows(c))
		}
	}

	ids := func(cs []model.PolicyChunk) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.ClauseID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b"}, ids(ForGrade("3").Apply(chunks)))
	assert.Equal(t, []string{"b", "c"}, ids(Filter{RestrictedOnly: true}.Apply(chunks)))
}

func TestFilterExpression(t *testing.T) {
	public := "(visibility ne 'restricted' and visibility ne 'Restricted' and visibility ne 'RESTRICTED')"
	assert.Equal(t, public+" or allowed_grades/any(x: x eq 'G3' or x eq 'g3' or x eq '3')", ForGrade("3").Expression())
	assert.Equal(t, public, ForGrade("").Expression())
	assert.Equal(t, "visibility eq 'restricted' or visibility eq 'Restricted' or visibility eq 'RESTRICTED'", Filter{RestrictedOnly: true}.Expression())
}

func TestFilterExpressionCoversStoredSpellings(t *testing.T) {
	expr := ForGrade("g3").Expression()
	for _, stored := range []string{"G3", "g3", "3"} {
		chunk := model.PolicyChunk{Visibility: "Restricted", AllowedGrades: []string{stored}}
		require.True(t, IsVisible(chunk, "g3"), stored)
		assert.Contains(t, expr, "x eq '"+stored+"'")
	}
	for _, stored := range []model.Visibility{"restricted", "Restricted", "RESTRICTED"} {
		require.True(t, IsRestricted(model.PolicyChunk{Visibility: stored}))
		assert.Contains(t, Filter{RestrictedOnly: true}.Expression(), "'"+string(stored)+"'")
	}
}

func TestResolveGrade(t *testing.T) {
	assert.Equal(t, "G4", ResolveGrade(model.Principal{Grade: "4", Roles: []string{"Grade.7"}}, "G1"))
	assert.Equal(t, "GCABIN CREW", ResolveGrade(model.Principal{Roles: []string{"Reader", "grade.Cabin_Crew"}}, "G1"))
	assert.Equal(t, "G1", ResolveGrade(model.Principal{Roles: []string{"Reader"}}, "1"))
	assert.Equal(t, "", ResolveGrade(model.Principal{}, ""))
}

type stubSearcher struct {
	chunks []model.PolicyChunk
	err    error
	got    Filter
}

func (s *stubSearcher) Search(_ context.Context, _ string, f Filter, _ int) ([]model.PolicyChunk, error) {
	s.got = f
	if s.err != nil {
		return nil, s.err
	}
	return f.Apply(s.chunks), nil
}

func TestCountRestrictedMatches(t *testing.T) {
	s := &stubSearcher{chunks: []model.PolicyChunk{
		{PolicyID: "HR", ClauseID: "1", Text: "secret", Visibility: model.Restricted},
		{PolicyID: "HR", ClauseID: "2", Text: "open", Visibility: model.Public},
		{PolicyID: "PAY", ClauseID: "9", Text: "secret", Visibility: model.Restricted},
	}}

	n, refs, err := CountRestrictedMatches(context.Background(), s, "salary")
	require.NoError(t, err)
	assert.True(t, s.got.RestrictedOnly)
	assert.Equal(t, 2, n)
	assert.Equal(t, []model.ClauseRef{{PolicyID: "HR", ClauseID: "1"}, {PolicyID: "PAY", ClauseID: "9"}}, refs)
}

func TestCountRestrictedMatchesError(t *testing.T) {
	boom := errors.New("down")
	_, _, err := CountRestrictedMatches(context.Background(), &stubSearcher{err: boom}, "q")
	assert.ErrorIs(t, err, boom)
}
