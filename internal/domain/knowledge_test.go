package domain

import "testing"

func TestParseSourceType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want SourceType
	}{
		{"ResearchPaper", SourceResearchPaper},
		{"Website", SourceWebsite},
		{"Video", SourceVideo},
		{"API", SourceAPI},
		{"", SourceDocument},
		{"garbage", SourceDocument},
		{"research paper", SourceDocument},
	}
	for _, tc := range cases {
		if got := ParseSourceType(tc.in); got != tc.want {
			t.Fatalf("ParseSourceType(%q): got=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestParseConceptType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want ConceptType
	}{
		{"Person", ConceptPerson},
		{"Organization", ConceptOrganization},
		{"Technology", ConceptTechnology},
		{"Location", ConceptLocation},
		{"Event", ConceptEvent},
		{"", ConceptTopic},
		{"alien artifact", ConceptTopic},
	}
	for _, tc := range cases {
		if got := ParseConceptType(tc.in); got != tc.want {
			t.Fatalf("ParseConceptType(%q): got=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestNewIDUnique(t *testing.T) {
	t.Parallel()

	a, b := NewID(), NewID()
	if a == "" || b == "" {
		t.Fatalf("NewID returned empty id")
	}
	if a == b {
		t.Fatalf("NewID returned duplicate id %q", a)
	}
}
