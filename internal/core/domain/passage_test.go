package domain

import "testing"

func TestReferencesParsesDirectAndCitationTokens(t *testing.T) {
	p := CandidatePassage{Metadata: map[string]string{
		MetaRefs: "p-12, customs act#article 94, , enforcement decree#article 101-2",
	}}
	refs := p.References()
	if len(refs) != 3 {
		t.Fatalf("refs = %+v, want 3", refs)
	}
	if !refs[0].Direct() || refs[0].PassageID != "p-12" {
		t.Fatalf("refs[0] = %+v", refs[0])
	}
	if refs[1].Direct() || refs[1].LawName != "customs act" || refs[1].Article != "article 94" {
		t.Fatalf("refs[1] = %+v", refs[1])
	}
	if refs[2].Article != "article 101-2" {
		t.Fatalf("refs[2] = %+v", refs[2])
	}

	if refs := (CandidatePassage{}).References(); refs != nil {
		t.Fatalf("expected nil refs without metadata, got %+v", refs)
	}
}

func TestSimilarityFromDistanceClamps(t *testing.T) {
	cases := []struct{ distance, want float64 }{
		{0, 1},
		{0.25, 0.75},
		{1, 0},
		{1.5, 0},
		{-0.5, 1},
	}
	for _, tc := range cases {
		if got := SimilarityFromDistance(tc.distance); got != tc.want {
			t.Fatalf("SimilarityFromDistance(%v) = %v, want %v", tc.distance, got, tc.want)
		}
	}
}
