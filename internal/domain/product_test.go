package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateProductSlug(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		product CandidateProduct
		want    string
	}{
		{name: "ascii", product: CandidateProduct{Brand: "Sony", Model: "WF-1000XM5"}, want: "sony-wf-1000xm5"},
		{name: "punctuation collapses", product: CandidateProduct{Brand: " Bose ", Model: "QC  Ultra (2nd gen)!"}, want: "bose-qc-ultra-2nd-gen"},
		{name: "cyrillic", product: CandidateProduct{Brand: "Яндекс", Model: "Станция Мини"}, want: "яндекс-станция-мини"},
		{name: "cjk", product: CandidateProduct{Brand: "小米", Model: "手环 8"}, want: "小米-手环-8"},
		{name: "accents", product: CandidateProduct{Brand: "Métier", Model: "Café"}, want: "métier-café"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.product.Slug())
		})
	}
}

func TestCandidateProductSlugKeepsDistinctNonLatinNames(t *testing.T) {
	t.Parallel()

	a := CandidateProduct{Brand: "小米", Model: "手环 8"}
	b := CandidateProduct{Brand: "华为", Model: "手环 9"}
	assert.NotEmpty(t, a.Slug())
	assert.NotEqual(t, a.Slug(), b.Slug())
}
