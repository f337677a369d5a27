package htmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

func TestClassifierExtract(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("백엔드 서비스를 설계하고 운영합니다. ", 15)
	cases := []struct {
		name   string
		html   string
		want   crawler.ContentType
		images int
	}{
		{
			name: "text without images",
			html: `<div><p>짧은 공고</p></div>`,
			want: crawler.ContentText,
		},
		{
			name:   "short text with poster",
			html:   `<div><img src="//img.example.com/poster.png"><p>채용</p></div>`,
			want:   crawler.ContentImage,
			images: 1,
		},
		{
			name:   "long text with keywords",
			html:   `<div><h3>주요업무</h3><p>` + long + `</p><img src="/a.png"></div>`,
			want:   crawler.ContentText,
			images: 1,
		},
		{
			name:   "long text without keywords",
			html:   `<div><p>` + long + `</p><img src="/a.png"></div>`,
			want:   crawler.ContentImage,
			images: 1,
		},
	}
	c := NewClassifier(0, nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := c.Extract([]byte(tc.html))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Type)
			assert.Len(t, got.Images, tc.images)
		})
	}
}

func TestClassifierDropsHiddenNodes(t *testing.T) {
	t.Parallel()

	html := `<div>
		<script>var x = 1;</script>
		<p hidden>hidden paragraph</p>
		<span style="display: none">invisible</span>
		<span class="blind">screen reader</span>
		<p>담당업무<br>API 개발</p>
		<img src="//cdn.example.com/x.jpg">
	</div>`
	got, err := NewClassifier(0, nil).Extract([]byte(html))
	require.NoError(t, err)
	assert.Equal(t, "담당업무\nAPI 개발", got.Text)
	assert.Equal(t, []string{"https://cdn.example.com/x.jpg"}, got.Images)
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(`<html><head><meta property="og:title" content=" Acme "></head>
		<body><h2>복리후생</h2><ul class="list freeform"><li>식대</li><li> 야근  택시비 </li></ul>
		<dd class="desc">서울 강남구<span class="tooltip">자세히</span></dd></body></html>`))
	require.NoError(t, err)

	assert.Equal(t, "Acme", Meta(doc, "og:title"))
	section := SectionAfter(doc.Selection, "h2", "복리후생")
	assert.Equal(t, "freeform", LastClass(section))
	assert.Equal(t, []string{"식대", "야근 택시비"}, Texts(section.Find("li")))
	assert.Equal(t, "서울 강남구", OwnText(doc.Find("dd.desc")))
	assert.Equal(t, 0, SectionAfter(doc.Selection, "h2", "기업정보").Length())
}
