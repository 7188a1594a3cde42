package sandbox

import (
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/coral-p2025/coral/server/metrics"
)

const fence = "```"

// recorder registers documents under sequential addresses.
type recorder struct {
	docs []string
}

func (r *recorder) Register(doc string) string {
	r.docs = append(r.docs, doc)
	return fmt.Sprintf("/v1/blobs/%d", len(r.docs))
}

func TestReplaceCodeBlockWithIframeIdentity(t *testing.T) {
	inputs := []string{
		"",
		"plain reply",
		fence + "css\nbody{}\n" + fence,
		fence + "js\nalert(1)\n" + fence,
		fence + "python\nprint('hi')\n" + fence,
		fence + "html",
		"inline `html` mention",
	}

	for _, in := range inputs {
		reg := &recorder{}
		assert.Equal(t, in, ReplaceCodeBlockWithIframe(in, reg), "input %q", in)
		assert.Empty(t, reg.docs, "nothing should be registered for %q", in)
	}
}

func TestReplaceCodeBlockWithIframe(t *testing.T) {
	reg := &recorder{}
	in := "Here you go:\n" + fence + "html\n<h1>Hi</h1>\n" + fence + "\nEnjoy."

	out := ReplaceCodeBlockWithIframe(in, reg)

	assert.Equal(t, "Here you go:\n<iframe data-src=\"/v1/blobs/1\"></iframe>\nEnjoy.", out)
	require.Len(t, reg.docs, 1)
	assert.True(t, strings.HasPrefix(reg.docs[0], "<h1>Hi</h1>\n"))
	assert.Contains(t, reg.docs[0], "function onImageError(element)")
}

func TestReplaceCodeBlockWithIframeUnterminated(t *testing.T) {
	reg := &recorder{}
	in := "Streaming:\n" + fence + "html\n<div>partial"

	out := ReplaceCodeBlockWithIframe(in, reg)

	assert.Equal(t, "Streaming:\n<iframe data-src=\"/v1/blobs/1\"></iframe>", out)
	require.Len(t, reg.docs, 1)
	assert.True(t, strings.HasPrefix(reg.docs[0], "<div>partial"))
}

func TestReplaceCodeBlockWithIframeNilRegistrar(t *testing.T) {
	in := "Here:\n" + fence + "html\n<p>hi</p>\n" + fence
	assert.NotPanics(t, func() {
		assert.Equal(t, in, ReplaceCodeBlockWithIframe(in, nil))
	})
	assert.Equal(t, in, NewTransformer(nil, "", nil, nil).Transform(in))
}

func TestReplaceCodeBlockWithIframeFirstOnly(t *testing.T) {
	reg := &recorder{}
	in := fence + "html\n<p>one</p>\n" + fence + "\n" + fence + "html\n<p>two</p>\n" + fence

	out := ReplaceCodeBlockWithIframe(in, reg)

	assert.Equal(t, "<iframe data-src=\"/v1/blobs/1\"></iframe>\n"+fence+"html\n<p>two</p>\n"+fence, out)
	require.Len(t, reg.docs, 1)
	assert.NotContains(t, reg.docs[0], "two")
}

func TestReconstructHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no html block",
			in:   fence + "css\nh1{}\n" + fence,
			want: "",
		},
		{
			name: "html only",
			in:   fence + "html\n<p>x</p>" + fence,
			want: "<p>x</p>",
		},
		{
			name: "css before html",
			in:   fence + "css\nh1{color:red}" + fence + "\n" + fence + "html\n<h1>x</h1>" + fence,
			want: "<style>h1{color:red}</style><h1>x</h1>",
		},
		{
			name: "css after html",
			in:   fence + "html\n<h1>x</h1>" + fence + "\n" + fence + "css\nh1{}" + fence,
			want: "<style>h1{}</style><h1>x</h1>",
		},
		{
			name: "js appended",
			in:   fence + "html\n<p id=a></p>" + fence + fence + "js\nlet a=1" + fence,
			want: "<p id=a></p><script>let a=1</script>",
		},
		{
			name: "unterminated css ignored",
			in:   fence + "html\n<p></p>" + fence + fence + "css\np{}",
			want: "<p></p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReconstructHTML(tt.in))
		})
	}
}

func TestReconstructHTMLStylePrecedesMarkup(t *testing.T) {
	for _, css := range []string{"a", "body { margin: 0 }", "h1{}\nh2{}\n"} {
		html := "<main>content</main>"
		in := fence + "html\n" + html + fence + "\n" + fence + "css\n" + css + fence
		assert.Equal(t, "<style>"+css+"</style>"+html, ReconstructHTML(in), "css %q", css)
	}
}

func TestAddImageFallback(t *testing.T) {
	html := `<img src="a.png" width="10"><p>x</p><img src="a.png" width="10"><img
  src="b.png">`

	out := AddImageFallback(html)

	assert.Equal(t, 3, strings.Count(out, `onError="onImageError(this)"`))
	assert.Contains(t, out, `<img src="a.png" width="10" onError="onImageError(this)"><p>x</p><img src="a.png" width="10" onError="onImageError(this)">`)
	assert.Equal(t, 1, strings.Count(out, "function onImageError"))
	assert.Contains(t, out, "'https://picsum.photos/' + element.width + '/' + element.height")
	assert.Contains(t, out, "element.onerror = null;")
}

func TestAddImageFallbackEachTagOnce(t *testing.T) {
	for n := 0; n < 5; n++ {
		html := strings.Repeat(`<img src="x.png">`, n)
		out := AddImageFallback(html)
		assert.Equal(t, n, strings.Count(out, `onError="onImageError(this)"`))
		for _, tag := range imgTag.FindAllString(out, -1) {
			assert.Equal(t, 1, strings.Count(tag, "onError="), "tag %q", tag)
		}
	}
}

func TestAddImageFallbackWithPlaceholder(t *testing.T) {
	out := AddImageFallbackWith("<p></p>", "https://placehold.co/")
	assert.Contains(t, out, "'https://placehold.co/' + element.width")
}

func TestTransformer(t *testing.T) {
	m := metrics.NewMetrics()
	store := NewMemoryStore("/v1/blobs", m)
	tr := NewTransformer(store, "https://placehold.co", zaptest.NewLogger(t), m)

	out := tr.Transform("see " + fence + "html\n<img src=\"x\">" + fence)
	assert.Equal(t, "no code", tr.Transform("no code"))

	require.True(t, strings.HasPrefix(out, `see <iframe data-src="/v1/blobs/`))
	address := strings.TrimSuffix(strings.TrimPrefix(out, `see <iframe data-src="`), `"></iframe>`)
	id, ok := store.IDFromAddress(address)
	require.True(t, ok)

	doc, ok := store.Get(id)
	require.True(t, ok)
	assert.Contains(t, doc, `<img src="x" onError="onImageError(this)">`)
	assert.Contains(t, doc, "https://placehold.co/")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SandboxTransforms.WithLabelValues("embedded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SandboxTransforms.WithLabelValues("unchanged")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BlobsStored))
}
