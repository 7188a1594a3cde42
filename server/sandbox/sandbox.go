// Package sandbox moves HTML written by the model out of the reply text and
// into a standalone document, referenced from the text by an iframe.
//
// Only the first ```html fence is replaced. A fence that is still open at
// the end of the text (a reply that is still streaming) counts as a block.
// The first ```css and ```js fences anywhere in the text are folded into
// the document.
package sandbox

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/coral-p2025/coral/server/metrics"
)

// DefaultPlaceholderURL is the image service used for images that fail to
// load. Width and height are appended as path segments.
const DefaultPlaceholderURL = "https://picsum.photos"

var (
	openHTMLFence = regexp.MustCompile("```html([\\s\\S]+)")
	htmlFenceSpan = regexp.MustCompile("```html([\\s\\S]+?)(```|$)")

	htmlBlock = regexp.MustCompile("```(?:html)\\n([\\s\\S]*?)(```|$)")
	cssBlock  = regexp.MustCompile("```(?:css)\\n([\\s\\S]*?)```")
	jsBlock   = regexp.MustCompile("```(?:js)\\n([\\s\\S]*?)```")

	imgTag = regexp.MustCompile(`<img([\s\S]+?)>`)
)

// Registrar stores a rendered document and returns the address it can be
// loaded from.
type Registrar interface {
	Register(document string) string
}

// RegistrarFunc adapts a function to Registrar.
type RegistrarFunc func(document string) string

// Register implements Registrar.
func (f RegistrarFunc) Register(document string) string { return f(document) }

// Block holds the fenced sources found in a text.
type Block struct {
	HTML string
	CSS  string
	JS   string

	HasHTML bool
	HasCSS  bool
	HasJS   bool
}

// ExtractBlock finds the first html, css and js fences in content. The html
// fence may be unterminated; css and js fences must be closed.
func ExtractBlock(content string) Block {
	var b Block
	if m := htmlBlock.FindStringSubmatch(content); m != nil {
		b.HTML, b.HasHTML = m[1], true
	}
	if m := cssBlock.FindStringSubmatch(content); m != nil {
		b.CSS, b.HasCSS = m[1], true
	}
	if m := jsBlock.FindStringSubmatch(content); m != nil {
		b.JS, b.HasJS = m[1], true
	}
	return b
}

// Document assembles the block into one HTML document: styles first, then
// the markup, then the script. It is empty without an html fence.
func (b Block) Document() string {
	if !b.HasHTML {
		return ""
	}
	var sb strings.Builder
	if b.HasCSS {
		sb.WriteString("<style>")
		sb.WriteString(b.CSS)
		sb.WriteString("</style>")
	}
	sb.WriteString(b.HTML)
	if b.HasJS {
		sb.WriteString("<script>")
		sb.WriteString(b.JS)
		sb.WriteString("</script>")
	}
	return sb.String()
}

// ReconstructHTML is ExtractBlock(content).Document().
func ReconstructHTML(content string) string {
	return ExtractBlock(content).Document()
}

// AddImageFallback is AddImageFallbackWith using DefaultPlaceholderURL.
func AddImageFallback(html string) string {
	return AddImageFallbackWith(html, DefaultPlaceholderURL)
}

// AddImageFallbackWith gives every <img> tag in html an error handler that
// swaps in a placeholder of the same size, then appends the handler
// definition. The handler clears itself after the first failure.
func AddImageFallbackWith(html, placeholderURL string) string {
	html = imgTag.ReplaceAllStringFunc(html, func(tag string) string {
		return strings.Replace(tag, ">", ` onError="onImageError(this)">`, 1)
	})
	return html + imageFallbackScript(placeholderURL)
}

func imageFallbackScript(placeholderURL string) string {
	base := strings.TrimRight(placeholderURL, "/") + "/"
	base = strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(base)
	return `
<script>
  function onImageError(element) {
    element.src = '` + base + `' + element.width + '/' + element.height;
    element.onerror = null;
  }
</script>
`
}

// IframeFor returns the marker that replaces a block loaded from address.
func IframeFor(address string) string {
	return `<iframe data-src="` + address + `"></iframe>`
}

// ReplaceCodeBlockWithIframe replaces the first html fence of content with
// an iframe pointing at the assembled document registered with reg.
// Content without an html fence, or a nil reg, returns content unchanged
// and nothing is registered.
func ReplaceCodeBlockWithIframe(content string, reg Registrar) string {
	out, _ := replace(content, reg, DefaultPlaceholderURL)
	return out
}

func replace(content string, reg Registrar, placeholderURL string) (string, bool) {
	if reg == nil || !openHTMLFence.MatchString(content) {
		return content, false
	}

	doc := AddImageFallbackWith(ReconstructHTML(content), placeholderURL)
	iframe := IframeFor(reg.Register(doc))

	loc := htmlFenceSpan.FindStringIndex(content)
	return content[:loc[0]] + iframe + content[loc[1]:], true
}

// Transformer applies ReplaceCodeBlockWithIframe with a configured
// placeholder service and records what it did.
type Transformer struct {
	registrar      Registrar
	placeholderURL string
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// NewTransformer returns a Transformer registering documents with reg. An
// empty placeholderURL selects DefaultPlaceholderURL.
func NewTransformer(reg Registrar, placeholderURL string, logger *zap.Logger, m *metrics.Metrics) *Transformer {
	if placeholderURL == "" {
		placeholderURL = DefaultPlaceholderURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{
		registrar:      reg,
		placeholderURL: placeholderURL,
		logger:         logger,
		metrics:        m,
	}
}

// Transform is ReplaceCodeBlockWithIframe with the transformer's settings.
func (t *Transformer) Transform(content string) string {
	out, embedded := replace(content, t.registrar, t.placeholderURL)

	result := "unchanged"
	if embedded {
		result = "embedded"
		t.logger.Debug("embedded html block",
			zap.Int("content_length", len(content)),
			zap.Int("output_length", len(out)),
		)
	}
	if t.metrics != nil {
		t.metrics.SandboxTransforms.WithLabelValues(result).Inc()
	}
	return out
}
