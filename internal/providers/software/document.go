package software

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gogpu/gg"
)

// block is one laid-out line of page content.
type block struct {
	height int
	// width as a fraction of the content column
	width float64
	shade float64
}

// document is a parsed page ready to rasterise.
type document struct {
	url        string
	title      string
	scripts    []string
	frames     []string
	background gg.RGBA
	accent     gg.RGBA
	blocks     []block
	image      image.Image
}

var backgroundStyle = regexp.MustCompile(`background(?:-color)?\s*:\s*(#[0-9a-fA-F]{3,8}|[a-zA-Z]+)`)

var hexColor = regexp.MustCompile(`^#?(?:[0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

var namedColors = map[string]string{
	"black": "000000", "silver": "c0c0c0", "gray": "808080", "grey": "808080",
	"white": "ffffff", "maroon": "800000", "red": "ff0000", "purple": "800080",
	"fuchsia": "ff00ff", "green": "008000", "lime": "00ff00", "olive": "808000",
	"yellow": "ffff00", "navy": "000080", "blue": "0000ff", "teal": "008080",
	"aqua": "00ffff", "orange": "ffa500",
}

// parseColor accepts hex notation and the basic named colors.
func parseColor(s string) (gg.RGBA, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if hex, ok := namedColors[s]; ok {
		return gg.Hex(hex), true
	}
	if !hexColor.MatchString(s) {
		return gg.RGBA{}, false
	}
	return gg.Hex(s), true
}

func blankDocument() *document {
	return &document{
		url:        "about:blank",
		background: gg.RGB(1, 1, 1),
		accent:     gg.RGB(0.9, 0.9, 0.9),
	}
}

// errorDocument is shown when a navigation fails.
func errorDocument(rawURL string) *document {
	doc := styledDocument(rawURL)
	doc.background = gg.RGB(0.98, 0.93, 0.93)
	doc.accent = gg.RGB(0.75, 0.2, 0.2)
	doc.blocks = []block{{height: 24, width: 0.5, shade: 0.3}, {height: 10, width: 0.8, shade: 0.6}}
	return doc
}

// styledDocument derives stable page colours from the URL.
func styledDocument(rawURL string) *document {
	h := fnv.New32a()
	_, _ = h.Write([]byte(rawURL))
	sum := h.Sum32()
	c := func(shift uint, lo, span float64) float64 {
		return lo + span*float64((sum>>shift)&0xff)/255
	}
	return &document{
		url:        rawURL,
		background: gg.RGB(c(0, 0.85, 0.15), c(8, 0.85, 0.15), c(16, 0.85, 0.15)),
		accent:     gg.RGB(c(16, 0.2, 0.5), c(0, 0.2, 0.5), c(8, 0.2, 0.5)),
	}
}

// parseDocument sniffs data and builds the page it describes.
func parseDocument(rawURL string, data []byte) (*document, error) {
	doc := styledDocument(rawURL)
	mtype := mimetype.Detect(data)

	switch {
	case mtype.Is("text/html"), mtype.Is("application/xhtml+xml"):
		if err := doc.parseHTML(toUTF8(data)); err != nil {
			return nil, err
		}
	case strings.HasPrefix(mtype.String(), "image/"):
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", mtype.String(), err)
		}
		doc.image = img
	default:
		for _, line := range strings.Split(string(toUTF8(data)), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			doc.blocks = append(doc.blocks, textBlock(line, 10, 0.55))
		}
	}
	return doc, nil
}

func (d *document) parseHTML(data []byte) error {
	html, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	d.title = strings.TrimSpace(html.Find("title").First().Text())

	body := html.Find("body").First()
	if bg, ok := body.Attr("bgcolor"); ok {
		if c, ok := parseColor(bg); ok {
			d.background = c
		}
	} else if style, ok := body.Attr("style"); ok {
		if m := backgroundStyle.FindStringSubmatch(style); m != nil {
			if c, ok := parseColor(m[1]); ok {
				d.background = c
			}
		}
	}

	html.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if typ, ok := s.Attr("type"); ok && typ != "" && !strings.Contains(typ, "javascript") {
			return
		}
		if src := strings.TrimSpace(s.Text()); src != "" {
			d.scripts = append(d.scripts, src)
		}
	})

	base, _ := url.Parse(d.url)
	html.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		d.frames = append(d.frames, resolve(base, src))
	})

	body.Find("h1,h2,h3,h4,h5,h6,p,li,pre,blockquote,img").Each(func(_ int, s *goquery.Selection) {
		switch name := goquery.NodeName(s); name {
		case "h1":
			d.blocks = append(d.blocks, textBlock(s.Text(), 24, 0.15))
		case "h2", "h3":
			d.blocks = append(d.blocks, textBlock(s.Text(), 18, 0.25))
		case "h4", "h5", "h6":
			d.blocks = append(d.blocks, textBlock(s.Text(), 14, 0.3))
		case "img":
			d.blocks = append(d.blocks, block{height: 48, width: 0.3, shade: 0.7})
		default:
			d.blocks = append(d.blocks, textBlock(s.Text(), 10, 0.55))
		}
	})
	return nil
}

// textBlock sizes a bar by the length of the text it stands for.
func textBlock(text string, height int, shade float64) block {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	width := float64(n) / 80
	if width < 0.1 {
		width = 0.1
	}
	if width > 1 {
		width = 1
	}
	return block{height: height, width: width, shade: shade}
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
