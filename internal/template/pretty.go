package template

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// indentUnit is the indentation written per nesting level.
const indentUnit = "  "

var blockTags = map[string]bool{
	"html": true, "head": true, "body": true, "title": true, "meta": true,
	"link": true, "script": true, "style": true, "noscript": true,
	"div": true, "p": true, "section": true, "article": true, "header": true,
	"footer": true, "nav": true, "main": true, "aside": true, "figure": true,
	"blockquote": true, "pre": true, "hr": true, "form": true, "fieldset": true,
	"ul": true, "ol": true, "li": true, "dl": true, "dt": true, "dd": true,
	"table": true, "thead": true, "tbody": true, "tfoot": true, "tr": true,
	"td": true, "th": true, "select": true, "option": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

var voidTags = map[string]bool{
	"meta": true, "link": true, "hr": true,
}

// implicitEnds lists, per start tag, the open elements it closes without
// an end tag when they are innermost.
var implicitEnds = map[string][]string{
	"li":     {"li"},
	"dt":     {"dt", "dd"},
	"dd":     {"dt", "dd"},
	"tr":     {"tr", "td", "th"},
	"td":     {"td", "th"},
	"th":     {"td", "th"},
	"thead":  {"thead", "tbody", "tfoot", "tr", "td", "th"},
	"tbody":  {"thead", "tbody", "tfoot", "tr", "td", "th"},
	"tfoot":  {"thead", "tbody", "tfoot", "tr", "td", "th"},
	"option": {"option"},
}

// closesP holds the block tags that end an open <p>.
var closesP = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "header": true,
	"footer": true, "nav": true, "main": true, "aside": true, "figure": true,
	"blockquote": true, "pre": true, "hr": true, "form": true, "fieldset": true,
	"ul": true, "ol": true, "dl": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

type openBlock struct {
	tag      string
	hasBlock bool
}

type indenter struct {
	out   bytes.Buffer
	stack []*openBlock
	// boundary is set while the last thing written was a block tag.
	boundary bool
	// pending is whitespace that separates inline content and must survive
	// as a single space unless a block boundary follows.
	pending bool
}

func (in *indenter) newline() {
	if in.out.Len() > 0 {
		in.out.WriteByte('\n')
	}
	in.out.WriteString(strings.Repeat(indentUnit, len(in.stack)))
}

// inline writes content that is not a block boundary.
func (in *indenter) inline(raw []byte) {
	if in.pending {
		in.out.WriteByte(' ')
		in.pending = false
	}
	in.out.Write(raw)
	in.boundary = false
}

// block marks a block boundary; whitespace before it is insignificant.
func (in *indenter) block() {
	in.pending = false
	in.boundary = true
}

func (in *indenter) top() *openBlock {
	if len(in.stack) == 0 {
		return nil
	}
	return in.stack[len(in.stack)-1]
}

// closeImplied pops the elements a start tag ends without an end tag.
func (in *indenter) closeImplied(tag string) {
	for top := in.top(); top != nil; top = in.top() {
		closes := false
		for _, t := range implicitEnds[tag] {
			if top.tag == t {
				closes = true
				break
			}
		}
		if !closes && !(top.tag == "p" && closesP[tag]) {
			return
		}
		in.stack = in.stack[:len(in.stack)-1]
	}
}

// closeTo pops down to and including the innermost open tag and returns it,
// or nil for a stray end tag.
func (in *indenter) closeTo(tag string) *openBlock {
	for i := len(in.stack) - 1; i >= 0; i-- {
		if in.stack[i].tag == tag {
			b := in.stack[i]
			in.stack = in.stack[:i]
			return b
		}
	}
	return nil
}

// Indent re-indents markup so that every block-level element starts on its
// own line. Everything else, including inline elements and embedded PHP, is
// copied byte for byte. Whitespace-only text spanning lines is replaced by
// the computed indentation next to block boundaries and by a single space
// between inline content; the contents of <pre> are never touched.
func Indent(markup []byte) []byte {
	in := &indenter{boundary: true}
	pre := 0

	z := html.NewTokenizer(bytes.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				// Unparseable tail; keep it as written.
				in.inline(z.Raw())
			}
			break
		}

		raw := z.Raw()
		if pre > 0 {
			in.out.Write(raw)
			if tt == html.EndTagToken {
				if name, _ := z.TagName(); string(name) == "pre" {
					pre--
					if pre == 0 {
						in.closeTo("pre")
						in.block()
					}
				}
			} else if tt == html.StartTagToken {
				if name, _ := z.TagName(); string(name) == "pre" {
					pre++
				}
			}
			continue
		}

		switch tt {
		case html.TextToken:
			if len(bytes.TrimSpace(raw)) == 0 && bytes.ContainsRune(raw, '\n') {
				if !in.boundary {
					in.pending = true
				}
				continue
			}
			in.inline(raw)

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if !blockTags[tag] {
				in.inline(raw)
				continue
			}
			in.closeImplied(tag)
			if top := in.top(); top != nil {
				top.hasBlock = true
			}
			in.newline()
			in.out.Write(raw)
			in.block()
			if tt == html.StartTagToken && !voidTags[tag] {
				in.stack = append(in.stack, &openBlock{tag: tag})
				if tag == "pre" {
					pre = 1
				}
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if !blockTags[tag] {
				in.inline(raw)
				continue
			}
			closed := in.closeTo(tag)
			if closed == nil {
				in.inline(raw)
				continue
			}
			if closed.hasBlock {
				in.newline()
			}
			in.out.Write(raw)
			in.block()

		case html.DoctypeToken:
			in.newline()
			in.out.Write(raw)
			in.block()

		default:
			in.inline(raw)
		}
	}

	return in.out.Bytes()
}
