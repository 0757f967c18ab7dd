package domain

import (
	"html"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// FieldErrors maps a field name to the first validation message reported for it.
type FieldErrors map[string]string

// Clone returns an independent copy.
func (e FieldErrors) Clone() FieldErrors {
	if e == nil {
		return FieldErrors{}
	}
	return maps.Clone(e)
}

// Fields returns the field names in sorted order.
func (e FieldErrors) Fields() []string {
	return slices.Sorted(maps.Keys(e))
}

// textPolicy strips all markup.
var textPolicy = bluemonday.StrictPolicy()

// markupSpan matches a complete start, end, or self-closing tag, or a comment.
var markupSpan = regexp.MustCompile(`(?s)<(?:/?[A-Za-z][A-Za-z0-9:-]*(?:\s[^<>]*)?/?|!--.*?--)>`)

// literalText escapes text between tags so the policy keeps it verbatim.
var literalText = strings.NewReplacer("&", "&amp;", "<", "&lt;")

// SanitizeText removes HTML tags from user-entered text. Only complete tags
// count as markup: a stray "<" such as "temp<high" or "<3" is kept, along
// with everything after it.
func SanitizeText(in string) string {
	if !strings.Contains(in, "<") {
		return in
	}
	spans := markupSpan.FindAllStringIndex(in, -1)
	if len(spans) == 0 {
		return in
	}
	var b strings.Builder
	last := 0
	for _, span := range spans {
		b.WriteString(literalText.Replace(in[last:span[0]]))
		b.WriteString(in[span[0]:span[1]])
		last = span[1]
	}
	b.WriteString(literalText.Replace(in[last:]))
	return html.UnescapeString(textPolicy.Sanitize(b.String()))
}

// Sanitized returns a copy of c with every free-text field stripped of markup.
func (c Complaint) Sanitized() Complaint {
	out := c.Clone()
	for _, field := range []*string{
		&out.CustomerName,
		&out.CustomerEmail,
		&out.Address,
		&out.Brand,
		&out.ProductName,
		&out.ModelNumber,
		&out.SerialNumber,
		&out.ProblemDescription,
		&out.Remarks,
	} {
		*field = SanitizeText(*field)
	}
	return out
}
