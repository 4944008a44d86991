package security

import "regexp"

var (
	scriptPattern  = regexp.MustCompile(`(?is)<script[^>]*?>.*?</script>`)
	// U swaps greediness: a style match runs to the last </style>.
	stylePattern   = regexp.MustCompile(`(?isU)<style[^>]*?>.*?</style>`)
	commentPattern = regexp.MustCompile(`<![\s\S]*?--[ \t\n\r]*>`)
)

// SanitizeOptions selects which markup SanitizeMarkup strips.
type SanitizeOptions struct {
	Scripts  bool
	Styles   bool
	Comments bool
}

// DefaultSanitize strips everything.
var DefaultSanitize = SanitizeOptions{Scripts: true, Styles: true, Comments: true}

// SanitizeMarkup removes <script> and <style> elements (with their content)
// and multi-line markup comments from input. It is a pattern substitution,
// not an HTML parser.
func SanitizeMarkup(input string, opts SanitizeOptions) string {
	if opts.Scripts {
		input = scriptPattern.ReplaceAllString(input, "")
	}
	if opts.Styles {
		input = stylePattern.ReplaceAllString(input, "")
	}
	if opts.Comments {
		input = commentPattern.ReplaceAllString(input, "")
	}
	return input
}
