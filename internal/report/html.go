package report

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/maraichr/creditlens/internal/registry"
	"github.com/maraichr/creditlens/pkg/models"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

const page = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 60rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
table { border-collapse: collapse; margin-bottom: 1rem; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: left; }
blockquote { border-left: 4px solid #c90; margin: 0; padding-left: 1rem; color: #864; }
</style>
</head>
<body>
%s
</body>
</html>
`

// HTML renders s as a standalone page. Raw HTML in the markdown is not
// passed through, so document text cannot inject markup.
func HTML(s *models.RunState) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(s, Options{})), &body); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	title := html.EscapeString("Credit analysis " + registry.Format(s.SubjectID))
	return fmt.Appendf(nil, page, title, body.String()), nil
}
