package epub

import (
	"bytes"
	"encoding/xml"
	"text/template"
)

var funcs = template.FuncMap{
	"xml": func(s string) (string, error) {
		var buf bytes.Buffer
		if err := xml.EscapeText(&buf, []byte(s)); err != nil {
			return "", err
		}
		return buf.String(), nil
	},
}

// The image is scaled by CSS only so each page fills the reader's viewport.
// Fixed-layout EPUB requires the viewport meta on every page document; its
// size is the page's pixel size and sets the rendering area, not the image.
var pageTemplate = template.Must(template.New("page").Funcs(funcs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
<title>{{xml .Title}}</title>
<meta name="viewport" content="width={{.Width}}, height={{.Height}}"/>
<style type="text/css">
html, body { margin: 0; padding: 0; width: 100%; height: 100%; }
body { display: block; text-align: center; }
img { max-width: 100%; max-height: 100%; width: auto; height: auto; }
</style>
</head>
<body>
<div><img src="{{xml .ImageHref}}" alt="{{xml .Title}}"/></div>
</body>
</html>
`))

var navTemplate = template.Must(template.New("nav").Funcs(funcs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
<title>{{xml .Title}}</title>
</head>
<body>
<nav epub:type="toc" id="toc">
<h1>{{xml .Title}}</h1>
<ol>
{{- range .Entries}}
<li><a href="{{xml .Href}}">{{xml .Label}}</a></li>
{{- end}}
</ol>
</nav>
</body>
</html>
`))

type pageData struct {
	Title     string
	ImageHref string
	Width     int
	Height    int
}

type navEntry struct {
	Href  string
	Label string
}

type navData struct {
	Title   string
	Entries []navEntry
}

func render(t *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
