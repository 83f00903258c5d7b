package main

import (
	"bytes"
	"fmt"
	"io"
	"text/template"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"

	"shopchat-go/internal/view"
)

const entryTemplate = `
{{- if .IsError }}> ⚠️ {{ .Content }}
{{ else }}{{ .Content }}
{{ end }}
{{- with .Grid }}
### {{ .Title }}
{{ range .Products }}
- **{{ .Title }}** {{ price .LPrice }}{{ with .StrikePrice }} ~~{{ . }}~~{{ end }}{{ range .Badges }} [{{ . }}]{{ end }}
  {{ .MallName }}{{ with .Popularity }} · {{ . }}{{ end }}
{{- end }}

{{ .Summary }}
{{ end }}
{{- with .Analysis }}
---
{{ .EngineIcon }} {{ .Engine }} · {{ .IntentName }} ({{ .Confidence.Percent }}) · 안전망 {{ .SafetyNet }}
{{ end }}`

var entryTmpl = template.Must(template.New("entry").Funcs(template.FuncMap{
	"price": func(v int64) string { return humanize.Comma(v) + "원" },
}).Parse(entryTemplate))

// renderer 把消息渲染成 markdown，终端下再交给 glamour 上色。
type renderer struct {
	styled bool
}

func newRenderer(styled bool) *renderer {
	return &renderer{styled: styled}
}

func renderMarkdown(e view.Entry) (string, error) {
	var buffer bytes.Buffer
	if err := entryTmpl.Execute(&buffer, e); err != nil {
		return "", err
	}
	return buffer.String(), nil
}

func (r *renderer) write(w io.Writer, e view.Entry) error {
	md, err := renderMarkdown(e)
	if err != nil {
		return err
	}
	if r.styled {
		if md, err = glamour.Render(md, "dark"); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(w, md)
	return err
}
