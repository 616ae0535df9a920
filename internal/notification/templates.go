// Package notification renders patron notices and dispatches them to
// configured channels (log, email, SMS, webhook).
package notification

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/BurntSushi/toml"
)

// Transport is the delivery channel a notice is rendered for.
type Transport string

const (
	TransportEmail Transport = "email"
	TransportSMS   Transport = "sms"
)

// CodePickupReady is sent when a loan has arrived and is ready for pickup.
const CodePickupReady = "ILL_PICKUP_READY"

// Notice is a rendered message descriptor.
type Notice struct {
	Transport    Transport `json:"transport"`
	TemplateCode string    `json:"template_code"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
}

// Data is the template context for request notices.
type Data struct {
	RequestID int64
	OrderID   string
	Title     string
	Author    string
	Branch    string
	DueDate   string
	Library   string
}

// templateDef is one [notices.CODE.transport] table of the TOML file.
type templateDef struct {
	Title   string `toml:"title"`
	Content string `toml:"content"`
}

type templateFile struct {
	Notices map[string]map[string]templateDef `toml:"notices"`
}

const defaultTemplates = `
[notices.ILL_PICKUP_READY.email]
title = "Interlibrary loan ready for pickup"
content = """
Your interlibrary loan has arrived{{if .Branch}} at {{.Branch}}{{end}}.

  {{.Title}}{{if .Author}} / {{.Author}}{{end}}
{{- if .DueDate}}

Please return it no later than {{.DueDate}}.
{{- end}}
"""

[notices.ILL_PICKUP_READY.sms]
title = "ILL pickup"
content = "Fjärrlån att hämta: {{.Title}}{{if .DueDate}}. Åter senast {{.DueDate}}{{end}}."
`

type compiled struct {
	title   *template.Template
	content *template.Template
}

// Templates is a parsed notice template set keyed by code and transport.
type Templates struct {
	byKey map[string]compiled
}

func key(code string, t Transport) string {
	return code + "/" + string(t)
}

// DefaultTemplates returns the built-in template set.
func DefaultTemplates() *Templates {
	t, err := ParseTemplates(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("notification: built-in templates invalid: %v", err))
	}
	return t
}

// LoadTemplates reads a TOML template file. Codes it does not define fall
// back to the built-in defaults. An empty path yields the defaults.
func LoadTemplates(path string) (*Templates, error) {
	base := DefaultTemplates()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 - path comes from user config
	if err != nil {
		return nil, fmt.Errorf("failed to read notice templates: %w", err)
	}
	custom, err := ParseTemplates(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for k, v := range custom.byKey {
		base.byKey[k] = v
	}
	return base, nil
}

// ParseTemplates parses TOML template source.
func ParseTemplates(src string) (*Templates, error) {
	var file templateFile
	if _, err := toml.Decode(src, &file); err != nil {
		return nil, fmt.Errorf("failed to parse notice templates: %w", err)
	}
	t := &Templates{byKey: make(map[string]compiled)}
	for code, transports := range file.Notices {
		for transport, def := range transports {
			tr := Transport(strings.ToLower(transport))
			if tr != TransportEmail && tr != TransportSMS {
				return nil, fmt.Errorf("notice %s: unknown transport %q", code, transport)
			}
			title, err := template.New(key(code, tr) + ".title").Parse(def.Title)
			if err != nil {
				return nil, fmt.Errorf("notice %s/%s title: %w", code, tr, err)
			}
			content, err := template.New(key(code, tr) + ".content").Parse(def.Content)
			if err != nil {
				return nil, fmt.Errorf("notice %s/%s content: %w", code, tr, err)
			}
			t.byKey[key(code, tr)] = compiled{title: title, content: content}
		}
	}
	return t, nil
}

// Keys lists the defined code/transport pairs, sorted.
func (t *Templates) Keys() []string {
	keys := make([]string, 0, len(t.byKey))
	for k := range t.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render produces the notice for code over the given transport.
func (t *Templates) Render(code string, transport Transport, data Data) (*Notice, error) {
	c, ok := t.byKey[key(code, transport)]
	if !ok {
		return nil, fmt.Errorf("no %s template for notice %s", transport, code)
	}
	var title, content bytes.Buffer
	if err := c.title.Execute(&title, data); err != nil {
		return nil, fmt.Errorf("render %s title: %w", code, err)
	}
	if err := c.content.Execute(&content, data); err != nil {
		return nil, fmt.Errorf("render %s content: %w", code, err)
	}
	return &Notice{
		Transport:    transport,
		TemplateCode: code,
		Title:        strings.TrimSpace(title.String()),
		Content:      strings.TrimSpace(content.String()),
	}, nil
}

// RenderAll renders code for every transport, skipping ones with no template.
func (t *Templates) RenderAll(code string, data Data) ([]*Notice, error) {
	var out []*Notice
	for _, tr := range []Transport{TransportEmail, TransportSMS} {
		if _, ok := t.byKey[key(code, tr)]; !ok {
			continue
		}
		n, err := t.Render(code, tr, data)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no templates for notice %s", code)
	}
	return out, nil
}
