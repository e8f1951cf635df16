package notify

import (
	"bytes"
	_ "embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

type templateSource struct {
	Subject string `yaml:"subject"`
	Text    string `yaml:"text"`
	HTML    string `yaml:"html"`
}

type templateFile struct {
	OTP     templateSource `yaml:"otp"`
	Message templateSource `yaml:"message"`
}

type emailTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

type rendered struct {
	Subject string
	Text    string
	HTML    string
}

// loadTemplates parses the YAML template file. Unknown keys are rejected.
func loadTemplates(data []byte) (otpTmpl, messageTmpl *emailTemplate, err error) {
	var file templateFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	otpTmpl, err = compileTemplate("otp", file.OTP)
	if err != nil {
		return nil, nil, err
	}
	messageTmpl, err = compileTemplate("message", file.Message)
	if err != nil {
		return nil, nil, err
	}
	return otpTmpl, messageTmpl, nil
}

func compileTemplate(name string, src templateSource) (*emailTemplate, error) {
	if src.Subject == "" || src.Text == "" {
		return nil, fmt.Errorf("email template %q missing subject or text", name)
	}
	subject, err := texttemplate.New(name + ".subject").Parse(src.Subject)
	if err != nil {
		return nil, fmt.Errorf("email template %q subject: %w", name, err)
	}
	text, err := texttemplate.New(name + ".text").Parse(src.Text)
	if err != nil {
		return nil, fmt.Errorf("email template %q text: %w", name, err)
	}
	html, err := htmltemplate.New(name + ".html").Parse(src.HTML)
	if err != nil {
		return nil, fmt.Errorf("email template %q html: %w", name, err)
	}
	return &emailTemplate{subject: subject, text: text, html: html}, nil
}

func (t *emailTemplate) render(data interface{}) (*rendered, error) {
	var subject, text, html bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return nil, err
	}
	if err := t.text.Execute(&text, data); err != nil {
		return nil, err
	}
	if err := t.html.Execute(&html, data); err != nil {
		return nil, err
	}
	return &rendered{Subject: subject.String(), Text: text.String(), HTML: html.String()}, nil
}
