package ci

import (
	"fmt"
	"io"
	"strings"
)

// SummaryAttachmentType is the attachment type rendered in the build summary tab
const SummaryAttachmentType = "Distributedtask.Core.Summary"

// Attacher publishes a rendered summary file to the CI host
type Attacher interface {
	Attach(path, title string) error
}

// Publisher writes logging commands understood by the pipeline agent
type Publisher struct {
	out io.Writer
}

// NewPublisher creates a publisher writing commands to out
func NewPublisher(out io.Writer) *Publisher {
	return &Publisher{out: out}
}

// Attach registers the file at path as a build summary section named title
func (p *Publisher) Attach(path, title string) error {
	_, err := fmt.Fprintf(p.out, "##vso[task.addattachment type=%s;name=%s;]%s\n",
		SummaryAttachmentType, escapeProperty(title), path)
	return err
}

// NopAttacher is used outside a pipeline
type NopAttacher struct{}

// Attach does nothing
func (NopAttacher) Attach(string, string) error { return nil }

var propertyEscaper = strings.NewReplacer(
	"%", "%AZP25",
	";", "%3B",
	"\r", "%0D",
	"\n", "%0A",
	"]", "%5D",
)

func escapeProperty(value string) string {
	return propertyEscaper.Replace(value)
}
