package jobpath

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// DefaultTemplate names a job's working directory after the job id under
// the shared working directory.
const DefaultTemplate = "{{ .WorkingDir }}/kylin-{{ .JobID }}"

var ErrNoJobID = errors.New("job id is not set")

// Layout computes a job's working directory from its id.
type Layout struct {
	workingDir string
	tmpl       *template.Template
}

type templateData struct {
	WorkingDir string
	JobID      string
}

// New parses tmplText (sprig functions available). An empty template selects
// DefaultTemplate. Trailing slashes on workingDir are dropped.
func New(workingDir, tmplText string) (*Layout, error) {
	if tmplText == "" {
		tmplText = DefaultTemplate
	}
	tmpl, err := template.New("job_dir").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(tmplText)
	if err != nil {
		return nil, fmt.Errorf("parse job dir template: %w", err)
	}
	return &Layout{
		workingDir: strings.TrimRight(workingDir, "/"),
		tmpl:       tmpl,
	}, nil
}

// WorkingDir returns the shared working directory without trailing slash.
func (l *Layout) WorkingDir() string { return l.workingDir }

// JobWorkingDir renders the template for jobID.
func (l *Layout) JobWorkingDir(jobID string) (string, error) {
	if jobID == "" {
		return "", ErrNoJobID
	}

	var buf bytes.Buffer
	if err := l.tmpl.Execute(&buf, templateData{WorkingDir: l.workingDir, JobID: jobID}); err != nil {
		return "", fmt.Errorf("render job dir for %s: %w", jobID, err)
	}
	dir := strings.TrimSpace(buf.String())
	if dir == "" {
		return "", fmt.Errorf("job dir template rendered empty path for %s", jobID)
	}
	return dir, nil
}
