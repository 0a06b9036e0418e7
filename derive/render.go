package derive

import (
	"bytes"
	"embed"
	"fmt"
	"go/format"
	"io"
	"slices"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Default names of the receiver and of the scanner parameter.
const (
	receiverName = "v"
	scannerName  = "scanner"
)

// localName returns base, or base followed by a number, avoiding taken.
// Type parameters are in scope in the method, so a receiver or parameter
// with the same name would be a redeclaration.
func localName(base string, taken ...string) string {
	name := base
	for i := 1; slices.Contains(taken, name); i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	return name
}

type markerData struct {
	Method string
	Doc    string
}

type scanData struct {
	Name       string
	Recv       string
	Var        string
	ScannerVar string
	Qualifier  string
	Scanner    string
	Markers    []markerData
	Statements []string
}

type finalizeData struct {
	Name       string
	Recv       string
	Var        string
	Method     string
	Statements []string
}

// Render writes the marker methods and the Scan method of the plan.
func (p *ScanPlan) Render(w io.Writer) error {
	rt := p.opts.Runtime.withDefaults()
	q := p.opts.qualifier()
	taken := append(slices.Clone(p.Type.TypeParams), q)
	recv := localName(receiverName, taken...)
	scanner := localName(scannerName, append(taken, recv)...)
	data := scanData{
		Name:       p.Type.Name,
		Recv:       p.Type.Expr(),
		Var:        recv,
		ScannerVar: scanner,
		Qualifier:  q,
		Scanner:    rt.Scanner,
	}
	for _, m := range p.Markers {
		data.Markers = append(data.Markers, markerData{Method: m.Method(), Doc: m.doc()})
	}
	for _, f := range p.Fragments() {
		data.Statements = append(data.Statements, f.statement(recv, scanner, q, rt))
	}
	return execute(w, "scan.tmpl", data)
}

// Render writes the finalize method of the plan.
func (p *FinalizePlan) Render(w io.Writer) error {
	rt := p.opts.Runtime.withDefaults()
	q := p.opts.qualifier()
	recv := localName(receiverName, append(slices.Clone(p.Type.TypeParams), q)...)
	data := finalizeData{
		Name:   p.Type.Name,
		Recv:   p.Type.Expr(),
		Var:    recv,
		Method: p.Mode.Method(),
	}
	for _, f := range p.Fragments() {
		data.Statements = append(data.Statements, f.statement(recv, "", q, rt))
	}
	return execute(w, "finalize.tmpl", data)
}

func execute(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("executing %s: %w", name, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("formatting generated code: %w\n%s", err, buf.String())
	}
	_, err = w.Write(src)
	return err
}
