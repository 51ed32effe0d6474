// Package parse implements the structural program model: it decomposes a Go
// template into a preface plus an ordered list of top-level functions, renders
// it back deterministically, discovers role directives, and recovers function
// bodies from free-form model output.
package parse

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// ParseError reports template source the Go parser rejected.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("template does not parse: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NotFoundError reports a function name absent from the program.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("function %q does not exist in program", e.Name)
}

// AmbiguousNameError reports a function name defined more than once.
type AmbiguousNameError struct {
	Name string
}

func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("function %q exists more than once in program", e.Name)
}

// Function is one top-level function captured from template source.
// Recv, Params and Results hold the literal text fragments from the original
// source so a re-render reproduces them byte for byte. Doc holds the comment
// lines above the function verbatim, including any //funch: directives.
type Function struct {
	Name    string
	Recv    string
	Params  string
	Results string
	Doc     []string
	Body    string
}

// Header rebuilds the function signature line, up to and including the
// opening brace.
func (f *Function) Header() string {
	var b strings.Builder
	b.WriteString("func ")
	if f.Recv != "" {
		b.WriteString("(")
		b.WriteString(f.Recv)
		b.WriteString(") ")
	}
	b.WriteString(f.Name)
	b.WriteString("(")
	b.WriteString(f.Params)
	b.WriteString(")")
	if f.Results != "" {
		b.WriteString(" ")
		b.WriteString(f.Results)
	}
	b.WriteString(" {")
	return b.String()
}

// SetBody replaces the function body, trimming leading and trailing blank
// lines so the invariant on Body always holds.
func (f *Function) SetBody(body string) {
	f.Body = strings.Trim(body, "\n")
}

// String renders the full definition: doc lines, header, body, closing brace
// and two trailing blank lines.
func (f *Function) String() string {
	var b strings.Builder
	for _, line := range f.Doc {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(f.Header())
	b.WriteString("\n")
	if f.Body != "" {
		b.WriteString(f.Body)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
	return b.String()
}

func (f *Function) clone() *Function {
	c := *f
	c.Doc = append([]string(nil), f.Doc...)
	return &c
}

// Program is a parsed template: the preface (package clause, imports and any
// declarations before the first function) plus the functions in source order.
type Program struct {
	Preface   string
	Functions []*Function
}

// Render produces the canonical text form of the program. Rendering is
// byte-deterministic and idempotent: parsing the rendered text yields an
// identical function list.
func (p *Program) Render() string {
	var b strings.Builder
	if p.Preface != "" {
		b.WriteString(p.Preface)
		b.WriteString("\n\n")
	}
	for _, f := range p.Functions {
		b.WriteString(f.String())
	}
	return b.String()
}

func (p *Program) String() string { return p.Render() }

// Clone deep-copies the program so body substitution never mutates the
// template held by evaluator builders.
func (p *Program) Clone() *Program {
	c := &Program{Preface: p.Preface, Functions: make([]*Function, len(p.Functions))}
	for i, f := range p.Functions {
		c.Functions[i] = f.clone()
	}
	return c
}

// Function looks up a top-level function by exact name.
func (p *Program) Function(name string) (*Function, error) {
	var found *Function
	for _, f := range p.Functions {
		if f.Name == name {
			if found != nil {
				return nil, &AmbiguousNameError{Name: name}
			}
			found = f
		}
	}
	if found == nil {
		return nil, &NotFoundError{Name: name}
	}
	return found, nil
}

// ParseProgram decomposes Go source into a Program. Everything before the
// first top-level function (or its doc comment) is the preface; each function
// is captured with its literal signature fragments and verbatim body lines.
func ParseProgram(src string) (*Program, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "template.go", src, parser.ParseComments)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	lines := strings.Split(src, "\n")
	prog := &Program{}
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		if len(prog.Functions) == 0 {
			start := fd.Pos()
			if fd.Doc != nil {
				start = fd.Doc.Pos()
			}
			startLine := fset.Position(start).Line
			prog.Preface = strings.TrimRight(strings.Join(lines[:startLine-1], "\n"), "\n")
		}
		prog.Functions = append(prog.Functions, captureFunction(fset, src, fd))
	}
	if len(prog.Functions) == 0 {
		prog.Preface = strings.TrimRight(src, "\n")
	}
	return prog, nil
}

func captureFunction(fset *token.FileSet, src string, fd *ast.FuncDecl) *Function {
	fn := &Function{Name: fd.Name.Name}
	if fd.Recv != nil {
		fn.Recv = sliceBetween(fset, src, fd.Recv.Opening+1, fd.Recv.Closing)
	}
	if fd.Type.Params != nil {
		fn.Params = sliceBetween(fset, src, fd.Type.Params.Opening+1, fd.Type.Params.Closing)
	}
	if fd.Type.Results != nil {
		end := fd.End()
		if fd.Body != nil {
			end = fd.Body.Lbrace
		}
		fn.Results = strings.TrimSpace(sliceBetween(fset, src, fd.Type.Params.Closing+1, end))
	}
	if fd.Doc != nil {
		for _, c := range fd.Doc.List {
			fn.Doc = append(fn.Doc, strings.Split(c.Text, "\n")...)
		}
	}
	if fd.Body != nil {
		fn.SetBody(normalizeBody(sliceBetween(fset, src, fd.Body.Lbrace+1, fd.Body.Rbrace)))
	}
	return fn
}

// normalizeBody shapes the raw text between the braces into the canonical
// body form. Interior lines are kept verbatim; statements sharing a line with
// either brace are hoisted onto their own indented line so nothing is lost
// and the canonical form stays stable.
func normalizeBody(raw string) string {
	lines := strings.Split(raw, "\n")
	if len(lines) == 1 {
		if inner := strings.TrimSpace(raw); inner != "" {
			return "\t" + inner
		}
		return ""
	}
	head := strings.TrimSpace(lines[0])
	tail := strings.TrimSpace(lines[len(lines)-1])
	out := make([]string, 0, len(lines))
	if head != "" {
		out = append(out, "\t"+head)
	}
	out = append(out, lines[1:len(lines)-1]...)
	if tail != "" {
		out = append(out, "\t"+tail)
	}
	return strings.Join(out, "\n")
}

func sliceBetween(fset *token.FileSet, src string, from, to token.Pos) string {
	return src[fset.Position(from).Offset:fset.Position(to).Offset]
}
