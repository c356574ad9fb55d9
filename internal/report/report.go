package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/agenthands/bayesnet/internal/core/inference"
	"github.com/agenthands/bayesnet/internal/core/model"
)

var printer = message.NewPrinter(language.English)

// Probability formats p with four decimals.
func Probability(p float64) string {
	return printer.Sprintf("%.4f", p)
}

// Count formats n with thousands separators.
func Count(n int) string {
	return printer.Sprintf("%d", n)
}

// CPDTable lays out a CPD with one column per parent combination and one row
// per node state. Parent values of a combination are stacked in the header cell.
func CPDTable(c *model.CPD) [][]string {
	rows := c.NumRows()
	header := make([]string, 0, rows+1)
	if len(c.Parents) == 0 {
		header = append(header, c.Node.Name, "")
	} else {
		header = append(header, strings.Join(c.ParentNames(), "\n"))
		for i := 0; i < rows; i++ {
			combo := c.Combination(i)
			values := make([]string, len(combo))
			for k, s := range combo {
				values[k] = c.Parents[k].States[s]
			}
			header = append(header, strings.Join(values, "\n"))
		}
	}
	t := [][]string{header}
	for s, state := range c.Node.States {
		line := make([]string, 0, rows+1)
		line = append(line, fmt.Sprintf("%s(%s)", c.Node.Name, state))
		for i := 0; i < rows; i++ {
			line = append(line, Probability(c.Row(i)[s]))
		}
		t = append(t, line)
	}
	return t
}

// WriteCPD prints a CPD table followed by any estimation warnings.
func WriteCPD(w io.Writer, c *model.CPD) {
	PrettyPrint(w, CPDTable(c), HeaderRow)
	for _, warn := range c.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

// DistributionTable lists every joint assignment of the targets with its
// probability.
func DistributionTable(d *inference.Distribution) [][]string {
	names := d.Names()
	header := append(append([]string{}, names...), fmt.Sprintf("P(%s)", strings.Join(names, ",")))
	t := [][]string{header}
	for _, e := range d.Entries() {
		row := make([]string, 0, len(names)+1)
		for _, n := range names {
			row = append(row, e.Assignment[n])
		}
		row = append(row, Probability(e.P))
		t = append(t, row)
	}
	return t
}

func WriteDistribution(w io.Writer, d *inference.Distribution) {
	PrettyPrint(w, DistributionTable(d), HeaderRow)
}

// WriteValidation prints the outcome of model.Check: a single line when the
// model is valid, otherwise one table row per violation.
func WriteValidation(w io.Writer, err error) {
	if err == nil {
		fmt.Fprintln(w, "Model is valid: true")
		return
	}
	fmt.Fprintln(w, "Model is valid: false")
	var errs model.ValidationErrors
	if !errors.As(err, &errs) {
		fmt.Fprintf(w, "  %v\n", err)
		return
	}
	t := [][]string{{"Kind", "Node", "Combination", "Detail"}}
	for _, e := range errs {
		combo := ""
		if e.Combination != nil {
			combo = model.FormatAssignment(e.Combination)
		}
		t = append(t, []string{string(e.Kind), e.Node, combo, e.Detail})
	}
	t = append(t, []string{"", "", "", Count(len(errs)) + " violations"})
	PrettyPrint(w, t, HeaderRow|FooterRow)
}
