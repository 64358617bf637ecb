// Package report renders the monthly treasury report as a PDF.
package report

import (
	"bytes"
	"fmt"

	"github.com/phpdave11/gofpdf"

	"tesouraria/internal/core"
)

// Monthly is everything the report needs for one church and month.
type Monthly struct {
	ChurchName string
	Period     core.Period
	Entries    []core.Entry
	Totals     core.Totals
}

// BuildMonthlyPDF renders the report: an income table, an expense
// table and the month's totals. Entries keep their given order.
func BuildMonthlyPDF(m *Monthly) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Relatório Mensal - "+m.ChurchName), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr(m.ChurchName))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, tr(fmt.Sprintf("Relatório Mensal: %s", m.Period.Label())))
	pdf.Ln(10)

	var income, expense []core.Entry
	for _, e := range m.Entries {
		if e.IsExpense() {
			expense = append(expense, e)
		} else {
			income = append(income, e)
		}
	}

	writeTable(pdf, tr, "Entradas", income)
	writeTable(pdf, tr, "Saídas", expense)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Resumo")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(90, 7, "Total de Entradas")
	pdf.Cell(0, 7, "R$ "+m.Totals.Income.StringFixed(2))
	pdf.Ln(7)
	pdf.Cell(90, 7, tr("Total de Saídas"))
	pdf.Cell(0, 7, "R$ "+m.Totals.Expense.StringFixed(2))
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(90, 7, "Saldo")
	pdf.Cell(0, 7, "R$ "+m.Totals.Balance.StringFixed(2))
	pdf.Ln(10)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(pdf *gofpdf.Fpdf, tr func(string) string, title string, entries []core.Entry) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, tr(title))
	pdf.Ln(8)

	if len(entries) == 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.Cell(0, 7, tr("Nenhum lançamento"))
		pdf.Ln(10)
		return
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(25, 7, "Data")
	pdf.Cell(80, 7, tr("Descrição"))
	pdf.Cell(50, 7, "Categoria")
	pdf.Cell(0, 7, "Valor")
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "", 11)
	for _, e := range entries {
		pdf.Cell(25, 7, e.Date.Format("02/01"))
		pdf.Cell(80, 7, tr(e.Title))
		pdf.Cell(50, 7, tr(core.CategoryTitle(e.Category)))
		pdf.Cell(0, 7, "R$ "+e.DisplayValue())
		pdf.Ln(7)
	}
	pdf.Ln(3)
}
