package pdf

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

func newDocument() core.Maroto {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	return maroto.New(cfg)
}

func buildInvoice(invoice InvoiceData) ([]byte, error) {
	m := newDocument()

	m.AddRow(12,
		text.NewCol(8, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, invoice.DocumentID, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.DocumentID, props.Text{Top: 0}),
			text.New("Date of issue: "+date(invoice.IssueDate), props.Text{Top: 4}),
			text.New("Date due: "+date(invoice.DueDate), props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(invoice.CustomerRef, props.Text{Top: 4}),
		),
	)

	partyRow(m, invoice)
	itemTable(m, invoice)

	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Paid", props.Text{Size: 9}),
		text.NewCol(2, money(invoice.PaidAmount), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Amount due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, money(invoice.Balance), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

// partyRow prints the account owner and the bank account the customer pays into.
func partyRow(m core.Maroto, invoice InvoiceData) {
	if invoice.AccountOwner == "" && invoice.BankAccount == "" && invoice.Category == "" {
		return
	}
	m.AddRow(16,
		col.New(6).Add(
			text.New("Account owner", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(invoice.AccountOwner, props.Text{Top: 4, Size: 9}),
		),
		col.New(6).Add(
			text.New("Pay to", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(invoice.BankAccount, props.Text{Top: 4, Size: 9}),
			text.New(invoice.Category, props.Text{Top: 8, Size: 8}),
		),
	)
}

func itemTable(m core.Maroto, invoice InvoiceData) {
	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(6, invoice.ProductRef, props.Text{Size: 9}),
		text.NewCol(2, fmt.Sprintf("%d", invoice.Quantity), props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, money(invoice.UnitPrice), props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, money(invoice.Amount), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9}),
		text.NewCol(2, money(invoice.Amount), props.Text{Size: 9, Align: align.Right}),
	)
}
