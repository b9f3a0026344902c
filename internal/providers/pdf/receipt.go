package pdf

import (
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

func buildReceipt(receipt ReceiptData) ([]byte, error) {
	m := newDocument()
	invoice := receipt.Invoice

	m.AddRow(12,
		text.NewCol(8, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, receipt.ReceiptID, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Receipt number: "+receipt.ReceiptID, props.Text{Top: 0}),
			text.New("Invoice number: "+invoice.DocumentID, props.Text{Top: 4}),
			text.New("Date paid: "+date(receipt.PaymentDate), props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Received from", props.Text{Style: fontstyle.Bold}),
			text.New(invoice.CustomerRef, props.Text{Top: 4}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, money(receipt.AmountApplied)+" paid on "+date(receipt.PaymentDate), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	partyRow(m, invoice)
	itemTable(m, invoice)

	if receipt.AmountTendered.GreaterThan(receipt.AmountApplied) {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, "Tendered", props.Text{Size: 9}),
			text.NewCol(2, money(receipt.AmountTendered), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Applied", props.Text{Size: 9}),
		text.NewCol(2, money(receipt.AmountApplied), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Balance", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, money(receipt.BalanceAfter), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
