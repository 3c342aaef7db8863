package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptData is a fully formatted payment receipt. All amounts are display strings.
type ReceiptData struct {
	CompanyName   string
	CompanyEmail  string
	ReceiptNumber string
	PaymentRef    string
	DatePaid      string
	ServicePeriod string

	CustomerName  string
	CustomerEmail string

	PlanName string
	Amount   string
	Provider string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(6, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(6, receipt.CompanyName, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Receipt number: "+receipt.ReceiptNumber, props.Text{Top: 0}),
			text.New("Payment reference: "+receipt.PaymentRef, props.Text{Top: 4}),
			text.New("Date paid: "+receipt.DatePaid, props.Text{Top: 8}),
			text.New("Service period: "+receipt.ServicePeriod, props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New("Billed to", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(receipt.CustomerName, props.Text{Top: 5, Align: align.Right}),
			text.New(receipt.CustomerEmail, props.Text{Top: 9, Align: align.Right}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, receipt.Amount+" paid on "+receipt.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))
	m.AddRow(12,
		text.NewCol(8, "MediaVault "+receipt.PlanName+" plan, 1 month", props.Text{Size: 9}),
		text.NewCol(4, receipt.Amount, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, receipt.Amount, props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(15,
		text.NewCol(12, "Paid via "+receipt.Provider+". Questions? "+receipt.CompanyEmail, props.Text{
			Size: 8,
			Top:  8,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
