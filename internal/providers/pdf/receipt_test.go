package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestGenerateReceipt(t *testing.T) {
	r, err := New().GenerateReceipt(context.Background(), ReceiptData{
		CompanyName:   "MediaVault",
		CompanyEmail:  "billing@mediavault.local",
		ReceiptNumber: "1234567890",
		PaymentRef:    "987654",
		DatePaid:      "2026-03-15",
		ServicePeriod: "2026-03-15 - 2026-04-15",
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		PlanName:      "Pro",
		Amount:        "299.00 EGP",
		Provider:      "paymob",
	})
	if err != nil {
		t.Fatalf("generate receipt: %v", err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF")) {
		t.Fatalf("expected pdf header, got %q", b[:min(len(b), 8)])
	}
}
