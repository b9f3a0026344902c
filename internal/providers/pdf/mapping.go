package pdf

import (
	"time"

	instancedomain "github.com/smallbiznis/backoffice/internal/instance/domain"
	scheduledomain "github.com/smallbiznis/backoffice/internal/schedule/domain"
)

// Account is the schedule metadata printed beside a recurring invoice.
type Account struct {
	Category     string
	AccountOwner string
	BankAccount  string
}

func AccountFromSchedule(s scheduledomain.Schedule) *Account {
	return &Account{
		Category:     deref(s.Category),
		AccountOwner: deref(s.AccountOwner),
		BankAccount:  deref(s.BankAccount),
	}
}

// InvoiceFor maps an instance onto the printed invoice. account may be nil for one-off bills.
func InvoiceFor(inst instancedomain.Instance, issuedAt time.Time, account *Account) InvoiceData {
	data := InvoiceData{
		DocumentID:  inst.DocumentID,
		CustomerRef: inst.CustomerRef,
		ProductRef:  inst.ProductRef,
		IssueDate:   issuedAt,
		DueDate:     inst.DueDate,
		Quantity:    inst.Quantity,
		UnitPrice:   inst.UnitPrice,
		Amount:      inst.Amount,
		PaidAmount:  inst.PaidAmount,
		Balance:     inst.Balance,
	}
	if account != nil {
		data.Category = account.Category
		data.AccountOwner = account.AccountOwner
		data.BankAccount = account.BankAccount
	}
	return data
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
