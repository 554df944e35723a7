package qbo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Ref points at another accounting object.
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type EmailAddress struct {
	Address string `json:"Address"`
}

type PhoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber"`
}

// CompanyInfo describes the connected company.
type CompanyInfo struct {
	ID          string `json:"Id"`
	CompanyName string `json:"CompanyName"`
	LegalName   string `json:"LegalName,omitempty"`
	Country     string `json:"Country,omitempty"`
}

type Customer struct {
	ID               string        `json:"Id,omitempty"`
	SyncToken        string        `json:"SyncToken,omitempty"`
	DisplayName      string        `json:"DisplayName,omitempty"`
	GivenName        string        `json:"GivenName,omitempty"`
	FamilyName       string        `json:"FamilyName,omitempty"`
	PrimaryEmailAddr *EmailAddress `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *PhoneNumber  `json:"PrimaryPhone,omitempty"`
}

type LinkedTxn struct {
	TxnID   string `json:"TxnId"`
	TxnType string `json:"TxnType"`
}

type SalesItemLineDetail struct {
	ItemRef Ref `json:"ItemRef"`
}

type Line struct {
	DetailType          string               `json:"DetailType,omitempty"`
	Amount              float64              `json:"Amount"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
	LinkedTxn           []LinkedTxn          `json:"LinkedTxn,omitempty"`
}

type Invoice struct {
	ID          string  `json:"Id,omitempty"`
	Line        []Line  `json:"Line"`
	CustomerRef Ref     `json:"CustomerRef"`
	TotalAmt    float64 `json:"TotalAmt,omitempty"`
	Balance     float64 `json:"Balance,omitempty"`
}

type Payment struct {
	ID          string  `json:"Id,omitempty"`
	TotalAmt    float64 `json:"TotalAmt"`
	CustomerRef Ref     `json:"CustomerRef"`
	Line        []Line  `json:"Line,omitempty"`
}

// GetCompanyInfo returns the company of the realm.
func (c *Client) GetCompanyInfo(ctx context.Context) (*CompanyInfo, error) {
	var out struct {
		CompanyInfo CompanyInfo `json:"CompanyInfo"`
	}
	if err := c.get(ctx, "companyinfo/"+url.PathEscape(c.realmID), nil, &out); err != nil {
		return nil, err
	}
	return &out.CompanyInfo, nil
}

// quote escapes a value for the query language.
func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
}

// FindCustomers returns the customers whose primary email matches email.
func (c *Client) FindCustomers(ctx context.Context, email string) ([]Customer, error) {
	var out struct {
		QueryResponse struct {
			Customer []Customer `json:"Customer"`
		} `json:"QueryResponse"`
	}
	query := url.Values{"query": {"select * from Customer where PrimaryEmailAddr LIKE " + quote(email)}}
	if err := c.get(ctx, "query", query, &out); err != nil {
		return nil, err
	}
	return out.QueryResponse.Customer, nil
}

func (c *Client) CreateCustomer(ctx context.Context, customer *Customer) (*Customer, error) {
	var out struct {
		Customer Customer `json:"Customer"`
	}
	if err := c.post(ctx, "customer", customer, &out); err != nil {
		return nil, err
	}
	return &out.Customer, nil
}

func (c *Client) CreateInvoice(ctx context.Context, invoice *Invoice) (*Invoice, error) {
	var out struct {
		Invoice Invoice `json:"Invoice"`
	}
	if err := c.post(ctx, "invoice", invoice, &out); err != nil {
		return nil, err
	}
	return &out.Invoice, nil
}

func (c *Client) CreatePayment(ctx context.Context, payment *Payment) (*Payment, error) {
	var out struct {
		Payment Payment `json:"Payment"`
	}
	if err := c.post(ctx, "payment", payment, &out); err != nil {
		return nil, err
	}
	return &out.Payment, nil
}

// CustomerParams identifies a customer by email.
type CustomerParams struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// GetOrCreateCustomer returns the first customer with the email, creating
// one when none exists.
func (c *Client) GetOrCreateCustomer(ctx context.Context, p CustomerParams) (*Customer, error) {
	if p.Email == "" {
		return nil, fmt.Errorf("customer email is required")
	}
	found, err := c.FindCustomers(ctx, p.Email)
	if err != nil {
		return nil, fmt.Errorf("find customers: %w", err)
	}
	if len(found) > 0 {
		return &found[0], nil
	}

	customer := &Customer{
		DisplayName:      p.Email,
		GivenName:        p.FirstName,
		FamilyName:       p.LastName,
		PrimaryEmailAddr: &EmailAddress{Address: p.Email},
	}
	if p.Phone != "" {
		customer.PrimaryPhone = &PhoneNumber{FreeFormNumber: p.Phone}
	}
	return c.CreateCustomer(ctx, customer)
}

// ServicesItem is the default sales item invoices are booked against.
var ServicesItem = Ref{Value: "1", Name: "Services"}

// CreateInvoiceAndPayment books amount for the customer and records a
// payment settling the invoice.
func (c *Client) CreateInvoiceAndPayment(ctx context.Context, p CustomerParams, amount float64) (*Invoice, *Payment, error) {
	customer, err := c.GetOrCreateCustomer(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	customerRef := Ref{Value: customer.ID}

	invoice, err := c.CreateInvoice(ctx, &Invoice{
		Line: []Line{{
			DetailType:          "SalesItemLineDetail",
			Amount:              amount,
			SalesItemLineDetail: &SalesItemLineDetail{ItemRef: ServicesItem},
		}},
		CustomerRef: customerRef,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create invoice: %w", err)
	}

	payment, err := c.CreatePayment(ctx, &Payment{
		TotalAmt:    amount,
		CustomerRef: customerRef,
		Line: []Line{{
			Amount:    amount,
			LinkedTxn: []LinkedTxn{{TxnID: invoice.ID, TxnType: "Invoice"}},
		}},
	})
	if err != nil {
		return invoice, nil, fmt.Errorf("create payment: %w", err)
	}
	return invoice, payment, nil
}
