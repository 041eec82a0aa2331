package models

// Branch carries the fields collected by one funnel. Exactly one concrete
// type exists per funnel intent; the session's Intent always matches
// Branch.BranchIntent().
type Branch interface {
	BranchIntent() Intent
	clone() Branch
}

// DocumentType names one of the documents required for financing.
type DocumentType string

const (
	DocumentIdentity  DocumentType = "rg"
	DocumentIncome    DocumentType = "income"
	DocumentResidence DocumentType = "residence"
)

// RequiredDocuments is the fixed upload order for financing.
var RequiredDocuments = []DocumentType{DocumentIdentity, DocumentIncome, DocumentResidence}

// MediaRef points at a stored upload.
type MediaRef struct {
	Location string `json:"location"`
	Mimetype string `json:"mimetype"`
	Tag      string `json:"tag"`
}

// DocumentUpload is a received financing document.
type DocumentUpload struct {
	Type DocumentType `json:"type"`
	Ref  MediaRef     `json:"ref"`
}

// VehicleDescriptor describes a customer's own car for trade-in or sale.
type VehicleDescriptor struct {
	Model     string    `json:"model,omitempty"`
	Year      string    `json:"year,omitempty"`
	Condition string    `json:"condition,omitempty"`
	Photo     *MediaRef `json:"photo,omitempty"`
}

func (d VehicleDescriptor) copy() VehicleDescriptor {
	if d.Photo != nil {
		p := *d.Photo
		d.Photo = &p
	}
	return d
}

// PurchaseData is the cash-purchase branch.
type PurchaseData struct {
	Vehicle *Vehicle
}

func (b *PurchaseData) BranchIntent() Intent { return IntentBuy }

func (b *PurchaseData) clone() Branch {
	c := *b
	c.Vehicle = b.Vehicle.copyPtr()
	return &c
}

// FinanceData is the financing branch.
type FinanceData struct {
	Vehicle      *Vehicle
	DownPayment  string
	Installments string
	CPF          string
	BirthDate    string
	Documents    []DocumentUpload
	Employment   string
}

func (b *FinanceData) BranchIntent() Intent { return IntentFinance }

func (b *FinanceData) clone() Branch {
	c := *b
	c.Vehicle = b.Vehicle.copyPtr()
	if b.Documents != nil {
		c.Documents = append([]DocumentUpload(nil), b.Documents...)
	}
	return &c
}

// NextDocument returns the next document expected, or false once all are in.
func (b *FinanceData) NextDocument() (DocumentType, bool) {
	if len(b.Documents) >= len(RequiredDocuments) {
		return "", false
	}
	return RequiredDocuments[len(b.Documents)], true
}

// Document returns the upload for a document type, if received.
func (b *FinanceData) Document(t DocumentType) (DocumentUpload, bool) {
	for _, d := range b.Documents {
		if d.Type == t {
			return d, true
		}
	}
	return DocumentUpload{}, false
}

// TradeInData is the trade-in branch: a stock vehicle wanted in exchange for the customer's.
type TradeInData struct {
	Wanted  *Vehicle
	Offered VehicleDescriptor
}

func (b *TradeInData) BranchIntent() Intent { return IntentTradeIn }

func (b *TradeInData) clone() Branch {
	c := *b
	c.Wanted = b.Wanted.copyPtr()
	c.Offered = b.Offered.copy()
	return &c
}

// SaleData is the sell or consign branch.
type SaleData struct {
	Consign bool
	Offered VehicleDescriptor
}

func (b *SaleData) BranchIntent() Intent {
	if b.Consign {
		return IntentConsign
	}
	return IntentSell
}

func (b *SaleData) clone() Branch {
	c := *b
	c.Offered = b.Offered.copy()
	return &c
}

// VisitData is the visit-scheduling branch.
type VisitData struct {
	Date     string `json:"date,omitempty"`
	Time     string `json:"time,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

func (b *VisitData) BranchIntent() Intent { return IntentVisit }

func (b *VisitData) clone() Branch {
	c := *b
	return &c
}

// Descriptor returns the customer-vehicle descriptor for trade-in and sale branches.
func Descriptor(b Branch) (*VehicleDescriptor, bool) {
	switch v := b.(type) {
	case *TradeInData:
		return &v.Offered, true
	case *SaleData:
		return &v.Offered, true
	default:
		return nil, false
	}
}
