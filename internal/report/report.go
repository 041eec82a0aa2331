// Package report renders a conversation session as the staff summary message.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/zailonsoft/carbot/internal/models"
)

// NotProvided marks a field the customer never answered.
const NotProvided = "Não informado"

// DefaultNotice is appended to every report.
const DefaultNotice = "Dados pessoais tratados conforme a LGPD (Lei 13.709/2018). Uso restrito à equipe comercial; não compartilhe fora da loja."

// Outcome values recorded on a report.
const (
	OutcomeCompleted = "completed"
	OutcomeAbandoned = "abandoned"
)

// Options carries the context that is not part of the session itself.
type Options struct {
	Contact  string
	PushName string
	Outcome  string
	At       time.Time
	Notice   string
	Location *time.Location
}

var intentLabels = map[models.Intent]string{
	models.IntentBuy:     "Compra à vista",
	models.IntentFinance: "Financiamento",
	models.IntentTradeIn: "Troca",
	models.IntentSell:    "Venda",
	models.IntentConsign: "Consignação",
	models.IntentVisit:   "Visita",
	models.IntentNone:    "Nenhum",
}

// Label returns the Portuguese label for an intent.
func Label(i models.Intent) string {
	if l, ok := intentLabels[i]; ok {
		return l
	}
	return string(i)
}

var documentLabels = map[models.DocumentType]string{
	models.DocumentIdentity:  "RG",
	models.DocumentIncome:    "Comprovante de renda",
	models.DocumentResidence: "Comprovante de residência",
}

// DocumentLabel returns the Portuguese name of a financing document.
func DocumentLabel(t models.DocumentType) string {
	if l, ok := documentLabels[t]; ok {
		return l
	}
	return string(t)
}

func orNot(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotProvided
	}
	return s
}

func vehicleName(v *models.Vehicle) string {
	if v == nil {
		return NotProvided
	}
	if v.Year != "" {
		return fmt.Sprintf("%s (%s)", v.Name, v.Year)
	}
	return v.Name
}

func received(ok bool) string {
	if ok {
		return "recebido"
	}
	return NotProvided
}

// Format renders the report body. It has no side effects and is deterministic
// for a given session and options.
func Format(sess *models.Session, opts Options) string {
	var b strings.Builder
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	outcome := "concluído"
	if opts.Outcome == OutcomeAbandoned {
		outcome = "abandonado"
	}

	b.WriteString("*Relatório de atendimento*\n")
	fmt.Fprintf(&b, "Contato: %s\n", orNot(opts.Contact))
	fmt.Fprintf(&b, "Nome no WhatsApp: %s\n", orNot(opts.PushName))
	fmt.Fprintf(&b, "Resultado: %s\n", outcome)
	fmt.Fprintf(&b, "Data: %s\n", opts.At.In(loc).Format("02/01/2006 15:04"))

	b.WriteString("\n*Interesses*\n")
	if sess.Intent.IsFunnel() {
		fmt.Fprintf(&b, "- Atual: %s", Label(sess.Intent))
		if v := sess.Vehicle(); v != nil {
			fmt.Fprintf(&b, " - %s", vehicleName(v))
		}
		b.WriteString("\n")
	}
	for _, in := range sess.Interests {
		fmt.Fprintf(&b, "- Anterior: %s", Label(in.Intent))
		if in.Vehicle != "" {
			fmt.Fprintf(&b, " - %s", in.Vehicle)
		}
		b.WriteString("\n")
	}
	if !sess.Intent.IsFunnel() && len(sess.Interests) == 0 {
		b.WriteString(NotProvided + "\n")
	}

	switch br := sess.Branch.(type) {
	case *models.PurchaseData:
		b.WriteString("\n*Compra à vista*\n")
		fmt.Fprintf(&b, "Veículo: %s\n", vehicleName(br.Vehicle))
		if br.Vehicle != nil {
			fmt.Fprintf(&b, "Preço anunciado: %s\n", orNot(string(br.Vehicle.Price)))
		}
	case *models.FinanceData:
		b.WriteString("\n*Financiamento*\n")
		fmt.Fprintf(&b, "Veículo: %s\n", vehicleName(br.Vehicle))
		fmt.Fprintf(&b, "Entrada: %s\n", orNot(br.DownPayment))
		fmt.Fprintf(&b, "Parcelas: %s\n", orNot(br.Installments))
		fmt.Fprintf(&b, "CPF: %s\n", orNot(br.CPF))
		fmt.Fprintf(&b, "Nascimento: %s\n", orNot(br.BirthDate))
		for _, dt := range models.RequiredDocuments {
			_, ok := br.Document(dt)
			fmt.Fprintf(&b, "%s: %s\n", DocumentLabel(dt), received(ok))
		}
		fmt.Fprintf(&b, "Emprego: %s\n", orNot(br.Employment))
	case *models.VisitData:
		b.WriteString("\n*Visita*\n")
		fmt.Fprintf(&b, "Data: %s\n", orNot(br.Date))
		fmt.Fprintf(&b, "Horário: %s\n", orNot(br.Time))
		fmt.Fprintf(&b, "Nome: %s\n", orNot(br.FullName))
	case *models.TradeInData:
		b.WriteString("\n*Troca*\n")
		fmt.Fprintf(&b, "Veículo desejado: %s\n", vehicleName(br.Wanted))
		writeDescriptor(&b, br.Offered)
	case *models.SaleData:
		if br.Consign {
			b.WriteString("\n*Consignação*\n")
		} else {
			b.WriteString("\n*Venda*\n")
		}
		writeDescriptor(&b, br.Offered)
	}

	notice := opts.Notice
	if notice == "" {
		notice = DefaultNotice
	}
	b.WriteString("\n_" + notice + "_")
	return b.String()
}

func writeDescriptor(b *strings.Builder, d models.VehicleDescriptor) {
	fmt.Fprintf(b, "Modelo do cliente: %s\n", orNot(d.Model))
	fmt.Fprintf(b, "Ano: %s\n", orNot(d.Year))
	fmt.Fprintf(b, "Estado: %s\n", orNot(d.Condition))
	fmt.Fprintf(b, "Foto: %s\n", received(d.Photo != nil))
}

// Attachments lists the stored media to forward after the report text:
// financing documents in upload order, then the customer's vehicle photo.
func Attachments(sess *models.Session) []models.MediaRef {
	var refs []models.MediaRef
	switch br := sess.Branch.(type) {
	case *models.FinanceData:
		for _, d := range br.Documents {
			refs = append(refs, d.Ref)
		}
	default:
		if d, ok := models.Descriptor(sess.Branch); ok && d.Photo != nil {
			refs = append(refs, *d.Photo)
		}
	}
	return refs
}
