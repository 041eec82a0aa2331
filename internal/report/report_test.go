package report

import (
	"strings"
	"testing"
	"time"

	"github.com/zailonsoft/carbot/internal/models"
)

var at = time.Date(2025, 7, 10, 15, 4, 0, 0, time.UTC)

func TestFormatFinanceDefaultsMissingFields(t *testing.T) {
	sess := models.NewSession("5511999999999@s.whatsapp.net", at)
	sess.Begin(&models.FinanceData{
		Vehicle:     &models.Vehicle{Name: "Gol", Year: "2019"},
		DownPayment: "5000",
		Documents: []models.DocumentUpload{
			{Type: models.DocumentIdentity, Ref: models.MediaRef{Location: "a.jpg"}},
		},
	}, at)

	got := Format(sess, Options{Contact: "5511999999999", Outcome: OutcomeCompleted, At: at})

	for _, want := range []string{
		"Contato: 5511999999999",
		"Resultado: concluído",
		"Data: 10/07/2025 15:04",
		"- Atual: Financiamento - Gol (2019)",
		"*Financiamento*",
		"Entrada: 5000",
		"Parcelas: " + NotProvided,
		"CPF: " + NotProvided,
		"RG: recebido",
		"Comprovante de renda: " + NotProvided,
		"Emprego: " + NotProvided,
		DefaultNotice,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "*Visita*") || strings.Contains(got, "*Troca*") {
		t.Errorf("report contains sections for absent branches:\n%s", got)
	}
}

func TestFormatIsDeterministic(t *testing.T) {
	sess := models.NewSession("c1", at)
	sess.Begin(&models.VisitData{Date: "amanhã", Time: "14:30", FullName: "Ana Souza"}, at)
	opts := Options{Contact: "c1", At: at, Notice: "aviso"}
	if Format(sess, opts) != Format(sess, opts) {
		t.Fatal("Format output differs between calls")
	}
	got := Format(sess, opts)
	for _, want := range []string{"*Visita*", "Horário: 14:30", "Nome: Ana Souza", "_aviso_"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestFormatAbandonedWithHistory(t *testing.T) {
	sess := models.NewSession("c1", at)
	sess.Begin(&models.PurchaseData{Vehicle: &models.Vehicle{Name: "Onix"}}, at)
	sess.Archive(at)
	sess.Begin(&models.SaleData{Consign: true, Offered: models.VehicleDescriptor{Model: "Uno", Year: "2012"}}, at)

	got := Format(sess, Options{Outcome: OutcomeAbandoned, At: at})
	for _, want := range []string{
		"Resultado: abandonado",
		"Contato: " + NotProvided,
		"- Anterior: Compra à vista - Onix",
		"- Atual: Consignação",
		"*Consignação*",
		"Modelo do cliente: Uno",
		"Estado: " + NotProvided,
		"Foto: " + NotProvided,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestFormatNoInterests(t *testing.T) {
	got := Format(models.NewSession("c1", at), Options{At: at})
	if !strings.Contains(got, "*Interesses*\n"+NotProvided) {
		t.Errorf("empty interests not marked:\n%s", got)
	}
}

func TestAttachments(t *testing.T) {
	sess := models.NewSession("c1", at)
	sess.Begin(&models.FinanceData{Documents: []models.DocumentUpload{
		{Type: models.DocumentIdentity, Ref: models.MediaRef{Location: "rg.jpg"}},
		{Type: models.DocumentIncome, Ref: models.MediaRef{Location: "income.pdf"}},
	}}, at)
	refs := Attachments(sess)
	if len(refs) != 2 || refs[0].Location != "rg.jpg" || refs[1].Location != "income.pdf" {
		t.Errorf("finance attachments = %+v", refs)
	}

	photo := &models.MediaRef{Location: "car.jpg"}
	sess.Begin(&models.TradeInData{Offered: models.VehicleDescriptor{Photo: photo}}, at)
	refs = Attachments(sess)
	if len(refs) != 1 || refs[0].Location != "car.jpg" {
		t.Errorf("trade-in attachments = %+v", refs)
	}

	sess.Begin(&models.VisitData{}, at)
	if refs := Attachments(sess); len(refs) != 0 {
		t.Errorf("visit attachments = %+v", refs)
	}
}
