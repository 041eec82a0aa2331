package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zailonsoft/carbot/internal/catalog"
	"github.com/zailonsoft/carbot/internal/intent"
	"github.com/zailonsoft/carbot/internal/media"
	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/report"
	"github.com/zailonsoft/carbot/internal/validate"
)

// Media tag for the customer's vehicle photo.
const photoTag = "vehicle_photo"

// chooseVehicle stores v on the active branch and moves to the branch's next step.
func (e *Engine) chooseVehicle(t *turn, v *models.Vehicle) {
	sess := t.sess
	name := vehicleName(v) + " por " + catalog.FormatPrice(v.Price)
	switch b := sess.Branch.(type) {
	case *models.PurchaseData:
		b.Vehicle = v
		sess.Step = models.StepAwaitingConfirmation
		t.say(e.expand(e.msgs.ConfirmPurchase, "vehicle", name))
	case *models.FinanceData:
		b.Vehicle = v
		sess.Step = models.StepAwaitingDownPayment
		t.say(e.expand(e.msgs.AskDownPayment, "vehicle", name))
	case *models.TradeInData:
		b.Wanted = v
		sess.Step = models.StepAwaitingTradeModel
		t.say(e.expand(e.msgs.AskTradeModel))
	}
}

func (e *Engine) stepVehicle(ctx context.Context, t *turn) error {
	vs, err := e.vehicles(ctx)
	if err != nil {
		return err
	}
	v, ok := catalog.Match(vs, t.text)
	if !ok {
		return e.invalid(t, e.expand(e.msgs.VehicleNotFound))
	}
	e.chooseVehicle(t, v)
	return nil
}

func (e *Engine) stepConfirmation(ctx context.Context, t *turn) error {
	switch intent.ParseAnswer(t.text) {
	case intent.Yes:
		return e.complete(ctx, t)
	case intent.No:
		slog.Info("Engine customer declined", "conversation", t.sess.ID, "intent", t.sess.Intent)
		e.decline(t)
		return nil
	default:
		return e.invalid(t, e.expand(e.msgs.AnswerYesNo))
	}
}

// confirm moves to the confirmation step with the branch's summary prompt.
func (e *Engine) confirm(t *turn) {
	sess := t.sess
	sess.Step = models.StepAwaitingConfirmation
	switch b := sess.Branch.(type) {
	case *models.FinanceData:
		t.say(e.expand(e.msgs.ConfirmFinance, "vehicle", vehicleName(b.Vehicle)))
	case *models.TradeInData:
		t.say(e.expand(e.msgs.ConfirmTrade, "vehicle", vehicleName(b.Wanted), "offered", offered(b.Offered)))
	case *models.SaleData:
		tmpl := e.msgs.ConfirmSale
		if b.Consign {
			tmpl = e.msgs.ConfirmConsign
		}
		t.say(e.expand(tmpl, "offered", offered(b.Offered)))
	}
}

func vehicleName(v *models.Vehicle) string {
	if v == nil {
		return report.NotProvided
	}
	if v.Year != "" {
		return v.Name + " " + string(v.Year)
	}
	return v.Name
}

func offered(d models.VehicleDescriptor) string {
	return fmt.Sprintf("%s %s (%s)", d.Model, d.Year, d.Condition)
}

func (e *Engine) finance(t *turn) (*models.FinanceData, error) {
	b, ok := t.sess.Branch.(*models.FinanceData)
	if !ok {
		return nil, fmt.Errorf("step %s without a finance branch", t.sess.Step)
	}
	return b, nil
}

func (e *Engine) stepDownPayment(t *turn) error {
	b, err := e.finance(t)
	if err != nil {
		return err
	}
	if !validate.Amount(t.raw) {
		return e.invalid(t, e.expand(e.msgs.InvalidAmount))
	}
	b.DownPayment = t.raw
	t.sess.Step = models.StepAwaitingInstallments
	t.say(e.expand(e.msgs.AskInstallments))
	return nil
}

func (e *Engine) stepInstallments(t *turn) error {
	b, err := e.finance(t)
	if err != nil {
		return err
	}
	if !validate.Installments(t.raw) {
		return e.invalid(t, e.expand(e.msgs.InvalidInstallments))
	}
	b.Installments = t.raw
	t.sess.Step = models.StepAwaitingIDNumber
	t.say(e.expand(e.msgs.AskCPF))
	return nil
}

func (e *Engine) stepIDNumber(t *turn) error {
	b, err := e.finance(t)
	if err != nil {
		return err
	}
	if !validate.CPF(t.raw) {
		return e.invalid(t, e.expand(e.msgs.InvalidCPF))
	}
	b.CPF = t.raw
	t.sess.Step = models.StepAwaitingBirthDate
	t.say(e.expand(e.msgs.AskBirthDate))
	return nil
}

func (e *Engine) stepBirthDate(t *turn) error {
	b, err := e.finance(t)
	if err != nil {
		return err
	}
	if !validate.Date(t.raw) {
		return e.invalid(t, e.expand(e.msgs.InvalidBirthDate))
	}
	b.BirthDate = t.raw
	t.sess.Step = models.StepAwaitingDocuments
	next, _ := b.NextDocument()
	t.say(e.expand(e.msgs.AskDocument, "document", report.DocumentLabel(next)))
	return nil
}

// stepDocuments collects the required documents in order, one per message.
func (e *Engine) stepDocuments(ctx context.Context, t *turn) error {
	b, err := e.finance(t)
	if err != nil {
		return err
	}
	want, ok := b.NextDocument()
	if !ok {
		e.afterDocuments(t)
		return nil
	}
	if !t.msg.HasMedia || t.msg.Download == nil {
		return e.invalid(t, e.expand(e.msgs.DocumentExpected, "document", report.DocumentLabel(want)))
	}
	ref, err := e.saveUpload(ctx, t, string(want))
	if err != nil {
		return err
	}
	b.Documents = append(b.Documents, models.DocumentUpload{Type: want, Ref: ref})
	slog.Info("Engine document received", "conversation", t.sess.ID, "document", want, "location", ref.Location)

	next, more := b.NextDocument()
	if !more {
		e.afterDocuments(t)
		return nil
	}
	t.say(e.expand(e.msgs.DocumentReceived, "received", report.DocumentLabel(want), "document", report.DocumentLabel(next)))
	return nil
}

func (e *Engine) afterDocuments(t *turn) {
	if e.profile.Finance.RequireEmployment {
		t.sess.Step = models.StepAwaitingEmployment
		t.say(e.expand(e.msgs.AskEmployment))
		return
	}
	e.confirm(t)
}

func (e *Engine) stepEmployment(t *turn) error {
	b, err := e.finance(t)
	if err != nil {
		return err
	}
	if !validate.Condition(t.raw) {
		return e.invalid(t, e.expand(e.msgs.InvalidEmployment))
	}
	b.Employment = t.raw
	e.confirm(t)
	return nil
}

// saveUpload downloads the inbound attachment and saves it under tag.
func (e *Engine) saveUpload(ctx context.Context, t *turn, tag string) (models.MediaRef, error) {
	downloadCtx, cancel := e.bounded(ctx)
	m, err := t.msg.Download(downloadCtx)
	cancel()
	if err != nil {
		return models.MediaRef{}, external(depDownload, err)
	}
	if e.media == nil {
		return models.MediaRef{}, external(depMedia, fmt.Errorf("no media store configured"))
	}
	mime := media.DetectMimetype(m.Mimetype, m.Data)
	saveCtx, cancel := e.bounded(ctx)
	defer cancel()
	ref, err := e.media.Save(saveCtx, t.sess.ID, tag, mime, m.Data)
	if err != nil {
		return models.MediaRef{}, external(depMedia, err)
	}
	return ref, nil
}

func (e *Engine) descriptor(t *turn) (*models.VehicleDescriptor, error) {
	d, ok := models.Descriptor(t.sess.Branch)
	if !ok {
		return nil, fmt.Errorf("step %s without a vehicle descriptor branch", t.sess.Step)
	}
	return d, nil
}

// stepTradeModel accepts the model alone, or "model year condition" at once.
func (e *Engine) stepTradeModel(t *turn) error {
	d, err := e.descriptor(t)
	if err != nil {
		return err
	}
	if model, year, condition, ok := validate.SplitVehicleDescriptor(t.raw); ok {
		d.Model, d.Year, d.Condition = model, year, condition
		t.sess.Step = models.StepAwaitingTradePhoto
		t.say(e.expand(e.msgs.AskPhoto))
		return nil
	}
	if !validate.VehicleModel(t.raw) {
		return e.invalid(t, e.expand(e.msgs.InvalidModel))
	}
	d.Model = t.raw
	t.sess.Step = models.StepAwaitingTradeYear
	t.say(e.expand(e.msgs.AskTradeYear))
	return nil
}

func (e *Engine) stepTradeYear(t *turn) error {
	d, err := e.descriptor(t)
	if err != nil {
		return err
	}
	if !validate.VehicleYear(t.raw) {
		return e.invalid(t, e.expand(e.msgs.InvalidYear))
	}
	d.Year = t.raw
	t.sess.Step = models.StepAwaitingTradeCondition
	t.say(e.expand(e.msgs.AskCondition))
	return nil
}

func (e *Engine) stepTradeCondition(t *turn) error {
	d, err := e.descriptor(t)
	if err != nil {
		return err
	}
	if !validate.Condition(t.raw) {
		return e.invalid(t, e.expand(e.msgs.InvalidCondition))
	}
	d.Condition = t.raw
	t.sess.Step = models.StepAwaitingTradePhoto
	t.say(e.expand(e.msgs.AskPhoto))
	return nil
}

func (e *Engine) stepTradePhoto(ctx context.Context, t *turn) error {
	d, err := e.descriptor(t)
	if err != nil {
		return err
	}
	switch {
	case t.msg.HasMedia && t.msg.Download != nil:
		ref, err := e.saveUpload(ctx, t, photoTag)
		if err != nil {
			return err
		}
		d.Photo = &ref
	case intent.IsSkip(t.text):
		slog.Debug("Engine vehicle photo skipped", "conversation", t.sess.ID)
	default:
		return e.invalid(t, e.expand(e.msgs.PhotoExpected))
	}
	e.confirm(t)
	return nil
}

func (e *Engine) visit(t *turn) (*models.VisitData, error) {
	b, ok := t.sess.Branch.(*models.VisitData)
	if !ok {
		return nil, fmt.Errorf("step %s without a visit branch", t.sess.Step)
	}
	return b, nil
}

func (e *Engine) stepVisitDate(t *turn) error {
	b, err := e.visit(t)
	if err != nil {
		return err
	}
	if !validate.LooseDate(t.raw) {
		return e.invalid(t, e.expand(e.msgs.InvalidVisitDate))
	}
	b.Date = t.raw
	t.sess.Step = models.StepAwaitingVisitTime
	t.say(e.expand(e.msgs.AskVisitTime))
	return nil
}

func (e *Engine) stepVisitTime(t *turn) error {
	b, err := e.visit(t)
	if err != nil {
		return err
	}
	if !validate.VisitTime(t.raw) {
		return e.invalid(t, e.expand(e.msgs.InvalidVisitTime))
	}
	b.Time = t.raw
	t.sess.Step = models.StepAwaitingVisitName
	t.say(e.expand(e.msgs.AskVisitName))
	return nil
}

// stepVisitName completes the visit funnel; visits have no confirmation step.
func (e *Engine) stepVisitName(ctx context.Context, t *turn) error {
	b, err := e.visit(t)
	if err != nil {
		return err
	}
	if !validate.FullName(t.raw) {
		return e.invalid(t, e.expand(e.msgs.InvalidVisitName))
	}
	b.FullName = strings.Join(strings.Fields(t.raw), " ")
	return e.complete(ctx, t)
}
