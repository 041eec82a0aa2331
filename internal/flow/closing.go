package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/zailonsoft/carbot/internal/catalog"
	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/report"
)

// complete runs the terminal path: persist the client record, deliver the
// staff report, log it and queue the closing message. Nothing is committed
// when persistence fails or no staff contact received the report.
func (e *Engine) complete(ctx context.Context, t *turn) error {
	sess := t.sess
	body := report.Format(sess, e.reportOptions(sess, t.msg.PushName, report.OutcomeCompleted, t.now))

	rec := clientRecord(sess, t.msg.PushName, body)
	if err := e.saveClient(ctx, sess, rec); err != nil {
		return err
	}
	if err := e.deliverReport(ctx, sess, body, report.OutcomeCompleted); err != nil {
		return err
	}

	e.metrics.ObserveFunnel(string(sess.Intent), report.OutcomeCompleted)
	t.completed = true
	t.say(e.closing(sess))
	return nil
}

func (e *Engine) reportOptions(sess *models.Session, pushName, outcome string, at time.Time) report.Options {
	return report.Options{
		Contact:  contactPhone(sess.ID),
		PushName: pushName,
		Outcome:  outcome,
		At:       at,
		Notice:   e.profile.ComplianceNotice,
		Location: e.loc,
	}
}

func (e *Engine) closing(sess *models.Session) string {
	switch b := sess.Branch.(type) {
	case *models.PurchaseData:
		return e.expand(e.msgs.ClosingPurchase)
	case *models.FinanceData:
		return e.expand(e.msgs.ClosingFinance)
	case *models.TradeInData:
		return e.expand(e.msgs.ClosingTrade)
	case *models.SaleData:
		return e.expand(e.msgs.ClosingSale)
	case *models.VisitData:
		return e.expand(e.msgs.ClosingVisit, "date", b.Date, "time", b.Time, "name", firstName(b.FullName))
	default:
		return e.expand(e.msgs.Menu)
	}
}

func firstName(full string) string {
	if f := strings.Fields(full); len(f) > 0 {
		return f[0]
	}
	return full
}

// saveClient creates the client record on first completion and updates it
// afterwards. An update for an id the service no longer knows falls back to
// create. The assigned id is kept on the stored session even when a later
// step fails, so a retry does not create a duplicate record.
func (e *Engine) saveClient(ctx context.Context, sess *models.Session, rec models.ClientRecord) error {
	if sess.ClientID != "" {
		rec.ID = sess.ClientID
		callCtx, cancel := e.bounded(ctx)
		err := e.clients.UpdateClient(callCtx, sess.ClientID, rec)
		cancel()
		if err == nil {
			return nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return external(depClients, err)
		}
		slog.Warn("Engine client record missing, creating", "conversation", sess.ID, "client_id", sess.ClientID)
		rec.ID = ""
	}
	callCtx, cancel := e.bounded(ctx)
	id, err := e.clients.CreateClient(callCtx, rec)
	cancel()
	if err != nil {
		return external(depClients, err)
	}
	sess.ClientID = id
	if id != "" {
		if stored, ok := e.sessions.Get(sess.ID); ok {
			stored.ClientID = id
			e.sessions.Set(stored)
		}
	}
	return nil
}

// deliverReport sends body and its attachments to every staff contact and
// appends the result to the report log. It fails only when no contact
// received the text.
func (e *Engine) deliverReport(ctx context.Context, sess *models.Session, body, outcome string) error {
	contacts := e.profile.StaffContacts
	if len(contacts) == 0 {
		slog.Warn("Engine no staff contacts configured, report not delivered", "conversation", sess.ID)
		return nil
	}
	attachments := e.loadAttachments(ctx, sess)

	delivered := 0
	for _, to := range contacts {
		callCtx, cancel := e.bounded(ctx)
		err := e.sender.SendMessage(callCtx, to, body)
		cancel()
		e.metrics.ObserveOutbound("report", err)
		if err != nil {
			slog.Error("Engine failed to deliver report", "conversation", sess.ID, "staff", to, "error", err)
			continue
		}
		delivered++
		for _, a := range attachments {
			callCtx, cancel := e.bounded(ctx)
			err := e.sender.SendMedia(callCtx, to, a.media, a.caption)
			cancel()
			e.metrics.ObserveOutbound("report_media", err)
			if err != nil {
				slog.Warn("Engine failed to deliver report attachment", "conversation", sess.ID, "staff", to, "file", a.media.Filename, "error", err)
			}
		}
	}
	slog.Info("Engine report delivered", "conversation", sess.ID, "outcome", outcome, "recipients", len(contacts), "delivered", delivered)

	if e.reports != nil {
		entry := models.ReportEntry{
			ConversationID: sess.ID,
			Intent:         sess.Intent,
			Outcome:        outcome,
			Body:           body,
			Recipients:     len(contacts),
			Delivered:      delivered,
		}
		callCtx, cancel := e.bounded(ctx)
		err := e.reports.AddReport(callCtx, entry)
		cancel()
		if err != nil {
			slog.Warn("Engine failed to log report", "conversation", sess.ID, "error", err)
		}
	}

	if delivered == 0 {
		return external(depStaff, fmt.Errorf("report not delivered to any of %d staff contacts", len(contacts)))
	}
	return nil
}

type attachment struct {
	media   models.Media
	caption string
}

// loadAttachments reads the stored media referenced by the session. Files
// that cannot be read are skipped; the report text still mentions them.
func (e *Engine) loadAttachments(ctx context.Context, sess *models.Session) []attachment {
	refs := report.Attachments(sess)
	if len(refs) == 0 || e.media == nil {
		return nil
	}
	out := make([]attachment, 0, len(refs))
	for _, ref := range refs {
		callCtx, cancel := e.bounded(ctx)
		data, err := e.media.Load(callCtx, ref)
		cancel()
		if err != nil {
			slog.Warn("Engine failed to load report attachment", "conversation", sess.ID, "location", ref.Location, "error", err)
			e.metrics.ObserveExternalFailure(depMedia)
			continue
		}
		caption := "Foto do veículo do cliente"
		if ref.Tag != photoTag {
			caption = report.DocumentLabel(models.DocumentType(ref.Tag))
		}
		out = append(out, attachment{
			media:   models.Media{Data: data, Mimetype: ref.Mimetype, Filename: path.Base(ref.Location)},
			caption: caption,
		})
	}
	return out
}

// clientRecord builds the document persisted by the client-record service.
func clientRecord(sess *models.Session, pushName, body string) models.ClientRecord {
	rec := models.ClientRecord{
		ID:        sess.ClientID,
		Name:      pushName,
		Phone:     contactPhone(sess.ID),
		State:     models.StepCompleted,
		Interest:  sess.Intent,
		Interests: append([]models.Interest{}, sess.Interests...),
		Documents: map[models.DocumentType]string{},
		Report:    body,
	}
	if v := sess.Vehicle(); v != nil {
		rec.CarInterested = v.Name
	}
	switch b := sess.Branch.(type) {
	case *models.FinanceData:
		rec.Finance = map[string]string{
			"down_payment": b.DownPayment,
			"installments": b.Installments,
			"cpf":          b.CPF,
			"birth_date":   b.BirthDate,
		}
		for _, d := range b.Documents {
			rec.Documents[d.Type] = d.Ref.Location
		}
		rec.Job = b.Employment
	case *models.VisitData:
		v := *b
		rec.Visit = &v
		if b.FullName != "" {
			rec.Name = b.FullName
		}
	default:
		if d, ok := models.Descriptor(sess.Branch); ok {
			c := *d
			rec.TradeCar = &c
		}
	}
	return rec
}

// contactPhone strips the channel addressing from a conversation id:
// "5511999990000@s.whatsapp.net" and "+5511999990000" both give the digits.
func contactPhone(conversationID string) string {
	user, _, _ := strings.Cut(conversationID, "@")
	user, _, _ = strings.Cut(user, ":")
	var b strings.Builder
	for _, r := range user {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return conversationID
	}
	return b.String()
}
