package flow

import (
	"context"
	"log/slog"
	"path"

	"github.com/zailonsoft/carbot/internal/catalog"
	"github.com/zailonsoft/carbot/internal/intent"
	"github.com/zailonsoft/carbot/internal/models"
)

// stepIdle handles the first message of a conversation. A message that
// already names a funnel skips the welcome.
func (e *Engine) stepIdle(ctx context.Context, t *turn) error {
	in := e.classifier.Classify(t.text)
	if in.IsFunnel() {
		slog.Info("Engine first message carries intent", "conversation", t.sess.ID, "intent", in)
		return e.startFunnel(ctx, t, in)
	}

	vs, err := e.vehicles(ctx)
	if err != nil {
		return err
	}
	callCtx, cancel := e.bounded(ctx)
	allowed, err := e.throttle.Allow(callCtx, t.sess.ID, t.now)
	cancel()
	switch {
	case err != nil:
		slog.Error("Engine welcome throttle failed, greeting anyway", "conversation", t.sess.ID, "error", err)
		e.metrics.ObserveExternalFailure("throttle")
		allowed = true
	case allowed:
		t.greeted = true
	}
	if !allowed {
		slog.Debug("Engine welcome suppressed", "conversation", t.sess.ID)
		return e.stepIntent(ctx, t)
	}
	t.sess.Step = models.StepAwaitingIntent
	t.say(e.expand(e.msgs.Welcome, "catalog", e.list(vs)))
	return nil
}

// stepIntent waits for the customer to pick a funnel.
func (e *Engine) stepIntent(ctx context.Context, t *turn) error {
	t.sess.Step = models.StepAwaitingIntent
	in := e.classifier.Classify(t.text)
	switch {
	case in.IsFunnel():
		return e.startFunnel(ctx, t, in)
	case in == models.IntentDetails:
		return e.details(ctx, t)
	case in == models.IntentHuman:
		t.say(e.expand(e.msgs.Human))
		return nil
	case in == models.IntentGreet, intent.IsReset(t.text):
		t.say(e.expand(e.msgs.Menu))
		return nil
	default:
		return e.invalid(t, e.expand(e.msgs.NotUnderstood))
	}
}

// startFunnel opens the branch for in. When the message already names a
// catalog vehicle the selection step is skipped.
func (e *Engine) startFunnel(ctx context.Context, t *turn, in models.Intent) error {
	sess := t.sess
	switch in {
	case models.IntentBuy, models.IntentFinance, models.IntentTradeIn:
		vs, err := e.vehicles(ctx)
		if err != nil {
			return err
		}
		switch in {
		case models.IntentBuy:
			sess.Begin(&models.PurchaseData{}, t.now)
		case models.IntentFinance:
			sess.Begin(&models.FinanceData{}, t.now)
		default:
			sess.Begin(&models.TradeInData{}, t.now)
		}
		if v, ok := catalog.Match(vs, t.text); ok {
			e.chooseVehicle(t, v)
			return nil
		}
		sess.Step = models.StepAwaitingVehicle
		if in == models.IntentTradeIn {
			t.say(e.expand(e.msgs.AskTradeWanted, "catalog", e.list(vs)))
		} else {
			t.say(e.expand(e.msgs.ChooseVehicle, "catalog", e.list(vs)))
		}
	case models.IntentSell, models.IntentConsign:
		sess.Begin(&models.SaleData{Consign: in == models.IntentConsign}, t.now)
		sess.Step = models.StepAwaitingTradeModel
		t.say(e.expand(e.msgs.AskTradeModel))
	case models.IntentVisit:
		sess.Begin(&models.VisitData{}, t.now)
		sess.Step = models.StepAwaitingVisitDate
		t.say(e.expand(e.msgs.AskVisitDate))
	}
	slog.Info("Engine funnel started", "conversation", sess.ID, "intent", in, "step", sess.Step)
	return nil
}

// details answers with the catalog, or with one vehicle and its first photo
// when the message names it. A photo that cannot be fetched degrades to text.
func (e *Engine) details(ctx context.Context, t *turn) error {
	vs, err := e.vehicles(ctx)
	if err != nil {
		return err
	}
	v, ok := catalog.Match(vs, t.text)
	if !ok {
		t.say(e.expand(e.msgs.Catalog, "catalog", e.list(vs)))
		return nil
	}
	caption := catalog.Describe(*v)
	if e.images != nil && len(v.Images) > 0 {
		callCtx, cancel := e.bounded(ctx)
		img, err := e.images.FetchImage(callCtx, v.Images[0])
		cancel()
		if err == nil {
			if img.Filename == "" {
				img.Filename = path.Base(v.Images[0])
			}
			t.show(img, caption)
			return nil
		}
		slog.Warn("Engine vehicle photo unavailable", "conversation", t.sess.ID, "vehicle", v.Name, "error", err)
		e.metrics.ObserveExternalFailure("images")
	}
	t.say(caption)
	return nil
}
