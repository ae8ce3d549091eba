package checkout

import (
	"context"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/fjod/cartflow/internal/result"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Checkout places the current cart of scope as an order and, once the order
// is accepted, clears the cart. The two steps are not atomic: a failed clear
// leaves the order in place and is reported as Receipt.Warning.
//
// Only one commit per scope runs at a time. A concurrent call returns
// service.ErrCheckoutInProgress without submitting anything.
func (o *Orchestrator) Checkout(ctx context.Context, scope domain.Scope) (*domain.Receipt, error) {
	release, err := o.cart.BeginCommit(scope)
	if err != nil {
		return nil, err
	}
	defer release()

	o.commits.Publish(scope, result.Loading[domain.Receipt]())

	data, user, err := o.snapshotForCommit(ctx, scope)
	if err != nil {
		return nil, o.commitFailed(scope, "derive checkout data", err, nil)
	}

	checkoutID := uuid.New()
	log := o.logger.With(zap.String("scope", scope.String()), zap.String("checkout_id", checkoutID.String()))

	confirmation, err := o.submit(ctx, checkoutID, data)
	if err != nil {
		return nil, o.commitFailed(scope, "submit order", err, &data)
	}
	log.Info("order accepted",
		zap.String("order_id", confirmation.OrderID.String()),
		zap.Int64("total", data.TotalPrice()))

	receipt := &domain.Receipt{Checkout: data, Order: &confirmation}
	o.commits.Publish(scope, result.Success(*receipt))

	// the order stands from here on, so nothing below may fail the commit
	if err := o.clear(scope); err != nil {
		log.Warn("clear cart after order failed", zap.Error(err))
		receipt.Warning = err
		o.commits.Publish(scope, result.Success(*receipt))
	}

	o.publish(log, user, data, confirmation)
	return receipt, nil
}

// SubscribeCommit streams the progress of commits on scope.
func (o *Orchestrator) SubscribeCommit(ctx context.Context, scope domain.Scope) <-chan result.Result[domain.Receipt] {
	return o.commits.Subscribe(ctx, scope).C()
}

// snapshotForCommit freezes the priced cart at commit start. Mutations are
// rejected by the commit hold until the commit ends.
func (o *Orchestrator) snapshotForCommit(ctx context.Context, scope domain.Scope) (domain.CheckoutData, domain.UserIdentity, error) {
	snapshot, err := o.cart.Snapshot(ctx, scope)
	if err != nil {
		return domain.CheckoutData{}, domain.UserIdentity{}, err
	}
	if snapshot.IsEmpty() {
		return domain.CheckoutData{}, domain.UserIdentity{}, ErrEmptyCart
	}
	data, user, err := o.price(ctx, snapshot)
	if err != nil {
		return domain.CheckoutData{}, domain.UserIdentity{}, err
	}
	o.data.Remember(scope, data)
	return data, user, nil
}

// submit runs detached from the caller's cancellation so that an order which
// reached the placer is not abandoned when the client goes away. Only
// OrderTimeout bounds it.
func (o *Orchestrator) submit(ctx context.Context, checkoutID uuid.UUID, data domain.CheckoutData) (domain.OrderConfirmation, error) {
	orderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.OrderTimeout)
	defer cancel()

	confirmation, err := o.orders.SubmitOrder(orderCtx, checkoutID, data)
	if err != nil {
		return domain.OrderConfirmation{}, domain.Wrap(domain.ErrOrder, err)
	}
	return confirmation, nil
}

func (o *Orchestrator) clear(scope domain.Scope) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.ClearTimeout)
	defer cancel()
	return o.cart.ClearAll(ctx, scope)
}

func (o *Orchestrator) publish(log *zap.Logger, user domain.UserIdentity, data domain.CheckoutData, confirmation domain.OrderConfirmation) {
	if o.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.PublishTimeout)
	defer cancel()

	if err := o.events.PublishOrderPlaced(ctx, domain.NewOrderPlacedEvent(user, data, confirmation)); err != nil {
		log.Warn("publish order placed failed", zap.Error(err))
	}
}

// commitFailed publishes Error carrying the cart the commit tried to place,
// with no order. data is nil when the failure came before pricing; the last
// priced checkout of scope is used then. A receipt of an earlier commit is
// never reused.
func (o *Orchestrator) commitFailed(scope domain.Scope, step string, err error, data *domain.CheckoutData) error {
	o.logger.Warn("checkout failed",
		zap.String("scope", scope.String()),
		zap.String("step", step),
		zap.Error(err))

	if data == nil {
		if last, ok := o.data.Last(scope); ok {
			data = &last
		}
	}
	if data != nil {
		o.commits.Publish(scope, result.Error(err, &domain.Receipt{Checkout: *data}))
	} else {
		o.commits.Publish(scope, result.Error[domain.Receipt](err, nil))
	}
	return err
}
