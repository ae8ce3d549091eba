package checkout

import (
	"context"
	"fmt"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/fjod/cartflow/internal/result"
	"go.uber.org/zap"
)

// DeriveCheckoutData prices the current cart of scope.
func (o *Orchestrator) DeriveCheckoutData(ctx context.Context, scope domain.Scope) result.Result[domain.CheckoutData] {
	snapshot, err := o.cart.Snapshot(ctx, scope)
	if err != nil {
		return o.dataFailure(scope, err)
	}
	return o.derive(ctx, snapshot)
}

// Subscribe follows the cart stream of scope and re-prices on every change.
// Identity is resolved from ctx, so each subscriber is priced for its own
// user.
func (o *Orchestrator) Subscribe(ctx context.Context, scope domain.Scope) <-chan result.Result[domain.CheckoutData] {
	sub := o.data.Subscribe(ctx, scope)
	sub.Deliver(result.Loading[domain.CheckoutData]())

	carts := o.cart.Subscribe(ctx, scope)
	go func() {
		for cart := range carts {
			cart.Proceed(
				func() {},
				func(snapshot domain.CartSnapshot) { sub.Deliver(o.derive(ctx, snapshot)) },
				func(*domain.CartSnapshot) {
					empty := domain.EmptyCheckout(scope)
					o.data.Remember(scope, empty)
					sub.Deliver(result.Empty(empty))
				},
				func(err error, _ *domain.CartSnapshot) { sub.Deliver(o.dataFailure(scope, err)) },
			)
		}
	}()

	return sub.C()
}

func (o *Orchestrator) derive(ctx context.Context, snapshot domain.CartSnapshot) result.Result[domain.CheckoutData] {
	if snapshot.IsEmpty() {
		empty := domain.EmptyCheckout(snapshot.Scope)
		o.data.Remember(snapshot.Scope, empty)
		return result.Empty(empty)
	}

	data, _, err := o.price(ctx, snapshot)
	if err != nil {
		o.logger.Warn("price cart failed", zap.String("scope", snapshot.Scope.String()), zap.Error(err))
		return o.dataFailure(snapshot.Scope, err)
	}

	o.data.Remember(snapshot.Scope, data)
	return result.Success(data)
}

// price resolves the user and the breakdown for a non-empty cart.
func (o *Orchestrator) price(ctx context.Context, snapshot domain.CartSnapshot) (domain.CheckoutData, domain.UserIdentity, error) {
	identityCtx, cancel := context.WithTimeout(ctx, o.opts.IdentityTimeout)
	defer cancel()
	user, err := o.identity.CurrentUser(identityCtx)
	if err != nil {
		return domain.CheckoutData{}, domain.UserIdentity{}, domain.Wrap(domain.ErrAuth, err)
	}

	pricingCtx, cancelPricing := context.WithTimeout(ctx, o.opts.PricingTimeout)
	defer cancelPricing()
	breakdown, err := o.pricing.PriceRules(pricingCtx, user, snapshot)
	if err != nil {
		return domain.CheckoutData{}, domain.UserIdentity{}, domain.Wrap(domain.ErrCatalog, err)
	}
	if breakdown == nil {
		breakdown = []domain.PriceBreakdownItem{}
	}

	data := domain.CheckoutData{Cart: snapshot, Breakdown: breakdown}
	if subtotal, ok := findBreakdown(breakdown, domain.BreakdownSubtotal); ok && subtotal != snapshot.TotalPrice() {
		return domain.CheckoutData{}, domain.UserIdentity{}, fmt.Errorf("%w: subtotal %d does not match cart total %d",
			domain.ErrCatalog, subtotal, snapshot.TotalPrice())
	}
	return data, user, nil
}

func (o *Orchestrator) dataFailure(scope domain.Scope, err error) result.Result[domain.CheckoutData] {
	if last, ok := o.data.Last(scope); ok {
		return result.Error(err, &last)
	}
	return result.Error[domain.CheckoutData](err, nil)
}

func findBreakdown(items []domain.PriceBreakdownItem, name string) (int64, bool) {
	for _, item := range items {
		if item.Name == name {
			return item.Amount, true
		}
	}
	return 0, false
}
