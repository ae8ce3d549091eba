package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/cartflow/internal/aggregator"
	"github.com/fjod/cartflow/internal/cache"
	"github.com/fjod/cartflow/internal/domain"
	"github.com/fjod/cartflow/internal/repository"
	"github.com/fjod/cartflow/internal/result"
	"github.com/fjod/cartflow/internal/stream"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CartService is the only writer of the cart store. Every mutation re-reads
// the scope's rows, applies one change, writes them back, and publishes the
// re-aggregated snapshot to the scope's subscribers.
type CartService struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	products ProductLookup
	hub    *stream.Hub[domain.CartSnapshot]
	logger *zap.Logger
	now    func() time.Time

	sfg   singleflight.Group // collapses concurrent cache misses per scope
	locks scopeLocks

	commitMu   sync.Mutex
	committing map[domain.Scope]struct{}
}

// ProductLookup resolves the name and price a product is sold at. It is
// satisfied by *catalog.Repository.
type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
}

func NewCartService(repo repository.CartRepository, c cache.CartCache, products ProductLookup, logger *zap.Logger) *CartService {
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartService{
		repo:       repo,
		cache:      c,
		products:   products,
		hub:        stream.NewHub[domain.CartSnapshot](),
		logger:     logger,
		now:        time.Now,
		committing: make(map[domain.Scope]struct{}),
	}
}

// Snapshot reads the current cart of scope through the cache.
func (s *CartService) Snapshot(ctx context.Context, scope domain.Scope) (domain.CartSnapshot, error) {
	lock := s.locks.get(scope)
	lock.RLock()
	defer lock.RUnlock()

	return s.snapshotLocked(ctx, scope)
}

func (s *CartService) snapshotLocked(ctx context.Context, scope domain.Scope) (domain.CartSnapshot, error) {
	v, err, _ := s.sfg.Do(scope.String(), func() (interface{}, error) {
		return s.load(ctx, scope)
	})
	if err != nil {
		return domain.CartSnapshot{}, domain.Wrap(domain.ErrStorage, err)
	}

	snapshot := aggregator.Aggregate(scope, v.([]domain.CartLineItem))
	s.hub.Remember(scope, snapshot)
	return snapshot, nil
}

func (s *CartService) load(ctx context.Context, scope domain.Scope) ([]domain.CartLineItem, error) {
	items, err := s.cache.Get(ctx, scope)
	if err == nil {
		return items, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("scope", scope.String()), zap.Error(err))
	}

	items, err = s.readStore(ctx, scope)
	if err != nil {
		return nil, err
	}

	// the caller holds the scope read lock, so no write can land between the
	// store read and this set
	if errSet := s.cache.Set(ctx, scope, items); errSet != nil {
		s.logger.Warn("cache set failed", zap.String("scope", scope.String()), zap.Error(errSet))
	}
	return items, nil
}

func (s *CartService) readStore(ctx context.Context, scope domain.Scope) ([]domain.CartLineItem, error) {
	items, err := s.repo.ReadCart(ctx, scope)
	if errors.Is(err, repository.ErrCartNotFound) {
		return []domain.CartLineItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Subscribe streams the cart of scope: Loading first, then the current
// state, then one value per applied mutation. The channel closes when ctx is
// done.
func (s *CartService) Subscribe(ctx context.Context, scope domain.Scope) <-chan result.Result[domain.CartSnapshot] {
	sub := s.hub.Subscribe(ctx, scope)
	sub.Deliver(result.Loading[domain.CartSnapshot]())

	go func() {
		lock := s.locks.get(scope)
		lock.RLock()
		defer lock.RUnlock()

		snapshot, err := s.snapshotLocked(ctx, scope)
		if err != nil {
			sub.Deliver(s.failure(scope, err))
			return
		}
		sub.Deliver(aggregator.Classify(snapshot))
	}()

	return sub.C()
}

// AddItem puts quantity of productID in the cart or, when the product is
// already there, adds to the existing row. Name and unit price come from the
// product catalog, never from the caller.
func (s *CartService) AddItem(ctx context.Context, scope domain.Scope, productID int64, quantity int, note string) (domain.CartSnapshot, error) {
	if productID <= 0 || quantity <= 0 {
		return domain.CartSnapshot{}, fmt.Errorf("%w: product %d quantity %d", ErrInvalidItem, productID, quantity)
	}
	if s.products == nil {
		return domain.CartSnapshot{}, domain.Wrap(domain.ErrCatalog, errors.New("no product catalog configured"))
	}

	product, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, domain.ErrProductNotFound) {
		return domain.CartSnapshot{}, err
	}
	if err != nil {
		return domain.CartSnapshot{}, domain.Wrap(domain.ErrCatalog, err)
	}
	if product.Price < 0 {
		return domain.CartSnapshot{}, fmt.Errorf("%w: product %d has negative price %d", domain.ErrCatalog, productID, product.Price)
	}

	return s.mutate(ctx, scope, "add item", func(items []domain.CartLineItem) ([]domain.CartLineItem, error) {
		snapshot := domain.CartSnapshot{Items: items}
		if i := snapshot.Find(productID); i >= 0 {
			items[i].Quantity += quantity
			items[i].Name = product.Name
			items[i].UnitPrice = product.Price
			if note != "" {
				items[i].Note = note
			}
			return items, nil
		}
		return append(items, domain.CartLineItem{
			ProductID: productID,
			Name:      product.Name,
			Quantity:  quantity,
			UnitPrice: product.Price,
			Note:      note,
			AddedAt:   s.now(),
		}), nil
	})
}

// Increase adds one to the quantity. No upper bound is enforced here.
func (s *CartService) Increase(ctx context.Context, scope domain.Scope, productID int64) (domain.CartSnapshot, error) {
	return s.mutate(ctx, scope, "increase", func(items []domain.CartLineItem) ([]domain.CartLineItem, error) {
		i, err := indexOf(items, productID)
		if err != nil {
			return nil, err
		}
		items[i].Quantity++
		return items, nil
	})
}

// Decrease takes one from the quantity and removes the row when it hits zero.
func (s *CartService) Decrease(ctx context.Context, scope domain.Scope, productID int64) (domain.CartSnapshot, error) {
	return s.mutate(ctx, scope, "decrease", func(items []domain.CartLineItem) ([]domain.CartLineItem, error) {
		i, err := indexOf(items, productID)
		if err != nil {
			return nil, err
		}
		items[i].Quantity--
		if items[i].Quantity <= 0 {
			return append(items[:i], items[i+1:]...), nil
		}
		return items, nil
	})
}

func (s *CartService) Remove(ctx context.Context, scope domain.Scope, productID int64) (domain.CartSnapshot, error) {
	return s.mutate(ctx, scope, "remove", func(items []domain.CartLineItem) ([]domain.CartLineItem, error) {
		i, err := indexOf(items, productID)
		if err != nil {
			return nil, err
		}
		return append(items[:i], items[i+1:]...), nil
	})
}

func (s *CartService) SetNote(ctx context.Context, scope domain.Scope, productID int64, note string) (domain.CartSnapshot, error) {
	return s.mutate(ctx, scope, "set note", func(items []domain.CartLineItem) ([]domain.CartLineItem, error) {
		i, err := indexOf(items, productID)
		if err != nil {
			return nil, err
		}
		items[i].Note = note
		return items, nil
	})
}

// ClearAll deletes every row of scope. Only the checkout commit calls it, so
// it is not blocked by the commit hold.
func (s *CartService) ClearAll(ctx context.Context, scope domain.Scope) error {
	lock := s.locks.get(scope)
	lock.Lock()
	defer lock.Unlock()

	errDelete := s.repo.DeleteCart(ctx, scope)
	if errDelete != nil && !errors.Is(errDelete, repository.ErrCartNotFound) {
		s.logger.Error("repo delete cart failed", zap.String("scope", scope.String()), zap.Error(errDelete))
		err := domain.Wrap(domain.ErrStorage, errDelete)
		s.hub.Publish(scope, s.failure(scope, err))
		return err
	}

	s.invalidateCache(scope)
	s.hub.Publish(scope, aggregator.Classify(aggregator.Aggregate(scope, nil)))
	return nil
}

// ClearOrdered clears scope only when it still holds exactly the ordered
// lines (same products and quantities). It reports whether it cleared.
func (s *CartService) ClearOrdered(ctx context.Context, scope domain.Scope, ordered []domain.CartLineItem) (bool, error) {
	lock := s.locks.get(scope)
	lock.Lock()
	defer lock.Unlock()

	items, err := s.readStore(ctx, scope)
	if err != nil {
		return false, domain.Wrap(domain.ErrStorage, err)
	}
	if len(items) == 0 || !sameLines(items, ordered) {
		return false, nil
	}

	if err := s.repo.DeleteCart(ctx, scope); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return false, domain.Wrap(domain.ErrStorage, err)
	}
	s.invalidateCache(scope)
	s.hub.Publish(scope, aggregator.Classify(aggregator.Aggregate(scope, nil)))
	return true, nil
}

func sameLines(a, b []domain.CartLineItem) bool {
	if len(a) != len(b) {
		return false
	}
	quantities := make(map[int64]int, len(a))
	for _, item := range a {
		quantities[item.ProductID] += item.Quantity
	}
	for _, item := range b {
		quantities[item.ProductID] -= item.Quantity
	}
	for _, q := range quantities {
		if q != 0 {
			return false
		}
	}
	return true
}

// BeginCommit places the commit hold on scope. While held, mutations fail
// with ErrCheckoutInProgress and a second BeginCommit fails the same way.
func (s *CartService) BeginCommit(scope domain.Scope) (release func(), err error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if _, held := s.committing[scope]; held {
		return nil, ErrCheckoutInProgress
	}
	s.committing[scope] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.commitMu.Lock()
			delete(s.committing, scope)
			s.commitMu.Unlock()
		})
	}, nil
}

func (s *CartService) isCommitting(scope domain.Scope) bool {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	_, held := s.committing[scope]
	return held
}

func (s *CartService) mutate(
	ctx context.Context,
	scope domain.Scope,
	op string,
	apply func([]domain.CartLineItem) ([]domain.CartLineItem, error),
) (domain.CartSnapshot, error) {
	lock := s.locks.get(scope)
	lock.Lock()
	defer lock.Unlock()

	// checked under the write lock so a commit cannot start between the
	// check and the write
	if s.isCommitting(scope) {
		return domain.CartSnapshot{}, s.fail(scope, op, ErrCheckoutInProgress)
	}

	items, err := s.readStore(ctx, scope)
	if err != nil {
		return domain.CartSnapshot{}, s.fail(scope, op, domain.Wrap(domain.ErrStorage, err))
	}

	next, err := apply(items)
	if err != nil {
		return domain.CartSnapshot{}, s.fail(scope, op, err)
	}

	if err := s.repo.WriteCart(ctx, scope, next); err != nil {
		return domain.CartSnapshot{}, s.fail(scope, op, domain.Wrap(domain.ErrStorage, err))
	}

	s.invalidateCache(scope)
	snapshot := aggregator.Aggregate(scope, next)
	s.hub.Publish(scope, aggregator.Classify(snapshot))
	return snapshot, nil
}

func (s *CartService) fail(scope domain.Scope, op string, err error) error {
	s.logger.Warn("cart mutation failed",
		zap.String("op", op),
		zap.String("scope", scope.String()),
		zap.Error(err))
	s.hub.Publish(scope, s.failure(scope, err))
	return err
}

// failure builds an Error result carrying the last known snapshot, if any.
func (s *CartService) failure(scope domain.Scope, err error) result.Result[domain.CartSnapshot] {
	if last, ok := s.hub.Last(scope); ok {
		return result.Error(err, &last)
	}
	return result.Error[domain.CartSnapshot](err, nil)
}

func (s *CartService) invalidateCache(scope domain.Scope) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, scope); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("scope", scope.String()), zap.Error(err))
	}
}

func indexOf(items []domain.CartLineItem, productID int64) (int, error) {
	i := domain.CartSnapshot{Items: items}.Find(productID)
	if i < 0 {
		return -1, fmt.Errorf("%w: product %d", ErrItemNotFound, productID)
	}
	return i, nil
}
