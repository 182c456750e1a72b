package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/storage"
	"github.com/trading-grow/internal/types"
)

// In-memory repositories. Each guards its state with one mutex, which gives
// the same all-or-nothing behaviour the Postgres constraints and row locks give.

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	seq      int
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*models.Account)}
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == account.Email {
			return types.ErrDuplicateEmail
		}
	}
	r.seq++
	if account.ID == "" {
		account.ID = fmt.Sprintf("acct-%d", r.seq)
	}
	account.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	account.UpdatedAt = account.CreatedAt
	stored := *account
	r.accounts[account.ID] = &stored
	return nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, types.ErrAccountNotFound
	}
	out := *a
	return &out, nil
}

func (r *fakeAccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email {
			out := *a
			return &out, nil
		}
	}
	return nil, types.ErrAccountNotFound
}

func (r *fakeAccountRepo) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*models.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out := *a
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeAccountRepo) UpdateTier(ctx context.Context, id string, tier types.Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return types.ErrAccountNotFound
	}
	a.Tier = tier
	return nil
}

func (r *fakeAccountRepo) UpdateProfile(ctx context.Context, id, displayName string, isAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return types.ErrAccountNotFound
	}
	a.DisplayName = displayName
	a.IsAdmin = isAdmin
	return nil
}

func (r *fakeAccountRepo) SetPassword(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return types.ErrAccountNotFound
	}
	a.PasswordHash = &passwordHash
	return nil
}

func (r *fakeAccountRepo) BulkUpdateTier(ctx context.Context, fromTier, toTier types.Tier) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var moved int64
	for _, a := range r.accounts {
		if a.Tier == fromTier && !a.IsAdmin {
			a.Tier = toTier
			moved++
		}
	}
	return moved, nil
}

func (r *fakeAccountRepo) CountByTier(ctx context.Context) (*models.TierCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := &models.TierCounts{ByTier: map[types.Tier]int{}}
	for _, tier := range types.AllTiers {
		counts.ByTier[tier] = 0
	}
	for _, a := range r.accounts {
		counts.Total++
		counts.ByTier[a.Tier]++
		if a.IsAdmin {
			counts.Admins++
		}
	}
	return counts, nil
}

func (r *fakeAccountRepo) delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
}

type fakeSubscriptionRepo struct {
	mu       sync.Mutex
	accounts *fakeAccountRepo
	requests map[string]*models.SubscriptionRequest
	seq      int
}

func newFakeSubscriptionRepo(accounts *fakeAccountRepo) *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{accounts: accounts, requests: make(map[string]*models.SubscriptionRequest)}
}

func (r *fakeSubscriptionRepo) CreatePending(ctx context.Context, req *models.SubscriptionRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.requests {
		if existing.AccountID == req.AccountID && existing.IsPending() {
			return types.ErrDuplicatePendingRequest
		}
	}
	r.seq++
	req.ID = fmt.Sprintf("req-%d", r.seq)
	req.Status = types.RequestPending
	req.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	req.UpdatedAt = req.CreatedAt
	stored := *req
	r.requests[req.ID] = &stored
	return nil
}

func (r *fakeSubscriptionRepo) GetByID(ctx context.Context, id string) (*models.SubscriptionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, types.ErrRequestNotFound
	}
	out := *req
	return &out, nil
}

func (r *fakeSubscriptionRepo) filter(keep func(*models.SubscriptionRequest) bool) []*models.SubscriptionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.SubscriptionRequest, 0)
	for _, req := range r.requests {
		if keep(req) {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *fakeSubscriptionRepo) ListPending(ctx context.Context) ([]*models.SubscriptionRequest, error) {
	return r.filter(func(req *models.SubscriptionRequest) bool { return req.IsPending() }), nil
}

func (r *fakeSubscriptionRepo) ListByAccount(ctx context.Context, accountID string) ([]*models.SubscriptionRequest, error) {
	return r.filter(func(req *models.SubscriptionRequest) bool { return req.AccountID == accountID }), nil
}

func (r *fakeSubscriptionRepo) decide(id string, status types.RequestStatus) (*models.SubscriptionRequest, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, types.ErrRequestNotFound
	}
	if !req.IsPending() {
		return nil, types.ErrRequestNotPending
	}
	now := time.Now()
	req.Status = status
	req.UpdatedAt = now
	req.ProcessedAt = &now
	out := *req
	return &out, nil
}

func (r *fakeSubscriptionRepo) Approve(ctx context.Context, id string) (*storage.DecisionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, err := r.decide(id, types.RequestApproved)
	if err != nil {
		return nil, err
	}
	updated := r.accounts.UpdateTier(ctx, req.AccountID, req.RequestedTier) == nil
	return &storage.DecisionResult{Request: req, AccountUpdated: updated}, nil
}

func (r *fakeSubscriptionRepo) Reject(ctx context.Context, id string) (*models.SubscriptionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decide(id, types.RequestRejected)
}

type fakeWatchlistRepo struct {
	mu         sync.Mutex
	watchlists map[string]*models.Watchlist
	order      []string
	seq        int
	creates    int
}

func newFakeWatchlistRepo() *fakeWatchlistRepo {
	return &fakeWatchlistRepo{watchlists: make(map[string]*models.Watchlist)}
}

func cloneWatchlist(w *models.Watchlist) *models.Watchlist {
	out := *w
	out.Stocks = append(models.StockList{}, w.Stocks...)
	return &out
}

func (r *fakeWatchlistRepo) GetOrCreate(ctx context.Context, w *models.Watchlist) (*models.Watchlist, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		existing := r.watchlists[id]
		if existing.AccountID == w.AccountID && existing.Category == w.Category {
			return cloneWatchlist(existing), false, nil
		}
	}
	r.seq++
	r.creates++
	stored := cloneWatchlist(w)
	stored.ID = fmt.Sprintf("wl-%d", r.seq)
	stored.Version = 1
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.watchlists[stored.ID] = stored
	r.order = append(r.order, stored.ID)
	return cloneWatchlist(stored), true, nil
}

func (r *fakeWatchlistRepo) GetByID(ctx context.Context, id string) (*models.Watchlist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watchlists[id]
	if !ok {
		return nil, types.ErrWatchlistNotFound
	}
	return cloneWatchlist(w), nil
}

func (r *fakeWatchlistRepo) ListByAccount(ctx context.Context, accountID string) ([]*models.Watchlist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Watchlist, 0)
	for _, id := range r.order {
		if w := r.watchlists[id]; w.AccountID == accountID {
			out = append(out, cloneWatchlist(w))
		}
	}
	return out, nil
}

func (r *fakeWatchlistRepo) Mutate(ctx context.Context, id string, fn func(w *models.Watchlist) (bool, error)) (*models.Watchlist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.watchlists[id]
	if !ok {
		return nil, types.ErrWatchlistNotFound
	}
	working := cloneWatchlist(stored)
	changed, err := fn(working)
	if err != nil {
		return nil, err
	}
	if changed {
		working.Version++
		working.UpdatedAt = time.Now()
		r.watchlists[id] = cloneWatchlist(working)
	}
	return working, nil
}

type fakeCatalogRepo struct {
	mu     sync.Mutex
	stocks map[string]*models.CatalogStock
}

func newFakeCatalogRepo(stocks ...*models.CatalogStock) *fakeCatalogRepo {
	r := &fakeCatalogRepo{stocks: make(map[string]*models.CatalogStock)}
	for _, s := range stocks {
		r.stocks[s.Symbol] = s
	}
	return r
}

func (r *fakeCatalogRepo) Create(ctx context.Context, stock *models.CatalogStock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stocks[stock.Symbol]; ok {
		return types.ErrDuplicateStock
	}
	cp := *stock
	r.stocks[stock.Symbol] = &cp
	return nil
}

func (r *fakeCatalogRepo) GetBySymbol(ctx context.Context, symbol string) (*models.CatalogStock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stocks[types.CanonicalSymbol(symbol)]
	if !ok {
		return nil, types.ErrStockNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeCatalogRepo) Delete(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	symbol = types.CanonicalSymbol(symbol)
	if _, ok := r.stocks[symbol]; !ok {
		return types.ErrStockNotFound
	}
	delete(r.stocks, symbol)
	return nil
}

func (r *fakeCatalogRepo) List(ctx context.Context) ([]*models.CatalogStock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.CatalogStock, 0, len(r.stocks))
	for _, s := range r.stocks {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (r *fakeCatalogRepo) Search(ctx context.Context, query string, limit int) ([]*models.CatalogStock, error) {
	all, _ := r.List(ctx)
	q := strings.ToLower(query)
	out := make([]*models.CatalogStock, 0)
	for _, s := range all {
		if strings.Contains(strings.ToLower(s.Symbol), q) || strings.Contains(strings.ToLower(s.Name), q) {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
