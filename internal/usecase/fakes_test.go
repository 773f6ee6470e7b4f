package usecase

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	uuid "github.com/google/uuid"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/config"
	"github.com/proyectoio2/back/internal/infra/security"
	"github.com/proyectoio2/back/internal/repository"
)

const testSecret = "unit-test-secret-key-with-enough-entropy"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memState is the whole in-memory database. Transactions snapshot it and
// restore the snapshot on error.
type memState struct {
	users    map[string]domain.User
	history  []domain.PasswordHistoryEntry
	ledger   []domain.LedgerEntry
	products map[string]domain.Product
	carts    map[string]*memCart
	orders   []domain.Order
}

type memCart struct {
	cart  domain.Cart
	lines []domain.CartItem
}

func (s *memState) clone() *memState {
	out := &memState{
		users:    make(map[string]domain.User, len(s.users)),
		history:  append([]domain.PasswordHistoryEntry(nil), s.history...),
		ledger:   append([]domain.LedgerEntry(nil), s.ledger...),
		products: make(map[string]domain.Product, len(s.products)),
		carts:    make(map[string]*memCart, len(s.carts)),
		orders:   append([]domain.Order(nil), s.orders...),
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.carts {
		out.carts[k] = &memCart{cart: v.cart, lines: append([]domain.CartItem(nil), v.lines...)}
	}
	return out
}

type memDB struct {
	mu    sync.Mutex
	state *memState

	// failUpdate makes every user update fail, to exercise rollbacks.
	failUpdate error
	txCount    int
}

func newMemDB() *memDB {
	return &memDB{state: &memState{
		users:    map[string]domain.User{},
		products: map[string]domain.Product{},
		carts:    map[string]*memCart{},
	}}
}

// run executes fn against the state. Calls made inside a transaction already hold the lock.
func (db *memDB) run(inTx bool, fn func(st *memState) error) error {
	if !inTx {
		db.mu.Lock()
		defer db.mu.Unlock()
	}
	return fn(db.state)
}

func (db *memDB) stores(inTx bool) port.Stores {
	return port.Stores{
		Users:  &memUsers{db: db, inTx: inTx},
		Ledger: &memLedger{db: db, inTx: inTx},
		Store:  &memStore{db: db, inTx: inTx},
	}
}

func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context, stores port.Stores) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.txCount++
	snapshot := db.state.clone()
	if err := fn(ctx, db.stores(true)); err != nil {
		db.state = snapshot
		return err
	}
	return nil
}

func (db *memDB) user(id string) domain.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.users[id]
}

func (db *memDB) ledgerRows() []domain.LedgerEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]domain.LedgerEntry(nil), db.state.ledger...)
}

func (db *memDB) putUser(u domain.User) {
	db.mu.Lock()
	db.state.users[u.ID] = u
	db.mu.Unlock()
}

func (db *memDB) putProduct(p domain.Product) {
	db.mu.Lock()
	db.state.products[p.ID] = p
	db.mu.Unlock()
}

type memUsers struct {
	db   *memDB
	inTx bool
}

func (r *memUsers) Create(_ context.Context, user domain.User) error {
	return r.db.run(r.inTx, func(st *memState) error {
		for _, u := range st.users {
			if u.Email == user.Email || u.PhoneNumber == user.PhoneNumber {
				return repository.ErrConflict
			}
		}
		st.users[user.ID] = user
		return nil
	})
}

func (r *memUsers) find(match func(domain.User) bool) (*domain.User, error) {
	var out *domain.User
	err := r.db.run(r.inTx, func(st *memState) error {
		for _, u := range st.users {
			if match(u) {
				found := u
				out = &found
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ID == id })
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Email == email })
}

func (r *memUsers) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.PhoneNumber == phone })
}

func (r *memUsers) GetByIDForUpdate(ctx context.Context, id string) (*domain.User, error) {
	return r.GetByID(ctx, id)
}

func (r *memUsers) GetByEmailForUpdate(ctx context.Context, email string) (*domain.User, error) {
	return r.GetByEmail(ctx, email)
}

func (r *memUsers) Update(_ context.Context, user domain.User) error {
	return r.db.run(r.inTx, func(st *memState) error {
		if r.db.failUpdate != nil {
			return r.db.failUpdate
		}
		if _, ok := st.users[user.ID]; !ok {
			return repository.ErrNotFound
		}
		st.users[user.ID] = user
		return nil
	})
}

func (r *memUsers) AddPasswordHistory(_ context.Context, entry domain.PasswordHistoryEntry) error {
	return r.db.run(r.inTx, func(st *memState) error {
		st.history = append(st.history, entry)
		return nil
	})
}

func (r *memUsers) ListPasswordHistory(_ context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	var out []domain.PasswordHistoryEntry
	err := r.db.run(r.inTx, func(st *memState) error {
		for i := len(st.history) - 1; i >= 0 && len(out) < limit; i-- {
			if st.history[i].UserID == userID {
				out = append(out, st.history[i])
			}
		}
		return nil
	})
	return out, err
}

type memLedger struct {
	db   *memDB
	inTx bool
}

func (r *memLedger) Insert(_ context.Context, entry domain.LedgerEntry) error {
	return r.db.run(r.inTx, func(st *memState) error {
		for _, e := range st.ledger {
			if e.TokenHash == entry.TokenHash {
				return repository.ErrConflict
			}
		}
		st.ledger = append(st.ledger, entry)
		return nil
	})
}

func (r *memLedger) GetByHash(_ context.Context, hash string) (*domain.LedgerEntry, error) {
	var out *domain.LedgerEntry
	err := r.db.run(r.inTx, func(st *memState) error {
		for _, e := range st.ledger {
			if e.TokenHash == hash {
				found := e
				out = &found
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *memLedger) InvalidatedAfter(_ context.Context, userID, marker string, after time.Time) (bool, error) {
	var found bool
	err := r.db.run(r.inTx, func(st *memState) error {
		for _, e := range st.ledger {
			if e.UserID == userID && e.TokenType == marker && e.UsedAt.After(after) {
				found = true
			}
		}
		return nil
	})
	return found, err
}

func (r *memLedger) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := r.db.run(r.inTx, func(st *memState) error {
		kept := st.ledger[:0]
		for _, e := range st.ledger {
			if e.UsedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		st.ledger = kept
		return nil
	})
	return removed, err
}

type memStore struct {
	db   *memDB
	inTx bool
}

func (r *memStore) ListActiveProducts(context.Context) ([]domain.Product, error) {
	var out []domain.Product
	err := r.db.run(r.inTx, func(st *memState) error {
		for _, p := range st.products {
			if p.IsActive {
				out = append(out, p)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
		return nil
	})
	return out, err
}

func (r *memStore) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	var out *domain.Product
	err := r.db.run(r.inTx, func(st *memState) error {
		p, ok := st.products[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *memStore) LockProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	err := r.db.run(r.inTx, func(st *memState) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				out[id] = p
			}
		}
		return nil
	})
	return out, err
}

func (r *memStore) CreateProduct(_ context.Context, product domain.Product) error {
	return r.db.run(r.inTx, func(st *memState) error {
		st.products[product.ID] = product
		return nil
	})
}

func (r *memStore) DecrementStock(_ context.Context, productID string, quantity int) error {
	return r.db.run(r.inTx, func(st *memState) error {
		p, ok := st.products[productID]
		if !ok || p.Stock < quantity {
			return repository.ErrNotFound
		}
		p.Stock -= quantity
		st.products[productID] = p
		return nil
	})
}

func (r *memStore) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	var out *domain.Cart
	err := r.db.run(r.inTx, func(st *memState) error {
		c, ok := st.carts[userID]
		if !ok {
			return repository.ErrNotFound
		}
		cart := c.cart
		cart.Items = make([]domain.CartItem, 0, len(c.lines))
		for _, line := range c.lines {
			line.Product = st.products[line.ProductID]
			cart.Items = append(cart.Items, line)
		}
		out = &cart
		return nil
	})
	return out, err
}

func (r *memStore) CreateCart(_ context.Context, cart domain.Cart) error {
	return r.db.run(r.inTx, func(st *memState) error {
		if _, ok := st.carts[cart.UserID]; ok {
			return repository.ErrConflict
		}
		st.carts[cart.UserID] = &memCart{cart: cart}
		return nil
	})
}

func (r *memStore) cartByID(st *memState, cartID string) *memCart {
	for _, c := range st.carts {
		if c.cart.ID == cartID {
			return c
		}
	}
	return nil
}

func (r *memStore) UpsertCartItem(_ context.Context, cartID, productID string, quantity int) error {
	return r.db.run(r.inTx, func(st *memState) error {
		c := r.cartByID(st, cartID)
		if c == nil {
			return repository.ErrNotFound
		}
		for i := range c.lines {
			if c.lines[i].ProductID == productID {
				c.lines[i].Quantity = quantity
				return nil
			}
		}
		c.lines = append(c.lines, domain.CartItem{ID: uuid.NewString(), ProductID: productID, Quantity: quantity})
		return nil
	})
}

func (r *memStore) DeleteCartItem(_ context.Context, cartID, productID string) error {
	return r.db.run(r.inTx, func(st *memState) error {
		c := r.cartByID(st, cartID)
		if c == nil {
			return repository.ErrNotFound
		}
		for i := range c.lines {
			if c.lines[i].ProductID == productID {
				c.lines = append(c.lines[:i], c.lines[i+1:]...)
				return nil
			}
		}
		return repository.ErrNotFound
	})
}

func (r *memStore) ClearCart(_ context.Context, cartID string) error {
	return r.db.run(r.inTx, func(st *memState) error {
		if c := r.cartByID(st, cartID); c != nil {
			c.lines = nil
		}
		return nil
	})
}

func (r *memStore) CreateOrder(_ context.Context, order domain.Order) error {
	return r.db.run(r.inTx, func(st *memState) error {
		st.orders = append(st.orders, order)
		return nil
	})
}

func (r *memStore) ListSoldLines(_ context.Context, since *time.Time) ([]domain.SoldLine, error) {
	var out []domain.SoldLine
	err := r.db.run(r.inTx, func(st *memState) error {
		for _, o := range st.orders {
			if since != nil && o.CreatedAt.Before(*since) {
				continue
			}
			for _, l := range o.Lines {
				out = append(out, domain.SoldLine{
					ProductID: l.ProductID,
					Title:     l.Title,
					OrderID:   o.ID,
					Quantity:  l.Quantity,
					Price:     l.Price,
					SoldAt:    o.CreatedAt,
				})
			}
		}
		return nil
	})
	return out, err
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *fakeNotifier) last(t *testing.T) domain.Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatalf("expected a notification to be sent")
	}
	return n.sent[len(n.sent)-1]
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeEvents struct {
	mu         sync.Mutex
	registered []domain.UserRegisteredEvent
	resets     []domain.PasswordResetEvent
	locked     []domain.AccountLockedEvent
	orders     []domain.OrderPlacedEvent
}

func (e *fakeEvents) PublishUserRegistered(_ context.Context, ev domain.UserRegisteredEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registered = append(e.registered, ev)
	return nil
}

func (e *fakeEvents) PublishPasswordReset(_ context.Context, ev domain.PasswordResetEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets = append(e.resets, ev)
	return nil
}

func (e *fakeEvents) PublishAccountLocked(_ context.Context, ev domain.AccountLockedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locked = append(e.locked, ev)
	return nil
}

func (e *fakeEvents) PublishOrderPlaced(_ context.Context, ev domain.OrderPlacedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders = append(e.orders, ev)
	return nil
}

type fakeMetrics struct {
	mu     sync.Mutex
	logins map[string]int
	locks  int
	resets map[string]int
	orders int
	sales  float64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{logins: map[string]int{}, resets: map[string]int{}}
}

func (m *fakeMetrics) LoginAttempt(outcome string) {
	m.mu.Lock()
	m.logins[outcome]++
	m.mu.Unlock()
}

func (m *fakeMetrics) AccountLocked() {
	m.mu.Lock()
	m.locks++
	m.mu.Unlock()
}

func (m *fakeMetrics) ResetRequested(outcome string) {
	m.mu.Lock()
	m.resets[outcome]++
	m.mu.Unlock()
}

func (m *fakeMetrics) OrderPlaced(total float64) {
	m.mu.Lock()
	m.orders++
	m.sales += total
	m.mu.Unlock()
}

type fakeStorage struct {
	puts []port.StoredObject
	err  error
}

func (s *fakeStorage) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) (port.StoredObject, error) {
	if s.err != nil {
		return port.StoredObject{}, s.err
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return port.StoredObject{}, err
	}
	obj := port.StoredObject{Key: key, URL: "https://cdn.example.com/" + key, ContentType: contentType, Size: size}
	s.puts = append(s.puts, obj)
	return obj, nil
}

func (s *fakeStorage) Delete(context.Context, string) error {
	return errors.New("unexpected call")
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{Name: "back", Env: "test", URL: "shop.example.com"},
		JWT: config.JWTSettings{
			SecretKey:                       testSecret,
			Algorithm:                       "HS256",
			AccessTokenExpireMinutes:        30,
			RefreshTokenExpireDays:          7,
			PasswordResetTokenExpireMinutes: 30,
		},
		Security: config.SecuritySettings{
			MaxLoginAttempts:      5,
			AccountLockoutMinutes: 15,
			MaxResetAttempts:      3,
			ResetLockoutMinutes:   15,
			PasswordHistorySize:   5,
			ProfileHistorySize:    3,
		},
		Password: config.PasswordSettings{MinLength: 8},
		Twilio:   config.TwilioSettings{SellerNumber: "whatsapp:+573001112233"},
		Storage:  config.StorageSettings{MaxImageSize: 10 << 20, ImageFolder: "products"},
	}
}

type fixture struct {
	cfg      *config.AppConfig
	db       *memDB
	clock    *testClock
	hasher   *security.PasswordHasher
	codec    *security.JWTCodec
	ledger   *TokenLedger
	notifier *fakeNotifier
	events   *fakeEvents
	metrics  *fakeMetrics

	auth     *AuthService
	register *RegistrationService
	reset    *PasswordResetService
	profile  *ProfileService
	store    *StoreService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testConfig()
	clock := newTestClock()
	db := newMemDB()

	hasher, err := security.NewPasswordHasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	codec, err := security.NewJWTCodec(cfg.JWT.SecretKey, cfg.JWT.Algorithm)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	codec.WithClock(clock.Now)

	pool := db.stores(false)
	ledger := NewTokenLedger(pool.Ledger, security.NewTokenDigester(cfg.JWT.SecretKey), map[domain.TokenType]time.Duration{
		domain.TokenTypeAccess:        cfg.JWT.AccessTokenTTL(),
		domain.TokenTypeRefresh:       cfg.JWT.RefreshTokenTTL(),
		domain.TokenTypePasswordReset: cfg.JWT.PasswordResetTokenTTL(),
	}).WithClock(clock.Now)

	policy := security.NewPasswordPolicy(security.PasswordPolicyConfig{MinLength: cfg.Password.MinLength})
	notifier := &fakeNotifier{}
	events := &fakeEvents{}
	metrics := newFakeMetrics()

	f := &fixture{
		cfg:      cfg,
		db:       db,
		clock:    clock,
		hasher:   hasher,
		codec:    codec,
		ledger:   ledger,
		notifier: notifier,
		events:   events,
		metrics:  metrics,
	}

	f.auth = NewAuthService(cfg, pool.Users, db, hasher, codec, ledger, events, nil)
	f.auth.WithClock(clock.Now)
	f.auth.WithMetrics(metrics)

	f.register = NewRegistrationService(pool.Users, db, hasher, policy, notifier, events, nil)
	f.register.WithClock(clock.Now)

	f.reset = NewPasswordResetService(cfg, pool.Users, db, hasher, policy, codec, ledger, notifier, events, nil)
	f.reset.WithClock(clock.Now)
	f.reset.WithMetrics(metrics)

	f.profile = NewProfileService(cfg, pool.Users, db, hasher, policy, nil)
	f.profile.WithClock(clock.Now)

	f.store = NewStoreService(cfg, pool.Store, pool.Users, db, notifier, events, nil)
	f.store.WithClock(clock.Now)
	f.store.WithMetrics(metrics)
	return f
}

const testPassword = "Str0ng!Pass"

// seedUser stores an active user whose password is testPassword.
func (f *fixture) seedUser(t *testing.T, email string) domain.User {
	t.Helper()
	hash, err := f.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := f.clock.Now()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     "Ana Torres",
		PhoneNumber:  "+57300" + uuid.NewString()[:7],
		Address:      "Calle 10 # 20-30",
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.db.putUser(user)
	f.db.mu.Lock()
	f.db.state.history = append(f.db.state.history, domain.PasswordHistoryEntry{
		ID: uuid.NewString(), UserID: user.ID, PasswordHash: hash, CreatedAt: now,
	})
	f.db.mu.Unlock()
	return user
}
