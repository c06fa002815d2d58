package inventory

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/pharmasupps/internal/auth"
	"github.com/mmynk/pharmasupps/internal/imaging"
	"github.com/mmynk/pharmasupps/internal/notify"
	"github.com/mmynk/pharmasupps/internal/storage"
	"github.com/mmynk/pharmasupps/internal/storage/memory"
)

const (
	adminEmail    = "owner@pharmacy.example"
	clerkEmail    = "clerk@pharmacy.example"
	testPassword  = "correct-horse"
	supplementsDB = storage.SupplementsCollection
	categoriesDB  = storage.CategoriesCollection
)

// fakeIdentity is an IdentityProvider whose sessions end only when told to.
type fakeIdentity struct {
	mu        sync.Mutex
	passwords map[string]string
	current   *auth.Identity
	subs      map[int]func(*auth.Identity)
	next      int
	signOut   error
	verify    error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		passwords: map[string]string{adminEmail: testPassword, clerkEmail: testPassword},
		subs:      make(map[int]func(*auth.Identity)),
	}
}

func (f *fakeIdentity) Verify(_ context.Context, email, password string) (*auth.Identity, error) {
	f.mu.Lock()
	if f.verify != nil {
		err := f.verify
		f.mu.Unlock()
		return nil, err
	}
	if want, ok := f.passwords[email]; !ok || want != password {
		f.mu.Unlock()
		return nil, auth.ErrInvalidCredentials
	}
	f.current = &auth.Identity{UID: "uid-" + email, Email: email, Token: "token", ExpiresAt: time.Now().Add(time.Hour)}
	identity := *f.current
	f.mu.Unlock()

	f.push(&identity)
	return &identity, nil
}

func (f *fakeIdentity) SignOut(context.Context) error {
	f.mu.Lock()
	if f.signOut != nil {
		err := f.signOut
		f.mu.Unlock()
		return err
	}
	f.current = nil
	f.mu.Unlock()

	f.push(nil)
	return nil
}

func (f *fakeIdentity) Subscribe(fn func(*auth.Identity)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	current := f.current
	f.mu.Unlock()

	fn(current)
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// expire simulates the provider invalidating the session on its own.
func (f *fakeIdentity) expire() {
	f.mu.Lock()
	f.current = nil
	f.mu.Unlock()
	f.push(nil)
}

func (f *fakeIdentity) push(identity *auth.Identity) {
	f.mu.Lock()
	subs := make([]func(*auth.Identity), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(identity)
	}
}

// recordingNotifier keeps every notification.
type recordingNotifier struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (r *recordingNotifier) Notify(kind notify.Kind, message string) notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := notify.Notification{Kind: kind, Message: message}
	r.items = append(r.items, n)
	return n
}

func (r *recordingNotifier) count(kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingNotifier) last() notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return notify.Notification{}
	}
	return r.items[len(r.items)-1]
}

// fakeImages returns a fixed payload and counts calls.
type fakeImages struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
}

func (f *fakeImages) Process(ctx context.Context, file imaging.File) (string, error) {
	f.mu.Lock()
	f.calls++
	block, err := f.block, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", &imaging.ProcessingError{Err: err}
	}
	return "data:image/jpeg;base64,/9j/", nil
}

type fixture struct {
	ctrl     *Controller
	store    *memory.Store
	identity *fakeIdentity
	notes    *recordingNotifier
	images   *fakeImages
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture builds a controller with an admin signed in.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		identity: newFakeIdentity(),
		notes:    &recordingNotifier{},
		images:   &fakeImages{},
	}
	base := []Option{
		WithNotifier(f.notes),
		WithLogger(discardLogger()),
		WithAdmins(auth.NewAdminList([]string{adminEmail})),
	}
	f.ctrl = New(f.store, f.images, f.identity, append(base, opts...)...)
	t.Cleanup(f.ctrl.Close)

	if _, err := f.ctrl.SignIn(context.Background(), adminEmail, testPassword); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	return f
}

// seed stores a supplement and reloads the catalog.
func (f *fixture) seed(t *testing.T, id, name, barcode, category string) {
	t.Helper()
	f.store.Seed(supplementsDB, id, storage.Fields{
		"name": name, "barcode": barcode, "category": category,
		"price": int64(1000), "quantity": int64(5),
	})
	if err := f.ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func validDraft(barcode string) Draft {
	return Draft{Name: "Vitamin C", Price: "12,999 IQD", Quantity: "10", Barcode: barcode, Category: "Vitamins"}
}
