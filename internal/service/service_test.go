package service

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/pharmasupps/internal/auth"
	"github.com/mmynk/pharmasupps/internal/inventory"
	"github.com/mmynk/pharmasupps/internal/notify"
	"github.com/mmynk/pharmasupps/internal/storage/sqlite"
)

const (
	adminEmail = "owner@pharmacy.example"
	clerkEmail = "clerk@pharmacy.example"
	password   = "correct-horse"
)

type testServer struct {
	url      string
	sessions *auth.SessionProvider
	ctrl     *inventory.Controller
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestServer creates a test server backed by a temporary SQLite database
// with an admin and a clerk account.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "pharmasupps-service-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := quietLogger()
	authn := auth.NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost)
	ctx := context.Background()
	for _, email := range []string{adminEmail, clerkEmail} {
		if _, err := authn.Register(ctx, email, "Test", password); err != nil {
			t.Fatalf("failed to register %s: %v", email, err)
		}
	}
	sessions := auth.NewSessionProvider(authn, auth.NewJWTManager("test-secret", time.Hour), logger)

	ctrl := inventory.New(store, nil, sessions,
		inventory.WithLogger(logger),
		inventory.WithNotifier(notify.New(notify.WithLogger(logger))),
		inventory.WithAdmins(auth.NewAdminList([]string{adminEmail})),
	)
	t.Cleanup(ctrl.Close)
	if err := ctrl.Load(ctx); err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle(NewInventoryServiceHandler(NewInventoryService(ctrl, logger), sessions))
	mux.Handle(NewAuthServiceHandler(NewAuthService(ctrl, logger), sessions))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testServer{url: server.URL, sessions: sessions, ctrl: ctrl}
}

func call[Req, Res any](t *testing.T, ts *testServer, procedure, token string, msg *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](http.DefaultClient, ts.url+procedure, WithJSON())
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func login(t *testing.T, ts *testServer, email string) string {
	t.Helper()
	resp, err := call[LoginRequest, LoginResponse](t, ts, AuthLoginProcedure, "", &LoginRequest{Email: email, Password: password})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return resp.Token
}

func createVitaminC(t *testing.T, ts *testServer, token string) Supplement {
	t.Helper()
	resp, err := call[CreateSupplementRequest, CreateSupplementResponse](t, ts, InventoryCreateSupplementProcedure, token, &CreateSupplementRequest{
		Draft: SupplementDraft{Name: "Vitamin C", Price: "12,999 IQD", Quantity: "10", Barcode: "6291041500213", Category: "Vitamins"},
	})
	if err != nil {
		t.Fatalf("CreateSupplement failed: %v", err)
	}
	return resp.Supplement
}

func TestLogin(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := call[LoginRequest, LoginResponse](t, ts, AuthLoginProcedure, "", &LoginRequest{Email: adminEmail, Password: password})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.Token == "" || resp.State != inventory.SignedInAdmin.String() {
		t.Errorf("unexpected login response %+v", resp)
	}

	session, err := call[SessionRequest, SessionResponse](t, ts, AuthSessionProcedure, resp.Token, &SessionRequest{})
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if session.Email != adminEmail || session.ExpiresAt == nil {
		t.Errorf("unexpected session %+v", session)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	ts := setupTestServer(t)

	_, err := call[LoginRequest, LoginResponse](t, ts, AuthLoginProcedure, "", &LoginRequest{Email: adminEmail, Password: "nope-nope"})
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}

	snap, err := call[SnapshotRequest, SnapshotResponse](t, ts, InventorySnapshotProcedure, "", &SnapshotRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != inventory.SignedOut.String() {
		t.Errorf("expected signed-out, got %s", snap.State)
	}
	found := false
	for _, n := range snap.Notifications {
		if n.Kind == string(notify.Error) && n.Message == "Invalid credentials" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected failure notification, got %+v", snap.Notifications)
	}
}

func TestCreateSupplement(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts, adminEmail)

	created := createVitaminC(t, ts, token)
	if created.ID == "" || created.Price != 12999 || created.PriceText != "IQD 12,999" || !created.InStock {
		t.Errorf("unexpected supplement %+v", created)
	}

	list, err := call[FilterRequest, FilterResponse](t, ts, InventoryFilterProcedure, "", &FilterRequest{Category: "All"})
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(list.Supplements) != 1 || list.Supplements[0].ID != created.ID {
		t.Errorf("unexpected filter result %+v", list.Supplements)
	}
}

func TestCreateSupplement_Unauthenticated(t *testing.T) {
	ts := setupTestServer(t)

	_, err := call[CreateSupplementRequest, CreateSupplementResponse](t, ts, InventoryCreateSupplementProcedure, "", &CreateSupplementRequest{
		Draft: SupplementDraft{Name: "x", Price: "1", Barcode: "1"},
	})
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
}

func TestCreateSupplement_NotAdmin(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts, clerkEmail)

	_, err := call[CreateSupplementRequest, CreateSupplementResponse](t, ts, InventoryCreateSupplementProcedure, token, &CreateSupplementRequest{
		Draft: SupplementDraft{Name: "x", Price: "1", Barcode: "1"},
	})
	if connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Errorf("expected PermissionDenied, got %v", err)
	}
}

func TestCreateSupplement_Invalid(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts, adminEmail)
	createVitaminC(t, ts, token)

	tests := []struct {
		name  string
		draft SupplementDraft
	}{
		{"missing barcode", SupplementDraft{Name: "Zinc", Price: "10"}},
		{"duplicate barcode", SupplementDraft{Name: "Zinc", Price: "10", Barcode: "6291041500213"}},
		{"not an image", SupplementDraft{Name: "Zinc", Price: "10", Barcode: "2", Image: &ImageUpload{Name: "a.txt", Type: "text/plain", Data: []byte("hi")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call[CreateSupplementRequest, CreateSupplementResponse](t, ts, InventoryCreateSupplementProcedure, token, &CreateSupplementRequest{Draft: tt.draft})
			if connect.CodeOf(err) != connect.CodeInvalidArgument {
				t.Errorf("expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestUpdateSupplement_Image(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts, adminEmail)
	created := createVitaminC(t, ts, token)

	// 1x1 transparent PNG.
	pixel, _ := base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

	draft := SupplementDraft{Name: "Vitamin C", Price: "12999", Quantity: "0", Barcode: created.Barcode,
		Image: &ImageUpload{Name: "c.png", Type: "image/png", Data: pixel}}
	resp, err := call[UpdateSupplementRequest, UpdateSupplementResponse](t, ts, InventoryUpdateSupplementProcedure, token, &UpdateSupplementRequest{ID: created.ID, Draft: draft})
	if err != nil {
		t.Fatalf("UpdateSupplement failed: %v", err)
	}
	if resp.Supplement.Image == nil || !strings.HasPrefix(*resp.Supplement.Image, "data:image/png;base64,") {
		t.Errorf("expected png data URI, got %v", resp.Supplement.Image)
	}
	if resp.Supplement.InStock || resp.Supplement.Category != "Vitamins" {
		t.Errorf("unexpected supplement %+v", resp.Supplement)
	}

	draft.Image = nil
	draft.KeepImage = true
	resp, err = call[UpdateSupplementRequest, UpdateSupplementResponse](t, ts, InventoryUpdateSupplementProcedure, token, &UpdateSupplementRequest{ID: created.ID, Draft: draft})
	if err != nil || resp.Supplement.Image == nil {
		t.Fatalf("keep image failed: %v", err)
	}

	draft.KeepImage = false
	resp, err = call[UpdateSupplementRequest, UpdateSupplementResponse](t, ts, InventoryUpdateSupplementProcedure, token, &UpdateSupplementRequest{ID: created.ID, Draft: draft})
	if err != nil || resp.Supplement.Image != nil {
		t.Fatalf("clear image failed: %v %v", err, resp)
	}
}

func TestDeleteSupplement(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts, adminEmail)
	created := createVitaminC(t, ts, token)

	_, err := call[DeleteSupplementRequest, DeleteSupplementResponse](t, ts, InventoryDeleteSupplementProcedure, token, &DeleteSupplementRequest{ID: created.ID})
	if connect.CodeOf(err) != connect.CodeCanceled {
		t.Errorf("unconfirmed delete: expected Canceled, got %v", err)
	}

	if _, err := call[DeleteSupplementRequest, DeleteSupplementResponse](t, ts, InventoryDeleteSupplementProcedure, token, &DeleteSupplementRequest{ID: created.ID, Confirmed: true}); err != nil {
		t.Fatalf("DeleteSupplement failed: %v", err)
	}

	_, err = call[DeleteSupplementRequest, DeleteSupplementResponse](t, ts, InventoryDeleteSupplementProcedure, token, &DeleteSupplementRequest{ID: created.ID, Confirmed: true})
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestDeleteCategory(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts, adminEmail)

	if _, err := call[AddCategoryRequest, AddCategoryResponse](t, ts, InventoryAddCategoryProcedure, token, &AddCategoryRequest{Name: "Vitamins"}); err != nil {
		t.Fatalf("AddCategory failed: %v", err)
	}
	createVitaminC(t, ts, token)

	if _, err := call[DeleteCategoryRequest, DeleteCategoryResponse](t, ts, InventoryDeleteCategoryProcedure, token, &DeleteCategoryRequest{Name: "Vitamins", Confirmed: true}); err != nil {
		t.Fatalf("DeleteCategory failed: %v", err)
	}

	cats, err := call[ListCategoriesRequest, ListCategoriesResponse](t, ts, InventoryListCategoriesProcedure, "", &ListCategoriesRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cats.Records) != 0 || len(cats.Categories) != 1 {
		t.Errorf("unexpected categories %+v", cats)
	}

	// Reload from SQLite to prove the cascade was persisted.
	if _, err := call[ReloadRequest, ReloadResponse](t, ts, InventoryReloadProcedure, "", &ReloadRequest{}); err != nil {
		t.Fatal(err)
	}
	list, _ := call[ListSupplementsRequest, ListSupplementsResponse](t, ts, InventoryListSupplementsProcedure, "", &ListSupplementsRequest{})
	if len(list.Supplements) != 1 || list.Supplements[0].Category != "General" {
		t.Errorf("expected item moved to General, got %+v", list.Supplements)
	}
}

func TestSessionExpiry(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts, adminEmail)

	ts.sessions.Invalidate()

	_, err := call[CreateSupplementRequest, CreateSupplementResponse](t, ts, InventoryCreateSupplementProcedure, token, &CreateSupplementRequest{
		Draft: SupplementDraft{Name: "x", Price: "1", Barcode: "1"},
	})
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("expected Unauthenticated after invalidation, got %v", err)
	}
	if ts.ctrl.Gate().State() != inventory.SignedOut {
		t.Error("gate should be signed out")
	}
}

func TestCart(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts, adminEmail)
	created := createVitaminC(t, ts, token)

	if _, err := call[AddToCartRequest, CartResponse](t, ts, InventoryAddToCartProcedure, "", &AddToCartRequest{ID: created.ID}); err != nil {
		t.Fatal(err)
	}
	cart, err := call[SetCartQuantityRequest, CartResponse](t, ts, InventorySetCartQuantityProcedure, "", &SetCartQuantityRequest{ID: created.ID, Quantity: 3})
	if err != nil {
		t.Fatal(err)
	}
	if cart.Total != 3*12999 || cart.TotalText != "IQD 38,997" {
		t.Errorf("unexpected cart %+v", cart)
	}

	_, err = call[AddToCartRequest, CartResponse](t, ts, InventoryAddToCartProcedure, "", &AddToCartRequest{ID: "missing"})
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}
