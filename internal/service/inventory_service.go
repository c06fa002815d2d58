package service

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/pharmasupps/internal/imaging"
	"github.com/mmynk/pharmasupps/internal/inventory"
	"github.com/mmynk/pharmasupps/internal/middleware"
	"github.com/mmynk/pharmasupps/internal/models"
)

// InventoryServiceName is the fully-qualified name of the InventoryService.
const InventoryServiceName = "pharmasupps.v1.InventoryService"

// InventoryService procedure paths.
const (
	InventorySnapshotProcedure         = "/pharmasupps.v1.InventoryService/Snapshot"
	InventoryListSupplementsProcedure  = "/pharmasupps.v1.InventoryService/ListSupplements"
	InventoryFilterProcedure           = "/pharmasupps.v1.InventoryService/Filter"
	InventoryCreateSupplementProcedure = "/pharmasupps.v1.InventoryService/CreateSupplement"
	InventoryUpdateSupplementProcedure = "/pharmasupps.v1.InventoryService/UpdateSupplement"
	InventoryDeleteSupplementProcedure = "/pharmasupps.v1.InventoryService/DeleteSupplement"
	InventoryListCategoriesProcedure   = "/pharmasupps.v1.InventoryService/ListCategories"
	InventoryAddCategoryProcedure      = "/pharmasupps.v1.InventoryService/AddCategory"
	InventoryDeleteCategoryProcedure   = "/pharmasupps.v1.InventoryService/DeleteCategory"
	InventoryReloadProcedure           = "/pharmasupps.v1.InventoryService/Reload"
	InventoryGetCartProcedure          = "/pharmasupps.v1.InventoryService/GetCart"
	InventoryAddToCartProcedure        = "/pharmasupps.v1.InventoryService/AddToCart"
	InventorySetCartQuantityProcedure  = "/pharmasupps.v1.InventoryService/SetCartQuantity"
	InventoryRemoveFromCartProcedure   = "/pharmasupps.v1.InventoryService/RemoveFromCart"
)

// InventoryService exposes the inventory controller over connect.
type InventoryService struct {
	ctrl   *inventory.Controller
	cart   *inventory.Cart
	logger *slog.Logger
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(ctrl *inventory.Controller, logger *slog.Logger) *InventoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InventoryService{
		ctrl:   ctrl,
		cart:   inventory.NewCart(ctrl),
		logger: logger,
	}
}

// NewInventoryServiceHandler builds an HTTP handler for the service. Mutating
// procedures additionally require a bearer token accepted by validator.
func NewInventoryServiceHandler(svc *InventoryService, validator middleware.TokenValidator, opts ...connect.HandlerOption) (string, http.Handler) {
	open := append([]connect.HandlerOption{WithJSON()}, opts...)
	guarded := append(append([]connect.HandlerOption{}, open...), connect.WithInterceptors(middleware.RequireAuth(validator)))

	mux := http.NewServeMux()
	mux.Handle(InventorySnapshotProcedure, connect.NewUnaryHandler(InventorySnapshotProcedure, svc.Snapshot, open...))
	mux.Handle(InventoryListSupplementsProcedure, connect.NewUnaryHandler(InventoryListSupplementsProcedure, svc.ListSupplements, open...))
	mux.Handle(InventoryFilterProcedure, connect.NewUnaryHandler(InventoryFilterProcedure, svc.Filter, open...))
	mux.Handle(InventoryListCategoriesProcedure, connect.NewUnaryHandler(InventoryListCategoriesProcedure, svc.ListCategories, open...))
	mux.Handle(InventoryReloadProcedure, connect.NewUnaryHandler(InventoryReloadProcedure, svc.Reload, open...))
	mux.Handle(InventoryGetCartProcedure, connect.NewUnaryHandler(InventoryGetCartProcedure, svc.GetCart, open...))
	mux.Handle(InventoryAddToCartProcedure, connect.NewUnaryHandler(InventoryAddToCartProcedure, svc.AddToCart, open...))
	mux.Handle(InventorySetCartQuantityProcedure, connect.NewUnaryHandler(InventorySetCartQuantityProcedure, svc.SetCartQuantity, open...))
	mux.Handle(InventoryRemoveFromCartProcedure, connect.NewUnaryHandler(InventoryRemoveFromCartProcedure, svc.RemoveFromCart, open...))

	mux.Handle(InventoryCreateSupplementProcedure, connect.NewUnaryHandler(InventoryCreateSupplementProcedure, svc.CreateSupplement, guarded...))
	mux.Handle(InventoryUpdateSupplementProcedure, connect.NewUnaryHandler(InventoryUpdateSupplementProcedure, svc.UpdateSupplement, guarded...))
	mux.Handle(InventoryDeleteSupplementProcedure, connect.NewUnaryHandler(InventoryDeleteSupplementProcedure, svc.DeleteSupplement, guarded...))
	mux.Handle(InventoryAddCategoryProcedure, connect.NewUnaryHandler(InventoryAddCategoryProcedure, svc.AddCategory, guarded...))
	mux.Handle(InventoryDeleteCategoryProcedure, connect.NewUnaryHandler(InventoryDeleteCategoryProcedure, svc.DeleteCategory, guarded...))

	return "/" + InventoryServiceName + "/", mux
}

// Snapshot returns everything a view renders from.
func (s *InventoryService) Snapshot(ctx context.Context, req *connect.Request[SnapshotRequest]) (*connect.Response[SnapshotResponse], error) {
	snap := s.ctrl.Snapshot()
	resp := &SnapshotResponse{
		Supplements:   toSupplements(snap.Supplements),
		Visible:       toSupplements(snap.Visible),
		Categories:    snap.Categories,
		SearchTerm:    snap.SearchTerm,
		Category:      snap.Category,
		State:         snap.State.String(),
		Notifications: toNotifications(snap.Notifications),
		Loaded:        snap.Loaded,
	}
	if snap.Identity != nil {
		resp.Email = snap.Identity.Email
	}
	return connect.NewResponse(resp), nil
}

// ListSupplements returns the whole catalog in display order.
func (s *InventoryService) ListSupplements(ctx context.Context, req *connect.Request[ListSupplementsRequest]) (*connect.Response[ListSupplementsResponse], error) {
	items := s.ctrl.Supplements()
	s.logger.Info("ListSupplements successful", "count", len(items))
	return connect.NewResponse(&ListSupplementsResponse{Supplements: toSupplements(items)}), nil
}

// Filter sets the active search and returns the matching supplements.
func (s *InventoryService) Filter(ctx context.Context, req *connect.Request[FilterRequest]) (*connect.Response[FilterResponse], error) {
	s.ctrl.SetFilter(req.Msg.SearchTerm, req.Msg.Category)
	items := s.ctrl.Filter(req.Msg.SearchTerm, req.Msg.Category)
	return connect.NewResponse(&FilterResponse{Supplements: toSupplements(items)}), nil
}

// CreateSupplement submits a new draft through the form.
func (s *InventoryService) CreateSupplement(ctx context.Context, req *connect.Request[CreateSupplementRequest]) (*connect.Response[CreateSupplementResponse], error) {
	s.logger.Info("CreateSupplement request received",
		"user_id", middleware.GetUserID(ctx),
		"barcode", req.Msg.Draft.Barcode,
	)

	form := inventory.NewForm(s.ctrl)
	if err := form.OpenCreate(); err != nil {
		return nil, connectError(err)
	}
	saved, err := s.submit(ctx, form, req.Msg.Draft, false)
	if err != nil {
		s.logger.Warn("CreateSupplement failed", "error", err)
		return nil, connectError(err)
	}

	s.logger.Info("Supplement created", "id", saved.ID)
	return connect.NewResponse(&CreateSupplementResponse{Supplement: toSupplement(saved)}), nil
}

// UpdateSupplement submits an edit of an existing supplement.
func (s *InventoryService) UpdateSupplement(ctx context.Context, req *connect.Request[UpdateSupplementRequest]) (*connect.Response[UpdateSupplementResponse], error) {
	s.logger.Info("UpdateSupplement request received",
		"user_id", middleware.GetUserID(ctx),
		"id", req.Msg.ID,
	)

	form := inventory.NewForm(s.ctrl)
	if err := form.OpenEdit(req.Msg.ID); err != nil {
		return nil, connectError(err)
	}
	saved, err := s.submit(ctx, form, req.Msg.Draft, true)
	if err != nil {
		s.logger.Warn("UpdateSupplement failed", "id", req.Msg.ID, "error", err)
		return nil, connectError(err)
	}

	s.logger.Info("Supplement updated", "id", saved.ID)
	return connect.NewResponse(&UpdateSupplementResponse{Supplement: toSupplement(saved)}), nil
}

// DeleteSupplement removes a supplement. The request carries the answer to
// the confirmation prompt.
func (s *InventoryService) DeleteSupplement(ctx context.Context, req *connect.Request[DeleteSupplementRequest]) (*connect.Response[DeleteSupplementResponse], error) {
	s.logger.Info("DeleteSupplement request received", "id", req.Msg.ID, "confirmed", req.Msg.Confirmed)

	if err := s.ctrl.Remove(ctx, req.Msg.ID, inventory.Confirmed(req.Msg.Confirmed)); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&DeleteSupplementResponse{}), nil
}

// ListCategories returns the filter choices and the managed records.
func (s *InventoryService) ListCategories(ctx context.Context, req *connect.Request[ListCategoriesRequest]) (*connect.Response[ListCategoriesResponse], error) {
	records := s.ctrl.CategoryRecords()
	resp := &ListCategoriesResponse{
		Categories: s.ctrl.Categories(),
		Records:    make([]Category, len(records)),
		Mode:       string(s.ctrl.Mode()),
	}
	for i, c := range records {
		resp.Records[i] = Category{ID: c.ID, Name: c.Name}
	}
	return connect.NewResponse(resp), nil
}

// AddCategory creates a managed category.
func (s *InventoryService) AddCategory(ctx context.Context, req *connect.Request[AddCategoryRequest]) (*connect.Response[AddCategoryResponse], error) {
	s.logger.Info("AddCategory request received", "name", req.Msg.Name)

	cat, err := s.ctrl.AddCategory(ctx, req.Msg.Name)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&AddCategoryResponse{Category: Category{ID: cat.ID, Name: cat.Name}}), nil
}

// DeleteCategory removes a managed category and reassigns its supplements.
func (s *InventoryService) DeleteCategory(ctx context.Context, req *connect.Request[DeleteCategoryRequest]) (*connect.Response[DeleteCategoryResponse], error) {
	s.logger.Info("DeleteCategory request received", "name", req.Msg.Name, "confirmed", req.Msg.Confirmed)

	if err := s.ctrl.RemoveCategory(ctx, req.Msg.Name, inventory.Confirmed(req.Msg.Confirmed)); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&DeleteCategoryResponse{}), nil
}

// Reload refetches the catalog from the backend.
func (s *InventoryService) Reload(ctx context.Context, req *connect.Request[ReloadRequest]) (*connect.Response[ReloadResponse], error) {
	if err := s.ctrl.Load(ctx); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&ReloadResponse{Count: len(s.ctrl.Supplements())}), nil
}

// GetCart returns the cart against current stock.
func (s *InventoryService) GetCart(ctx context.Context, req *connect.Request[GetCartRequest]) (*connect.Response[CartResponse], error) {
	return connect.NewResponse(s.cartResponse()), nil
}

// AddToCart adds one unit.
func (s *InventoryService) AddToCart(ctx context.Context, req *connect.Request[AddToCartRequest]) (*connect.Response[CartResponse], error) {
	if err := s.cart.Add(req.Msg.ID); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(s.cartResponse()), nil
}

// SetCartQuantity changes the units of a line, clamped to stock.
func (s *InventoryService) SetCartQuantity(ctx context.Context, req *connect.Request[SetCartQuantityRequest]) (*connect.Response[CartResponse], error) {
	if err := s.cart.SetQuantity(req.Msg.ID, req.Msg.Quantity); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(s.cartResponse()), nil
}

// RemoveFromCart drops a line.
func (s *InventoryService) RemoveFromCart(ctx context.Context, req *connect.Request[RemoveFromCartRequest]) (*connect.Response[CartResponse], error) {
	s.cart.Remove(req.Msg.ID)
	return connect.NewResponse(s.cartResponse()), nil
}

func (s *InventoryService) cartResponse() *CartResponse {
	lines := s.cart.Lines()
	resp := &CartResponse{Lines: make([]CartLine, len(lines))}
	for i, line := range lines {
		resp.Lines[i] = CartLine{
			Supplement:   toSupplement(line.Supplement),
			Quantity:     line.Quantity,
			Subtotal:     line.Subtotal(),
			SubtotalText: inventory.FormatPrice(line.Subtotal()),
		}
		resp.Total += line.Subtotal()
	}
	resp.TotalText = inventory.FormatPrice(resp.Total)
	return resp
}

// submit copies the wire draft into the form and submits it. On update a nil
// image with KeepImage unset clears the stored image.
func (s *InventoryService) submit(ctx context.Context, form *inventory.Form, in SupplementDraft, editing bool) (saved models.Supplement, err error) {
	if err := form.Change(func(d *inventory.Draft) {
		d.Name = in.Name
		d.Description = in.Description
		d.Price = in.Price
		d.Quantity = in.Quantity
		d.Barcode = in.Barcode
		d.Category = in.Category
	}); err != nil {
		return saved, err
	}

	switch {
	case in.Image != nil:
		file := imaging.File{Name: in.Image.Name, Type: in.Image.Type, Data: in.Image.Data}
		if err := form.AttachImage(file); err != nil {
			return saved, err
		}
	case editing && !in.KeepImage:
		if err := form.ClearImage(); err != nil {
			return saved, err
		}
	}
	return form.Submit(ctx)
}
