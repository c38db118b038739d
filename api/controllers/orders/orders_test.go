package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ordersdto "github.com/angelmondragon/greenline-backend/api/controllers/orders/dto"
	"github.com/angelmondragon/greenline-backend/api/middleware"
	internalorders "github.com/angelmondragon/greenline-backend/internal/orders"
	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/greenline-backend/pkg/errors"
	"github.com/angelmondragon/greenline-backend/pkg/types"
)

type stubOrderService struct {
	order *models.Order
	list  *internalorders.ListResult
	err   error

	createInput     internalorders.CreateOrderInput
	textInput       internalorders.CreateTextOrderInput
	listParams      internalorders.ListParams
	lookupNumber    string
	lookupUser      string
	cancelID        uuid.UUID
	statusID        uuid.UUID
	status          enums.OrderStatus
	statusUserScope string
	actor           internalorders.Actor
}

func (s *stubOrderService) CreateOrder(_ context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
	s.createInput = input
	return s.order, s.err
}

func (s *stubOrderService) CreateTextOrder(_ context.Context, input internalorders.CreateTextOrderInput) (*models.Order, error) {
	s.textInput = input
	return s.order, s.err
}

func (s *stubOrderService) GetOrderByID(context.Context, uuid.UUID, string) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) GetOrderByNumber(_ context.Context, number, userID string) (*models.Order, error) {
	s.lookupNumber = number
	s.lookupUser = userID
	return s.order, s.err
}

func (s *stubOrderService) GetUserOrders(_ context.Context, _ string, params internalorders.ListParams) (*internalorders.ListResult, error) {
	s.listParams = params
	return s.list, s.err
}

func (s *stubOrderService) UpdateOrderStatus(_ context.Context, id uuid.UUID, status enums.OrderStatus, userID string, actor internalorders.Actor) (*models.Order, error) {
	s.statusID = id
	s.status = status
	s.statusUserScope = userID
	s.actor = actor
	return s.order, s.err
}

func (s *stubOrderService) CancelOrder(_ context.Context, id uuid.UUID, _ string) (*models.Order, error) {
	s.cancelID = id
	return s.order, s.err
}

func (s *stubOrderService) ListAwaitingContact(context.Context, time.Time, int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrderService) ListContactOverdue(context.Context, time.Time, int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrderService) FlagContactOverdue(context.Context, models.Order) (bool, error) {
	return false, nil
}

func (s *stubOrderService) ExpireAwaitingContact(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}

type recordingMetrics struct {
	failures []string
}

func (m *recordingMetrics) IncCheckoutFailure(kind, code string) {
	m.failures = append(m.failures, kind+":"+code)
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-MGW3K2Q1-7ZK4P",
		UserID:        "user_1",
		Kind:          enums.OrderKindStandard,
		Status:        enums.OrderStatusPending,
		Subtotal:      decimal.RequireFromString("25"),
		Tax:           decimal.RequireFromString("2.22"),
		DeliveryFee:   decimal.RequireFromString("5"),
		Tip:           decimal.RequireFromString("3"),
		Total:         decimal.RequireFromString("35.22"),
		Address:       types.DeliveryAddress{HouseType: "apartment", HouseNumber: "12", StreetName: "Main St", City: "Brooklyn", State: "NY", ZipCode: "11201"},
		PaymentMethod: enums.PaymentMethodCard,
		Items: []models.OrderItem{{
			ID:           uuid.New(),
			ProductID:    "pre-roll-1",
			ProductName:  "Pre-Roll",
			ProductPrice: decimal.RequireFromString("12.5"),
			Quantity:     2,
			LineTotal:    decimal.RequireFromString("25"),
		}},
	}
}

const addressJSON = `{"house_type":"apartment","house_number":"12","street_name":"Main St","city":"Brooklyn","state":"NY","zip_code":"11201"}`

func newRouter(svc internalorders.Service, metrics CheckoutMetrics) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/checkout", Checkout(svc, metrics, nil))
	r.Post("/api/v1/checkout/text-order", TextOrder(svc, metrics, nil))
	r.Get("/api/v1/orders", List(svc, nil))
	r.Get("/api/v1/orders/{orderNumber}", Detail(svc, nil))
	r.Post("/api/v1/orders/{orderId}/cancel", Cancel(svc, nil))
	r.Patch("/api/v1/admin/orders/{orderId}/status", AdminUpdateStatus(svc, nil))
	return r
}

func serve(h http.Handler, role enums.ActorRole, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req = req.WithContext(middleware.WithIdentity(req.Context(), "user_1", role))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
}

func TestCheckoutCreatesOrder(t *testing.T) {
	svc := &stubOrderService{order: sampleOrder()}
	resp := serve(newRouter(svc, nil), enums.ActorRoleCustomer, http.MethodPost, "/api/v1/checkout",
		`{"delivery_address":`+addressJSON+`,"payment_method":"card","tip":"3.00"}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	var placed ordersdto.Placed
	decodeData(t, resp, &placed)
	assert.Equal(t, "/orders/ORD-MGW3K2Q1-7ZK4P/confirmation", placed.RedirectURL)
	assert.Equal(t, "35.22", placed.Order.Total)
	assert.Equal(t, "3.00", placed.Order.Tip)
	require.Len(t, placed.Order.Items, 1)
	assert.Equal(t, "25.00", placed.Order.Items[0].LineTotal)

	assert.Equal(t, "user_1", svc.createInput.UserID)
	assert.Equal(t, enums.PaymentMethodCard, svc.createInput.PaymentMethod)
	assert.True(t, decimal.RequireFromString("3").Equal(svc.createInput.Tip))
	assert.Equal(t, "Brooklyn", svc.createInput.Address.City)
}

func TestCheckoutRejectsTextCallPayment(t *testing.T) {
	metrics := &recordingMetrics{}
	svc := &stubOrderService{order: sampleOrder()}
	resp := serve(newRouter(svc, metrics), enums.ActorRoleCustomer, http.MethodPost, "/api/v1/checkout",
		`{"delivery_address":`+addressJSON+`,"payment_method":"text_call"}`)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, svc.createInput.UserID)
	assert.Equal(t, []string{"standard:VALIDATION_ERROR"}, metrics.failures)
}

func TestCheckoutEmptyCart(t *testing.T) {
	metrics := &recordingMetrics{}
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeValidation, "Cart is empty")}
	resp := serve(newRouter(svc, metrics), enums.ActorRoleCustomer, http.MethodPost, "/api/v1/checkout",
		`{"delivery_address":`+addressJSON+`,"payment_method":"cash"}`)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "Cart is empty")
	assert.Equal(t, []string{"standard:VALIDATION_ERROR"}, metrics.failures)
}

func TestTextOrder(t *testing.T) {
	order := sampleOrder()
	order.OrderNumber = "TXT-MGW3K2Q1-ABCDE"
	order.Kind = enums.OrderKindText
	order.Status = enums.OrderStatusPendingContact
	svc := &stubOrderService{order: order}

	resp := serve(newRouter(svc, nil), enums.ActorRoleCustomer, http.MethodPost, "/api/v1/checkout/text-order",
		`{"delivery_address":`+addressJSON+`,"contact_phone":"+17185550100"}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	var placed ordersdto.Placed
	decodeData(t, resp, &placed)
	assert.Equal(t, "/orders/TXT-MGW3K2Q1-ABCDE/confirmation", placed.RedirectURL)
	assert.Equal(t, enums.OrderStatusPendingContact, placed.Order.Status)
	assert.Equal(t, "+17185550100", svc.textInput.ContactPhone)
}

func TestTextOrderRequiresPhone(t *testing.T) {
	metrics := &recordingMetrics{}
	resp := serve(newRouter(&stubOrderService{}, metrics), enums.ActorRoleCustomer, http.MethodPost, "/api/v1/checkout/text-order",
		`{"delivery_address":`+addressJSON+`}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, []string{"text:VALIDATION_ERROR"}, metrics.failures)
}

func TestListParsesFilters(t *testing.T) {
	svc := &stubOrderService{list: &internalorders.ListResult{
		Orders: []models.Order{*sampleOrder()},
		Total:  3,
		Limit:  1,
		Offset: 0,
	}}
	resp := serve(newRouter(svc, nil), enums.ActorRoleCustomer, http.MethodGet,
		"/api/v1/orders?limit=1&status=pending&start_date=2026-03-01&end_date=2026-03-31", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var list ordersdto.OrderList
	decodeData(t, resp, &list)
	assert.Len(t, list.Orders, 1)
	assert.Equal(t, int64(3), list.Total)
	assert.True(t, list.HasMore)

	assert.Equal(t, 1, svc.listParams.Limit)
	assert.Equal(t, enums.OrderStatusPending, svc.listParams.Status)
	require.NotNil(t, svc.listParams.StartDate)
	require.NotNil(t, svc.listParams.EndDate)
	assert.Equal(t, 31, svc.listParams.EndDate.Day())
	assert.Equal(t, 23, svc.listParams.EndDate.Hour())
}

func TestListRejectsBadFilters(t *testing.T) {
	for _, query := range []string{"?status=lost", "?limit=0", "?limit=500", "?start_date=march"} {
		resp := serve(newRouter(&stubOrderService{}, nil), enums.ActorRoleCustomer, http.MethodGet, "/api/v1/orders"+query, "")
		assert.Equal(t, http.StatusBadRequest, resp.Code, query)
	}
}

func TestDetail(t *testing.T) {
	svc := &stubOrderService{order: sampleOrder()}
	resp := serve(newRouter(svc, nil), enums.ActorRoleCustomer, http.MethodGet, "/api/v1/orders/ORD-MGW3K2Q1-7ZK4P", "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ORD-MGW3K2Q1-7ZK4P", svc.lookupNumber)
	assert.Equal(t, "user_1", svc.lookupUser)

	missing := serve(newRouter(&stubOrderService{}, nil), enums.ActorRoleCustomer, http.MethodGet, "/api/v1/orders/ORD-NOPE", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCancel(t *testing.T) {
	order := sampleOrder()
	now := time.Now()
	order.Status = enums.OrderStatusCancelled
	order.CancelledAt = &now
	svc := &stubOrderService{order: order}

	resp := serve(newRouter(svc, nil), enums.ActorRoleCustomer, http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/cancel", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, order.ID, svc.cancelID)

	bad := serve(newRouter(svc, nil), enums.ActorRoleCustomer, http.MethodPost, "/api/v1/orders/not-a-uuid/cancel", "")
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestCancelStateConflict(t *testing.T) {
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "Order cannot be cancelled")}
	resp := serve(newRouter(svc, nil), enums.ActorRoleCustomer, http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/cancel", "")

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, resp.Body.String(), "Order cannot be cancelled")
}

func TestAdminUpdateStatus(t *testing.T) {
	order := sampleOrder()
	order.Status = enums.OrderStatusConfirmed
	svc := &stubOrderService{order: order}

	resp := serve(newRouter(svc, nil), enums.ActorRoleStaff, http.MethodPatch,
		"/api/v1/admin/orders/"+order.ID.String()+"/status", `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, order.ID, svc.statusID)
	assert.Equal(t, enums.OrderStatusConfirmed, svc.status)
	assert.Empty(t, svc.statusUserScope)
	assert.Equal(t, internalorders.Actor{UserID: "user_1", Role: "staff"}, svc.actor)

	bad := serve(newRouter(svc, nil), enums.ActorRoleStaff, http.MethodPatch,
		"/api/v1/admin/orders/"+order.ID.String()+"/status", `{"status":"teleported"}`)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}
