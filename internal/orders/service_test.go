package orders

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/greenline-backend/internal/cart"
	"github.com/angelmondragon/greenline-backend/internal/totals"
	"github.com/angelmondragon/greenline-backend/pkg/config"
	"github.com/angelmondragon/greenline-backend/pkg/db"
	"github.com/angelmondragon/greenline-backend/pkg/db/dbtest"
	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/greenline-backend/pkg/errors"
	"github.com/angelmondragon/greenline-backend/pkg/outbox"
	"github.com/angelmondragon/greenline-backend/pkg/outbox/payloads"
)

type fixture struct {
	client  *db.Client
	carts   cart.Service
	orders  Service
	metrics *countingMetrics
}

type fixtureOption func(*ServiceParams)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	cartRepo := cart.NewRepository(client.DB())
	carts, err := cart.NewService(cartRepo, client, totals.DefaultPolicy())
	require.NoError(t, err)

	metrics := &countingMetrics{counts: map[string]int{}}
	params := ServiceParams{
		Repo:    NewRepository(client.DB()),
		Carts:   cartRepo,
		Tx:      client,
		Outbox:  outbox.NewService(outbox.NewRepository(client.DB()), nil),
		Policy:  totals.DefaultPolicy(),
		Metrics: metrics,
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return &fixture{client: client, carts: carts, orders: svc, metrics: metrics}
}

func (f *fixture) fillCart(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.carts.AddItem(ctx, userID, cart.ItemInput{
		ProductID: "product-a", ProductName: "Product A", ProductPrice: decimal.RequireFromString("10.00"), Quantity: 2,
	})
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, userID, cart.ItemInput{
		ProductID: "product-b", ProductName: "Product B", ProductPrice: decimal.RequireFromString("15.00"), Quantity: 1,
	})
	require.NoError(t, err)
}

func (f *fixture) placeOrder(t *testing.T, userID string) *models.Order {
	t.Helper()
	f.fillCart(t, userID)
	order, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		UserID:        userID,
		Address:       testAddress(),
		PaymentMethod: enums.PaymentMethodCard,
		Tip:           decimal.RequireFromString("5.00"),
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) events(t *testing.T, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.client.DB().Where("event_type = ?", eventType).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func decodeEventData(t *testing.T, row models.OutboxEvent, target any) {
	t.Helper()
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, target))
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestCreateOrderEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.placeOrder(t, "user_a")

	assert.Equal(t, "35.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "3.11", order.Tax.StringFixed(2))
	assert.Equal(t, "5.00", order.DeliveryFee.StringFixed(2))
	assert.Equal(t, "5.00", order.Tip.StringFixed(2))
	assert.Equal(t, "48.11", order.Total.StringFixed(2))
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.OrderKindStandard, order.Kind)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-"))
	assert.Nil(t, order.ContactPhone)
	require.Len(t, order.Items, 2)

	view, err := f.carts.GetCart(ctx, "user_a")
	require.NoError(t, err)
	require.NotNil(t, view, "cart row survives checkout")
	assert.Empty(t, view.Items)

	stored, err := f.orders.GetOrderByNumber(ctx, order.OrderNumber, "user_a")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "48.11", stored.Total.StringFixed(2))
	lineTotals := map[string]string{}
	for _, item := range stored.Items {
		lineTotals[item.ProductID] = item.LineTotal.StringFixed(2)
	}
	assert.Equal(t, map[string]string{"product-a": "20.00", "product-b": "15.00"}, lineTotals)

	created := f.events(t, enums.EventOrderCreated)
	require.Len(t, created, 1)
	var payload payloads.OrderCreatedEvent
	decodeEventData(t, created[0], &payload)
	assert.Equal(t, order.ID, payload.OrderID)
	assert.Equal(t, 3, payload.ItemCount)
	assert.Equal(t, "48.11", payload.Total)
	assert.Equal(t, 1, f.metrics.get("created:standard"))
}

func TestCreateOrderSnapshotIsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, "user_a")

	_, err := f.carts.AddItem(ctx, "user_a", cart.ItemInput{
		ProductID: "product-a", ProductName: "Product A (repriced)", ProductPrice: decimal.RequireFromString("99.00"), Quantity: 7,
	})
	require.NoError(t, err)

	stored, err := f.orders.GetOrderByID(ctx, order.ID, "user_a")
	require.NoError(t, err)
	require.NotNil(t, stored)
	for _, item := range stored.Items {
		if item.ProductID == "product-a" {
			assert.Equal(t, "Product A", item.ProductName)
			assert.Equal(t, "10.00", item.ProductPrice.StringFixed(2))
			assert.Equal(t, 2, item.Quantity)
		}
	}
	assert.Equal(t, "48.11", stored.Total.StringFixed(2))
}

func TestCreateOrderEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := CreateOrderInput{UserID: "user_a", Address: testAddress(), PaymentMethod: enums.PaymentMethodCash}

	_, err := f.orders.CreateOrder(ctx, input)
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "Cart is empty", pkgerrors.As(err).Message())

	_, err = f.carts.GetOrCreateCart(ctx, "user_a")
	require.NoError(t, err)
	_, err = f.orders.CreateOrder(ctx, input)
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.orders.CreateTextOrder(ctx, CreateTextOrderInput{UserID: "user_a", Address: testAddress(), ContactPhone: "555-0100"})
	requireCode(t, err, pkgerrors.CodeValidation)

	assert.EqualValues(t, 0, dbtest.Count(t, f.client.DB(), "orders", ""))
	assert.EqualValues(t, 0, dbtest.Count(t, f.client.DB(), "outbox_events", ""))
}

func TestCreateOrderValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, "user_a")

	tests := []struct {
		name  string
		input CreateOrderInput
	}{
		{name: "text call is not self-serve", input: CreateOrderInput{UserID: "user_a", Address: testAddress(), PaymentMethod: enums.PaymentMethodTextCall}},
		{name: "unknown method", input: CreateOrderInput{UserID: "user_a", Address: testAddress(), PaymentMethod: "bitcoin"}},
		{name: "negative tip", input: CreateOrderInput{UserID: "user_a", Address: testAddress(), PaymentMethod: enums.PaymentMethodCard, Tip: decimal.NewFromInt(-1)}},
		{name: "missing address", input: CreateOrderInput{UserID: "user_a", PaymentMethod: enums.PaymentMethodCard}},
		{name: "missing user", input: CreateOrderInput{Address: testAddress(), PaymentMethod: enums.PaymentMethodCard}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(ctx, tt.input)
			requireCode(t, err, pkgerrors.CodeValidation)
		})
	}

	count, err := f.carts.GetItemCount(ctx, "user_a")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "failed checkouts leave the cart alone")
}

func TestCreateTextOrderKeepsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, "user_a")

	order, err := f.orders.CreateTextOrder(ctx, CreateTextOrderInput{
		UserID:       "user_a",
		Address:      testAddress(),
		ContactPhone: " 555-0100 ",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(order.OrderNumber, "TXT-"))
	assert.Equal(t, enums.OrderStatusPendingContact, order.Status)
	assert.Equal(t, enums.PaymentMethodTextCall, order.PaymentMethod)
	assert.Equal(t, enums.OrderKindText, order.Kind)
	assert.True(t, order.Tip.IsZero())
	assert.Equal(t, "43.11", order.Total.StringFixed(2))
	require.NotNil(t, order.ContactPhone)
	assert.Equal(t, "555-0100", *order.ContactPhone)

	count, err := f.carts.GetItemCount(ctx, "user_a")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	created := f.events(t, enums.EventOrderCreated)
	require.Len(t, created, 1)
	var payload payloads.OrderCreatedEvent
	decodeEventData(t, created[0], &payload)
	assert.Equal(t, enums.OrderKindText, payload.Kind)
	assert.Equal(t, 1, f.metrics.get("created:text"))

	_, err = f.orders.CreateTextOrder(ctx, CreateTextOrderInput{UserID: "user_a", Address: testAddress()})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestCreateOrderRetriesNumberCollision(t *testing.T) {
	numbers := &scriptedNumbers{values: []string{"ORD-FIXED", "ORD-FIXED", "ORD-FRESH"}}
	f := newFixture(t, func(p *ServiceParams) { p.Numbers = numbers.next })

	first := f.placeOrder(t, "user_a")
	assert.Equal(t, "ORD-FIXED", first.OrderNumber)

	second := f.placeOrder(t, "user_b")
	assert.Equal(t, "ORD-FRESH", second.OrderNumber)
	assert.EqualValues(t, 2, dbtest.Count(t, f.client.DB(), "orders", ""))
	assert.EqualValues(t, 2, dbtest.Count(t, f.client.DB(), "order_items", "order_id = ?", second.ID))
}

func TestCreateOrderGivesUpAfterAttempts(t *testing.T) {
	numbers := &scriptedNumbers{values: []string{"ORD-FIXED"}}
	f := newFixture(t, func(p *ServiceParams) {
		p.Numbers = numbers.next
		p.Config = config.OrdersConfig{NumberAttempts: 2}
	})
	f.placeOrder(t, "user_a")

	f.fillCart(t, "user_b")
	_, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "user_b", Address: testAddress(), PaymentMethod: enums.PaymentMethodCard,
	})
	requireCode(t, err, pkgerrors.CodeConflict)

	count, err := f.carts.GetItemCount(context.Background(), "user_b")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "rollback keeps the cart")
}

func TestGetOrderOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, "user_a")

	found, err := f.orders.GetOrderByNumber(ctx, order.OrderNumber, "user_b")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = f.orders.GetOrderByID(ctx, order.ID, "user_b")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = f.orders.GetOrderByID(ctx, order.ID, "")
	require.NoError(t, err)
	require.NotNil(t, found)

	found, err = f.orders.GetOrderByNumber(ctx, "ORD-NOPE", "")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestGetUserOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.placeOrder(t, "user_a")
	time.Sleep(5 * time.Millisecond)
	second := f.placeOrder(t, "user_a")
	f.placeOrder(t, "user_b")

	result, err := f.orders.GetUserOrders(ctx, "user_a", ListParams{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Total)
	assert.Equal(t, 25, result.Limit)
	require.Len(t, result.Orders, 2)
	assert.Equal(t, second.ID, result.Orders[0].ID)
	assert.Equal(t, first.ID, result.Orders[1].ID)

	result, err = f.orders.GetUserOrders(ctx, "nobody", ListParams{Limit: 500})
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.NotNil(t, result.Orders)
	assert.Equal(t, 100, result.Limit)

	_, err = f.orders.GetUserOrders(ctx, "user_a", ListParams{Status: "lost"})
	requireCode(t, err, pkgerrors.CodeValidation)

	start, end := time.Now(), time.Now().Add(-time.Hour)
	_, err = f.orders.GetUserOrders(ctx, "user_a", ListParams{StartDate: &start, EndDate: &end})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestUpdateOrderStatusUnrestrictedByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, "user_a")
	staff := Actor{UserID: "staff_1", Role: "staff"}

	updated, err := f.orders.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusDelivered, "", staff)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, updated.Status)

	updated, err = f.orders.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusPending, "", staff)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, updated.Status)

	changes := f.events(t, enums.EventOrderStatusChanged)
	require.Len(t, changes, 2)
	var payload payloads.OrderStatusChangedEvent
	decodeEventData(t, changes[1], &payload)
	assert.Equal(t, enums.OrderStatusDelivered, payload.From)
	assert.Equal(t, enums.OrderStatusPending, payload.To)
	assert.Equal(t, 1, f.metrics.get("status:delivered"))
}

func TestUpdateOrderStatusErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, "user_a")

	_, err := f.orders.UpdateOrderStatus(ctx, order.ID, "shipped", "", Actor{})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.orders.UpdateOrderStatus(ctx, uuid.New(), enums.OrderStatusConfirmed, "", Actor{})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.orders.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusConfirmed, "user_b", Actor{})
	requireCode(t, err, pkgerrors.CodeNotFound)

	assert.Empty(t, f.events(t, enums.EventOrderStatusChanged))
}

func TestUpdateOrderStatusEnforcedTransitions(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) { p.Config.EnforceTransitions = true })
	ctx := context.Background()
	order := f.placeOrder(t, "user_a")

	_, err := f.orders.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusDelivered, "", Actor{})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	updated, err := f.orders.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusConfirmed, "", Actor{})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, updated.Status)

	updated, err = f.orders.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusCancelled, "", Actor{})
	require.NoError(t, err)
	assert.NotNil(t, updated.CancelledAt)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, "user_a")

	_, err := f.orders.CancelOrder(ctx, order.ID, "user_b")
	requireCode(t, err, pkgerrors.CodeNotFound)

	cancelled, err := f.orders.CancelOrder(ctx, order.ID, "user_a")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.orders.CancelOrder(ctx, order.ID, "user_a")
	requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, "Order cannot be cancelled", pkgerrors.As(err).Message())

	events := f.events(t, enums.EventOrderCancelled)
	require.Len(t, events, 1)
	var payload payloads.OrderCancelledEvent
	decodeEventData(t, events[0], &payload)
	assert.Equal(t, enums.OrderStatusPending, payload.From)
	assert.Equal(t, CancelReasonCustomer, payload.Reason)
	assert.Equal(t, 1, f.metrics.get("cancelled:"+CancelReasonCustomer))
}

func TestCancelOrderRejectsLaterStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, status := range []enums.OrderStatus{enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered} {
		order := f.placeOrder(t, "user_a")
		_, err := f.orders.UpdateOrderStatus(ctx, order.ID, status, "", Actor{})
		require.NoError(t, err)

		_, err = f.orders.CancelOrder(ctx, order.ID, "user_a")
		requireCode(t, err, pkgerrors.CodeStateConflict)

		stored, err := f.orders.GetOrderByID(ctx, order.ID, "")
		require.NoError(t, err)
		assert.Equal(t, status, stored.Status)
		assert.Nil(t, stored.CancelledAt)
	}

	f.fillCart(t, "user_c")
	text, err := f.orders.CreateTextOrder(ctx, CreateTextOrderInput{UserID: "user_c", Address: testAddress(), ContactPhone: "555-0100"})
	require.NoError(t, err)
	_, err = f.orders.CancelOrder(ctx, text.ID, "user_c")
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestConciergeFollowUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := seedOrder(t, f.client.DB(), "user_a", enums.OrderStatusPendingContact, time.Now().Add(-3*time.Hour))
	seedOrder(t, f.client.DB(), "user_a", enums.OrderStatusPendingContact, time.Now())

	awaiting, err := f.orders.ListAwaitingContact(ctx, time.Now().Add(-2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.Equal(t, stale.ID, awaiting[0].ID)

	emitted, err := f.orders.FlagContactOverdue(ctx, awaiting[0])
	require.NoError(t, err)
	assert.True(t, emitted)
	emitted, err = f.orders.FlagContactOverdue(ctx, awaiting[0])
	require.NoError(t, err)
	assert.False(t, emitted)
	assert.Len(t, f.events(t, enums.EventOrderContactOverdue), 1)

	expired, err := f.orders.ExpireAwaitingContact(ctx, stale.ID)
	require.NoError(t, err)
	assert.True(t, expired)
	expired, err = f.orders.ExpireAwaitingContact(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, expired)

	events := f.events(t, enums.EventOrderCancelled)
	require.Len(t, events, 1)
	var payload payloads.OrderCancelledEvent
	decodeEventData(t, events[0], &payload)
	assert.Equal(t, CancelReasonContactExpired, payload.Reason)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

type scriptedNumbers struct {
	values []string
	calls  int
}

// next replays values in order and repeats the last one once exhausted.
func (s *scriptedNumbers) next(prefix string) (string, error) {
	idx := s.calls
	if idx >= len(s.values) {
		idx = len(s.values) - 1
	}
	s.calls++
	return s.values[idx], nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
}

func (m *countingMetrics) get(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *countingMetrics) IncCreated(kind string)        { m.inc("created:" + kind) }
func (m *countingMetrics) IncStatusUpdate(status string) { m.inc("status:" + status) }
func (m *countingMetrics) IncCancelled(reason string)    { m.inc("cancelled:" + reason) }
