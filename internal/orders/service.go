package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/greenline-backend/internal/cart"
	"github.com/angelmondragon/greenline-backend/internal/totals"
	"github.com/angelmondragon/greenline-backend/pkg/config"
	dbpkg "github.com/angelmondragon/greenline-backend/pkg/db"
	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/greenline-backend/pkg/errors"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
	"github.com/angelmondragon/greenline-backend/pkg/outbox"
	"github.com/angelmondragon/greenline-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/greenline-backend/pkg/pagination"
	"github.com/angelmondragon/greenline-backend/pkg/types"
)

const defaultNumberAttempts = 3

// Service builds orders from carts and answers order queries.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	CreateTextOrder(ctx context.Context, input CreateTextOrderInput) (*models.Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number, userID string) (*models.Order, error)
	GetUserOrders(ctx context.Context, userID string, params ListParams) (*ListResult, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, userID string, actor Actor) (*models.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error)
	ListAwaitingContact(ctx context.Context, placedBefore time.Time, limit int) ([]models.Order, error)
	ListContactOverdue(ctx context.Context, placedBefore time.Time, limit int) ([]models.Order, error)
	FlagContactOverdue(ctx context.Context, order models.Order) (bool, error)
	ExpireAwaitingContact(ctx context.Context, id uuid.UUID) (bool, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo    Repository
	Carts   cart.CartRepository
	Tx      txRunner
	Outbox  outboxPublisher
	Policy  totals.Policy
	Config  config.OrdersConfig
	Metrics Metrics
	Logger  *logger.Logger
	Numbers NumberGenerator
}

type service struct {
	repo               Repository
	carts              cart.CartRepository
	tx                 txRunner
	outbox             outboxPublisher
	policy             totals.Policy
	enforceTransitions bool
	numberAttempts     int
	metrics            Metrics
	logg               *logger.Logger
	newNumber          NumberGenerator
	now                func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	attempts := params.Config.NumberAttempts
	if attempts <= 0 {
		attempts = defaultNumberAttempts
	}
	numbers := params.Numbers
	if numbers == nil {
		numbers = NewNumber
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:               params.Repo,
		carts:              params.Carts,
		tx:                 params.Tx,
		outbox:             params.Outbox,
		policy:             params.Policy,
		enforceTransitions: params.Config.EnforceTransitions,
		numberAttempts:     attempts,
		metrics:            params.Metrics,
		logg:               logg,
		newNumber:          numbers,
		now:                time.Now,
	}, nil
}

type placement struct {
	userID        string
	kind          enums.OrderKind
	address       types.DeliveryAddress
	paymentMethod enums.PaymentMethod
	tip           decimal.Decimal
	contactPhone  *string
	clearCart     bool
}

// CreateOrder converts the user's cart into a pending order and empties the
// cart, all in one transaction.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.PaymentMethod.IsSelfServe() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}
	if input.Tip.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tip cannot be negative")
	}
	address, err := checkAddress(input.Address)
	if err != nil {
		return nil, err
	}
	return s.place(ctx, placement{
		userID:        input.UserID,
		kind:          enums.OrderKindStandard,
		address:       address,
		paymentMethod: input.PaymentMethod,
		tip:           input.Tip.Round(2),
		clearCart:     true,
	})
}

// CreateTextOrder records a concierge order awaiting a call back. The cart is
// left intact until staff confirm the order.
func (s *service) CreateTextOrder(ctx context.Context, input CreateTextOrderInput) (*models.Order, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	phone := strings.TrimSpace(input.ContactPhone)
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contact phone is required")
	}
	address, err := checkAddress(input.Address)
	if err != nil {
		return nil, err
	}
	return s.place(ctx, placement{
		userID:        input.UserID,
		kind:          enums.OrderKindText,
		address:       address,
		paymentMethod: enums.PaymentMethodTextCall,
		tip:           decimal.Zero,
		contactPhone:  &phone,
		clearCart:     false,
	})
}

func checkAddress(address types.DeliveryAddress) (types.DeliveryAddress, error) {
	address = address.Normalize()
	if err := address.Validate(); err != nil {
		return address, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	return address, nil
}

func (s *service) place(ctx context.Context, p placement) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		current, err := carts.FindByUserIDForUpdate(ctx, p.userID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeValidation, "Cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(current.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "Cart is empty")
		}

		breakdown := s.policy.CalculateLines(cart.Lines(current.Items)).WithTip(p.tip)
		order = &models.Order{
			UserID:        p.userID,
			Kind:          p.kind,
			Status:        p.kind.InitialStatus(),
			Subtotal:      breakdown.Subtotal,
			Tax:           breakdown.Tax,
			DeliveryFee:   breakdown.DeliveryFee,
			Tip:           breakdown.Tip,
			Total:         breakdown.Total,
			Address:       p.address,
			PaymentMethod: p.paymentMethod,
			ContactPhone:  p.contactPhone,
			Items:         snapshotItems(current.Items),
		}
		if err := s.insertOrder(ctx, tx, order); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: p.userID},
			Data:          orderCreatedPayload(order),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
		}

		if p.clearCart {
			return cart.Clear(ctx, carts, current.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncCreated(order.Kind.String())
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"order_number": order.OrderNumber,
		"kind":         order.Kind,
		"total":        order.Total.StringFixed(2),
	})
	s.logg.Info(logCtx, "checkout.order_created")
	return order, nil
}

// insertOrder writes the order under a savepoint so a clash on the order
// number can be retried with a fresh one without aborting the outer
// transaction.
func (s *service) insertOrder(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	var lastErr error
	for attempt := 0; attempt < s.numberAttempts; attempt++ {
		number, err := s.newNumber(order.Kind.NumberPrefix())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		order.OrderNumber = number
		err = tx.Transaction(func(inner *gorm.DB) error {
			return s.repo.WithTx(inner).CreateOrder(ctx, order)
		})
		if err == nil {
			return nil
		}
		if !isOrderNumberConflict(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		lastErr = err
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt+1), "order number collision, retrying")
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "could not allocate an order number")
}

func isOrderNumberConflict(err error) bool {
	return dbpkg.IsUniqueViolation(err, "orders_order_number_key") ||
		dbpkg.IsUniqueViolation(err, "orders.order_number")
}

func snapshotItems(items []models.CartItem) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.OrderItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductPrice: item.ProductPrice,
			Quantity:     item.Quantity,
			LineTotal:    item.ProductPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2),
		})
	}
	return out
}

func orderCreatedPayload(order *models.Order) payloads.OrderCreatedEvent {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	return payloads.OrderCreatedEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Kind:          order.Kind,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		ItemCount:     count,
		Total:         order.Total.StringFixed(2),
		ContactPhone:  order.ContactPhone,
	}
}

// GetOrderByID returns nil without error when no order matches.
func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id, userID)
	return optionalOrder(order, err)
}

// GetOrderByNumber returns nil without error when no order matches.
func (s *service) GetOrderByNumber(ctx context.Context, number, userID string) (*models.Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, nil
	}
	order, err := s.repo.FindByNumber(ctx, number, userID)
	return optionalOrder(order, err)
}

func optionalOrder(order *models.Order, err error) (*models.Order, error) {
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) GetUserOrders(ctx context.Context, userID string, params ListParams) (*ListResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if params.Status != "" && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", params.Status))
	}
	if params.StartDate != nil && params.EndDate != nil && params.StartDate.After(*params.EndDate) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start_date must not be after end_date")
	}
	rows, total, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	if rows == nil {
		rows = []models.Order{}
	}
	page := pagination.Params{Limit: params.Limit, Offset: params.Offset}.Normalize()
	return &ListResult{Orders: rows, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// UpdateOrderStatus writes a new status. Transitions are only checked when
// enforcement is configured.
func (s *service) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, userID string, actor Actor) (*models.Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", status))
	}

	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByIDForUpdate(ctx, id, userID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		from = current.Status
		if s.enforceTransitions && !current.Status.CanTransitionTo(status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", current.Status, status)).
				WithDetails(map[string]any{"from": current.Status, "to": status})
		}

		var cancelledAt *time.Time
		if status == enums.OrderStatusCancelled && current.CancelledAt == nil {
			now := s.now().UTC()
			cancelledAt = &now
		}
		rows, err := repo.UpdateStatus(ctx, id, status, cancelledAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   id,
			Actor:         actorRef(actor),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     id,
				OrderNumber: current.OrderNumber,
				UserID:      current.UserID,
				From:        from,
				To:          status,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit status change")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncStatusUpdate(status.String())
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, id.String()), map[string]any{
		"from": from,
		"to":   status,
	})
	s.logg.Info(logCtx, "order.status_updated")
	return s.GetOrderByID(ctx, id, "")
}

// CancelOrder cancels an order the customer owns while it is still pending
// or confirmed.
func (s *service) CancelOrder(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cancelled, err := s.cancel(ctx, id, userID, enums.CancellableOrderStatuses, CancelReasonCustomer, Actor{UserID: userID})
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "Order cannot be cancelled")
	}
	return s.GetOrderByID(ctx, id, userID)
}

// ExpireAwaitingContact cancels a concierge order that is still waiting for a
// call. It reports false when the order has moved on in the meantime.
func (s *service) ExpireAwaitingContact(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.cancel(ctx, id, "", []enums.OrderStatus{enums.OrderStatusPendingContact}, CancelReasonContactExpired, Actor{Role: "system"})
}

func (s *service) cancel(ctx context.Context, id uuid.UUID, userID string, allowed []enums.OrderStatus, reason string, actor Actor) (bool, error) {
	cancelled := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByIDForUpdate(ctx, id, userID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		at := s.now().UTC()
		rows, err := repo.CancelIfStatus(ctx, id, allowed, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if rows == 0 {
			return nil
		}
		cancelled = true
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   id,
			Actor:         actorRef(actor),
			Data: payloads.OrderCancelledEvent{
				OrderID:     id,
				OrderNumber: current.OrderNumber,
				UserID:      current.UserID,
				From:        current.Status,
				CancelledAt: at,
				Reason:      reason,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order cancelled")
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if cancelled {
		if s.metrics != nil {
			s.metrics.IncCancelled(reason)
		}
		s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, id.String()), "reason", reason), "order.cancelled")
	}
	return cancelled, nil
}

// ListAwaitingContact returns concierge orders placed before the cutoff that
// are still pending contact.
func (s *service) ListAwaitingContact(ctx context.Context, placedBefore time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.FindAwaitingContactBefore(ctx, placedBefore, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list concierge orders")
	}
	return rows, nil
}

// ListContactOverdue is ListAwaitingContact minus orders already flagged
// overdue.
func (s *service) ListContactOverdue(ctx context.Context, placedBefore time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.FindContactOverdueBefore(ctx, placedBefore, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue concierge orders")
	}
	return rows, nil
}

// FlagContactOverdue emits at most one overdue reminder per order.
func (s *service) FlagContactOverdue(ctx context.Context, order models.Order) (bool, error) {
	emitted := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		emitted, err = s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderContactOverdue,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Role: "system"},
			Data: payloads.OrderContactOverdueEvent{
				OrderID:      order.ID,
				OrderNumber:  order.OrderNumber,
				UserID:       order.UserID,
				ContactPhone: order.ContactPhone,
				PlacedAt:     order.CreatedAt,
			},
		})
		return err
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit contact overdue")
	}
	return emitted, nil
}

func actorRef(actor Actor) *outbox.ActorRef {
	if actor.UserID == "" && actor.Role == "" {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role}
}
