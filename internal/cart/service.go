package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/greenline-backend/internal/totals"
	dbpkg "github.com/angelmondragon/greenline-backend/pkg/db"
	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/greenline-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the customer cart operations.
type Service interface {
	GetOrCreateCart(ctx context.Context, userID string) (uuid.UUID, error)
	GetCart(ctx context.Context, userID string) (*View, error)
	AddItem(ctx context.Context, userID string, input ItemInput) (*View, error)
	UpdateItemQuantity(ctx context.Context, userID, productID string, quantity int) (*View, error)
	RemoveItem(ctx context.Context, userID, productID string) error
	ClearCart(ctx context.Context, userID string) error
	MergeGuestCart(ctx context.Context, userID string, items []ItemInput, strategy enums.CartMergeStrategy) (*View, error)
	ValidateCart(ctx context.Context, userID string) (*ValidationResult, error)
	GetItemCount(ctx context.Context, userID string) (int, error)
}

type service struct {
	repo   CartRepository
	tx     txRunner
	policy totals.Policy
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, policy totals.Policy) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		policy: policy,
	}, nil
}

// ItemInput is a product line as the storefront submits it. Name and price are
// stored as given; they are not re-checked against the catalog.
type ItemInput struct {
	ProductID    string
	ProductName  string
	ProductPrice decimal.Decimal
	Quantity     int
}

func (in ItemInput) normalize() (ItemInput, error) {
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.ProductName = strings.TrimSpace(in.ProductName)
	switch {
	case in.ProductID == "":
		return in, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	case in.ProductName == "":
		return in, pkgerrors.New(pkgerrors.CodeValidation, "product name is required")
	case !in.ProductPrice.IsPositive():
		return in, pkgerrors.New(pkgerrors.CodeValidation, "product price must be greater than zero")
	case in.Quantity <= 0:
		return in, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	in.ProductPrice = in.ProductPrice.Round(2)
	return in, nil
}

// View is a cart with derived totals. Totals carry no tip.
type View struct {
	ID        uuid.UUID
	UserID    string
	Items     []models.CartItem
	ItemCount int
	Totals    totals.Breakdown
	UpdatedAt time.Time
}

// IsEmpty reports whether the cart holds no lines.
func (v *View) IsEmpty() bool {
	return v == nil || len(v.Items) == 0
}

// ValidationResult is the advisory outcome of ValidateCart.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Lines adapts cart items for the totals calculator.
func Lines(items []models.CartItem) []totals.Line {
	lines := make([]totals.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, totals.Line{Price: item.ProductPrice, Quantity: item.Quantity})
	}
	return lines
}

// BuildView derives counts and totals for a loaded cart.
func BuildView(cart *models.Cart, policy totals.Policy) *View {
	if cart == nil {
		return nil
	}
	items := cart.Items
	if items == nil {
		items = []models.CartItem{}
	}
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return &View{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Items:     items,
		ItemCount: count,
		Totals:    policy.CalculateLines(Lines(items)),
		UpdatedAt: cart.UpdatedAt,
	}
}

func (s *service) GetOrCreateCart(ctx context.Context, userID string) (uuid.UUID, error) {
	if err := requireUser(userID); err != nil {
		return uuid.Nil, err
	}
	cart, err := s.repo.EnsureCart(ctx, userID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure cart")
	}
	return cart.ID, nil
}

// GetCart returns nil without error when the user has never had a cart.
func (s *service) GetCart(ctx context.Context, userID string) (*View, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	cart, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return BuildView(cart, s.policy), nil
}

func (s *service) AddItem(ctx context.Context, userID string, input ItemInput) (*View, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	item, err := input.normalize()
	if err != nil {
		return nil, err
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.EnsureCart(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure cart")
		}
		return addToCart(ctx, repo, cart.ID, item)
	}); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

func addToCart(ctx context.Context, repo CartRepository, cartID uuid.UUID, item ItemInput) error {
	row := &models.CartItem{
		CartID:       cartID,
		ProductID:    item.ProductID,
		ProductName:  item.ProductName,
		ProductPrice: item.ProductPrice,
		Quantity:     item.Quantity,
	}
	if err := repo.UpsertItem(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}
	if err := repo.Touch(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch cart")
	}
	return nil
}

// UpdateItemQuantity sets the quantity outright; zero or less removes the line.
func (s *service) UpdateItemQuantity(ctx context.Context, userID, productID string, quantity int) (*View, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity <= 0 {
		if err := s.RemoveItem(ctx, userID, productID); err != nil {
			return nil, err
		}
		return s.GetCart(ctx, userID)
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			return mapLookupError(err, "load cart")
		}
		found, err := repo.SetItemQuantity(ctx, cart.ID, productID, quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
		}
		if err := repo.Touch(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch cart")
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// RemoveItem is a no-op when the user has no cart or the line is absent.
func (s *service) RemoveItem(ctx context.Context, userID, productID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if err := repo.DeleteItem(ctx, cart.ID, strings.TrimSpace(productID)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
		}
		if err := repo.Touch(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch cart")
		}
		return nil
	})
}

// ClearCart drops every line but keeps the cart row.
func (s *service) ClearCart(ctx context.Context, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		return Clear(ctx, repo, cart.ID)
	})
}

// Clear empties a cart through an already transaction-bound repository.
func Clear(ctx context.Context, repo CartRepository, cartID uuid.UUID) error {
	if err := repo.DeleteItems(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	if err := repo.Touch(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch cart")
	}
	return nil
}

// MergeGuestCart folds a signed-out cart into the user's cart. Replace empties
// the user's cart first; merge adds quantities onto matching products.
func (s *service) MergeGuestCart(ctx context.Context, userID string, items []ItemInput, strategy enums.CartMergeStrategy) (*View, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if strategy == "" {
		strategy = enums.CartMergeStrategyMerge
	}
	if !strategy.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid merge strategy %q", strategy))
	}

	normalized := make([]ItemInput, 0, len(items))
	for i, item := range items {
		n, err := item.normalize()
		if err != nil {
			typed := pkgerrors.As(err)
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("guest item %d: %s", i, typed.Message()))
		}
		normalized = append(normalized, n)
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.EnsureCart(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure cart")
		}
		if strategy == enums.CartMergeStrategyReplace {
			if err := Clear(ctx, repo, cart.ID); err != nil {
				return err
			}
		}
		for _, item := range normalized {
			if err := addToCart(ctx, repo, cart.ID, item); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// ValidateCart is advisory. It does not consult live catalog pricing or stock.
func (s *service) ValidateCart(ctx context.Context, userID string) (*ValidationResult, error) {
	view, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Validate(view), nil
}

// Validate checks a loaded cart for emptiness and malformed lines.
func Validate(view *View) *ValidationResult {
	result := &ValidationResult{Errors: []string{}}
	if view.IsEmpty() {
		result.Errors = append(result.Errors, "Cart is empty")
		return result
	}
	for _, item := range view.Items {
		if item.Quantity <= 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("Invalid quantity for %s", item.ProductName))
		}
		if !item.ProductPrice.IsPositive() {
			result.Errors = append(result.Errors, fmt.Sprintf("Invalid price for %s", item.ProductName))
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// GetItemCount is zero when the user has no cart or an empty one.
func (s *service) GetItemCount(ctx context.Context, userID string) (int, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	count, err := s.repo.SumQuantities(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cart items")
	}
	return count, nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return nil
}

func mapLookupError(err error, action string) error {
	if dbpkg.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
