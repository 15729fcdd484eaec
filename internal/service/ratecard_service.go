package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wms/internal/model"
	"wms/internal/pricing"
	"wms/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// --- DTOs ---

type RateCardRuleRequest struct {
	ServiceType string                 `json:"service_type" binding:"required"`
	UOM         string                 `json:"uom" binding:"required"`
	TierFrom    string                 `json:"tier_from"` // defaults to 0
	TierTo      *string                `json:"tier_to"`   // null = unbounded
	Price       string                 `json:"price" binding:"required"`
	MinFee      *string                `json:"min_fee"`
	IsActive    *bool                  `json:"is_active"` // defaults to true
	Metadata    map[string]interface{} `json:"metadata"`
}

type CreateRateCardRequest struct {
	CustomerID string                `json:"customer_id" binding:"required"`
	Name       string                `json:"name" binding:"required"`
	Currency   string                `json:"currency"`   // defaults to USD
	ValidFrom  *string               `json:"valid_from"` // YYYY-MM-DD
	ValidTo    *string               `json:"valid_to"`
	IsActive   *bool                 `json:"is_active"` // defaults to true
	Rules      []RateCardRuleRequest `json:"rules" binding:"required,min=1,dive"`
}

type UpdateRateCardRequest struct {
	Name      string                `json:"name"`
	Currency  string                `json:"currency"`
	ValidFrom *string               `json:"valid_from"`
	ValidTo   *string               `json:"valid_to"`
	Rules     []RateCardRuleRequest `json:"rules"` // nil = keep current rules
}

type TestPriceRequest struct {
	ServiceType string `json:"service_type" binding:"required"`
	Quantity    string `json:"quantity" binding:"required"`
	UOM         string `json:"uom" binding:"required"`
}

type RateCardRuleResponse struct {
	ID          string                 `json:"id"`
	ServiceType string                 `json:"service_type"`
	UOM         string                 `json:"uom"`
	TierFrom    string                 `json:"tier_from"`
	TierTo      *string                `json:"tier_to"`
	Price       string                 `json:"price"`
	MinFee      *string                `json:"min_fee"`
	IsActive    bool                   `json:"is_active"`
	SortOrder   int                    `json:"sort_order"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type RateCardResponse struct {
	ID         string                 `json:"id"`
	CustomerID string                 `json:"customer_id"`
	Name       string                 `json:"name"`
	Currency   string                 `json:"currency"`
	ValidFrom  *string                `json:"valid_from"`
	ValidTo    *string                `json:"valid_to"`
	IsActive   bool                   `json:"is_active"`
	Rules      []RateCardRuleResponse `json:"rules"`
	Warnings   []pricing.TierIssue    `json:"warnings,omitempty"`
	CreatedAt  string                 `json:"created_at"`
}

type TestPriceResponse struct {
	ServiceType string            `json:"service_type"`
	FinalPrice  string            `json:"final_price"`
	BasePrice   string            `json:"base_price"`
	MinFee      string            `json:"min_fee"`
	Breakdown   pricing.Breakdown `json:"breakdown"`
	RuleID      string            `json:"rule_id"`
}

// --- Interface ---

type RateCardService interface {
	CreateRateCard(ctx context.Context, req CreateRateCardRequest) (RateCardResponse, error)
	UpdateRateCard(ctx context.Context, id string, req UpdateRateCardRequest) (RateCardResponse, error)
	ActivateRateCard(ctx context.Context, id string) (RateCardResponse, error)
	DeleteRateCard(ctx context.Context, id string) error
	GetRateCard(ctx context.Context, id string) (RateCardResponse, error)
	ListRateCards(ctx context.Context, customerID string, page, limit int) ([]RateCardResponse, int64, error)
	TestPrice(ctx context.Context, cardID string, req TestPriceRequest) (TestPriceResponse, error)
	ListServiceTypes(ctx context.Context, cardID string) ([]string, error)
	ListUnitsOfMeasure(ctx context.Context, cardID, serviceType string) ([]string, error)
}

type rateCardService struct {
	rateCardRepo repository.RateCardRepository
	customerRepo repository.CustomerRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
}

func NewRateCardService(
	rateCardRepo repository.RateCardRepository,
	customerRepo repository.CustomerRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) RateCardService {
	return &rateCardService{
		rateCardRepo: rateCardRepo,
		customerRepo: customerRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
	}
}

// --- Implementation ---

// CreateRateCard stores a new card with its tier rules. Overlapping or
// gapped tiers are allowed but come back as warnings; activation
// deactivates the customer's other cards so only one is ever live.
func (s *rateCardService) CreateRateCard(ctx context.Context, req CreateRateCardRequest) (RateCardResponse, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return RateCardResponse{}, fmt.Errorf("invalid customer_id: %w", err)
	}
	if _, err := s.customerRepo.FindByID(ctx, customerID); err != nil {
		return RateCardResponse{}, fmt.Errorf("customer not found: %w", err)
	}

	rules, err := buildRules(req.Rules)
	if err != nil {
		return RateCardResponse{}, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	card := model.RateCard{
		CustomerID: customerID,
		Name:       req.Name,
		Currency:   currency,
		IsActive:   true,
		Rules:      rules,
	}
	if req.IsActive != nil {
		card.IsActive = *req.IsActive
	}
	if card.ValidFrom, err = parseDatePtr(req.ValidFrom, "valid_from"); err != nil {
		return RateCardResponse{}, err
	}
	if card.ValidTo, err = parseDatePtr(req.ValidTo, "valid_to"); err != nil {
		return RateCardResponse{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.rateCardRepo.Create(txCtx, &card); err != nil {
			return fmt.Errorf("failed to create rate card: %w", err)
		}
		if card.IsActive {
			if err := s.rateCardRepo.DeactivateOthers(txCtx, customerID, card.ID); err != nil {
				return fmt.Errorf("failed to deactivate previous cards: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return RateCardResponse{}, err
	}

	s.writeAuditLog(ctx, model.ActionCreateRateCard, card.ID.String(), card.Name, req)

	resp := toRateCardResponse(card)
	resp.Warnings = pricing.ValidateRules(card.Rules)
	return resp, nil
}

func (s *rateCardService) UpdateRateCard(ctx context.Context, id string, req UpdateRateCardRequest) (RateCardResponse, error) {
	cardID, err := uuid.Parse(id)
	if err != nil {
		return RateCardResponse{}, fmt.Errorf("invalid rate card id: %w", err)
	}
	card, err := s.rateCardRepo.FindByID(ctx, cardID)
	if err != nil {
		return RateCardResponse{}, fmt.Errorf("rate card not found: %w", err)
	}

	if req.Name != "" {
		card.Name = req.Name
	}
	if req.Currency != "" {
		card.Currency = req.Currency
	}
	if req.ValidFrom != nil {
		if card.ValidFrom, err = parseDatePtr(req.ValidFrom, "valid_from"); err != nil {
			return RateCardResponse{}, err
		}
	}
	if req.ValidTo != nil {
		if card.ValidTo, err = parseDatePtr(req.ValidTo, "valid_to"); err != nil {
			return RateCardResponse{}, err
		}
	}

	var newRules []model.RateCardRule
	if req.Rules != nil {
		newRules, err = buildRules(req.Rules)
		if err != nil {
			return RateCardResponse{}, err
		}
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.rateCardRepo.Update(txCtx, card); err != nil {
			return fmt.Errorf("failed to update rate card: %w", err)
		}
		if newRules != nil {
			if err := s.rateCardRepo.ReplaceRules(txCtx, card.ID, newRules); err != nil {
				return fmt.Errorf("failed to replace rules: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return RateCardResponse{}, err
	}

	s.writeAuditLog(ctx, model.ActionUpdateRateCard, card.ID.String(), card.Name, req)
	return s.GetRateCard(ctx, id)
}

// ActivateRateCard makes the card the customer's single live card
func (s *rateCardService) ActivateRateCard(ctx context.Context, id string) (RateCardResponse, error) {
	cardID, err := uuid.Parse(id)
	if err != nil {
		return RateCardResponse{}, fmt.Errorf("invalid rate card id: %w", err)
	}
	card, err := s.rateCardRepo.FindByID(ctx, cardID)
	if err != nil {
		return RateCardResponse{}, fmt.Errorf("rate card not found: %w", err)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		card.IsActive = true
		if err := s.rateCardRepo.Update(txCtx, card); err != nil {
			return fmt.Errorf("failed to activate rate card: %w", err)
		}
		return s.rateCardRepo.DeactivateOthers(txCtx, card.CustomerID, card.ID)
	})
	if err != nil {
		return RateCardResponse{}, err
	}

	s.writeAuditLog(ctx, model.ActionActivateRateCard, card.ID.String(), card.Name, nil)
	return s.GetRateCard(ctx, id)
}

func (s *rateCardService) DeleteRateCard(ctx context.Context, id string) error {
	cardID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid rate card id: %w", err)
	}
	card, err := s.rateCardRepo.FindByID(ctx, cardID)
	if err != nil {
		return fmt.Errorf("rate card not found: %w", err)
	}
	if err := s.rateCardRepo.Delete(ctx, cardID); err != nil {
		return fmt.Errorf("failed to delete rate card: %w", err)
	}
	s.writeAuditLog(ctx, model.ActionDeleteRateCard, id, card.Name, nil)
	return nil
}

func (s *rateCardService) GetRateCard(ctx context.Context, id string) (RateCardResponse, error) {
	cardID, err := uuid.Parse(id)
	if err != nil {
		return RateCardResponse{}, fmt.Errorf("invalid rate card id: %w", err)
	}
	card, err := s.rateCardRepo.FindByID(ctx, cardID)
	if err != nil {
		return RateCardResponse{}, fmt.Errorf("rate card not found: %w", err)
	}
	resp := toRateCardResponse(*card)
	resp.Warnings = pricing.ValidateRules(card.Rules)
	return resp, nil
}

func (s *rateCardService) ListRateCards(ctx context.Context, customerID string, page, limit int) ([]RateCardResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	var filter *uuid.UUID
	if customerID != "" {
		parsed, err := uuid.Parse(customerID)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid customer_id: %w", err)
		}
		filter = &parsed
	}

	cards, total, err := s.rateCardRepo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch rate cards: %w", err)
	}

	result := make([]RateCardResponse, 0, len(cards))
	for _, card := range cards {
		result = append(result, toRateCardResponse(card))
	}
	return result, total, nil
}

// TestPrice dry-runs the pricing engine against a stored card. Nothing is
// recorded; rate card authors use it to sanity-check tiers before
// activation.
func (s *rateCardService) TestPrice(ctx context.Context, cardID string, req TestPriceRequest) (TestPriceResponse, error) {
	id, err := uuid.Parse(cardID)
	if err != nil {
		return TestPriceResponse{}, fmt.Errorf("invalid rate card id: %w", err)
	}
	card, err := s.rateCardRepo.FindByID(ctx, id)
	if err != nil {
		return TestPriceResponse{}, fmt.Errorf("rate card not found: %w", err)
	}

	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return TestPriceResponse{}, fmt.Errorf("invalid quantity: %w", err)
	}

	res, err := pricing.Calculate(card.Rules, req.ServiceType, qty, req.UOM)
	if err != nil {
		return TestPriceResponse{}, err
	}

	return TestPriceResponse{
		ServiceType: req.ServiceType,
		FinalPrice:  res.FinalPrice.StringFixed(4),
		BasePrice:   res.BasePrice.StringFixed(4),
		MinFee:      res.MinFee.StringFixed(4),
		Breakdown:   res.Breakdown,
		RuleID:      res.AppliedRule.ID.String(),
	}, nil
}

func (s *rateCardService) ListServiceTypes(ctx context.Context, cardID string) ([]string, error) {
	id, err := uuid.Parse(cardID)
	if err != nil {
		return nil, fmt.Errorf("invalid rate card id: %w", err)
	}
	card, err := s.rateCardRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("rate card not found: %w", err)
	}
	return pricing.ServiceTypes(card.Rules), nil
}

func (s *rateCardService) ListUnitsOfMeasure(ctx context.Context, cardID, serviceType string) ([]string, error) {
	id, err := uuid.Parse(cardID)
	if err != nil {
		return nil, fmt.Errorf("invalid rate card id: %w", err)
	}
	card, err := s.rateCardRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("rate card not found: %w", err)
	}
	return pricing.UnitsOfMeasure(card.Rules, serviceType), nil
}

// --- Helpers ---

func buildRules(reqs []RateCardRuleRequest) ([]model.RateCardRule, error) {
	rules := make([]model.RateCardRule, 0, len(reqs))
	for i, req := range reqs {
		rule := model.RateCardRule{
			ServiceType: req.ServiceType,
			UOM:         req.UOM,
			TierFrom:    decimal.Zero,
			IsActive:    true,
			SortOrder:   i,
		}
		if req.TierFrom != "" {
			from, err := decimal.NewFromString(req.TierFrom)
			if err != nil {
				return nil, fmt.Errorf("rule %d: invalid tier_from: %w", i, err)
			}
			rule.TierFrom = from
		}
		if req.TierTo != nil {
			to, err := decimal.NewFromString(*req.TierTo)
			if err != nil {
				return nil, fmt.Errorf("rule %d: invalid tier_to: %w", i, err)
			}
			if to.LessThan(rule.TierFrom) {
				return nil, fmt.Errorf("rule %d: tier_to %s is below tier_from %s", i, to, rule.TierFrom)
			}
			rule.TierTo = &to
		}
		price, err := decimal.NewFromString(req.Price)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid price: %w", i, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("rule %d: price must not be negative", i)
		}
		rule.Price = price
		if req.MinFee != nil {
			minFee, err := decimal.NewFromString(*req.MinFee)
			if err != nil {
				return nil, fmt.Errorf("rule %d: invalid min_fee: %w", i, err)
			}
			if minFee.IsNegative() {
				return nil, fmt.Errorf("rule %d: min_fee must not be negative", i)
			}
			rule.MinFee = &minFee
		}
		if req.IsActive != nil {
			rule.IsActive = *req.IsActive
		}
		if len(req.Metadata) > 0 {
			rule.Metadata = datatypes.JSONMap(req.Metadata)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseDatePtr(value *string, name string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", *value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s (expected YYYY-MM-DD): %w", name, err)
	}
	return &parsed, nil
}

func (s *rateCardService) writeAuditLog(ctx context.Context, action, entityID, entityName string, details interface{}) {
	detailsJSON, _ := json.Marshal(details)
	_ = s.auditRepo.Log(ctx, &model.AuditLog{
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(detailsJSON),
	})
}

func toRateCardResponse(card model.RateCard) RateCardResponse {
	resp := RateCardResponse{
		ID:         card.ID.String(),
		CustomerID: card.CustomerID.String(),
		Name:       card.Name,
		Currency:   card.Currency,
		IsActive:   card.IsActive,
		Rules:      make([]RateCardRuleResponse, 0, len(card.Rules)),
		CreatedAt:  card.CreatedAt.Format(time.RFC3339),
	}
	if card.ValidFrom != nil {
		v := card.ValidFrom.Format("2006-01-02")
		resp.ValidFrom = &v
	}
	if card.ValidTo != nil {
		v := card.ValidTo.Format("2006-01-02")
		resp.ValidTo = &v
	}
	for _, rule := range card.Rules {
		ruleResp := RateCardRuleResponse{
			ID:          rule.ID.String(),
			ServiceType: rule.ServiceType,
			UOM:         rule.UOM,
			TierFrom:    rule.TierFrom.StringFixed(4),
			Price:       rule.Price.StringFixed(4),
			IsActive:    rule.IsActive,
			SortOrder:   rule.SortOrder,
		}
		if rule.TierTo != nil {
			v := rule.TierTo.StringFixed(4)
			ruleResp.TierTo = &v
		}
		if rule.MinFee != nil {
			v := rule.MinFee.StringFixed(4)
			ruleResp.MinFee = &v
		}
		if len(rule.Metadata) > 0 {
			ruleResp.Metadata = map[string]interface{}(rule.Metadata)
		}
		resp.Rules = append(resp.Rules, ruleResp)
	}
	return resp
}
