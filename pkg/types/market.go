package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome identifies one side of a binary market.
type Outcome string

// Outcome values.
const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Opposite returns the complementary outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}

	return OutcomeYes
}

// MarketStatus is the lifecycle state of a market.
type MarketStatus int

// Market statuses, ordered. Transitions only move forward.
const (
	MarketActive MarketStatus = iota
	MarketClosed
	MarketResolved
)

func (s MarketStatus) String() string {
	switch s {
	case MarketActive:
		return "active"
	case MarketClosed:
		return "closed"
	case MarketResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Market is a binary market with exactly two complementary tokens.
type Market struct {
	ID             string
	Slug           string
	Question       string
	ConditionID    string
	YesTokenID     string
	NoTokenID      string
	Status         MarketStatus
	EndTime        time.Time
	WinningOutcome Outcome // set only when Resolved
	TickSize       decimal.Decimal
	MinOrderSize   decimal.Decimal
}

// TokenID returns the token for an outcome.
func (m *Market) TokenID(outcome Outcome) string {
	if outcome == OutcomeNo {
		return m.NoTokenID
	}

	return m.YesTokenID
}

// TimeToClose returns the time remaining until EndTime.
func (m *Market) TimeToClose(now time.Time) time.Duration {
	return m.EndTime.Sub(now)
}

// GammaMarket represents a market from the Gamma API.
type GammaMarket struct {
	ID                  string    `json:"id"`
	Question            string    `json:"question"`
	Slug                string    `json:"slug"`
	ConditionID         string    `json:"conditionId"`
	Closed              bool      `json:"closed"`
	Active              bool      `json:"active"`
	Tokens              []Token   `json:"-"` // Populated from outcomes + clobTokenIds
	EndDate             time.Time `json:"endDate"`
	Outcomes            string    `json:"outcomes"`      // JSON string: "[\"Yes\", \"No\"]"
	ClobTokens          string    `json:"clobTokenIds"`  // JSON string: "[\"token1\", \"token2\"]"
	OutcomePrices       string    `json:"outcomePrices"` // JSON string: "[\"1\", \"0\"]" once resolved
	UMAResolutionStatus string    `json:"umaResolutionStatus"`
	OrderPriceMinTick   float64   `json:"orderPriceMinTickSize"`
	OrderMinSize        float64   `json:"orderMinSize"`
}

// UnmarshalJSON custom unmarshaler to parse outcomes and clobTokenIds into Tokens.
func (m *GammaMarket) UnmarshalJSON(data []byte) error {
	type Alias GammaMarket
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if m.Outcomes == "" || m.ClobTokens == "" {
		return nil
	}

	var outcomes, tokenIDs, prices []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return fmt.Errorf("parse outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(m.ClobTokens), &tokenIDs); err != nil {
		return fmt.Errorf("parse clobTokenIds: %w", err)
	}
	if m.OutcomePrices != "" {
		// Prices are informational; a malformed field leaves them empty.
		_ = json.Unmarshal([]byte(m.OutcomePrices), &prices)
	}

	m.Tokens = make([]Token, 0, len(outcomes))
	for i, outcome := range outcomes {
		if i >= len(tokenIDs) {
			break
		}
		tok := Token{TokenID: tokenIDs[i], Outcome: outcome}
		if i < len(prices) {
			tok.Price = prices[i]
		}
		m.Tokens = append(m.Tokens, tok)
	}

	return nil
}

// Token represents a market outcome token (YES or NO).
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Price   string `json:"price,omitempty"`
}

// GetTokenByOutcome returns the token for an outcome, case-insensitive.
func (m *GammaMarket) GetTokenByOutcome(outcome Outcome) *Token {
	for i := range m.Tokens {
		if strings.EqualFold(m.Tokens[i].Outcome, string(outcome)) {
			return &m.Tokens[i]
		}
	}

	return nil
}

// ToMarket converts the Gamma representation into a binary Market.
func (m *GammaMarket) ToMarket() (*Market, error) {
	if len(m.Tokens) != 2 {
		return nil, fmt.Errorf("market %s has %d outcome tokens, want 2", m.Slug, len(m.Tokens))
	}

	yes := m.GetTokenByOutcome(OutcomeYes)
	no := m.GetTokenByOutcome(OutcomeNo)
	if yes == nil || no == nil {
		return nil, fmt.Errorf("market %s is not a YES/NO market", m.Slug)
	}

	market := &Market{
		ID:          m.ID,
		Slug:        m.Slug,
		Question:    m.Question,
		ConditionID: m.ConditionID,
		YesTokenID:  yes.TokenID,
		NoTokenID:   no.TokenID,
		Status:      m.Status(),
		EndTime:     m.EndDate,
	}
	if m.OrderPriceMinTick > 0 {
		market.TickSize = decimal.NewFromFloat(m.OrderPriceMinTick)
	}
	if m.OrderMinSize > 0 {
		market.MinOrderSize = decimal.NewFromFloat(m.OrderMinSize)
	}
	if market.Status == MarketResolved {
		market.WinningOutcome = m.Winner()
	}

	return market, nil
}

// Status derives the lifecycle state from the Gamma flags.
func (m *GammaMarket) Status() MarketStatus {
	if m.Winner() != "" && strings.EqualFold(m.UMAResolutionStatus, "resolved") {
		return MarketResolved
	}
	if m.Closed || !m.Active {
		return MarketClosed
	}

	return MarketActive
}

// Winner returns the outcome priced at 1, or "" when undecided.
func (m *GammaMarket) Winner() Outcome {
	for _, tok := range m.Tokens {
		price, err := decimal.NewFromString(tok.Price)
		if err != nil {
			continue
		}
		if price.Equal(decimal.NewFromInt(1)) {
			if strings.EqualFold(tok.Outcome, string(OutcomeYes)) {
				return OutcomeYes
			}
			if strings.EqualFold(tok.Outcome, string(OutcomeNo)) {
				return OutcomeNo
			}
		}
	}

	return ""
}
