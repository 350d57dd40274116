package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

type Money struct {
	Amount   float64 `json:"amount" validate:"gte=0"`
	Currency string  `json:"currency" validate:"required,currency"`
}

func NewMoney(amount float64, cur string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(cur)}
}

// UnmarshalJSON accepts the amount as a number or as a decimal string using either "." or "," as separator.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   json.RawMessage `json:"amount"`
		Currency string          `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	amount, err := parseAmount(raw.Amount)
	if err != nil {
		return err
	}
	m.Amount = amount
	m.Currency = strings.ToUpper(strings.TrimSpace(raw.Currency))
	return nil
}

func parseAmount(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	str := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, err
		}
		str = strings.ReplaceAll(strings.TrimSpace(str), ",", ".")
		if str == "" {
			return 0, nil
		}
	}
	amount, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", str)
	}
	return amount, nil
}

func (m Money) String() string {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return fmt.Sprintf("%s %.2f", m.Currency, m.Amount)
	}
	return moneyPrinter.Sprint(currency.Symbol(unit.Amount(m.Amount)))
}

// Cents returns the amount in the currency's minor unit.
func (m Money) Cents() int64 {
	return int64(math.Round(m.Amount * 100))
}

// Decimal formats the amount with two decimals, as payment gateways expect it.
func (m Money) Decimal() string {
	return strconv.FormatFloat(float64(m.Cents())/100, 'f', 2, 64)
}

func (m Money) IsZero() bool { return m.Amount == 0 }

func (m Money) Equal(other Money) bool {
	return m.Cents() == other.Cents() && strings.EqualFold(m.Currency, other.Currency)
}
