// Package paypal captures course payments with the PayPal Orders v2 REST API.
package paypal

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	paypalsdk "github.com/plutov/paypal/v4"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/payment"
)

const (
	gatewayName     = "paypal"
	statusCompleted = "COMPLETED"
	relApprove      = "approve"
)

// Gateway is a PayPal client. The access token is fetched on first use and renewed before it expires.
type Gateway struct {
	client    *paypalsdk.Client
	brandName string
	now       func() time.Time
}

var _ payment.Gateway = (*Gateway)(nil)

func NewGateway(conf *core.Config) *Gateway {
	apiBase := paypalsdk.APIBaseLive
	if conf.Paypal.Sandbox {
		apiBase = paypalsdk.APIBaseSandBox
	}
	return &Gateway{
		client: &paypalsdk.Client{
			Client:   &http.Client{Timeout: 15 * time.Second},
			ClientID: conf.Paypal.ClientID,
			Secret:   conf.Paypal.Secret,
			APIBase:  apiBase,
		},
		brandName: conf.Paypal.BrandName,
		now:       time.Now,
	}
}

func (g *Gateway) fail(op string, err error) error {
	return payment.NewError(gatewayName, op, err)
}

// GetPaymentURL creates an order and returns the URL where the user approves it.
// The purchase unit reference carries the course and user ids back to CapturePayment.
func (g *Gateway) GetPaymentURL(ctx context.Context, in course.PayInput) (string, error) {
	customID := payment.CustomID(in.CourseID, in.UserID)
	units := []paypalsdk.PurchaseUnitRequest{{
		ReferenceID: customID,
		CustomID:    customID,
		Description: in.Description,
		Amount:      &paypalsdk.PurchaseUnitAmount{Currency: in.Price.Currency, Value: in.Price.Decimal()},
	}}
	appCtx := &paypalsdk.ApplicationContext{
		BrandName:          g.brandName,
		ShippingPreference: paypalsdk.ShippingPreferenceNoShipping,
		UserAction:         paypalsdk.UserActionPayNow,
		ReturnURL:          in.ReturnURL,
		CancelURL:          in.CancelURL,
	}

	order, err := g.client.CreateOrder(ctx, paypalsdk.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return "", g.fail("create order", err)
	}
	for _, l := range order.Links {
		if l.Rel == relApprove {
			return l.Href, nil
		}
	}
	return "", g.fail("create order", fmt.Errorf("no approval link in order %s", order.ID))
}

// CapturePayment captures the approved order identified by token.
func (g *Gateway) CapturePayment(ctx context.Context, token string) (course.SubscribeInput, error) {
	res, err := g.client.CaptureOrder(ctx, token, paypalsdk.CaptureOrderRequest{})
	if err != nil {
		return course.SubscribeInput{}, g.fail("capture", err)
	}
	if res.Status != statusCompleted || len(res.PurchaseUnits) == 0 {
		return course.SubscribeInput{}, g.fail("capture", fmt.Errorf("order %s is %s", res.ID, res.Status))
	}

	unit := res.PurchaseUnits[0]
	if unit.Payments == nil || len(unit.Payments.Captures) == 0 {
		return course.SubscribeInput{}, g.fail("capture", fmt.Errorf("order %s has no capture", res.ID))
	}
	capt := unit.Payments.Captures[0]
	if capt.Amount == nil {
		return course.SubscribeInput{}, g.fail("capture", fmt.Errorf("capture %s has no amount", capt.ID))
	}

	courseID, userID, err := payment.ParseCustomID(unit.ReferenceID)
	if err != nil {
		return course.SubscribeInput{}, g.fail("capture", err)
	}
	amount, err := strconv.ParseFloat(capt.Amount.Value, 64)
	if err != nil {
		return course.SubscribeInput{}, g.fail("capture", errors.Wrap(err, "parsing amount"))
	}

	return course.SubscribeInput{
		CourseID:      courseID,
		UserID:        userID,
		PaymentDate:   g.now().UTC(),
		PaymentType:   payment.TypePaypal,
		Paid:          core.NewMoney(amount, capt.Amount.Currency),
		TransactionID: capt.ID,
	}, nil
}
