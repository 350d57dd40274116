// Package stripe takes course payments through Stripe Checkout sessions.
package stripe

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/payment"
)

const (
	gatewayName = "stripe"
	// replaced by Stripe with the session id when redirecting back
	sessionPlaceholder = "{CHECKOUT_SESSION_ID}"
)

type Gateway struct {
	sc *client.API
}

var _ payment.Gateway = (*Gateway)(nil)

func NewGateway(conf *core.Config) *Gateway {
	return NewGatewayWithBackends(conf, nil)
}

// NewGatewayWithBackends uses the given backends instead of the default Stripe API ones.
func NewGatewayWithBackends(conf *core.Config, backends *stripego.Backends) *Gateway {
	return &Gateway{sc: client.New(conf.Stripe.PrivateKey, backends)}
}

// withToken adds the session placeholder to the token query parameter of u.
// The placeholder braces must not be escaped.
func withToken(u string) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "token=" + sessionPlaceholder
}

func (g *Gateway) GetPaymentURL(ctx context.Context, in course.PayInput) (string, error) {
	if _, err := url.Parse(in.ReturnURL); err != nil {
		return "", payment.NewError(gatewayName, "create session", err)
	}

	params := &stripego.CheckoutSessionParams{
		Mode:              stripego.String(string(stripego.CheckoutSessionModePayment)),
		ClientReferenceID: stripego.String(payment.CustomID(in.CourseID, in.UserID)),
		SuccessURL:        stripego.String(withToken(in.ReturnURL)),
		CancelURL:         stripego.String(in.CancelURL),
		LineItems: []*stripego.CheckoutSessionLineItemParams{{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency: stripego.String(strings.ToLower(in.Price.Currency)),
				ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripego.String(in.Description),
				},
				UnitAmount: stripego.Int64(in.Price.Cents()),
			},
			Quantity: stripego.Int64(1),
		}},
	}
	params.Context = ctx

	sess, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", payment.NewError(gatewayName, "create session", err)
	}
	return sess.URL, nil
}

// CapturePayment checks that the checkout session identified by token is paid.
// Checkout captures the payment itself.
func (g *Gateway) CapturePayment(ctx context.Context, token string) (course.SubscribeInput, error) {
	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	sess, err := g.sc.CheckoutSessions.Get(token, params)
	if err != nil {
		return course.SubscribeInput{}, payment.NewError(gatewayName, "capture", err)
	}
	if sess.PaymentStatus != stripego.CheckoutSessionPaymentStatusPaid {
		return course.SubscribeInput{}, payment.NewError(gatewayName, "capture",
			errors.Errorf("session %s is %s", sess.ID, sess.PaymentStatus))
	}

	courseID, userID, err := payment.ParseCustomID(sess.ClientReferenceID)
	if err != nil {
		return course.SubscribeInput{}, payment.NewError(gatewayName, "capture", err)
	}
	txID := sess.ID
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		txID = sess.PaymentIntent.ID
	}
	return course.SubscribeInput{
		CourseID:      courseID,
		UserID:        userID,
		PaymentDate:   time.Unix(sess.Created, 0).UTC(),
		PaymentType:   payment.TypeStripe,
		Paid:          core.NewMoney(float64(sess.AmountTotal)/100, string(sess.Currency)),
		TransactionID: txID,
	}, nil
}
