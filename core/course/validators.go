package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mycourse/core"
)

var (
	durationTag  = "duration"
	durationText = "duration must be formatted as hh:mm:ss"

	priceTag          = "price"
	currentPriceText  = "the current price cannot be greater than the full price"
	priceCurrencyText = "the current price must have the same currency as the full price"
	priceCurrencyTag  = "price_currency"
)

// InitValidators registers the course validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(durationTag, durationValidation)
	core.RegisterCustomTranslation(validate, translator, durationTag, durationText)

	validate.RegisterStructValidation(priceStructValidation, EditInput{})
	core.RegisterCustomTranslation(validate, translator, priceTag, currentPriceText)
	core.RegisterCustomTranslation(validate, translator, priceCurrencyTag, priceCurrencyText)
}

func durationValidation(fl validator.FieldLevel) bool {
	_, err := ParseDuration(fl.Field().String())
	return err == nil
}

// priceStructValidation checks that the current price is not above the full price, in the same currency.
func priceStructValidation(sl validator.StructLevel) {
	in, ok := sl.Current().Interface().(EditInput)
	if !ok {
		return
	}
	if in.FullPrice.Currency != "" && in.CurrentPrice.Currency != "" && in.FullPrice.Currency != in.CurrentPrice.Currency {
		sl.ReportError(in.CurrentPrice, "current_price", "CurrentPrice", priceCurrencyTag, "")
		return
	}
	if in.CurrentPrice.Cents() > in.FullPrice.Cents() {
		sl.ReportError(in.CurrentPrice, "current_price", "CurrentPrice", priceTag, "")
	}
}
