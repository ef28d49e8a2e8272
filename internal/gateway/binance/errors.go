package binance

import (
	"errors"
	"strings"

	"makerd/internal/gateway/exchange"

	"github.com/adshao/go-binance/v2/common"
	"github.com/tidwall/gjson"
)

// wrap classifies an SDK failure into the engine's error taxonomy. The SDK
// surfaces REST failures as *common.APIError; stream and transport errors
// sometimes carry the raw venue JSON in the message, so fall back to gjson.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &exchange.VenueError{
			Class: classifyCode(apiErr.Code, apiErr.Message),
			Code:  apiErr.Code,
			Op:    op,
			Err:   err,
		}
	}
	text := err.Error()
	if code := gjson.Get(text, "code"); code.Exists() {
		return &exchange.VenueError{
			Class: classifyCode(code.Int(), gjson.Get(text, "msg").String()),
			Code:  code.Int(),
			Op:    op,
			Err:   err,
		}
	}
	return &exchange.VenueError{Class: exchange.ClassTransient, Op: op, Err: err}
}

func classifyCode(code int64, msg string) exchange.ErrorClass {
	switch code {
	case -2011, -2013: // cancel rejected / order does not exist
		return exchange.ClassUnknownOrder
	case -2018, -2019: // balance / margin insufficient
		return exchange.ClassInsufficientBalance
	case -1013, -1111, -4164: // filter failure, precision, min notional
		return exchange.ClassValidation
	case -1022, -2014, -2015: // signature / API key
		return exchange.ClassFatal
	case -1003, -1021, -1001: // rate limit, timestamp drift, internal error
		return exchange.ClassTransient
	case -2010: // order rejected: balance problems and filter problems share it
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "balance") || strings.Contains(lower, "margin") {
			return exchange.ClassInsufficientBalance
		}
		return exchange.ClassValidation
	}
	return exchange.ClassTransient
}
